package mandy

import (
	"context"
	"fmt"
	"time"
)

// Render computes the Mandelbrot image described by p.
//
// The renderer is chosen in this order: WithRenderer, the registered GPU
// renderer, then the software renderer if WithSoftwareFallback is set.
// Otherwise ErrNoDevice is returned.
func Render(ctx context.Context, p Params, opts ...Option) (*Image, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	grid, err := NewGrid(p)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r, release, err := pickRenderer(o)
	if err != nil {
		return nil, err
	}
	defer release()

	if o.kernelSource != "" {
		if kl, ok := r.(KernelLoader); ok {
			if err := kl.LoadKernel(o.kernelName, o.kernelSource); err != nil {
				return nil, err
			}
		}
	}

	log := Logger()
	log.Debug("mandy: rendering", "renderer", r.Name(), "params", p.String(),
		"viewport", fmt.Sprintf("%+v", NewViewport(p)))

	img := NewImage(grid.Width, grid.Height)
	start := time.Now()
	if err := r.Render(ctx, grid, p.MaxIterations, img); err != nil {
		return nil, fmt.Errorf("mandy: %s render: %w", r.Name(), err)
	}
	log.Info("mandy: rendered", "renderer", r.Name(),
		"pixels", grid.Len(), "elapsed", time.Since(start))

	return img, nil
}

// pickRenderer returns the renderer to use and a function releasing
// anything created for this call.
func pickRenderer(o renderOptions) (Renderer, func(), error) {
	if o.renderer != nil {
		if err := o.renderer.Init(); err != nil {
			return nil, nil, fmt.Errorf("mandy: init %s: %w", o.renderer.Name(), err)
		}
		return o.renderer, func() {}, nil
	}

	if r := CurrentRenderer(); r != nil {
		return r, func() {}, nil
	}

	if !o.fallback {
		return nil, nil, noDeviceError()
	}

	Logger().Warn("mandy: no GPU renderer, falling back to software", "cause", noDeviceError())
	sw := NewSoftwareRenderer(0)
	if err := sw.Init(); err != nil {
		return nil, nil, err
	}
	return sw, sw.Close, nil
}
