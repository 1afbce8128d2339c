package mandy

// Option configures a Render call.
//
// Example:
//
//	// GPU if registered, otherwise CPU
//	img, err := mandy.Render(ctx, p, mandy.WithSoftwareFallback(true))
//
//	// Explicit renderer (dependency injection)
//	img, err := mandy.Render(ctx, p, mandy.WithRenderer(mandy.NewSoftwareRenderer(0)))
type Option func(*renderOptions)

type renderOptions struct {
	renderer     Renderer
	fallback     bool
	kernelName   string
	kernelSource string
}

func defaultOptions() renderOptions {
	return renderOptions{}
}

// WithRenderer renders with r instead of the registered renderer.
// Render calls r.Init but does not close r.
func WithRenderer(r Renderer) Option {
	return func(o *renderOptions) {
		o.renderer = r
	}
}

// WithSoftwareFallback allows Render to use the software renderer when no
// GPU renderer is registered.
func WithSoftwareFallback(enabled bool) Option {
	return func(o *renderOptions) {
		o.fallback = enabled
	}
}

// WithKernelSource loads the given kernel into the renderer before
// rendering. Renderers without a replaceable kernel ignore it.
//
// The kernel stays loaded after Render returns. For the registered GPU
// renderer this means later calls without the option keep using it; load
// the default kernel again to undo it.
func WithKernelSource(name, source string) Option {
	return func(o *renderOptions) {
		o.kernelName = name
		o.kernelSource = source
	}
}
