package mandy

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNoDevice is returned when no GPU renderer is available and software
// fallback was not requested.
var ErrNoDevice = errors.New("mandy: no GPU compute device available")

// Renderer computes shaded escape times for a coordinate grid.
//
// The GPU renderer is provided by the gpu sub-package and registered via
// blank import:
//
//	import _ "github.com/gogpu/mandy/gpu"
type Renderer interface {
	// Name returns the renderer name (e.g., "gpu", "software").
	Name() string

	// Init acquires device resources. Called once during registration.
	Init() error

	// Close releases device resources.
	Close()

	// Render fills dst with the shade of every grid point.
	// dst must have the grid's dimensions.
	Render(ctx context.Context, grid *Grid, maxIterations uint32, dst *Image) error
}

// KernelLoader is implemented by renderers that run a replaceable kernel.
type KernelLoader interface {
	LoadKernel(name, source string) error
}

var (
	rendererMu  sync.RWMutex
	renderer    Renderer
	registerErr error
)

// RegisterRenderer registers the GPU renderer used by Render.
//
// Init is called during registration. If it fails, the renderer is not
// registered and the error is returned; the error is also kept so that
// Render can report why no device is available.
// A previously registered renderer is closed.
func RegisterRenderer(r Renderer) error {
	if r == nil {
		return errors.New("mandy: renderer must not be nil")
	}
	if err := r.Init(); err != nil {
		rendererMu.Lock()
		registerErr = fmt.Errorf("%s: %w", r.Name(), err)
		rendererMu.Unlock()
		return err
	}
	propagateLogger(r, Logger())

	rendererMu.Lock()
	old := renderer
	renderer = r
	registerErr = nil
	rendererMu.Unlock()
	if old != nil && old != r {
		old.Close()
	}
	return nil
}

// CurrentRenderer returns the registered renderer, or nil if none.
func CurrentRenderer() Renderer {
	rendererMu.RLock()
	defer rendererMu.RUnlock()
	return renderer
}

// CloseRenderer closes and unregisters the current renderer.
func CloseRenderer() {
	rendererMu.Lock()
	r := renderer
	renderer = nil
	rendererMu.Unlock()
	if r != nil {
		r.Close()
	}
}

// SetRendererKernel replaces the kernel of the registered renderer.
// It is a no-op if no renderer is registered or it runs a fixed kernel.
func SetRendererKernel(name, source string) error {
	r := CurrentRenderer()
	if r == nil {
		return nil
	}
	if kl, ok := r.(KernelLoader); ok {
		return kl.LoadKernel(name, source)
	}
	return nil
}

// noDeviceError wraps ErrNoDevice with the last registration failure, if any.
func noDeviceError() error {
	rendererMu.RLock()
	cause := registerErr
	rendererMu.RUnlock()
	if cause != nil {
		return fmt.Errorf("%w: %v", ErrNoDevice, cause)
	}
	return ErrNoDevice
}
