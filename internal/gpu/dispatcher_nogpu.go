//go:build nogpu

package gpu

import (
	"context"
	"fmt"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/mandy"
	"github.com/gogpu/mandy/internal/kernel"
)

// Dispatcher is a stub used when built with the nogpu tag. Init always
// fails with ErrUnavailable.
type Dispatcher struct{}

var (
	_ mandy.Renderer     = (*Dispatcher)(nil)
	_ mandy.KernelLoader = (*Dispatcher)(nil)
)

// NewDispatcher returns the stub dispatcher.
func NewDispatcher() *Dispatcher { return &Dispatcher{} }

// Name returns "gpu".
func (d *Dispatcher) Name() string { return "gpu" }

// Adapter always returns an empty string.
func (d *Dispatcher) Adapter() string { return "" }

// SetUploadMode is a no-op.
func (d *Dispatcher) SetUploadMode(UploadMode) {}

// SetTimeout is a no-op.
func (d *Dispatcher) SetTimeout(time.Duration) {}

// Init reports that GPU support was compiled out.
func (d *Dispatcher) Init() error {
	return fmt.Errorf("%w: built with nogpu", ErrUnavailable)
}

// Render always returns ErrNotInitialized.
func (d *Dispatcher) Render(context.Context, *mandy.Grid, uint32, *mandy.Image) error {
	return ErrNotInitialized
}

// LoadKernel validates the kernel source but never runs it.
func (d *Dispatcher) LoadKernel(_, source string) error {
	_, err := kernel.Compile(source)
	return err
}

// SetDeviceProvider reports that GPU support was compiled out.
func (d *Dispatcher) SetDeviceProvider(gpucontext.DeviceProvider) error {
	return fmt.Errorf("%w: built with nogpu", ErrUnavailable)
}

// Close is a no-op.
func (d *Dispatcher) Close() {}
