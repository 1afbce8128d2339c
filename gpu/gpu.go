// Package gpu registers the compute-shader renderer for Mandelbrot
// rendering.
//
// Import this package to render on the GPU. The renderer uses wgpu/hal
// compute shaders, one invocation per pixel.
//
// If GPU initialization fails (no Vulkan device or driver available), the
// registration is skipped with a warning and mandy.Render returns
// mandy.ErrNoDevice unless software fallback was requested.
//
// Usage:
//
//	import _ "github.com/gogpu/mandy/gpu" // enable GPU rendering
package gpu

import (
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/mandy"
	gpuimpl "github.com/gogpu/mandy/internal/gpu"
)

// UploadMode selects how coordinates reach the device.
type UploadMode = gpuimpl.UploadMode

const (
	// UploadDirect writes coordinates straight into the kernel's storage buffers.
	UploadDirect = gpuimpl.UploadDirect

	// UploadStaged writes coordinates into staging buffers and copies them
	// on the device before the dispatch.
	UploadStaged = gpuimpl.UploadStaged
)

// Errors reported by the GPU renderer.
var (
	ErrUnavailable   = gpuimpl.ErrUnavailable
	ErrImageTooLarge = gpuimpl.ErrImageTooLarge
	ErrTimeout       = gpuimpl.ErrTimeout
)

var dispatcher = gpuimpl.NewDispatcher()

func init() {
	if err := mandy.RegisterRenderer(dispatcher); err != nil {
		mandy.Logger().Warn("GPU renderer not available", "err", err)
	}
}

// ParseUploadMode parses "direct" or "staged".
func ParseUploadMode(s string) (UploadMode, error) {
	return gpuimpl.ParseUploadMode(s)
}

// SetUploadMode selects how the next renders upload coordinates.
func SetUploadMode(m UploadMode) {
	dispatcher.SetUploadMode(m)
}

// SetTimeout bounds how long a render waits for the device.
// Zero restores the default.
func SetTimeout(t time.Duration) {
	dispatcher.SetTimeout(t)
}

// Available reports whether the GPU renderer is registered.
func Available() bool {
	return mandy.CurrentRenderer() == mandy.Renderer(dispatcher)
}

// Adapter returns the name of the GPU adapter in use, or "" when the
// renderer is not available.
func Adapter() string {
	return dispatcher.Adapter()
}

// SetDeviceProvider makes the renderer use a shared GPU device from an
// external provider (e.g., gogpu) instead of opening its own.
//
// The provider must also implement HalDevice() any and HalQueue() any
// returning the wgpu/hal device and queue.
func SetDeviceProvider(provider gpucontext.DeviceProvider) error {
	if err := dispatcher.SetDeviceProvider(provider); err != nil {
		return err
	}
	return mandy.RegisterRenderer(dispatcher)
}
