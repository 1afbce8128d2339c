//go:build !nogpu

package gpu

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/mandy"
	"github.com/gogpu/mandy/internal/kernel"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// createNoopDevice creates a noop device and queue for testing.
// Returns the device, queue, and a cleanup function.
func createNoopDevice(t *testing.T) (hal.Device, hal.Queue, func()) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	cleanup := func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return openDev.Device, openDev.Queue, cleanup
}

// noopDispatcher returns a dispatcher bound to a noop device that will not
// destroy the device on Close.
func noopDispatcher(t *testing.T) (*Dispatcher, func()) {
	t.Helper()
	device, queue, cleanup := createNoopDevice(t)
	d := NewDispatcher()
	d.device = device
	d.queue = queue
	d.externalDevice = true
	return d, cleanup
}

func TestDispatcherName(t *testing.T) {
	d := NewDispatcher()
	if d.Name() != "gpu" {
		t.Errorf("Name() = %q, want gpu", d.Name())
	}
	if d.Adapter() != "" {
		t.Errorf("Adapter() before Init = %q, want empty", d.Adapter())
	}
}

func TestDispatcherCreatePipeline(t *testing.T) {
	d, cleanup := noopDispatcher(t)
	defer cleanup()
	defer d.Close()

	if err := d.createPipeline(); err != nil {
		t.Fatalf("createPipeline failed: %v", err)
	}
	if d.shader == nil {
		t.Error("expected non-nil shader")
	}
	if d.bindLayout == nil {
		t.Error("expected non-nil bindLayout")
	}
	if d.pipeLayout == nil {
		t.Error("expected non-nil pipeLayout")
	}
	if d.pipeline == nil {
		t.Error("expected non-nil pipeline")
	}
}

func TestDispatcherDestroyPipeline(t *testing.T) {
	d, cleanup := noopDispatcher(t)
	defer cleanup()

	if err := d.createPipeline(); err != nil {
		t.Fatalf("createPipeline failed: %v", err)
	}
	d.destroyPipeline()

	if d.shader != nil || d.bindLayout != nil || d.pipeLayout != nil || d.pipeline != nil {
		t.Error("expected all pipeline objects nil after destroy")
	}

	// Double-destroy should be safe.
	d.destroyPipeline()
}

func TestDispatcherDestroyPipelineWithoutDevice(t *testing.T) {
	d := NewDispatcher()
	d.destroyPipeline()
	d.Close()
}

func TestDispatcherCreateBuffers(t *testing.T) {
	for _, mode := range []UploadMode{UploadDirect, UploadStaged} {
		t.Run(mode.String(), func(t *testing.T) {
			d, cleanup := noopDispatcher(t)
			defer cleanup()
			d.upload = mode

			bufs, err := d.createBuffers(64, 64)
			if err != nil {
				t.Fatalf("createBuffers failed: %v", err)
			}
			defer d.destroyBuffers(bufs)

			for name, b := range map[string]hal.Buffer{
				"params": bufs.params, "xs": bufs.xs, "ys": bufs.ys,
				"pixels": bufs.pixels, "readback": bufs.readback,
			} {
				if b == nil {
					t.Errorf("expected non-nil %s buffer", name)
				}
			}
			staged := bufs.stageX != nil && bufs.stageY != nil
			if staged != (mode == UploadStaged) {
				t.Errorf("staging buffers present = %v for mode %v", staged, mode)
			}
		})
	}
}

func TestDispatcherRenderNotInitialized(t *testing.T) {
	d := NewDispatcher()
	grid, err := mandy.NewGrid(mandy.Params{Width: 4, Height: 4, Zoom: 1, MaxIterations: 10})
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	err = d.Render(context.Background(), grid, 10, mandy.NewImage(4, 4))
	if !errors.Is(err, ErrNotInitialized) {
		t.Errorf("err = %v, want ErrNotInitialized", err)
	}
}

func TestDispatcherRenderSizeMismatch(t *testing.T) {
	d := NewDispatcher()
	grid, err := mandy.NewGrid(mandy.Params{Width: 4, Height: 4, Zoom: 1, MaxIterations: 10})
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	err = d.Render(context.Background(), grid, 10, mandy.NewImage(2, 2))
	if !errors.Is(err, mandy.ErrSizeMismatch) {
		t.Errorf("err = %v, want ErrSizeMismatch", err)
	}
}

func TestDispatcherLoadKernel(t *testing.T) {
	d := NewDispatcher()

	if err := d.LoadKernel("broken", "fn main( {"); !errors.Is(err, kernel.ErrCompile) {
		t.Errorf("LoadKernel(broken) err = %v, want ErrCompile", err)
	}
	if d.source.Name != kernel.Default().Name {
		t.Errorf("failed load replaced kernel %q", d.source.Name)
	}

	src := kernel.Default()
	if err := d.LoadKernel("", src.Code); err != nil {
		t.Fatalf("LoadKernel: %v", err)
	}
	if d.source.Name != "mandy" {
		t.Errorf("source name = %q, want mandy", d.source.Name)
	}
}

func TestDispatcherLoadKernelRebuilds(t *testing.T) {
	d, cleanup := noopDispatcher(t)
	defer cleanup()
	defer d.Close()

	if err := d.createPipeline(); err != nil {
		t.Fatalf("createPipeline failed: %v", err)
	}
	d.ready = true

	if err := d.LoadKernel("custom", kernel.Default().Code); err != nil {
		t.Fatalf("LoadKernel: %v", err)
	}
	if !d.ready || d.pipeline == nil {
		t.Fatal("expected a ready pipeline after reload")
	}
	if d.source.Name != "custom" {
		t.Errorf("source name = %q, want custom", d.source.Name)
	}
}

func TestDispatcherSetDeviceProviderRejectsPlainProvider(t *testing.T) {
	d := NewDispatcher()
	if err := d.SetDeviceProvider(plainProvider{}); !errors.Is(err, ErrProvider) {
		t.Errorf("err = %v, want ErrProvider", err)
	}
}

func TestDispatcherSetDeviceProvider(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	d := NewDispatcher()
	defer d.Close()
	if err := d.SetDeviceProvider(halProvider{device: device, queue: queue}); err != nil {
		t.Fatalf("SetDeviceProvider: %v", err)
	}
	if !d.ready || !d.externalDevice {
		t.Error("expected a ready dispatcher on a shared device")
	}
	if d.Adapter() != "shared" {
		t.Errorf("Adapter() = %q, want shared", d.Adapter())
	}
}

func TestDispatcherSetTimeout(t *testing.T) {
	d := NewDispatcher()
	d.SetTimeout(0)
	if d.timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want %v", d.timeout, DefaultTimeout)
	}
}

func TestSelectAdapter(t *testing.T) {
	adapters := []hal.ExposedAdapter{
		{Info: gputypes.AdapterInfo{Name: "other"}},
		{Info: gputypes.AdapterInfo{Name: "igpu", DeviceType: gputypes.DeviceTypeIntegratedGPU}},
		{Info: gputypes.AdapterInfo{Name: "dgpu", DeviceType: gputypes.DeviceTypeDiscreteGPU}},
	}
	if got := selectAdapter(adapters).Info.Name; got != "dgpu" {
		t.Errorf("selected %q, want dgpu", got)
	}
	if got := selectAdapter(adapters[:2]).Info.Name; got != "igpu" {
		t.Errorf("selected %q, want igpu", got)
	}
	if got := selectAdapter(adapters[:1]).Info.Name; got != "other" {
		t.Errorf("selected %q, want other", got)
	}
}

// plainProvider implements gpucontext.DeviceProvider without HAL accessors.
type plainProvider struct{}

func (plainProvider) Device() gpucontext.Device             { return nil }
func (plainProvider) Queue() gpucontext.Queue               { return nil }
func (plainProvider) Adapter() gpucontext.Adapter           { return nil }
func (plainProvider) SurfaceFormat() gputypes.TextureFormat { return gputypes.TextureFormatBGRA8Unorm }

type halProvider struct {
	plainProvider
	device hal.Device
	queue  hal.Queue
}

func (p halProvider) HalDevice() any { return p.device }
func (p halProvider) HalQueue() any  { return p.queue }

var errPipeline = errors.New("pipeline rejected")

// scriptedDevice wraps a noop device, records buffer labels and lets a
// test decide fence waits and pipeline creation failures.
type scriptedDevice struct {
	hal.Device

	labels        []string
	waitOK        bool
	failPipelines int
}

func (s *scriptedDevice) CreateBuffer(desc *hal.BufferDescriptor) (hal.Buffer, error) {
	s.labels = append(s.labels, desc.Label)
	return s.Device.CreateBuffer(desc)
}

func (s *scriptedDevice) Wait(hal.Fence, uint64, time.Duration) (bool, error) {
	return s.waitOK, nil
}

func (s *scriptedDevice) CreateComputePipeline(desc *hal.ComputePipelineDescriptor) (hal.ComputePipeline, error) {
	if s.failPipelines > 0 {
		s.failPipelines--
		return nil, errPipeline
	}
	return s.Device.CreateComputePipeline(desc)
}

func (s *scriptedDevice) stagingUsed() bool {
	for _, l := range s.labels {
		if strings.HasPrefix(l, "mandy_stage_") {
			return true
		}
	}
	return false
}

// readyDispatcher returns an initialised dispatcher on a scripted noop device.
func readyDispatcher(t *testing.T) (*Dispatcher, *scriptedDevice) {
	t.Helper()
	device, queue, cleanup := createNoopDevice(t)
	t.Cleanup(cleanup)

	dev := &scriptedDevice{Device: device, waitOK: true}
	d := NewDispatcher()
	d.device = dev
	d.queue = queue
	d.externalDevice = true
	if err := d.createPipeline(); err != nil {
		t.Fatalf("createPipeline failed: %v", err)
	}
	d.ready = true
	t.Cleanup(d.Close)
	return d, dev
}

func testGrid(t *testing.T, p mandy.Params) *mandy.Grid {
	t.Helper()
	grid, err := mandy.NewGrid(p)
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	return grid
}

func TestDispatcherRender(t *testing.T) {
	for _, mode := range []UploadMode{UploadDirect, UploadStaged} {
		t.Run(mode.String(), func(t *testing.T) {
			d, dev := readyDispatcher(t)
			d.SetUploadMode(mode)

			grid := testGrid(t, mandy.Params{Width: 16, Height: 9, MidX: 0.75, Zoom: 1, MaxIterations: 25})
			dst := mandy.NewImage(16, 9)
			if err := d.Render(context.Background(), grid, 25, dst); err != nil {
				t.Fatalf("Render failed: %v", err)
			}

			if dst.Width() != 16 || dst.Height() != 9 || len(dst.Data()) != 16*9*4 {
				t.Errorf("image = %dx%d (%d bytes), want 16x9", dst.Width(), dst.Height(), len(dst.Data()))
			}
			if got := dev.stagingUsed(); got != (mode == UploadStaged) {
				t.Errorf("staging buffers used = %v for mode %v", got, mode)
			}
			if len(dev.labels) == 0 {
				t.Error("expected buffers to be created")
			}
			if len(d.abandoned) != 0 {
				t.Errorf("completed render left %d abandoned submissions", len(d.abandoned))
			}
		})
	}
}

func TestDispatcherRenderCancelled(t *testing.T) {
	d, dev := readyDispatcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	grid := testGrid(t, mandy.Params{Width: 4, Height: 4, Zoom: 1, MaxIterations: 10})
	if err := d.Render(ctx, grid, 10, mandy.NewImage(4, 4)); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if len(dev.labels) != 0 {
		t.Error("cancelled render must not allocate buffers")
	}
}

func TestDispatcherRenderTimeoutKeepsResources(t *testing.T) {
	d, dev := readyDispatcher(t)
	dev.waitOK = false

	grid := testGrid(t, mandy.Params{Width: 8, Height: 8, Zoom: 1, MaxIterations: 10})
	err := d.Render(context.Background(), grid, 10, mandy.NewImage(8, 8))
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if len(d.abandoned) != 1 {
		t.Fatalf("abandoned = %d, want 1", len(d.abandoned))
	}
	sub := d.abandoned[0]
	if sub.bufs.pixels == nil || sub.fence == nil || sub.cmdBuf == nil {
		t.Error("expected the in-flight buffers, fence and command buffer to be kept")
	}

	d.Close()
	if d.abandoned != nil {
		t.Error("Close must release abandoned submissions")
	}
}

func TestDispatcherLoadKernelRestoresPrevious(t *testing.T) {
	d, dev := readyDispatcher(t)
	prev := d.source.Name
	dev.failPipelines = 1

	err := d.LoadKernel("custom", kernel.Default().Code)
	if !errors.Is(err, errPipeline) {
		t.Fatalf("LoadKernel err = %v, want %v", err, errPipeline)
	}
	if !d.ready || d.pipeline == nil {
		t.Fatal("expected the previous pipeline to be rebuilt")
	}
	if d.source.Name != prev {
		t.Errorf("source = %q, want previous %q", d.source.Name, prev)
	}
	if d.device == nil {
		t.Error("device released although the previous kernel was restored")
	}
}

func TestDispatcherLoadKernelReleasesWhenRestoreFails(t *testing.T) {
	d, dev := readyDispatcher(t)
	dev.failPipelines = 2

	if err := d.LoadKernel("custom", kernel.Default().Code); !errors.Is(err, errPipeline) {
		t.Fatalf("LoadKernel err = %v, want %v", err, errPipeline)
	}
	if d.ready {
		t.Error("dispatcher still ready after failed restore")
	}
	if d.device != nil || d.queue != nil {
		t.Error("expected the device to be released so Init can start over")
	}
}

func TestPrecisionLost(t *testing.T) {
	wide := testGrid(t, mandy.DefaultParams())
	if precisionLost(wide) {
		t.Error("default view reported as losing float32 precision")
	}

	deep := mandy.DefaultParams()
	deep.Zoom = 1e-6
	if !precisionLost(testGrid(t, deep)) {
		t.Error("zoom 1e-6 not reported as losing float32 precision")
	}
}
