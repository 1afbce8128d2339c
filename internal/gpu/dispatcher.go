//go:build !nogpu

package gpu

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/mandy"
	"github.com/gogpu/mandy/internal/kernel"
	"github.com/gogpu/wgpu/hal"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// Dispatcher runs the Mandelbrot kernel with wgpu/hal compute shaders.
// It implements mandy.Renderer and mandy.KernelLoader.
//
// Render holds the dispatcher lock for the whole dispatch, so concurrent
// renders are serialised.
type Dispatcher struct {
	mu sync.Mutex

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	adapter  string

	source     kernel.Source
	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline

	// abandoned holds timed-out submissions, destroyed on release.
	abandoned []submission

	upload         UploadMode
	timeout        time.Duration
	ready          bool
	externalDevice bool // true when using a shared device (don't destroy on Close)
}

var (
	_ mandy.Renderer     = (*Dispatcher)(nil)
	_ mandy.KernelLoader = (*Dispatcher)(nil)
)

// NewDispatcher returns a dispatcher with the embedded kernel, direct
// uploads and the default timeout. Call Init before Render.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		source:  kernel.Default(),
		timeout: DefaultTimeout,
	}
}

// Name returns "gpu".
func (d *Dispatcher) Name() string { return "gpu" }

// Adapter returns the name of the selected adapter, empty before Init.
func (d *Dispatcher) Adapter() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.adapter
}

// SetUploadMode selects how coordinates are uploaded.
func (d *Dispatcher) SetUploadMode(m UploadMode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.upload = m
}

// SetTimeout bounds the wait for a dispatch. Zero restores DefaultTimeout.
func (d *Dispatcher) SetTimeout(t time.Duration) {
	if t <= 0 {
		t = DefaultTimeout
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.timeout = t
}

// Init opens a device and builds the compute pipeline.
// A missing native driver is reported as ErrUnavailable.
func (d *Dispatcher) Init() (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ready {
		return nil
	}

	// The Vulkan loader panics when the native library is absent.
	defer func() {
		if r := recover(); r != nil {
			d.releaseLocked()
			err = fmt.Errorf("%w: native library: %v", ErrUnavailable, r)
		}
	}()

	if err := d.openDevice(); err != nil {
		d.releaseLocked()
		return err
	}
	if err := d.createPipeline(); err != nil {
		d.releaseLocked()
		return fmt.Errorf("gpu: create pipeline: %w", err)
	}
	d.ready = true
	return nil
}

func (d *Dispatcher) openDevice() error {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return fmt.Errorf("%w: vulkan backend not registered", ErrUnavailable)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("%w: create instance: %w", ErrUnavailable, err)
	}
	d.instance = instance

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		return fmt.Errorf("%w: no GPU adapters found", ErrUnavailable)
	}
	selected := selectAdapter(adapters)

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		return fmt.Errorf("%w: open device: %w", ErrUnavailable, err)
	}
	d.device = openDev.Device
	d.queue = openDev.Queue
	d.adapter = selected.Info.Name

	slogger().Info("gpu: adapter selected", "name", selected.Info.Name, "type", selected.Info.DeviceType)
	return nil
}

// selectAdapter prefers a discrete GPU, then an integrated one, then the
// first adapter enumerated.
func selectAdapter(adapters []hal.ExposedAdapter) *hal.ExposedAdapter {
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU {
			return &adapters[i]
		}
	}
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			return &adapters[i]
		}
	}
	return &adapters[0]
}

// createPipeline compiles the current kernel and builds the layouts and
// compute pipeline. The caller must hold d.mu.
func (d *Dispatcher) createPipeline() error {
	spirv, err := kernel.Compile(d.source.Code)
	if err != nil {
		return err
	}

	shader, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  d.source.Name,
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return fmt.Errorf("create shader module: %w", err)
	}
	d.shader = shader

	bindLayout, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "mandy_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{Binding: 0, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}},
			{Binding: 1, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
			{Binding: 2, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
			{Binding: 3, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}},
		},
	})
	if err != nil {
		return fmt.Errorf("create bind group layout: %w", err)
	}
	d.bindLayout = bindLayout

	pipeLayout, err := d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: "mandy_pipe_layout", BindGroupLayouts: []hal.BindGroupLayout{d.bindLayout},
	})
	if err != nil {
		return fmt.Errorf("create pipeline layout: %w", err)
	}
	d.pipeLayout = pipeLayout

	pipeline, err := d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label: "mandy_pipeline", Layout: d.pipeLayout,
		Compute: hal.ComputeState{Module: d.shader, EntryPoint: kernel.EntryPoint},
	})
	if err != nil {
		return fmt.Errorf("create compute pipeline: %w", err)
	}
	d.pipeline = pipeline

	slogger().Debug("gpu: pipeline ready", "kernel", d.source.Name, "path", d.source.Path, "spirv_words", len(spirv))
	return nil
}

// destroyPipeline releases the pipeline objects. Safe to call repeatedly.
func (d *Dispatcher) destroyPipeline() {
	if d.device == nil {
		return
	}
	if d.pipeline != nil {
		d.device.DestroyComputePipeline(d.pipeline)
		d.pipeline = nil
	}
	if d.pipeLayout != nil {
		d.device.DestroyPipelineLayout(d.pipeLayout)
		d.pipeLayout = nil
	}
	if d.bindLayout != nil {
		d.device.DestroyBindGroupLayout(d.bindLayout)
		d.bindLayout = nil
	}
	if d.shader != nil {
		d.device.DestroyShaderModule(d.shader)
		d.shader = nil
	}
}

// LoadKernel validates source and rebuilds the pipeline with it.
// Before Init it only records the kernel.
//
// If the rebuild fails, the previous kernel is restored. If that fails too,
// the dispatcher releases the device and must be initialised again.
func (d *Dispatcher) LoadKernel(name, source string) error {
	if _, err := kernel.Compile(source); err != nil {
		return err
	}
	if name == "" {
		name = "mandy"
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	prev := d.source
	d.source = kernel.Source{Name: name, Code: source}
	if !d.ready {
		return nil
	}

	d.destroyPipeline()
	err := d.createPipeline()
	if err == nil {
		return nil
	}

	d.destroyPipeline()
	d.source = prev
	if restoreErr := d.createPipeline(); restoreErr != nil {
		d.releaseLocked()
		return fmt.Errorf("gpu: rebuild pipeline: %w (restore %s: %v)", err, prev.Name, restoreErr)
	}
	slogger().Warn("gpu: kernel rejected, previous kernel restored", "kernel", name, "err", err)
	return fmt.Errorf("gpu: rebuild pipeline: %w", err)
}

// SetDeviceProvider switches the dispatcher to a shared GPU device. The
// provider must also implement HalDevice() any and HalQueue() any returning
// hal.Device and hal.Queue.
func (d *Dispatcher) SetDeviceProvider(provider gpucontext.DeviceProvider) error {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return ErrProvider
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return fmt.Errorf("%w: HalDevice is not hal.Device", ErrProvider)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return fmt.Errorf("%w: HalQueue is not hal.Queue", ErrProvider)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.releaseLocked()
	d.device = device
	d.queue = queue
	d.adapter = "shared"
	d.externalDevice = true

	if err := d.createPipeline(); err != nil {
		return fmt.Errorf("gpu: create pipeline with shared device: %w", err)
	}
	d.ready = true
	slogger().Info("gpu: switched to shared device")
	return nil
}

// Close releases the pipeline and, unless shared, the device.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.releaseLocked()
}

// releaseLocked tears everything down. The caller must hold d.mu.
func (d *Dispatcher) releaseLocked() {
	for _, sub := range d.abandoned {
		d.destroySubmission(sub)
	}
	d.abandoned = nil
	d.destroyPipeline()
	if !d.externalDevice {
		if d.device != nil {
			d.device.Destroy()
		}
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
	d.device = nil
	d.queue = nil
	d.instance = nil
	d.adapter = ""
	d.ready = false
	d.externalDevice = false
}
