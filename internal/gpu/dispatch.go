//go:build !nogpu

package gpu

import (
	"context"
	"fmt"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/mandy"
	"github.com/gogpu/wgpu/hal"
)

// frameBuffers are the per-render device buffers.
type frameBuffers struct {
	params   hal.Buffer
	xs       hal.Buffer
	ys       hal.Buffer
	pixels   hal.Buffer
	readback hal.Buffer

	// Staging sources for UploadStaged; nil for UploadDirect.
	stageX hal.Buffer
	stageY hal.Buffer

	coordSize uint64
	pixelSize uint64
}

// submission is a dispatch whose resources may still be in use on the device.
type submission struct {
	bufs      frameBuffers
	bindGroup hal.BindGroup
	cmdBuf    hal.CommandBuffer
	fence     hal.Fence
}

// Render uploads the grid, dispatches the kernel once and reads the shaded
// pixels back into dst.
//
// If the device does not finish in time, the submission's resources are
// kept until Close rather than destroyed while the device may still use them.
func (d *Dispatcher) Render(ctx context.Context, grid *mandy.Grid, maxIterations uint32, dst *mandy.Image) error {
	if grid == nil || dst == nil {
		return fmt.Errorf("gpu: nil grid or image")
	}
	if grid.Width != dst.Width() || grid.Height != dst.Height() {
		return fmt.Errorf("%w: grid %dx%d, image %dx%d",
			mandy.ErrSizeMismatch, grid.Width, grid.Height, dst.Width(), dst.Height())
	}
	size, err := checkSize(grid.Width, grid.Height)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.ready {
		return ErrNotInitialized
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if precisionLost(grid) {
		slogger().Warn("gpu: pixel step below float32 resolution, image will band",
			"width", grid.Width, "height", grid.Height)
	}

	w, h := uint32(grid.Width), uint32(grid.Height) //nolint:gosec // checked against the storage limit
	sub := &submission{}
	inFlight := false
	defer func() {
		if inFlight {
			d.abandoned = append(d.abandoned, *sub)
			return
		}
		d.destroySubmission(*sub)
	}()

	sub.bufs, err = d.createBuffers(size, size)
	if err != nil {
		return err
	}

	xs := packCoordinates(grid.X)
	ys := packCoordinates(grid.Y)
	d.queue.WriteBuffer(sub.bufs.params, 0, packParams(w, h, maxIterations))
	if d.upload == UploadStaged {
		d.queue.WriteBuffer(sub.bufs.stageX, 0, xs)
		d.queue.WriteBuffer(sub.bufs.stageY, 0, ys)
	} else {
		d.queue.WriteBuffer(sub.bufs.xs, 0, xs)
		d.queue.WriteBuffer(sub.bufs.ys, 0, ys)
	}

	bufs := sub.bufs
	sub.bindGroup, err = d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label: "mandy_bind", Layout: d.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: bufs.params.NativeHandle(), Offset: 0, Size: paramsSize}},
			{Binding: 1, Resource: gputypes.BufferBinding{Buffer: bufs.xs.NativeHandle(), Offset: 0, Size: bufs.coordSize}},
			{Binding: 2, Resource: gputypes.BufferBinding{Buffer: bufs.ys.NativeHandle(), Offset: 0, Size: bufs.coordSize}},
			{Binding: 3, Resource: gputypes.BufferBinding{Buffer: bufs.pixels.NativeHandle(), Offset: 0, Size: bufs.pixelSize}},
		},
	})
	if err != nil {
		return fmt.Errorf("gpu: create bind group: %w", err)
	}

	slogger().Debug("gpu: dispatch",
		"width", w, "height", h, "max", maxIterations, "upload", d.upload.String(),
		"workgroups_x", workgroups(w), "workgroups_y", workgroups(h), "bytes", bufs.pixelSize)

	start := time.Now()
	if err := d.submit(ctx, sub, w, h, &inFlight); err != nil {
		return err
	}

	readback := make([]byte, bufs.pixelSize)
	if err := d.queue.ReadBuffer(bufs.readback, 0, readback); err != nil {
		return fmt.Errorf("gpu: readback: %w", err)
	}
	unpackPixels(readback, dst.Data(), grid.Len())

	slogger().Debug("gpu: dispatch complete", "elapsed", time.Since(start))
	return nil
}

// submit encodes the optional staged copies, the compute pass and the
// readback copy, submits them and waits on a fence. inFlight is set while
// the device may still be executing the submission.
func (d *Dispatcher) submit(ctx context.Context, sub *submission, w, h uint32, inFlight *bool) error {
	bufs := sub.bufs
	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "mandy_encoder"})
	if err != nil {
		return fmt.Errorf("gpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("mandy"); err != nil {
		return fmt.Errorf("gpu: begin encoding: %w", err)
	}

	if bufs.stageX != nil {
		encoder.CopyBufferToBuffer(bufs.stageX, bufs.xs, []hal.BufferCopy{
			{SrcOffset: 0, DstOffset: 0, Size: bufs.coordSize},
		})
		encoder.CopyBufferToBuffer(bufs.stageY, bufs.ys, []hal.BufferCopy{
			{SrcOffset: 0, DstOffset: 0, Size: bufs.coordSize},
		})
	}

	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "mandy_pass"})
	pass.SetPipeline(d.pipeline)
	pass.SetBindGroup(0, sub.bindGroup, nil)
	pass.Dispatch(workgroups(w), workgroups(h), 1)
	pass.End()

	encoder.CopyBufferToBuffer(bufs.pixels, bufs.readback, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: bufs.pixelSize},
	})
	sub.cmdBuf, err = encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("gpu: end encoding: %w", err)
	}

	sub.fence, err = d.device.CreateFence()
	if err != nil {
		return fmt.Errorf("gpu: create fence: %w", err)
	}

	if err := d.queue.Submit([]hal.CommandBuffer{sub.cmdBuf}, sub.fence, 1); err != nil {
		return fmt.Errorf("gpu: submit: %w", err)
	}
	*inFlight = true

	timeout := d.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(deadline))
	}
	fenceOK, err := d.device.Wait(sub.fence, 1, timeout)
	if err != nil {
		return fmt.Errorf("gpu: wait for device: %w", err)
	}
	if !fenceOK {
		slogger().Warn("gpu: dispatch timed out, keeping its buffers until Close", "timeout", timeout)
		return fmt.Errorf("%w after %v", ErrTimeout, timeout)
	}
	*inFlight = false
	return nil
}

// destroySubmission releases everything a submission created. Nil members
// are skipped.
func (d *Dispatcher) destroySubmission(sub submission) {
	if d.device == nil {
		return
	}
	if sub.fence != nil {
		d.device.DestroyFence(sub.fence)
	}
	if sub.cmdBuf != nil {
		d.device.FreeCommandBuffer(sub.cmdBuf)
	}
	if sub.bindGroup != nil {
		d.device.DestroyBindGroup(sub.bindGroup)
	}
	d.destroyBuffers(sub.bufs)
}

// precisionLost reports whether neighbouring pixels with distinct float64
// coordinates collapse to the same float32 value.
func precisionLost(grid *mandy.Grid) bool {
	for i := 1; i < grid.Width; i++ {
		if grid.X[i] != grid.X[i-1] && float32(grid.X[i]) == float32(grid.X[i-1]) {
			return true
		}
	}
	for row := 1; row < grid.Height; row++ {
		a, b := grid.Y[(row-1)*grid.Width], grid.Y[row*grid.Width]
		if a != b && float32(a) == float32(b) {
			return true
		}
	}
	return false
}

type bufferSpec struct {
	dst   *hal.Buffer
	label string
	size  uint64
	usage gputypes.BufferUsage
}

// createBuffers allocates the per-render buffers. On error the partially
// filled frameBuffers is returned for cleanup.
func (d *Dispatcher) createBuffers(coordSize, pixelSize uint64) (frameBuffers, error) {
	bufs := frameBuffers{coordSize: coordSize, pixelSize: pixelSize}

	specs := []bufferSpec{
		{&bufs.params, "mandy_params", paramsSize, gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst},
		{&bufs.xs, "mandy_xs", coordSize, gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst},
		{&bufs.ys, "mandy_ys", coordSize, gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst},
		{&bufs.pixels, "mandy_pixels", pixelSize, gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc},
		{&bufs.readback, "mandy_readback", pixelSize, gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst},
	}
	if d.upload == UploadStaged {
		stage := gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst
		specs = append(specs,
			bufferSpec{&bufs.stageX, "mandy_stage_xs", coordSize, stage},
			bufferSpec{&bufs.stageY, "mandy_stage_ys", coordSize, stage},
		)
	}

	for _, s := range specs {
		buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{Label: s.label, Size: s.size, Usage: s.usage})
		if err != nil {
			return bufs, fmt.Errorf("gpu: create %s buffer: %w", s.label, err)
		}
		*s.dst = buf
	}
	return bufs, nil
}

func (d *Dispatcher) destroyBuffers(bufs frameBuffers) {
	for _, b := range []hal.Buffer{bufs.params, bufs.xs, bufs.ys, bufs.pixels, bufs.readback, bufs.stageX, bufs.stageY} {
		if b != nil {
			d.device.DestroyBuffer(b)
		}
	}
}
