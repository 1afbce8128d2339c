// Package gpu dispatches the Mandelbrot kernel on a GPU compute device.
//
// It uses the gogpu/wgpu Pure Go WebGPU implementation (zero CGO) through its
// hal layer. A render is a single synchronous dispatch:
//
//	instance -> adapter -> device/queue -> pipeline
//	coordinates -> storage buffers -> dispatch -> staging buffer -> Image
//
// # Buffers
//
// Binding layout of the kernel (group 0):
//
//	0  uniform           Params{width, height, max_iter, pad}
//	1  storage, read     x coordinates, f32 per pixel
//	2  storage, read     y coordinates, f32 per pixel
//	3  storage, rw       pixels, packed RGBA8 per pixel
//
// Coordinates are computed in float64 on the host and narrowed to f32,
// since WGSL has no portable f64.
//
// # Upload modes
//
// UploadDirect writes the coordinates straight into the storage buffers
// through the queue. UploadStaged writes them into copy-source staging
// buffers and copies them into the storage buffers inside the command
// encoder, ahead of the compute pass.
//
// Building with the nogpu tag replaces the dispatcher with a stub whose Init
// always fails.
package gpu
