// Package mandy renders the Mandelbrot set on a GPU compute device.
//
// # Overview
//
// A render is one linear sequence: the parameters are validated, every pixel
// of a width x height grid is mapped to a point of the complex plane, the
// coordinates are uploaded to the GPU, one compute kernel computes the escape
// time of every point, and the shaded pixels are read back into an [Image].
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/mandy"
//	    _ "github.com/gogpu/mandy/gpu" // register the GPU renderer
//	)
//
//	img, err := mandy.Render(ctx, mandy.DefaultParams())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	_ = img.SavePNG("result.png")
//
// # Coordinate mapping
//
// The visible region is BaseExtent wide at zoom 1 and keeps the aspect ratio
// of the image. The view is panned by the negated mid point, so MidX = 0.75
// centres the image on -0.75 on the real axis. See [Viewport].
//
// # Renderers
//
// The GPU renderer lives in the gpu sub-package and registers itself by blank
// import. Without a GPU, [Render] returns [ErrNoDevice] unless a software
// fallback is requested with [WithSoftwareFallback]. The software renderer
// is also available directly through [NewSoftwareRenderer].
package mandy
