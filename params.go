package mandy

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidParams is returned when render parameters are out of range.
var ErrInvalidParams = errors.New("mandy: invalid parameters")

// Default parameter values.
const (
	DefaultWidth         = 1024
	DefaultHeight        = 600
	DefaultMidX          = 0.75
	DefaultMidY          = 0.0
	DefaultZoom          = 1.0
	DefaultMaxIterations = 25

	// MaxIterationsLimit bounds MaxIterations so that n*255 fits in uint32
	// on the device.
	MaxIterationsLimit = 1 << 24

	// MaxPixels bounds Width*Height. The grid holds two float64 per pixel,
	// so the limit keeps it at 1 GiB.
	MaxPixels = 1 << 26
)

// Params describes one render.
type Params struct {
	Width  uint32
	Height uint32

	// MidX and MidY pan the view. The image is centred on (-MidX, -MidY).
	MidX float64
	MidY float64

	// Zoom scales the visible extent. Smaller values zoom in.
	//
	// The GPU renderer evaluates points in float32. Adjacent pixels near
	// the main cardioid stop being distinct below a pixel step of about
	// 1e-7, roughly zoom 3e-5 at 1024 pixels wide. Use the software
	// renderer for deeper zooms.
	Zoom float64

	// MaxIterations caps the escape-time iteration per pixel.
	MaxIterations uint32
}

// DefaultParams returns the parameters used when nothing is specified.
func DefaultParams() Params {
	return Params{
		Width:         DefaultWidth,
		Height:        DefaultHeight,
		MidX:          DefaultMidX,
		MidY:          DefaultMidY,
		Zoom:          DefaultZoom,
		MaxIterations: DefaultMaxIterations,
	}
}

// Pixels returns the number of pixels in the grid. Only meaningful for
// parameters that pass Validate.
func (p Params) Pixels() int {
	return int(p.Width) * int(p.Height)
}

// Validate reports whether the parameters describe a renderable image.
func (p Params) Validate() error {
	if p.Width == 0 || p.Height == 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidParams, p.Width, p.Height)
	}
	if n := uint64(p.Width) * uint64(p.Height); n > MaxPixels {
		return fmt.Errorf("%w: %dx%d is %d pixels, limit %d",
			ErrInvalidParams, p.Width, p.Height, n, MaxPixels)
	}
	if !finite(p.MidX) || !finite(p.MidY) {
		return fmt.Errorf("%w: mid point (%v, %v)", ErrInvalidParams, p.MidX, p.MidY)
	}
	if !finite(p.Zoom) || p.Zoom <= 0 {
		return fmt.Errorf("%w: zoom %v", ErrInvalidParams, p.Zoom)
	}
	if p.MaxIterations == 0 || p.MaxIterations > MaxIterationsLimit {
		return fmt.Errorf("%w: max iterations %d not in [1, %d]",
			ErrInvalidParams, p.MaxIterations, MaxIterationsLimit)
	}
	return nil
}

// String returns a compact description for logs.
func (p Params) String() string {
	return fmt.Sprintf("%dx%d mid=(%g,%g) zoom=%g max=%d",
		p.Width, p.Height, p.MidX, p.MidY, p.Zoom, p.MaxIterations)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
