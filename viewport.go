package mandy

// BaseExtent is the width of the visible region of the real axis at zoom 1.
const BaseExtent = 3.5

// Viewport is the rectangle of the complex plane covered by the image.
//
// Left/Top are the coordinates of pixel (0, 0); Right/Bottom are the
// coordinates of the last pixel. Rows grow from Top towards Bottom.
type Viewport struct {
	Left, Right float64
	Top, Bottom float64

	// StepX and StepY are the distances between adjacent pixel centres.
	StepX, StepY float64
}

// NewViewport computes the viewport for the given parameters.
//
//	scale_w = 0.5 * BaseExtent * zoom
//	scale_h = 0.5 * BaseExtent * (height/width) * zoom
//	left, right = -scale_w - midX, scale_w - midX
//	top, bottom = -scale_h - midY, scale_h - midY
//
// A dimension of one pixel has step 0 and sits on the centre of its axis.
func NewViewport(p Params) Viewport {
	w := float64(p.Width)
	h := float64(p.Height)

	scaleW := 0.5 * BaseExtent * p.Zoom
	scaleH := 0.5 * BaseExtent * (h / w) * p.Zoom

	v := Viewport{
		Left:   -scaleW - p.MidX,
		Right:  scaleW - p.MidX,
		Top:    -scaleH - p.MidY,
		Bottom: scaleH - p.MidY,
	}

	if p.Width > 1 {
		v.StepX = (v.Right - v.Left) / (w - 1)
	} else {
		v.Left, v.Right = -p.MidX, -p.MidX
	}
	if p.Height > 1 {
		v.StepY = (v.Bottom - v.Top) / (h - 1)
	} else {
		v.Top, v.Bottom = -p.MidY, -p.MidY
	}
	return v
}

// Point returns the complex-plane coordinates of pixel (col, row).
func (v Viewport) Point(col, row int) (x, y float64) {
	return v.Left + float64(col)*v.StepX, v.Top + float64(row)*v.StepY
}

// Grid holds the complex-plane coordinates of every pixel, row by row.
// X[i] and Y[i] belong to pixel (i % Width, i / Width).
type Grid struct {
	Width  int
	Height int
	X      []float64
	Y      []float64
}

// NewGrid validates p and fills a coordinate grid for it.
func NewGrid(p Params) (*Grid, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	v := NewViewport(p)
	w, h := int(p.Width), int(p.Height)
	g := &Grid{
		Width:  w,
		Height: h,
		X:      make([]float64, w*h),
		Y:      make([]float64, w*h),
	}

	for row := 0; row < h; row++ {
		base := row * w
		for col := 0; col < w; col++ {
			g.X[base+col], g.Y[base+col] = v.Point(col, row)
		}
	}
	return g, nil
}

// Len returns the number of pixels in the grid.
func (g *Grid) Len() int {
	return g.Width * g.Height
}

// At returns the coordinates of pixel (col, row).
func (g *Grid) At(col, row int) (x, y float64) {
	i := row*g.Width + col
	return g.X[i], g.Y[i]
}
