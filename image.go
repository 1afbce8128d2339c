package mandy

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// ErrUnsupportedFormat is returned by SaveFile for unknown file extensions.
var ErrUnsupportedFormat = errors.New("mandy: unsupported image format")

// Image is the rendered pixel buffer: RGBA, 4 bytes per pixel, row by row.
type Image struct {
	width  int
	height int
	data   []uint8
}

// NewImage creates an opaque black image with the given dimensions.
func NewImage(width, height int) *Image {
	img := &Image{
		width:  width,
		height: height,
		data:   make([]uint8, width*height*4),
	}
	for i := 3; i < len(img.data); i += 4 {
		img.data[i] = 0xff
	}
	return img
}

// Width returns the width of the image.
func (m *Image) Width() int {
	return m.width
}

// Height returns the height of the image.
func (m *Image) Height() int {
	return m.height
}

// Data returns the raw pixel data (RGBA format).
func (m *Image) Data() []uint8 {
	return m.data
}

// SetShade writes an opaque grey pixel at flat offset i (row*width + col).
func (m *Image) SetShade(i int, v uint8) {
	p := m.data[i*4 : i*4+4 : i*4+4]
	p[0], p[1], p[2], p[3] = v, v, v, 0xff
}

// ToImage copies the pixels into an image.RGBA.
func (m *Image) ToImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, m.width, m.height))
	copy(img.Pix, m.data)
	return img
}

// EncodePNG encodes the image as PNG to the given writer.
func (m *Image) EncodePNG(w io.Writer) error {
	if err := png.Encode(w, m.ToImage()); err != nil {
		return fmt.Errorf("mandy: encode PNG: %w", err)
	}
	return nil
}

// SavePNG saves the image as a PNG file.
func (m *Image) SavePNG(path string) error {
	return m.save(path, m.EncodePNG)
}

// SaveFile saves the image in the format implied by the file extension:
// .png, .bmp, .tif or .tiff.
func (m *Image) SaveFile(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return m.SavePNG(path)
	case ".bmp":
		return m.save(path, func(w io.Writer) error {
			if err := bmp.Encode(w, m.ToImage()); err != nil {
				return fmt.Errorf("mandy: encode BMP: %w", err)
			}
			return nil
		})
	case ".tif", ".tiff":
		return m.save(path, func(w io.Writer) error {
			if err := tiff.Encode(w, m.ToImage(), &tiff.Options{Compression: tiff.Deflate}); err != nil {
				return fmt.Errorf("mandy: encode TIFF: %w", err)
			}
			return nil
		})
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

func (m *Image) save(path string, encode func(io.Writer) error) error {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("mandy: create file: %w", err)
	}

	if err := encode(f); err != nil {
		_ = f.Close()
		return err
	}

	return f.Close()
}

// At implements the image.Image interface.
func (m *Image) At(x, y int) color.Color {
	if x < 0 || x >= m.width || y < 0 || y >= m.height {
		return color.RGBA{}
	}
	i := (y*m.width + x) * 4
	return color.RGBA{R: m.data[i], G: m.data[i+1], B: m.data[i+2], A: m.data[i+3]}
}

// Bounds implements the image.Image interface.
func (m *Image) Bounds() image.Rectangle {
	return image.Rect(0, 0, m.width, m.height)
}

// ColorModel implements the image.Image interface.
func (m *Image) ColorModel() color.Model {
	return color.RGBAModel
}
