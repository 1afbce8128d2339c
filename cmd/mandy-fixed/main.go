// Command mandy-fixed renders the default Mandelbrot view on the GPU with
// hardcoded parameters and staged coordinate uploads, writing result.png
// to the working directory.
package main

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/gogpu/mandy"
	"github.com/gogpu/mandy/gpu"
)

const (
	width         = 1024
	height        = 600
	midX          = 0.75
	midY          = 0.0
	zoom          = 1.0
	maxIterations = 25

	output = "result.png"
)

func main() {
	gpu.SetUploadMode(gpu.UploadStaged)

	img, err := mandy.Render(context.Background(), mandy.Params{
		Width:         width,
		Height:        height,
		MidX:          midX,
		MidY:          midY,
		Zoom:          zoom,
		MaxIterations: maxIterations,
	})
	if err != nil {
		log.Fatal(err)
	}

	path, err := filepath.Abs(output)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("saving image to %s\n", path)
	if err := img.SavePNG(path); err != nil {
		log.Fatal(err)
	}
}
