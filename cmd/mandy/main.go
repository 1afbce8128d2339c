// Command mandy renders the Mandelbrot set with a GPU compute kernel and
// writes it as an image.
//
// Usage:
//
//	mandy [-w width] [-h height] [-x mid_x] [-y mid_y] [-z zoom] [-m max] [-o file]
//
// Negative values are passed as separate arguments, e.g. -x -0.5.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/mandy"
	"github.com/gogpu/mandy/gpu"
	"github.com/gogpu/mandy/internal/kernel"
)

const defaultOutput = "result.png"

// cliOptions holds the parsed command line.
type cliOptions struct {
	params mandy.Params

	output    string
	kernelDir string
	upload    string
	cpu       bool
	fallback  bool
	verbose   bool
}

func mainCmd() *cobra.Command {
	return newCmd(&cliOptions{})
}

func newCmd(o *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mandy",
		Short: "Render the Mandelbrot set on the GPU",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCmd(cmd, o)
		},
	}

	d := mandy.DefaultParams()
	flags := cmd.Flags()
	flags.Uint32VarP(&o.params.Width, "width", "w", d.Width, "image width in pixels")
	flags.Uint32VarP(&o.params.Height, "height", "h", d.Height, "image height in pixels")
	flags.Float64VarP(&o.params.MidX, "mid-x", "x", d.MidX, "horizontal pan; the image is centred on -mid_x")
	flags.Float64VarP(&o.params.MidY, "mid-y", "y", d.MidY, "vertical pan; the image is centred on -mid_y")
	flags.Float64VarP(&o.params.Zoom, "zoom", "z", d.Zoom, "visible extent scale, smaller zooms in")
	flags.Uint32VarP(&o.params.MaxIterations, "max", "m", d.MaxIterations, "maximum iterations per pixel")

	flags.StringVarP(&o.output, "output", "o", defaultOutput, "output file (.png, .bmp, .tif)")
	flags.StringVar(&o.kernelDir, "kernel", "", "kernel folder (default: search near the working directory)")
	flags.StringVar(&o.upload, "upload", gpu.UploadDirect.String(), "coordinate upload: direct or staged")
	flags.BoolVar(&o.cpu, "cpu", false, "render on the CPU")
	flags.BoolVar(&o.fallback, "fallback", false, "render on the CPU when no GPU is available")
	flags.BoolVarP(&o.verbose, "verbose", "v", false, "log debug output")

	// -h is the height; keep --help without a shorthand.
	flags.Bool("help", false, "help for mandy")

	return cmd
}

func runCmd(cmd *cobra.Command, o *cliOptions) error {
	// At this point usage information has already been printed if obviously incorrect.
	cmd.SilenceUsage = true

	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	mandy.SetLogger(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))

	mode, err := gpu.ParseUploadMode(o.upload)
	if err != nil {
		return err
	}
	gpu.SetUploadMode(mode)

	opts, name, err := renderOptions(o)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	start := time.Now()
	img, err := mandy.Render(ctx, o.params, opts...)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	path, err := filepath.Abs(o.output)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}
	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "saving image to %s\n", path)
	if err := img.SaveFile(path); err != nil {
		return err
	}

	p := message.NewPrinter(language.English)
	_, _ = p.Fprintf(out, "rendered %d pixels (%dx%d, max %d) with %s in %v\n",
		o.params.Pixels(), o.params.Width, o.params.Height, o.params.MaxIterations,
		name, elapsed.Round(time.Millisecond))
	return nil
}

// renderOptions maps the flags to render options and returns the name of
// the renderer expected to run.
func renderOptions(o *cliOptions) ([]mandy.Option, string, error) {
	if o.cpu {
		return []mandy.Option{mandy.WithRenderer(mandy.NewSoftwareRenderer(0))}, "software", nil
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, "", fmt.Errorf("working directory: %w", err)
	}
	src, err := kernel.Resolve(o.kernelDir, wd)
	if err != nil {
		return nil, "", err
	}

	opts := []mandy.Option{mandy.WithSoftwareFallback(o.fallback)}
	if src.Embedded() {
		mandy.Logger().Debug("using embedded kernel")
	} else {
		mandy.Logger().Debug("using kernel", "path", src.Path)
		opts = append(opts, mandy.WithKernelSource(src.Name, src.Code))
	}
	name := "software"
	if gpu.Available() {
		name = "gpu (" + gpu.Adapter() + ")"
	}
	return opts, name, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := mainCmd().ExecuteContext(ctx)
	if err != nil {
		// At this point the error has already been printed; no need to print again.
		stop()
		os.Exit(1)
	}
}
