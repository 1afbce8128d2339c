package mandy

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/mandy/internal/parallel"
)

// ErrSizeMismatch is returned when the destination image does not match
// the grid dimensions.
var ErrSizeMismatch = errors.New("mandy: image size does not match grid")

// SoftwareRenderer computes escape times on the CPU in float64.
// Rows are spread over a worker pool.
type SoftwareRenderer struct {
	mu      sync.Mutex
	workers int
	pool    *parallel.WorkerPool
}

// NewSoftwareRenderer creates a software renderer using the given number of
// workers. Zero or negative uses GOMAXPROCS.
func NewSoftwareRenderer(workers int) *SoftwareRenderer {
	return &SoftwareRenderer{workers: workers}
}

var _ Renderer = (*SoftwareRenderer)(nil)

// Name returns "software".
func (r *SoftwareRenderer) Name() string { return "software" }

// Init starts the worker pool.
func (r *SoftwareRenderer) Init() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pool == nil {
		r.pool = parallel.NewWorkerPool(r.workers)
	}
	return nil
}

// Close stops the worker pool.
func (r *SoftwareRenderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pool != nil {
		r.pool.Close()
		r.pool = nil
	}
}

// Render shades every grid point into dst.
func (r *SoftwareRenderer) Render(ctx context.Context, grid *Grid, maxIterations uint32, dst *Image) error {
	if err := checkTarget(grid, dst); err != nil {
		return err
	}
	if err := r.Init(); err != nil {
		return err
	}

	r.mu.Lock()
	pool := r.pool
	r.mu.Unlock()

	w := grid.Width
	return pool.Range(ctx, grid.Height, 1, func(row int) {
		base := row * w
		for i := base; i < base+w; i++ {
			n := Escape(grid.X[i], grid.Y[i], maxIterations)
			dst.SetShade(i, Shade(n, maxIterations))
		}
	})
}

func checkTarget(grid *Grid, dst *Image) error {
	if grid == nil || dst == nil {
		return errors.New("mandy: nil grid or image")
	}
	if grid.Width != dst.Width() || grid.Height != dst.Height() {
		return fmt.Errorf("%w: grid %dx%d, image %dx%d",
			ErrSizeMismatch, grid.Width, grid.Height, dst.Width(), dst.Height())
	}
	return nil
}
