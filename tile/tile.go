// Package tile runs a filter over horizontal bands of an image in parallel.
//
// Each band is a pair of crops sharing storage with the full buffers, so a filter
// that is pointwise along the height axis produces the same result as one call
// over the whole image.
package tile

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/wippyai/filter-bridge/buffer"
	"github.com/wippyai/filter-bridge/errors"
)

// RowsPerBand is the default band height.
const RowsPerBand = 64

// Func is a filter taking one input and one output buffer.
type Func func(in, out *buffer.Buffer) int32

// Options tunes Run.
type Options struct {
	// Symbol names the filter in errors.
	Symbol string

	// Workers bounds concurrent calls. 0 means GOMAXPROCS.
	Workers int

	// Rows is the band height. 0 means RowsPerBand.
	Rows int
}

// Run calls fn once per band of rows. in and out must have the same height.
// The first non-zero status cancels bands that have not started and is returned
// as a failed_status error.
func Run(ctx context.Context, fn Func, in, out *buffer.Buffer, opts Options) error {
	height := out.Height()
	if in.Height() != height {
		return errors.InvalidInput(errors.PhaseLayout,
			fmt.Sprintf("input height %d does not match output height %d", in.Height(), height))
	}

	inMin, err := minY(in)
	if err != nil {
		return err
	}
	outMin, err := minY(out)
	if err != nil {
		return err
	}

	rows := opts.Rows
	if rows <= 0 {
		rows = RowsPerBand
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < height; start += rows {
		n := int32(min(rows, height-start))
		off := int32(start)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return runBand(fn, opts.Symbol, in, out, inMin+off, outMin+off, n)
		})
	}
	return g.Wait()
}

func minY(b *buffer.Buffer) (int32, error) {
	i, ok := b.Index(buffer.Y)
	if !ok {
		return 0, errors.InvalidInput(errors.PhaseLayout, "buffer has no height axis")
	}
	return b.Dim(i).Min, nil
}

func runBand(fn Func, symbol string, in, out *buffer.Buffer, inY, outY, n int32) error {
	inBand, err := in.Crop(buffer.Y, inY, n)
	if err != nil {
		return err
	}
	defer inBand.Free()

	outBand, err := out.Crop(buffer.Y, outY, n)
	if err != nil {
		return err
	}
	defer outBand.Free()

	if status := fn(inBand, outBand); status != 0 {
		return fmt.Errorf("rows [%d,%d): %w", outY, outY+n, errors.FailedStatus(symbol, status))
	}
	return nil
}
