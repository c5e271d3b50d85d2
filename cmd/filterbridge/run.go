package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/filter-bridge/errors"
	"github.com/wippyai/filter-bridge/library"
	"github.com/wippyai/filter-bridge/tile"
)

// job describes one filter invocation over a PNG file.
type job struct {
	lib    string
	symbol string
	in     string
	out    string
	tiles  bool
}

type jobResult struct {
	width, height, channels int
	epoch                   uint64
	elapsed                 time.Duration
}

func (r jobResult) String() string {
	return fmt.Sprintf("%dx%dx%d in %s (epoch %d)",
		r.width, r.height, r.channels, r.elapsed.Round(time.Microsecond), r.epoch)
}

// runJob loads j.lib if needed, resolves the filter and runs it once.
func (a *app) runJob(ctx context.Context, j job) (jobResult, error) {
	if err := a.manager.Open(j.lib); err != nil {
		return jobResult{}, err
	}
	f, err := library.Lookup[tile.Func](a.manager, j.lib, j.symbol)
	if err != nil {
		return jobResult{}, err
	}
	fn, err := f.Func()
	if err != nil {
		return jobResult{}, err
	}

	order, err := a.cfg.Buffer.Order()
	if err != nil {
		return jobResult{}, err
	}
	src, err := readPNG(j.in, order)
	if err != nil {
		return jobResult{}, err
	}
	dst := src.blank()

	in := src.wrap(true)
	defer in.Free()
	out := dst.wrap(false)
	defer out.Free()

	res := jobResult{width: src.width, height: src.height, channels: src.channels, epoch: f.Epoch()}
	start := time.Now()
	if j.tiles {
		err = tile.Run(ctx, fn, in, out, a.cfg.Tiles.Options(j.symbol))
	} else if status := fn(in, out); status != 0 {
		err = errors.FailedStatus(j.symbol, status)
	}
	res.elapsed = time.Since(start)
	if err != nil {
		return res, err
	}

	a.log.Debug("filter finished",
		zap.String("lib", j.lib),
		zap.String("symbol", j.symbol),
		zap.Duration("elapsed", res.elapsed),
		zap.Bool("tiles", j.tiles))
	return res, writePNG(j.out, dst)
}

func addJobFlags(cmd *cobra.Command, j *job) {
	cmd.Flags().StringVar(&j.lib, "lib", "", "filter library (.so, .dylib or .wasm)")
	cmd.Flags().StringVar(&j.symbol, "symbol", "", "exported filter function")
	cmd.Flags().StringVar(&j.in, "in", "", "input PNG")
	cmd.Flags().StringVar(&j.out, "out", "", "output PNG")
	cmd.Flags().BoolVar(&j.tiles, "tiles", false, "run the filter over row bands in parallel")
	for _, name := range []string{"lib", "symbol", "in", "out"} {
		_ = cmd.MarkFlagRequired(name)
	}
}

func newRunCmd(a *app) *cobra.Command {
	var j job
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a filter over a PNG image",
		Example: `  filterbridge run --lib ./brighter.so --symbol brighter --in cat.png --out bright.png
  filterbridge run --lib blur.wasm --symbol blur --in cat.png --out blur.png --tiles`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.runJob(cmd.Context(), j)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s -> %s\n", j.symbol, res, j.out)
			return nil
		},
	}
	addJobFlags(cmd, &j)
	return cmd
}
