// Command filterbridge loads compiled image filters and runs them on PNG files.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/filter-bridge/config"
	"github.com/wippyai/filter-bridge/engine"
	"github.com/wippyai/filter-bridge/library"
)

// app holds the state shared by every subcommand.
type app struct {
	cfgFile string
	verbose bool

	cfg     *config.Config
	log     *zap.Logger
	engine  *engine.WazeroEngine
	manager *library.Manager
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "filterbridge",
		Short: "Run compiled image filters on PNG files",
		Long: `filterbridge loads filters from native shared libraries or WebAssembly
modules and calls them with image buffers.

A filter is an exported function taking an input and an output buffer
descriptor and returning 0 on success.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd.Context())
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "",
		"config file (default: ./filterbridge.yaml or ~/.filterbridge/config.yaml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false,
		"debug logging")

	root.AddCommand(newRunCmd(a), newInspectCmd(a), newWatchCmd(a))
	return root
}

func (a *app) init(ctx context.Context) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	if a.verbose {
		cfg.Logging.Level = "debug"
	}
	log, err := cfg.Logging.Build()
	if err != nil {
		return err
	}
	a.cfg, a.log = cfg, log
	engine.SetLogger(log)

	opts := []library.Option{
		library.WithLogger(log),
		library.WithSearchPaths(cfg.Libraries.SearchPaths...),
	}
	if cfg.Wasm.Enabled {
		eng, err := engine.New(ctx, cfg.Wasm.EngineConfig(log))
		if err != nil {
			return err
		}
		a.engine = eng
		opts = append(opts, library.WithOpener(".wasm", eng))
	}
	a.manager = library.NewManager(opts...)

	if cfg.Libraries.Self && !a.manager.LoadSelf() {
		log.Warn("host process symbols unavailable")
	}
	for _, p := range cfg.Libraries.Preload {
		if err := a.manager.Open(p); err != nil {
			log.Warn("preload failed", zap.String("path", p), zap.Error(err))
		}
	}
	return nil
}

func (a *app) close(ctx context.Context) error {
	var err error
	if a.manager != nil {
		err = multierr.Append(err, a.manager.Close())
	}
	if a.engine != nil {
		err = multierr.Append(err, a.engine.Close(ctx))
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
	return err
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a := &app{}
	err := newRootCmd(a).ExecuteContext(ctx)
	if cerr := a.close(context.Background()); cerr != nil {
		fmt.Fprintf(os.Stderr, "shutdown: %v\n", cerr)
	}
	if err != nil {
		os.Exit(1)
	}
}
