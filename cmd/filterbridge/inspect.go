package main

import (
	"debug/elf"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/wippyai/filter-bridge/device"
	"github.com/wippyai/filter-bridge/engine"
	"github.com/wippyai/filter-bridge/library"
	"github.com/wippyai/filter-bridge/tile"
)

func newInspectCmd(a *app) *cobra.Command {
	var (
		lib     string
		symbols []string
		devices []string
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the filters a library exports",
		Example: `  filterbridge inspect --lib blur.wasm
  filterbridge inspect --lib ./libfilters.so --symbol blur --symbol sharpen
  filterbridge inspect --lib ./libcuda_blur.so --device cuda`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.inspect(cmd.OutOrStdout(), lib, symbols, devices)
		},
	}
	cmd.Flags().StringVar(&lib, "lib", "", "library to inspect")
	cmd.Flags().StringSliceVar(&symbols, "symbol", nil, "symbols to resolve as filters")
	cmd.Flags().StringSliceVar(&devices, "device", nil, "device kinds whose runtime interface to resolve")
	_ = cmd.MarkFlagRequired("lib")
	return cmd
}

func (a *app) inspect(w io.Writer, lib string, symbols, devices []string) error {
	kinds := make([]device.Kind, 0, len(devices))
	for _, d := range devices {
		k, err := device.ParseKind(d)
		if err != nil {
			return err
		}
		kinds = append(kinds, k)
	}

	if err := a.manager.Open(lib); err != nil {
		return err
	}
	path, _ := a.manager.Path(lib)
	epoch, _ := a.manager.Epoch(lib)
	fmt.Fprintf(w, "%s (epoch %d)\n", path, epoch)

	l, _ := a.manager.Library(lib)
	if mod, ok := l.(*engine.WazeroModule); ok {
		fmt.Fprintln(w, "exports:")
		for _, name := range mod.Exports() {
			sig, _ := mod.Signature(name)
			fmt.Fprintf(w, "  %s%s\n", name, sig)
		}
	} else if len(symbols) == 0 {
		names, err := elfFunctions(path)
		if err != nil {
			fmt.Fprintf(w, "symbol table unavailable: %v\n", err)
		} else {
			fmt.Fprintln(w, "exports:")
			for _, name := range names {
				fmt.Fprintf(w, "  %s\n", name)
			}
		}
	}

	for _, s := range symbols {
		if _, err := library.Lookup[tile.Func](a.manager, lib, s); err != nil {
			fmt.Fprintf(w, "%s: %v\n", s, err)
			continue
		}
		fmt.Fprintf(w, "%s: ok\n", s)
	}

	if len(kinds) == 0 {
		return nil
	}
	rt := device.NewRuntime(a.manager, device.WithKey(lib), device.WithLogger(a.log))
	for _, k := range kinds {
		iface, err := rt.Interface(k)
		if err != nil {
			fmt.Fprintf(w, "device %s: %v\n", k, err)
			continue
		}
		fmt.Fprintf(w, "device %s: %s\n", k, iface)
	}
	return nil
}

// elfFunctions lists the defined function symbols in the dynamic symbol table.
func elfFunctions(path string) ([]string, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	syms, err := f.DynamicSymbols()
	if err != nil {
		return nil, err
	}
	var names []string
	for _, s := range syms {
		if elf.ST_TYPE(s.Info) != elf.STT_FUNC || s.Section == elf.SHN_UNDEF {
			continue
		}
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return names, nil
}
