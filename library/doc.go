// Package library keeps a registry of loaded filter libraries and resolves typed
// functions from them.
//
// Libraries are keyed by the path passed to Load, or by filterbridge.SelfKey for the
// host process. Paths are opened by the native dynamic loader unless an Opener has
// been registered for their extension:
//
//	eng, _ := engine.New(ctx, &engine.Config{})
//	m := library.NewManager(
//	    library.WithLogger(log),
//	    library.WithOpener(".wasm", eng),
//	)
//
// Resolve returns a Filter bound to the entry's current epoch. Unload, Reload and
// Close all retire that epoch:
//
//	f, ok := library.Resolve[func(in, out *buffer.Buffer) int32](m, path, "blur")
//	m.Reload(path)
//	_, err := f.Func() // stale
//
// Load, LoadSelf and Resolve report failure as a boolean and log the reason at debug
// level. Open, OpenSelf and Lookup return the structured error instead.
package library
