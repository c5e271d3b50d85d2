// Package filterbridge loads image and tensor filters from shared libraries at run time
// and exchanges strided buffer descriptors with them across a C calling convention.
//
// The host does not know at compile time which libraries will be loaded, which symbols
// they export, or how often a library will be reloaded while the process runs.
//
// # Architecture Overview
//
//	filterbridge/      Root package with the Library/Opener and guest Memory interfaces
//	├── buffer/        C-ABI buffer descriptor, element types, dimension records
//	├── library/       Library Manager (load/unload/reload) and typed Filter handles
//	├── device/        Opaque accelerator device interfaces and GPU selection
//	├── engine/        Portable filters compiled to WebAssembly (wazero backend)
//	├── tile/          Parallel invocation over disjoint row bands
//	├── config/        Configuration and logger construction
//	├── errors/        Structured error types
//	└── cmd/           filterbridge command line tool
//
// # Quick Start
//
// Run a filter exported as
//
//	int brighter(const halide_buffer_t *in, halide_buffer_t *out);
//
// over an 8-bit RGB image:
//
//	m := library.NewManager()
//	defer m.Close()
//
//	if !m.Load("./libbrighter.so") {
//	    log.Fatal("cannot load libbrighter.so")
//	}
//
//	f, ok := library.Resolve[func(in, out *buffer.Buffer) int32](m, "./libbrighter.so", "brighter")
//	if !ok {
//	    log.Fatal("brighter not exported")
//	}
//
//	in := buffer.Wrap(800, 600, 3, input)
//	defer in.Free()
//	out := buffer.Wrap(800, 600, 3, output)
//	defer out.Free()
//
//	fn, err := f.Func()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	status := fn(in, out)
//
// # Ownership
//
// A Buffer owns only its dimension array. Pixel storage is borrowed from the caller and
// must outlive every call that receives the buffer. Free releases the dimension array and
// never touches the pixel storage or the device interface.
//
// A Filter handle is bound to the registry entry it was resolved from. Once that entry is
// unloaded or reloaded, or the manager is closed, Func reports a stale error instead of
// returning a function pointer into unmapped code.
//
// # Thread Safety
//
// Manager serializes its own registry mutations. Callers must not invoke a filter while
// another goroutine unloads or reloads the same key. Buffers are not safe for concurrent
// writes to overlapping storage; use the tile package to split work into disjoint crops.
package filterbridge
