// Package engine runs filters compiled to WebAssembly.
//
// Native filters are only usable on the platform they were built for. The same
// filter source compiled for wasm32 runs anywhere through wazero, behind the same
// library manager and the same Filter handles:
//
//	eng, err := engine.New(ctx, &engine.Config{MemoryLimitPages: 1024})
//	if err != nil {
//	    return err
//	}
//	defer eng.Close(ctx)
//
//	m := library.NewManager(library.WithOpener(".wasm", eng))
//	m.Load("blur.wasm")
//
// # Guest ABI
//
// A filter module exports its linear memory as "memory" and an allocator as
// malloc(i32) i32 and free(i32). Filter exports take halide_buffer_t pointers in
// the wasm32 layout:
//
//	offset  field
//	0       device            u64 (always 0)
//	8       device_interface  u32 (always 0)
//	12      host              u32
//	16      flags             u64
//	24      type              {u8 code, u8 bits, u16 lanes}
//	28      dimensions        i32
//	32      dim               u32, points just past the descriptor
//	36      padding           u32
//
// # Calls
//
// Bind accepts funcs whose parameters are *buffer.Buffer, int32, uint32, int64,
// uint64, float32 or float64, returning nothing or an int32 status. Each call
// copies every buffer's element storage into guest memory and, unless the buffer
// is read-only, back out again. A trap or copy failure returns StatusError.
//
// # Thread Safety
//
// WazeroEngine is safe for concurrent use. Calls into one WazeroModule are
// serialized; open the module twice to run filters in parallel.
package engine
