// Package buffer builds the strided buffer descriptors passed to filters.
//
// A Descriptor matches halide_buffer_t field for field. A Buffer embeds one as its
// first field and owns the dimension array the descriptor points to. Element
// storage is always borrowed:
//
//	pixels := make([]uint8, 800*600*3)
//	b := buffer.Wrap(800, 600, 3, pixels)
//	defer b.Free()
//
// Single-channel images get two dimensions. Images with two or more channels get a
// third, placed last by default or first with WithAxisOrder(ChannelFirst). Either
// way the memory is interleaved: neighbouring channels of a pixel are adjacent.
//
// Buffers pin their dimension array and host storage while alive so foreign code
// may hold the pointers for the duration of a call. Free unpins and drops the
// dimension array; a runtime cleanup does the same for buffers that are never freed.
package buffer
