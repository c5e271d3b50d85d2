package engine

import (
	"fmt"

	filterbridge "github.com/wippyai/filter-bridge"
	"github.com/wippyai/filter-bridge/buffer"
	"github.com/wippyai/filter-bridge/errors"
)

// StatusError is returned by bound functions when a call cannot be completed on
// the host side: the guest trapped, or a buffer could not be copied in or out.
const StatusError int32 = -1

// halide_buffer_t as laid out by a wasm32 guest.
const (
	DescriptorSize = 40
	DimensionSize  = 16

	offDevice     = 0
	offInterface  = 8
	offHost       = 12
	offFlags      = 16
	offTypeCode   = 24
	offTypeBits   = 25
	offTypeLanes  = 26
	offDimensions = 28
	offDim        = 32
	offPadding    = 36
)

// guestBuffer is a host buffer mirrored into guest memory for one call.
type guestBuffer struct {
	buf  *buffer.Buffer
	desc uint32
	host uint32
	size uint32
}

// stageBuffer allocates a descriptor, its dimension array and a copy of the
// element storage in guest memory. Device fields are zeroed: host device handles
// mean nothing inside the guest.
func stageBuffer(mem filterbridge.Memory, alloc filterbridge.Allocator, b *buffer.Buffer) (*guestBuffer, error) {
	if b.Freed() {
		return nil, errors.InvalidInput(errors.PhaseLayout, "buffer was freed")
	}
	if b.HasNegativeStride() {
		return nil, errors.Unsupported(errors.PhaseLayout, "negative strides in guest buffers")
	}

	dims := b.Dims()
	size := b.Size()
	if uint64(size) > uint64(^uint32(0)) {
		return nil, errors.OutOfBounds(errors.PhaseLayout, "buffer exceeds 32-bit guest memory", size)
	}

	g := &guestBuffer{buf: b, size: uint32(size)}

	header := uint32(DescriptorSize + DimensionSize*len(dims))
	desc, err := alloc.Alloc(header)
	if err != nil {
		return nil, err
	}
	g.desc = desc

	if g.size > 0 && b.Host() != nil {
		host, err := alloc.Alloc(g.size)
		if err != nil {
			g.release(alloc)
			return nil, err
		}
		g.host = host
		if err := mem.Write(host, b.Bytes()); err != nil {
			g.release(alloc)
			return nil, err
		}
	}

	if err := writeDescriptor(mem, desc, g.host, b.Type(), b.Flags(), dims); err != nil {
		g.release(alloc)
		return nil, err
	}
	return g, nil
}

func writeDescriptor(mem filterbridge.Memory, at, host uint32, t buffer.Type, flags uint64, dims []buffer.Dimension) error {
	dimAt := at + DescriptorSize
	if len(dims) == 0 {
		dimAt = 0
	}

	writes := []error{
		mem.WriteU64(at+offDevice, 0),
		mem.WriteU32(at+offInterface, 0),
		mem.WriteU32(at+offHost, host),
		mem.WriteU64(at+offFlags, flags),
		mem.WriteU8(at+offTypeCode, uint8(t.Code)),
		mem.WriteU8(at+offTypeBits, t.Bits),
		mem.WriteU16(at+offTypeLanes, t.Lanes),
		mem.WriteU32(at+offDimensions, uint32(len(dims))),
		mem.WriteU32(at+offDim, dimAt),
		mem.WriteU32(at+offPadding, 0),
	}
	for _, err := range writes {
		if err != nil {
			return err
		}
	}

	for i, d := range dims {
		p := dimAt + uint32(i*DimensionSize)
		for j, v := range [4]uint32{uint32(d.Min), uint32(d.Extent), uint32(d.Stride), d.Flags} {
			if err := mem.WriteU32(p+uint32(j*4), v); err != nil {
				return err
			}
		}
	}
	return nil
}

// copyBack copies the guest's element storage into the host buffer.
func (g *guestBuffer) copyBack(mem filterbridge.Memory) error {
	if g.host == 0 || g.buf.ReadOnly() {
		return nil
	}
	data, err := mem.Read(g.host, g.size)
	if err != nil {
		return err
	}
	if n := copy(g.buf.Bytes(), data); n != int(g.size) {
		return errors.OutOfBounds(errors.PhaseLayout, fmt.Sprintf("copied %d of %d bytes", n, g.size), n)
	}
	return nil
}

func (g *guestBuffer) release(alloc filterbridge.Allocator) {
	alloc.Free(g.host)
	alloc.Free(g.desc)
	g.host, g.desc = 0, 0
}
