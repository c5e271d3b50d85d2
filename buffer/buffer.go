package buffer

import (
	"fmt"
	"runtime"
	"slices"
	"unsafe"

	"github.com/wippyai/filter-bridge/device"
	"github.com/wippyai/filter-bridge/errors"
)

// Descriptor is the raw halide_buffer_t record exchanged with foreign code.
// Field order and widths follow the published runtime header.
type Descriptor struct {
	device          uint64
	deviceInterface uintptr
	host            unsafe.Pointer
	flags           uint64
	typ             Type
	dimensions      int32
	dim             *Dimension
	padding         unsafe.Pointer
}

// Device returns the device-side handle, 0 when none.
func (d *Descriptor) Device() uint64 { return d.device }

// DeviceInterface returns the opaque device interface pointer, 0 when none.
func (d *Descriptor) DeviceInterface() uintptr { return d.deviceInterface }

// Host returns the element storage pointer. It may be nil.
func (d *Descriptor) Host() unsafe.Pointer { return d.host }

// Flags returns the raw flag bits.
func (d *Descriptor) Flags() uint64 { return d.flags }

// Type returns the element type.
func (d *Descriptor) Type() Type { return d.typ }

// Dimensions returns the rank.
func (d *Descriptor) Dimensions() int { return int(d.dimensions) }

// Dims returns a view of the dimension array. The view aliases the descriptor.
func (d *Descriptor) Dims() []Dimension {
	if d.dim == nil || d.dimensions <= 0 {
		return nil
	}
	return unsafe.Slice(d.dim, int(d.dimensions))
}

// Buffer owns one Descriptor and its dimension array.
//
// The descriptor is the first field, so a *Buffer can be handed to foreign code
// wherever a halide_buffer_t pointer is expected. The dimension array and host
// storage are pinned until Free.
type Buffer struct {
	desc     Descriptor
	dims     []Dimension
	pins     *runtime.Pinner
	cleanup  runtime.Cleanup
	order    AxisOrder
	readOnly bool
}

// New describes width x height x channels elements of type t at host.
// host is borrowed and must stay valid for as long as the buffer is used.
func New(width, height, channels int, t Type, host unsafe.Pointer, opts ...Option) *Buffer {
	o := buildOptions(opts)
	return adopt(Descriptor{host: host, typ: t}, layout(width, height, channels, o.order), o.order, false)
}

// Wrap describes data as an interleaved width x height x channels image.
// It panics when data holds fewer than width*height*max(channels,1) elements.
func Wrap[E Element](width, height, channels int, data []E, opts ...Option) *Buffer {
	need := width * height * max(channels, 1)
	if width < 0 || height < 0 || len(data) < need {
		panic(fmt.Sprintf("buffer: %d elements cannot hold %dx%dx%d", len(data), width, height, channels))
	}
	var host unsafe.Pointer
	if len(data) > 0 {
		host = unsafe.Pointer(unsafe.SliceData(data))
	}
	return New(width, height, channels, TypeOf[E](), host, opts...)
}

// WrapReadOnly is Wrap for input storage. Backends that copy storage do not
// write a read-only buffer back.
func WrapReadOnly[E Element](width, height, channels int, data []E, opts ...Option) *Buffer {
	b := Wrap(width, height, channels, data, opts...)
	b.readOnly = true
	return b
}

// FromForeign deep-copies a descriptor built elsewhere. Scalar fields are copied
// verbatim and the dimension array is duplicated, so the source may be freed.
// Strides cannot tell an interleaved c,x,y image from a planar x,y,c one, so
// dimensions are read positionally as x, y, c unless WithAxisOrder says otherwise.
func FromForeign(d *Descriptor, opts ...Option) *Buffer {
	o := buildOptions(opts)
	return adopt(*d, copyDims(d), o.order, false)
}

// Clone returns an independent descriptor over the same host storage.
func (b *Buffer) Clone() *Buffer {
	return adopt(b.desc, copyDims(&b.desc), b.order, b.readOnly)
}

func copyDims(d *Descriptor) []Dimension {
	src := d.Dims()
	dims := make([]Dimension, len(src))
	copy(dims, src)
	return dims
}

func adopt(desc Descriptor, dims []Dimension, order AxisOrder, readOnly bool) *Buffer {
	b := &Buffer{
		desc:     desc,
		dims:     dims,
		pins:     new(runtime.Pinner),
		order:    order,
		readOnly: readOnly,
	}
	b.desc.dimensions = int32(len(dims))
	b.desc.dim = nil
	if len(dims) > 0 {
		b.pins.Pin(&dims[0])
		b.desc.dim = &dims[0]
	}
	if b.desc.host != nil {
		b.pins.Pin(b.desc.host)
	}
	b.cleanup = runtime.AddCleanup(b, func(p *runtime.Pinner) { p.Unpin() }, b.pins)
	return b
}

// Free releases the dimension array. Host storage and the device interface are
// untouched. Free is idempotent; a freed buffer has rank 0.
func (b *Buffer) Free() {
	if b == nil || b.pins == nil {
		return
	}
	if int(b.desc.dimensions) != len(b.dims) {
		panic("buffer: dimension count changed after construction")
	}
	b.cleanup.Stop()
	b.pins.Unpin()
	b.pins = nil
	b.dims = nil
	b.desc.dim = nil
	b.desc.dimensions = 0
}

// Freed reports whether Free has run.
func (b *Buffer) Freed() bool { return b.pins == nil }

// Descriptor returns the raw record. It aliases the buffer.
func (b *Buffer) Descriptor() *Descriptor { return &b.desc }

func (b *Buffer) Type() Type { return b.desc.typ }
func (b *Buffer) Host() unsafe.Pointer { return b.desc.host }
func (b *Buffer) Flags() uint64 { return b.desc.flags }
func (b *Buffer) Device() uint64 { return b.desc.device }
func (b *Buffer) DeviceInterface() uintptr { return b.desc.deviceInterface }
func (b *Buffer) Dimensions() int { return int(b.desc.dimensions) }
func (b *Buffer) Order() AxisOrder { return b.order }
func (b *Buffer) ReadOnly() bool { return b.readOnly }

// Dim returns dimension i. It panics when i is out of range.
func (b *Buffer) Dim(i int) Dimension { return b.dims[i] }

// Dims returns a copy of the dimension array.
func (b *Buffer) Dims() []Dimension { return slices.Clone(b.dims) }

// Index returns the dimension index holding axis a.
func (b *Buffer) Index(a Axis) (int, bool) {
	return axisIndex(len(b.dims), b.order, a)
}

// Extent returns the extent along a, or 1 when the buffer has no such axis.
func (b *Buffer) Extent(a Axis) int {
	i, ok := b.Index(a)
	if !ok {
		return 1
	}
	return int(b.dims[i].Extent)
}

func (b *Buffer) Width() int { return b.Extent(X) }
func (b *Buffer) Height() int { return b.Extent(Y) }
func (b *Buffer) Channels() int { return b.Extent(C) }

// Size returns the number of bytes spanned from Host to the last element.
// Strides are assumed non-negative.
func (b *Buffer) Size() int {
	if len(b.dims) == 0 {
		return 0
	}
	span := 1
	for _, d := range b.dims {
		if d.Extent <= 0 {
			return 0
		}
		span += int(d.Extent-1) * int(d.Stride)
	}
	return span * b.desc.typ.elementBytes()
}

// Bytes returns the host storage as a byte slice of Size bytes, or nil.
func (b *Buffer) Bytes() []byte {
	n := b.Size()
	if b.desc.host == nil || n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(b.desc.host), n)
}

// HasNegativeStride reports whether any dimension walks backwards in memory.
func (b *Buffer) HasNegativeStride() bool {
	for _, d := range b.dims {
		if d.Stride < 0 {
			return true
		}
	}
	return false
}

// SetDevice attaches a device-side handle and the interface that manages it.
// The interface is borrowed; Free never releases it.
func (b *Buffer) SetDevice(handle uint64, iface device.Interface) {
	b.desc.device = handle
	b.desc.deviceInterface = iface.Pointer()
}

// SetFlags replaces the raw flag bits.
func (b *Buffer) SetFlags(flags uint64) {
	b.desc.flags = flags
}

// Crop returns a new buffer restricted to [min, min+extent) along a.
// The result shares host storage with b and must be freed separately.
func (b *Buffer) Crop(a Axis, min, extent int32) (*Buffer, error) {
	i, ok := b.Index(a)
	if !ok {
		return nil, errors.InvalidInput(errors.PhaseLayout, fmt.Sprintf("buffer of rank %d has no axis %d", len(b.dims), a))
	}
	d := b.dims[i]
	lo, hi := int64(min), int64(min)+int64(extent)
	if extent <= 0 || lo < int64(d.Min) || hi > int64(d.Min)+int64(d.Extent) {
		return nil, errors.OutOfBounds(errors.PhaseLayout,
			fmt.Sprintf("crop [%d,%d) outside [%d,%d)", lo, hi, d.Min, int64(d.Min)+int64(d.Extent)), min)
	}

	dims := slices.Clone(b.dims)
	dims[i].Min = min
	dims[i].Extent = extent

	desc := b.desc
	if desc.host != nil {
		offset := int(min-d.Min) * int(d.Stride) * desc.typ.elementBytes()
		desc.host = unsafe.Add(desc.host, offset)
	}
	return adopt(desc, dims, b.order, b.readOnly), nil
}
