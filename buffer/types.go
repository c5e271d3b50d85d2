package buffer

import (
	"fmt"
	"reflect"
)

// Kind is the scalar kind of a buffer element. Values match halide_type_code_t.
type Kind uint8

const (
	Int Kind = iota
	UInt
	Float
	Handle
	BFloat
)

func (k Kind) String() string {
	switch k {
	case Int:
		return "int"
	case UInt:
		return "uint"
	case Float:
		return "float"
	case Handle:
		return "handle"
	case BFloat:
		return "bfloat"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Type describes one buffer element: {code u8, bits u8, lanes u16}.
type Type struct {
	Code  Kind
	Bits  uint8
	Lanes uint16
}

// NewType returns a scalar type with one lane. bits must be a multiple of 8.
func NewType(kind Kind, bits uint8) Type {
	return Type{Code: kind, Bits: bits, Lanes: 1}
}

// NewTypeWithLanes returns a vector type.
func NewTypeWithLanes(kind Kind, bits uint8, lanes uint16) Type {
	return Type{Code: kind, Bits: bits, Lanes: lanes}
}

// Bytes returns the size of one lane in bytes.
func (t Type) Bytes() int {
	return int(t.Bits) / 8
}

// elementBytes is the size of one element including all lanes.
func (t Type) elementBytes() int {
	lanes := int(t.Lanes)
	if lanes < 1 {
		lanes = 1
	}
	return t.Bytes() * lanes
}

func (t Type) String() string {
	if t.Lanes > 1 {
		return fmt.Sprintf("%s%dx%d", t.Code, t.Bits, t.Lanes)
	}
	return fmt.Sprintf("%s%d", t.Code, t.Bits)
}

var (
	U8  = NewType(UInt, 8)
	U16 = NewType(UInt, 16)
	U32 = NewType(UInt, 32)
	I8  = NewType(Int, 8)
	I16 = NewType(Int, 16)
	I32 = NewType(Int, 32)
	F32 = NewType(Float, 32)
	F64 = NewType(Float, 64)
)

// Element is the set of Go types that can back a buffer.
type Element interface {
	~int8 | ~int16 | ~int32 | ~int64 |
		~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// TypeOf returns the element type matching E.
func TypeOf[E Element]() Type {
	rt := reflect.TypeFor[E]()
	bits := uint8(rt.Size() * 8)
	switch rt.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return NewType(Int, bits)
	case reflect.Float32, reflect.Float64:
		return NewType(Float, bits)
	default:
		return NewType(UInt, bits)
	}
}

// Dimension is one axis record: {min i32, extent i32, stride i32, flags u32}.
// Stride counts elements, not bytes.
type Dimension struct {
	Min    int32
	Extent int32
	Stride int32
	Flags  uint32
}
