package device

import (
	"fmt"
	"runtime"
	"slices"
	"strings"

	"github.com/wippyai/filter-bridge/errors"
)

// Kind names an accelerator API supported by the filter runtime.
type Kind int

const (
	OpenCL Kind = iota
	OpenGL
	CUDA
	Metal
	Vulkan
	D3D12Compute
)

var kindNames = [...]string{
	OpenCL:       "opencl",
	OpenGL:       "opengl",
	CUDA:         "cuda",
	Metal:        "metal",
	Vulkan:       "vulkan",
	D3D12Compute: "d3d12compute",
}

// platforms lists the operating systems each kind can run on.
var platforms = map[Kind][]string{
	OpenCL:       {"linux", "darwin", "windows", "android"},
	OpenGL:       {"linux", "darwin", "windows", "android"},
	CUDA:         {"linux", "windows"},
	Metal:        {"darwin", "ios"},
	Vulkan:       {"linux", "windows", "android"},
	D3D12Compute: {"windows"},
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Available reports whether k can be used on the current operating system.
func (k Kind) Available() bool {
	return slices.Contains(platforms[k], runtime.GOOS)
}

// Kinds returns every kind, in declaration order.
func Kinds() []Kind {
	return []Kind{OpenCL, OpenGL, CUDA, Metal, Vulkan, D3D12Compute}
}

// ParseKind maps a name such as "cuda" to its Kind.
func ParseKind(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for k, n := range kindNames {
		if n == name {
			return Kind(k), nil
		}
	}
	return 0, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
		Value(s).
		Detail("unknown device kind %q", s).
		Build()
}

// Interface is an opaque pointer to a runtime-provided device interface table.
// The table is owned by the filter runtime; buffers only borrow it.
type Interface struct {
	ptr  uintptr
	kind Kind
}

// None is the zero Interface, meaning no device.
var None Interface

// NewInterface wraps a foreign device interface pointer.
func NewInterface(kind Kind, ptr uintptr) Interface {
	return Interface{ptr: ptr, kind: kind}
}

func (i Interface) Kind() Kind { return i.kind }
func (i Interface) Pointer() uintptr { return i.ptr }
func (i Interface) IsZero() bool { return i.ptr == 0 }

func (i Interface) String() string {
	if i.IsZero() {
		return "none"
	}
	return fmt.Sprintf("%s@%#x", i.kind, i.ptr)
}
