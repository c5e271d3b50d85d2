package device

import (
	"unsafe"

	"go.uber.org/zap"

	filterbridge "github.com/wippyai/filter-bridge"
	"github.com/wippyai/filter-bridge/errors"
	"github.com/wippyai/filter-bridge/library"
)

// Runtime exposes the device entry points of a filter runtime loaded into a Manager.
//
// Filters compiled with a GPU target carry their own copy of the runtime, so the key
// is usually the filter library. The host process is used when the runtime is linked
// into the executable.
type Runtime struct {
	m   *library.Manager
	key string
	log *zap.Logger
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithKey selects the library that exports the runtime. The default is filterbridge.SelfKey.
func WithKey(key string) RuntimeOption {
	return func(r *Runtime) {
		r.key = key
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) RuntimeOption {
	return func(r *Runtime) {
		if l != nil {
			r.log = l
		}
	}
}

// NewRuntime binds to m. Nothing is resolved until a method is called.
func NewRuntime(m *library.Manager, opts ...RuntimeOption) *Runtime {
	r := &Runtime{m: m, key: filterbridge.SelfKey, log: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Key returns the library the runtime is resolved from.
func (r *Runtime) Key() string { return r.key }

// Interface returns the device interface for kind, resolved from
// halide_<kind>_device_interface.
func (r *Runtime) Interface(kind Kind) (Interface, error) {
	if !kind.Available() {
		return None, errors.Unsupported(errors.PhaseResolve, kind.String()+" devices on this platform")
	}

	symbol := "halide_" + kind.String() + "_device_interface"
	f, err := library.Lookup[func() uintptr](r.m, r.key, symbol)
	if err != nil {
		return None, err
	}
	fn, err := f.Func()
	if err != nil {
		return None, err
	}

	ptr := fn()
	if ptr == 0 {
		return None, errors.New(errors.PhaseResolve, errors.KindNotFound).
			Key(r.key).
			Symbol(symbol).
			Detail("runtime returned no device interface").
			Build()
	}
	r.log.Debug("device interface resolved",
		zap.String("key", r.key),
		zap.Stringer("kind", kind),
		zap.Uintptr("ptr", ptr))
	return NewInterface(kind, ptr), nil
}

// SetGPUDevice selects the GPU used by subsequent filter calls. -1 lets the runtime choose.
func (r *Runtime) SetGPUDevice(id int32) error {
	f, err := library.Lookup[func(int32)](r.m, r.key, "halide_set_gpu_device")
	if err != nil {
		return err
	}
	fn, err := f.Func()
	if err != nil {
		return err
	}
	fn(id)
	r.log.Debug("gpu device selected", zap.String("key", r.key), zap.Int32("device", id))
	return nil
}

// GPUDevice returns the GPU the runtime will use.
func (r *Runtime) GPUDevice() (int32, error) {
	f, err := library.Lookup[func(unsafe.Pointer) int32](r.m, r.key, "halide_get_gpu_device")
	if err != nil {
		return 0, err
	}
	fn, err := f.Func()
	if err != nil {
		return 0, err
	}
	return fn(nil), nil
}
