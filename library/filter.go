package library

import (
	"reflect"

	"go.uber.org/zap"

	"github.com/wippyai/filter-bridge/errors"
)

// Filter is a typed function resolved from a loaded library.
//
// A Filter stays bound to the registry entry it came from. After that entry is
// unloaded or reloaded, Func returns an error instead of the stale function.
type Filter[T any] struct {
	fn     T
	m      *Manager
	key    string
	symbol string
	epoch  uint64
}

// Func returns the callable while the entry it was resolved from is live.
// Callers must not unload or reload the key while the returned function runs.
func (f *Filter[T]) Func() (T, error) {
	if err := f.m.live(f.key, f.symbol, f.epoch); err != nil {
		var zero T
		return zero, err
	}
	return f.fn, nil
}

// Valid reports whether Func would succeed.
func (f *Filter[T]) Valid() bool {
	return f.m.live(f.key, f.symbol, f.epoch) == nil
}

func (f *Filter[T]) Key() string { return f.key }
func (f *Filter[T]) Symbol() string { return f.symbol }
func (f *Filter[T]) Epoch() uint64 { return f.epoch }

// Resolve binds symbol from the library loaded under key to a function of type T.
// It returns false when key is not loaded, the symbol is missing, or the library
// cannot express T.
//
// The library is trusted to export symbol with a signature matching T. A mismatch
// cannot be detected and is undefined behavior at call time.
func Resolve[T any](m *Manager, key, symbol string) (*Filter[T], bool) {
	f, err := Lookup[T](m, key, symbol)
	if err != nil {
		m.log.Debug("resolve failed",
			zap.String("key", key),
			zap.String("symbol", symbol),
			zap.Error(err))
		return nil, false
	}
	return f, true
}

// Lookup is Resolve with the failure reason.
func Lookup[T any](m *Manager, key, symbol string) (*Filter[T], error) {
	rt := reflect.TypeFor[T]()
	if rt.Kind() != reflect.Func {
		return nil, errors.TypeMismatch(symbol, rt.String(), "filter type must be a func")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, errors.Closed(errors.PhaseResolve, "library manager")
	}
	e, ok := m.entries[key]
	if !ok {
		return nil, errors.NotLoaded(key)
	}

	var fn T
	if err := e.lib.Bind(symbol, &fn); err != nil {
		return nil, err
	}
	return &Filter[T]{fn: fn, m: m, key: key, symbol: symbol, epoch: e.epoch}, nil
}
