//go:build darwin || freebsd || linux

package library

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/ebitengine/purego"

	filterbridge "github.com/wippyai/filter-bridge"
	"github.com/wippyai/filter-bridge/errors"
)

// NativeOpener opens shared objects with the platform dynamic loader.
type NativeOpener struct{}

var (
	_ filterbridge.Opener     = NativeOpener{}
	_ filterbridge.SelfOpener = NativeOpener{}
	_ filterbridge.Library    = (*nativeLibrary)(nil)
)

// Open maps path with RTLD_NOW|RTLD_LOCAL so unresolved symbols fail at load time
// and exports do not leak into later loads.
func (NativeOpener) Open(path string) (filterbridge.Library, error) {
	h, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return nil, err
	}
	return &nativeLibrary{name: path, handle: h, owned: true}, nil
}

// OpenSelf returns the global symbol scope of the running process. The handle is
// never closed.
func (NativeOpener) OpenSelf() (filterbridge.Library, error) {
	return &nativeLibrary{name: filterbridge.SelfKey, handle: purego.RTLD_DEFAULT}, nil
}

type nativeLibrary struct {
	mu     sync.Mutex
	name   string
	handle uintptr
	owned  bool
	closed bool
}

func (l *nativeLibrary) Bind(name string, fnPtr any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return errors.Closed(errors.PhaseResolve, l.name)
	}
	if err := checkFuncPtr(name, fnPtr); err != nil {
		return err
	}

	addr, err := purego.Dlsym(l.handle, name)
	if err != nil || addr == 0 {
		return errors.SymbolNotFound(l.name, name, err)
	}
	return registerFunc(name, fnPtr, addr)
}

func (l *nativeLibrary) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	if !l.owned {
		return nil
	}
	return purego.Dlclose(l.handle)
}

// registerFunc binds addr into fnPtr. purego panics on signatures it cannot
// express; that is reported as a type mismatch.
func registerFunc(name string, fnPtr any, addr uintptr) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.TypeMismatch(name, reflect.TypeOf(fnPtr).Elem().String(), fmt.Sprint(r))
		}
	}()
	purego.RegisterFunc(fnPtr, addr)
	return nil
}

func checkFuncPtr(name string, fnPtr any) error {
	rt := reflect.TypeOf(fnPtr)
	if rt == nil || rt.Kind() != reflect.Pointer || rt.Elem().Kind() != reflect.Func {
		return errors.TypeMismatch(name, fmt.Sprintf("%T", fnPtr), "expected a pointer to a func variable")
	}
	if reflect.ValueOf(fnPtr).IsNil() {
		return errors.InvalidInput(errors.PhaseResolve, "nil func pointer")
	}
	return nil
}
