//go:build !darwin && !freebsd && !linux

package library

import (
	"runtime"

	filterbridge "github.com/wippyai/filter-bridge"
	"github.com/wippyai/filter-bridge/errors"
)

// NativeOpener is unavailable on this platform. Portable filters registered with
// WithOpener still work.
type NativeOpener struct{}

func (NativeOpener) Open(path string) (filterbridge.Library, error) {
	return nil, errors.Unsupported(errors.PhaseLoad, "native libraries on "+runtime.GOOS)
}

func (NativeOpener) OpenSelf() (filterbridge.Library, error) {
	return nil, errors.Unsupported(errors.PhaseLoad, "native libraries on "+runtime.GOOS)
}
