package engine

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var logger atomic.Pointer[zap.Logger]

// Logger returns the package default logger.
// It uses a no-op logger until SetLogger is called.
func Logger() *zap.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return zap.NewNop()
}

// SetLogger replaces the package default logger used by engines created without
// Config.Logger.
func SetLogger(l *zap.Logger) {
	logger.Store(l)
}
