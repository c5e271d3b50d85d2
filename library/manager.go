package library

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	filterbridge "github.com/wippyai/filter-bridge"
	"github.com/wippyai/filter-bridge/errors"
)

// Manager is a registry of loaded libraries keyed by the path they were loaded from.
//
// Each successful load assigns the entry a fresh epoch. Filter handles remember the
// epoch they were resolved under and stop working once the entry is unloaded,
// reloaded, or the manager is closed.
type Manager struct {
	mu        sync.Mutex
	entries   map[string]*entry
	native    filterbridge.Opener
	openers   map[string]filterbridge.Opener
	search    []string
	observers []subscription
	log       *zap.Logger
	epoch     uint64
	closed    bool

	nextObserver uint64
}

type entry struct {
	lib   filterbridge.Library
	path  string
	epoch uint64
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for load and resolve diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithOpener routes paths with the given extension (for example ".wasm") to o.
func WithOpener(ext string, o filterbridge.Opener) Option {
	return func(m *Manager) {
		m.openers[strings.ToLower(ext)] = o
	}
}

// WithNativeOpener replaces the opener used for paths without a registered extension
// and for the host process.
func WithNativeOpener(o filterbridge.Opener) Option {
	return func(m *Manager) {
		m.native = o
	}
}

// WithSearchPaths adds directories tried for relative paths that do not exist as given.
func WithSearchPaths(dirs ...string) Option {
	return func(m *Manager) {
		m.search = append(m.search, dirs...)
	}
}

// NewManager creates an empty registry.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		entries: make(map[string]*entry),
		openers: make(map[string]filterbridge.Opener),
		native:  NativeOpener{},
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load opens path and registers it under path. Loading a key that is already
// present succeeds without reopening. Failures leave the registry unchanged.
func (m *Manager) Load(path string) bool {
	if err := m.Open(path); err != nil {
		m.log.Debug("load failed", zap.String("key", path), zap.Error(err))
		return false
	}
	return true
}

// LoadSelf registers the host process's own symbol table under filterbridge.SelfKey.
func (m *Manager) LoadSelf() bool {
	return m.Load(filterbridge.SelfKey)
}

// Open is Load with the failure reason.
func (m *Manager) Open(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errors.Closed(errors.PhaseLoad, "library manager")
	}
	if _, ok := m.entries[path]; ok {
		return nil
	}
	return m.openLocked(path)
}

// OpenSelf is LoadSelf with the failure reason.
func (m *Manager) OpenSelf() error {
	return m.Open(filterbridge.SelfKey)
}

// Unload closes and removes key. Unloading an absent key does nothing.
func (m *Manager) Unload(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return
	}
	if err := m.dropLocked(key, e); err != nil {
		m.log.Warn("library close failed", zap.String("key", key), zap.Error(err))
	}
}

// Reload unloads key and loads it again from the same path, picking up a replaced
// file. A key that was never loaded is simply loaded. When loading fails the key
// stays absent.
func (m *Manager) Reload(key string) bool {
	if err := m.Reopen(key); err != nil {
		m.log.Debug("reload failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// Reopen is Reload with the failure reason.
func (m *Manager) Reopen(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errors.Closed(errors.PhaseLoad, "library manager")
	}
	if e, ok := m.entries[key]; ok {
		if err := m.dropLocked(key, e); err != nil {
			m.log.Warn("library close failed", zap.String("key", key), zap.Error(err))
		}
	}
	return m.openLocked(key)
}

// Loaded reports whether key is registered.
func (m *Manager) Loaded(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	return ok
}

// Epoch returns the epoch of the live entry for key.
func (m *Manager) Epoch(key string) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return 0, false
	}
	return e.epoch, true
}

// Path returns the file the entry for key was opened from.
func (m *Manager) Path(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return "", false
	}
	return e.path, true
}

// Keys returns the registered keys in sorted order.
func (m *Manager) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Library returns the open library for key. The result must not be used after
// the key is unloaded or reloaded.
func (m *Manager) Library(key string) (filterbridge.Library, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	return e.lib, true
}

// Close unloads every library and rejects further loads. Handles resolved from
// this manager become stale.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	var err error
	for key, e := range m.entries {
		err = multierr.Append(err, m.dropLocked(key, e))
	}
	return err
}

// live reports whether key is still registered under epoch.
func (m *Manager) live(key, symbol string, epoch uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.Closed(errors.PhaseInvoke, "library manager")
	}
	e, ok := m.entries[key]
	if !ok || e.epoch != epoch {
		return errors.Stale(key, symbol)
	}
	return nil
}

func (m *Manager) openLocked(key string) error {
	lib, path, err := m.openLibrary(key)
	if err != nil {
		return err
	}

	m.epoch++
	e := &entry{lib: lib, path: path, epoch: m.epoch}
	m.entries[key] = e

	m.log.Debug("library loaded",
		zap.String("key", key),
		zap.String("path", path),
		zap.Uint64("epoch", e.epoch))
	m.notify(Event{Type: EventLoaded, Key: key, Epoch: e.epoch})
	return nil
}

func (m *Manager) dropLocked(key string, e *entry) error {
	delete(m.entries, key)
	err := e.lib.Close()
	m.log.Debug("library unloaded", zap.String("key", key), zap.Uint64("epoch", e.epoch))
	m.notify(Event{Type: EventUnloaded, Key: key, Epoch: e.epoch})
	return err
}

func (m *Manager) openLibrary(key string) (filterbridge.Library, string, error) {
	if key == filterbridge.SelfKey {
		so, ok := m.native.(filterbridge.SelfOpener)
		if !ok {
			return nil, "", errors.Unsupported(errors.PhaseLoad, "opening the host process")
		}
		lib, err := so.OpenSelf()
		if err != nil {
			return nil, "", errors.LoadFailed(key, err)
		}
		return lib, key, nil
	}

	if key == "" {
		return nil, "", errors.InvalidInput(errors.PhaseLoad, "empty library path")
	}

	path := m.locate(key)
	lib, err := m.openerFor(path).Open(path)
	if err != nil {
		return nil, "", errors.LoadFailed(key, err)
	}
	return lib, path, nil
}

func (m *Manager) openerFor(path string) filterbridge.Opener {
	if o, ok := m.openers[strings.ToLower(filepath.Ext(path))]; ok {
		return o
	}
	return m.native
}

// locate returns key itself when it names an existing file, otherwise the first
// search directory containing it. Unresolved names are passed through so the
// platform loader can apply its own search rules.
func (m *Manager) locate(key string) string {
	if _, err := os.Stat(key); err == nil || filepath.IsAbs(key) {
		return key
	}
	for _, dir := range m.search {
		candidate := filepath.Join(dir, key)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return key
}
