package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"go.uber.org/zap"

	filterbridge "github.com/wippyai/filter-bridge"
	"github.com/wippyai/filter-bridge/errors"
)

const (
	allocExport  = "malloc"
	freeExport   = "free"
	memoryExport = "memory"
)

// WazeroEngine opens filters compiled to WebAssembly.
// It implements filterbridge.Opener so it can be registered with a library manager.
type WazeroEngine struct {
	runtime      wazero.Runtime
	ctx          context.Context
	log          *zap.Logger
	cfg          Config
	seq          atomic.Uint64
	wasiInitMu   sync.Mutex
	wasiInitDone atomic.Bool
}

var _ filterbridge.Opener = (*WazeroEngine)(nil)

// Config holds configuration for engine creation
type Config struct {
	// Logger receives trap and marshalling diagnostics. nil uses Logger().
	Logger *zap.Logger

	// CacheDir persists compiled modules across processes when set.
	CacheDir string

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	MemoryLimitPages uint32

	// EnableThreads enables the WebAssembly threads proposal (experimental).
	EnableThreads bool

	// EnableWASI provides wasi_snapshot_preview1 to filters that import it.
	EnableWASI bool
}

// New creates an engine. ctx is used for compilation and for every filter call.
func New(ctx context.Context, cfg *Config) (*WazeroEngine, error) {
	var c Config
	if cfg != nil {
		c = *cfg
	}

	runtimeCfg := wazero.NewRuntimeConfig()
	if c.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(c.MemoryLimitPages)
	}
	if c.EnableThreads {
		runtimeCfg = runtimeCfg.WithCoreFeatures(api.CoreFeaturesV2 | experimental.CoreFeaturesThreads)
	}
	if c.CacheDir != "" {
		cache, err := wazero.NewCompilationCacheWithDir(c.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("compilation cache: %w", err)
		}
		runtimeCfg = runtimeCfg.WithCompilationCache(cache)
	}

	log := c.Logger
	if log == nil {
		log = Logger()
	}

	e := &WazeroEngine{
		runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		ctx:     ctx,
		log:     log,
		cfg:     c,
	}
	if c.EnableWASI {
		if err := e.InitWASI(ctx); err != nil {
			e.runtime.Close(ctx)
			return nil, err
		}
	}
	return e, nil
}

// Open reads, compiles and instantiates the module at path.
func (e *WazeroEngine) Open(path string) (filterbridge.Library, error) {
	wasmBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return e.LoadModule(e.ctx, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), wasmBytes)
}

// LoadModule compiles and instantiates wasmBytes. Every call produces a new
// instance with its own linear memory, even for identical bytes.
func (e *WazeroEngine) LoadModule(ctx context.Context, name string, wasmBytes []byte) (*WazeroModule, error) {
	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("compile failed: %w", err)
	}

	instName := fmt.Sprintf("%s#%d", name, e.seq.Add(1))
	modCfg := wazero.NewModuleConfig().
		WithName(instName).
		WithStartFunctions("_initialize")

	inst, err := e.runtime.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		compiled.Close(ctx)
		return nil, fmt.Errorf("instantiate failed: %w", err)
	}

	m := &WazeroModule{
		name:     instName,
		ctx:      ctx,
		log:      e.log.With(zap.String("module", instName)),
		compiled: compiled,
		instance: inst,
	}
	if err := m.bindRuntime(); err != nil {
		m.Close()
		return nil, err
	}

	e.log.Debug("module instantiated",
		zap.String("module", instName),
		zap.Int("exports", len(compiled.ExportedFunctions())))
	return m, nil
}

// Close releases the runtime and every module opened from it.
func (e *WazeroEngine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// WazeroModule is one instantiated filter module.
//
// Calls into a module are serialized: its linear memory and allocator are shared
// by every function bound from it.
type WazeroModule struct {
	mu       sync.Mutex
	name     string
	ctx      context.Context
	log      *zap.Logger
	compiled wazero.CompiledModule
	instance api.Module
	memory   *WazeroMemory
	alloc    *wazeroAllocator
	closed   bool
}

var _ filterbridge.Library = (*WazeroModule)(nil)

func (m *WazeroModule) bindRuntime() error {
	mem := m.instance.ExportedMemory(memoryExport)
	if mem == nil {
		return errors.New(errors.PhaseLoad, errors.KindNotFound).
			Symbol(memoryExport).
			Detail("module does not export its linear memory").
			Build()
	}
	allocFn := m.instance.ExportedFunction(allocExport)
	freeFn := m.instance.ExportedFunction(freeExport)
	if allocFn == nil || freeFn == nil {
		return errors.New(errors.PhaseLoad, errors.KindNotFound).
			Symbol(allocExport).
			Detail("module must export malloc(i32) i32 and free(i32)").
			Build()
	}

	m.memory = &WazeroMemory{mem: mem}
	m.alloc = &wazeroAllocator{allocFn: allocFn, freeFn: freeFn, ctx: m.ctx, log: m.log}
	return nil
}

// Name returns the unique instance name.
func (m *WazeroModule) Name() string { return m.name }

// Memory returns the module's linear memory.
func (m *WazeroModule) Memory() *WazeroMemory { return m.memory }

// Exports returns the names of all exported functions, sorted.
func (m *WazeroModule) Exports() []string {
	defs := m.compiled.ExportedFunctions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Signature describes an exported function as "(i32, i32) -> (i32)".
func (m *WazeroModule) Signature(name string) (string, bool) {
	def, ok := m.compiled.ExportedFunctions()[name]
	if !ok {
		return "", false
	}
	return fmt.Sprintf("(%s) -> (%s)", valueTypeNames(def.ParamTypes()), valueTypeNames(def.ResultTypes())), true
}

func valueTypeNames(types []api.ValueType) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = api.ValueTypeName(t)
	}
	return strings.Join(names, ", ")
}

// Close releases the instance. Functions bound from it return StatusError afterwards.
func (m *WazeroModule) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	var firstErr error
	if m.instance != nil {
		if err := m.instance.Close(m.ctx); err != nil {
			firstErr = err
		}
	}
	if m.compiled != nil {
		if err := m.compiled.Close(m.ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.memory = nil
	m.alloc = nil
	return firstErr
}

// wazeroAllocator implements filterbridge.Allocator with the guest's malloc and free.
// Callers hold the module lock.
type wazeroAllocator struct {
	allocFn api.Function
	freeFn  api.Function
	ctx     context.Context
	log     *zap.Logger
	stack   [1]uint64
}

var _ filterbridge.Allocator = (*wazeroAllocator)(nil)

func (a *wazeroAllocator) Alloc(size uint32) (uint32, error) {
	a.stack[0] = api.EncodeU32(size)
	if err := a.allocFn.CallWithStack(a.ctx, a.stack[:]); err != nil {
		return 0, errors.Wrap(errors.PhaseLayout, errors.KindAllocation, err, "guest malloc trapped")
	}
	ptr := api.DecodeU32(a.stack[0])
	if ptr == 0 {
		return 0, errors.AllocationFailed(errors.PhaseLayout, size)
	}
	return ptr, nil
}

func (a *wazeroAllocator) Free(ptr uint32) {
	if ptr == 0 {
		return
	}
	a.stack[0] = api.EncodeU32(ptr)
	if err := a.freeFn.CallWithStack(a.ctx, a.stack[:]); err != nil {
		a.log.Warn("guest free trapped", zap.Uint32("ptr", ptr), zap.Error(err))
	}
}

// WazeroMemory wraps wazero memory to implement filterbridge.Memory
type WazeroMemory struct {
	mem api.Memory
}

var _ filterbridge.Memory = (*WazeroMemory)(nil)

// Read returns a view of guest memory. The view is invalidated by memory growth.
func (m *WazeroMemory) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseLayout,
			fmt.Sprintf("read out of bounds: offset=%d, length=%d", offset, length), offset)
	}
	return data, nil
}

func (m *WazeroMemory) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return errors.OutOfBounds(errors.PhaseLayout,
			fmt.Sprintf("write out of bounds: offset=%d, length=%d", offset, len(data)), offset)
	}
	return nil
}

func (m *WazeroMemory) ReadU32(offset uint32) (uint32, error) {
	val, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseLayout, "read out of bounds", offset)
	}
	return val, nil
}

func (m *WazeroMemory) WriteU8(offset uint32, value uint8) error {
	if !m.mem.WriteByte(offset, value) {
		return errors.OutOfBounds(errors.PhaseLayout, "write out of bounds", offset)
	}
	return nil
}

func (m *WazeroMemory) WriteU16(offset uint32, value uint16) error {
	if !m.mem.WriteUint16Le(offset, value) {
		return errors.OutOfBounds(errors.PhaseLayout, "write out of bounds", offset)
	}
	return nil
}

func (m *WazeroMemory) WriteU32(offset uint32, value uint32) error {
	if !m.mem.WriteUint32Le(offset, value) {
		return errors.OutOfBounds(errors.PhaseLayout, "write out of bounds", offset)
	}
	return nil
}

func (m *WazeroMemory) WriteU64(offset uint32, value uint64) error {
	if !m.mem.WriteUint64Le(offset, value) {
		return errors.OutOfBounds(errors.PhaseLayout, "write out of bounds", offset)
	}
	return nil
}

// Size returns the current memory size in bytes.
func (m *WazeroMemory) Size() uint32 {
	return m.mem.Size()
}
