package engine

import (
	"fmt"
	"reflect"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/filter-bridge/buffer"
	"github.com/wippyai/filter-bridge/errors"
)

type paramKind uint8

const (
	paramBuffer paramKind = iota
	paramI32
	paramU32
	paramI64
	paramU64
	paramF32
	paramF64
)

var bufferType = reflect.TypeFor[*buffer.Buffer]()

// callPlan maps a Go func signature onto a guest export.
type callPlan struct {
	symbol    string
	params    []paramKind
	result    reflect.Type
	stackSize int
}

func planCall(symbol string, ft reflect.Type, def api.FunctionDefinition) (*callPlan, error) {
	guestParams := def.ParamTypes()
	guestResults := def.ResultTypes()

	mismatch := func(format string, args ...any) error {
		return errors.TypeMismatch(symbol, ft.String(), fmt.Sprintf(format, args...))
	}

	if ft.IsVariadic() {
		return nil, mismatch("variadic functions cannot be bound")
	}
	if ft.NumIn() != len(guestParams) {
		return nil, mismatch("export takes %d parameters, func takes %d", len(guestParams), ft.NumIn())
	}

	plan := &callPlan{symbol: symbol, params: make([]paramKind, ft.NumIn())}
	for i := 0; i < ft.NumIn(); i++ {
		kind, want, ok := classify(ft.In(i))
		if !ok {
			return nil, mismatch("parameter %d has unsupported type %s", i, ft.In(i))
		}
		if guestParams[i] != want {
			return nil, mismatch("parameter %d is %s in the export", i, api.ValueTypeName(guestParams[i]))
		}
		plan.params[i] = kind
	}

	switch ft.NumOut() {
	case 0:
	case 1:
		if ft.Out(0).Kind() != reflect.Int32 {
			return nil, mismatch("result must be an int32 status")
		}
		if len(guestResults) != 1 || guestResults[0] != api.ValueTypeI32 {
			return nil, mismatch("export does not return a single i32")
		}
		plan.result = ft.Out(0)
	default:
		return nil, mismatch("at most one result is supported")
	}

	plan.stackSize = max(len(guestParams), len(guestResults))
	return plan, nil
}

func classify(t reflect.Type) (paramKind, api.ValueType, bool) {
	if t == bufferType {
		return paramBuffer, api.ValueTypeI32, true
	}
	switch t.Kind() {
	case reflect.Int32:
		return paramI32, api.ValueTypeI32, true
	case reflect.Uint32:
		return paramU32, api.ValueTypeI32, true
	case reflect.Int64:
		return paramI64, api.ValueTypeI64, true
	case reflect.Uint64:
		return paramU64, api.ValueTypeI64, true
	case reflect.Float32:
		return paramF32, api.ValueTypeF32, true
	case reflect.Float64:
		return paramF64, api.ValueTypeF64, true
	}
	return 0, 0, false
}

// Bind stores in fnPtr a function that calls the export name.
//
// Buffer arguments are copied into guest memory before the call and copied back
// afterwards unless they are read-only. Host-side failures are logged and
// reported as StatusError.
func (m *WazeroModule) Bind(name string, fnPtr any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errors.Closed(errors.PhaseResolve, m.name)
	}

	ptr := reflect.ValueOf(fnPtr)
	if !ptr.IsValid() || ptr.Kind() != reflect.Pointer || ptr.IsNil() || ptr.Elem().Kind() != reflect.Func {
		return errors.TypeMismatch(name, fmt.Sprintf("%T", fnPtr), "expected a pointer to a func variable")
	}
	ft := ptr.Elem().Type()

	fn := m.instance.ExportedFunction(name)
	if fn == nil {
		return errors.SymbolNotFound(m.name, name, nil)
	}
	plan, err := planCall(name, ft, fn.Definition())
	if err != nil {
		return err
	}

	ptr.Elem().Set(reflect.MakeFunc(ft, func(args []reflect.Value) []reflect.Value {
		status := m.call(fn, plan, args)
		if plan.result == nil {
			return nil
		}
		return []reflect.Value{reflect.ValueOf(status).Convert(plan.result)}
	}))
	return nil
}

func (m *WazeroModule) call(fn api.Function, plan *callPlan, args []reflect.Value) int32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		m.log.Warn("call on closed module", zap.String("symbol", plan.symbol))
		return StatusError
	}

	stack := make([]uint64, plan.stackSize)
	var staged []*guestBuffer
	defer func() {
		for _, g := range staged {
			g.release(m.alloc)
		}
	}()

	for i, kind := range plan.params {
		arg := args[i]
		switch kind {
		case paramBuffer:
			b, _ := arg.Interface().(*buffer.Buffer)
			if b == nil {
				stack[i] = 0
				continue
			}
			g, err := stageBuffer(m.memory, m.alloc, b)
			if err != nil {
				m.log.Warn("cannot stage buffer",
					zap.String("symbol", plan.symbol),
					zap.Int("param", i),
					zap.Error(err))
				return StatusError
			}
			staged = append(staged, g)
			stack[i] = api.EncodeU32(g.desc)
		case paramI32:
			stack[i] = api.EncodeI32(int32(arg.Int()))
		case paramU32:
			stack[i] = api.EncodeU32(uint32(arg.Uint()))
		case paramI64:
			stack[i] = api.EncodeI64(arg.Int())
		case paramU64:
			stack[i] = arg.Uint()
		case paramF32:
			stack[i] = api.EncodeF32(float32(arg.Float()))
		case paramF64:
			stack[i] = api.EncodeF64(arg.Float())
		}
	}

	if err := fn.CallWithStack(m.ctx, stack); err != nil {
		m.log.Warn("filter trapped", zap.String("symbol", plan.symbol), zap.Error(err))
		return StatusError
	}

	for _, g := range staged {
		if err := g.copyBack(m.memory); err != nil {
			m.log.Warn("cannot copy buffer back",
				zap.String("symbol", plan.symbol),
				zap.Error(err))
			return StatusError
		}
	}

	if plan.result == nil {
		return 0
	}
	return api.DecodeI32(stack[0])
}
