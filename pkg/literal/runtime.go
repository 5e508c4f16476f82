package literal

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/dop251/goja"
)

// DefaultTimeout bounds a single script evaluation.
const DefaultTimeout = time.Second

// Runtime evaluates literal functions. A Runtime owns a JavaScript VM and must
// not be shared between goroutines.
type Runtime struct {
	vm      *goja.Runtime
	timeout time.Duration
	entries map[*goja.Program]goja.Callable
}

// NewRuntime creates a sandboxed runtime. A non-positive timeout selects DefaultTimeout.
func NewRuntime(timeout time.Duration) (*Runtime, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	vm := goja.New()
	if err := sandbox(vm); err != nil {
		return nil, err
	}

	return &Runtime{
		vm:      vm,
		timeout: timeout,
		entries: make(map[*goja.Program]goja.Callable),
	}, nil
}

// Apply runs f on the lexical form of a value. A nil Runtime can only
// evaluate builtins.
func (r *Runtime) Apply(f *Function, value string) (string, error) {
	if f == nil {
		return value, nil
	}
	if f.builtin != nil {
		return f.builtin(value), nil
	}
	if r == nil {
		return "", fmt.Errorf("no script runtime available")
	}
	return r.runScript(f, value)
}

func (r *Runtime) runScript(f *Function, value string) (result string, err error) {
	fn, err := r.entry(f.program)
	if err != nil {
		return "", err
	}

	timer := time.AfterFunc(r.timeout, func() {
		r.vm.Interrupt("literal script timed out")
	})
	defer func() {
		timer.Stop()
		r.vm.ClearInterrupt()
	}()

	out, err := fn(goja.Undefined(), r.vm.ToValue(value))
	if err != nil {
		return "", fmt.Errorf("script failed: %w", err)
	}
	return exportString(out)
}

func (r *Runtime) entry(program *goja.Program) (goja.Callable, error) {
	if fn, ok := r.entries[program]; ok {
		return fn, nil
	}

	val, err := r.vm.RunProgram(program)
	if err != nil {
		return nil, fmt.Errorf("failed to load script: %w", err)
	}
	fn, ok := goja.AssertFunction(val)
	if !ok {
		return nil, fmt.Errorf("script is not a function")
	}
	r.entries[program] = fn
	return fn, nil
}

func exportString(v goja.Value) (string, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return "", fmt.Errorf("script returned no value")
	}

	switch val := v.Export().(type) {
	case string:
		return val, nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return "", fmt.Errorf("script returned %v", val)
		}
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(val), nil
	default:
		return "", fmt.Errorf("script returned unsupported type %T", val)
	}
}

// sandbox removes host globals and freezes the builtin prototypes.
func sandbox(vm *goja.Runtime) error {
	dangerousGlobals := []string{
		"require",
		"module",
		"exports",
		"process",
		"global",
		"Buffer",
		"setImmediate",
		"clearImmediate",
	}
	for _, name := range dangerousGlobals {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return fmt.Errorf("failed to remove %s: %w", name, err)
		}
	}

	restrictedEval := func(call goja.FunctionCall) goja.Value {
		panic(vm.NewTypeError("eval is not allowed in literal scripts"))
	}
	if err := vm.Set("eval", restrictedEval); err != nil {
		return fmt.Errorf("failed to restrict eval: %w", err)
	}

	_, err := vm.RunString(`
		(function() {
			var names = ["Object", "Array", "Function", "String", "Number", "Boolean", "Date", "RegExp", "Error", "Math", "JSON"];
			for (var i = 0; i < names.length; i++) {
				var obj = this[names[i]];
				if (obj) {
					Object.freeze(obj);
					if (obj.prototype) {
						Object.freeze(obj.prototype);
					}
				}
			}
		}).call(this)
	`)
	if err != nil {
		return fmt.Errorf("failed to freeze built-ins: %w", err)
	}
	return nil
}
