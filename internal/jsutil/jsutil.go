// Package jsutil evaluates untrusted JavaScript in a restricted goja runtime
// and reads plain Go values back out of the objects it produces.
package jsutil

import (
	"errors"
	"strconv"
	"time"

	"github.com/dop251/goja"

	"github.com/hlop3z/pgphase/internal/alerr"
)

// DefaultTimeout bounds a single evaluation.
const DefaultTimeout = 5 * time.Second

// NewRuntime returns a goja runtime with eval and the Function constructor
// removed, a bounded call stack and frozen builtin prototypes.
func NewRuntime() *goja.Runtime {
	vm := goja.New()
	vm.SetMaxCallStackSize(500)

	vm.Set("eval", goja.Undefined())
	vm.Set("Function", goja.Undefined())

	// Errors are ignored: a runtime without freeze support is still usable.
	_, _ = vm.RunString(`
		(function() {
			try {
				Object.freeze(Object.prototype);
				Object.freeze(Array.prototype);
				Object.freeze(String.prototype);
			} catch(e) {}
		})();
	`)
	return vm
}

// Run evaluates src under name, interrupting it once timeout elapses.
func Run(vm *goja.Runtime, name, src string, timeout time.Duration) error {
	timer := time.AfterFunc(timeout, func() {
		vm.Interrupt("execution timeout")
	})
	defer timer.Stop()

	_, err := vm.RunScript(name, src)
	// An interrupt that fired after the script returned must not leak into
	// the next run.
	vm.ClearInterrupt()
	if err == nil {
		return nil
	}

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return alerr.New(alerr.ErrJSExecution, "script execution timed out").
			With("file", name).
			With("timeout", timeout.String())
	}

	return alerr.Wrap(alerr.ErrJSExecution, err, "JavaScript evaluation failed").With("file", name)
}

func absent(v goja.Value) bool {
	return v == nil || goja.IsUndefined(v) || goja.IsNull(v)
}

// GetString returns the string property key of obj. ok is false when the
// property is missing or not a string.
func GetString(obj *goja.Object, key string) (string, bool) {
	if obj == nil {
		return "", false
	}
	v := obj.Get(key)
	if absent(v) {
		return "", false
	}
	s, ok := v.Export().(string)
	return s, ok
}

// GetBool returns the boolean property key of obj.
func GetBool(obj *goja.Object, key string) (bool, bool) {
	if obj == nil {
		return false, false
	}
	v := obj.Get(key)
	if absent(v) {
		return false, false
	}
	b, ok := v.Export().(bool)
	return b, ok
}

// Has reports whether obj carries a non-null property key.
func Has(obj *goja.Object, key string) bool {
	return obj != nil && !absent(obj.Get(key))
}

// GetStringArray returns the array property key of obj. ok is false when the
// property is missing, is not array-like or holds a non-string element.
func GetStringArray(obj *goja.Object, key string) ([]string, bool) {
	if obj == nil {
		return nil, false
	}
	v := obj.Get(key)
	if absent(v) {
		return nil, false
	}
	arr, ok := v.(*goja.Object)
	if !ok {
		return nil, false
	}
	lengthVal := arr.Get("length")
	if absent(lengthVal) {
		return nil, false
	}
	length, ok := toInt(lengthVal.Export())
	if !ok || length < 0 {
		return nil, false
	}

	out := make([]string, 0, length)
	for i := 0; i < length; i++ {
		elem := arr.Get(strconv.Itoa(i))
		if absent(elem) {
			return nil, false
		}
		s, ok := elem.Export().(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

// toInt converts the numeric types goja exports to int.
func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int64:
		return int(n), true
	case int:
		return n, true
	case float64:
		if n >= -2147483648 && n <= 2147483647 && n == float64(int(n)) {
			return int(n), true
		}
		return 0, false
	default:
		return 0, false
	}
}
