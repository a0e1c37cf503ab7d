package jsutil

import (
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/dop251/goja"

	"github.com/hlop3z/pgphase/internal/alerr"
)

func object(t *testing.T, vm *goja.Runtime, src string) *goja.Object {
	t.Helper()
	v, err := vm.RunString("(" + src + ")")
	if err != nil {
		t.Fatalf("RunString(%s): %v", src, err)
	}
	return v.ToObject(vm)
}

func TestGetString(t *testing.T) {
	vm := NewRuntime()
	obj := object(t, vm, `{name: "users", empty: "", n: 1, nothing: null}`)

	tests := []struct {
		key     string
		wantVal string
		wantOK  bool
	}{
		{"name", "users", true},
		{"empty", "", true},
		{"n", "", false},
		{"nothing", "", false},
		{"missing", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			val, ok := GetString(obj, tt.key)
			if val != tt.wantVal || ok != tt.wantOK {
				t.Errorf("GetString(%q) = %q, %v; want %q, %v", tt.key, val, ok, tt.wantVal, tt.wantOK)
			}
		})
	}

	if _, ok := GetString(nil, "name"); ok {
		t.Error("GetString(nil) must not be ok")
	}
}

func TestGetBool(t *testing.T) {
	vm := NewRuntime()
	obj := object(t, vm, `{yes: true, no: false, text: "true"}`)

	if v, ok := GetBool(obj, "yes"); !v || !ok {
		t.Errorf("GetBool(yes) = %v, %v", v, ok)
	}
	if v, ok := GetBool(obj, "no"); v || !ok {
		t.Errorf("GetBool(no) = %v, %v", v, ok)
	}
	if _, ok := GetBool(obj, "text"); ok {
		t.Error("a string must not read as a bool")
	}
	if !Has(obj, "no") || Has(obj, "missing") {
		t.Error("Has() disagrees with the object")
	}
}

func TestGetStringArray(t *testing.T) {
	vm := NewRuntime()
	obj := object(t, vm, `{up: ["a", "b"], none: [], mixed: ["a", 1], scalar: "a"}`)

	if got, ok := GetStringArray(obj, "up"); !ok || !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("GetStringArray(up) = %v, %v", got, ok)
	}
	if got, ok := GetStringArray(obj, "none"); !ok || len(got) != 0 {
		t.Errorf("GetStringArray(none) = %v, %v", got, ok)
	}
	if _, ok := GetStringArray(obj, "mixed"); ok {
		t.Error("non-string elements must fail")
	}
	if _, ok := GetStringArray(obj, "scalar"); ok {
		t.Error("a string is not an array")
	}
}

func TestRun(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		vm := NewRuntime()
		if err := Run(vm, "ok.js", "var x = 1 + 1;", time.Second); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	})

	t.Run("syntax error", func(t *testing.T) {
		err := Run(NewRuntime(), "bad.js", "var = ;", time.Second)
		if !alerr.Is(err, alerr.ErrJSExecution) {
			t.Fatalf("Run() error = %v, want %s", err, alerr.ErrJSExecution)
		}
	})

	t.Run("eval disabled", func(t *testing.T) {
		err := Run(NewRuntime(), "eval.js", `eval("1")`, time.Second)
		if !alerr.Is(err, alerr.ErrJSExecution) {
			t.Fatalf("Run() error = %v, want %s", err, alerr.ErrJSExecution)
		}
	})

	t.Run("Function disabled", func(t *testing.T) {
		err := Run(NewRuntime(), "fn.js", `new Function("return 1")()`, time.Second)
		if err == nil {
			t.Fatal("Function constructor must be unavailable")
		}
	})

	t.Run("timeout", func(t *testing.T) {
		err := Run(NewRuntime(), "loop.js", "for (;;) {}", 50*time.Millisecond)
		if !alerr.Is(err, alerr.ErrJSExecution) || !strings.Contains(err.Error(), "timed out") {
			t.Fatalf("Run() error = %v, want timeout", err)
		}
	})
}
