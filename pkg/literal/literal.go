// Package literal provides functions that rewrite a literal's lexical form
// before it is written into a triple. Functions are either named builtins
// backed by golang.org/x/text or sandboxed JavaScript expressions.
package literal

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dop251/goja"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Function is a compiled literal function. It is immutable and may be shared
// between goroutines; evaluation happens in a per-goroutine Runtime.
type Function struct {
	name    string
	builtin func(string) string
	program *goja.Program
}

var builtins = map[string]func(string) string{
	"lower": func(s string) string { return cases.Lower(language.Und).String(s) },
	"upper": func(s string) string { return cases.Upper(language.Und).String(s) },
	"title": func(s string) string { return cases.Title(language.Und).String(s) },
	"trim":  strings.TrimSpace,
	"nfc":   norm.NFC.String,
	"nfkc":  norm.NFKC.String,
}

// Builtins returns the names of the builtin functions.
func Builtins() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Builtin looks up a builtin function by name.
func Builtin(name string) (*Function, error) {
	fn, ok := builtins[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown literal function %q (available: %s)", name, strings.Join(Builtins(), ", "))
	}
	return &Function{name: name, builtin: fn}, nil
}

// Compile compiles a JavaScript expression over the variable value. A script
// containing a return statement is treated as a function body instead.
func Compile(script string) (*Function, error) {
	trimmed := strings.TrimSpace(script)
	if trimmed == "" {
		return nil, fmt.Errorf("script is empty")
	}

	var src string
	if strings.Contains(trimmed, "return") {
		src = "(function(value) {\n" + trimmed + "\n})"
	} else {
		src = "(function(value) {\nreturn (" + trimmed + ");\n})"
	}

	program, err := goja.Compile("literal", src, true)
	if err != nil {
		return nil, fmt.Errorf("failed to compile script: %w", err)
	}
	return &Function{name: "script", program: program}, nil
}

// Name returns the builtin name or "script".
func (f *Function) Name() string {
	return f.name
}

// IsScript reports whether the function runs JavaScript.
func (f *Function) IsScript() bool {
	return f.program != nil
}
