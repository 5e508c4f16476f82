package descriptor

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	derrors "github.com/wehubfusion/Daedalus/pkg/errors"
)

// ExtractTemplateVariables finds every {name} placeholder in template, left to
// right, and maps each distinct name to the offset of its opening brace.
// Empty and unterminated placeholders are ignored.
func ExtractTemplateVariables(template string) map[string]int {
	vars := make(map[string]int)
	for _, p := range parseTemplate(template) {
		if !p.variable {
			continue
		}
		if _, seen := vars[p.text]; !seen {
			vars[p.text] = p.offset
		}
	}
	return vars
}

// TemplateVariableNames returns the distinct variable names of template
// ordered by first position.
func TemplateVariableNames(template string) []string {
	vars := ExtractTemplateVariables(template)
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return vars[names[i]] < vars[names[j]] })
	return names
}

// SubstituteTemplate produces count strings from template. The i-th result
// replaces every variable with the i-th value of that variable's list. Every
// variable must supply exactly count values.
func SubstituteTemplate(template string, substitutions map[string][]string, count int) ([]string, error) {
	pieces := parseTemplate(template)

	for _, p := range pieces {
		if !p.variable {
			continue
		}
		if got := len(substitutions[p.text]); got != count {
			return nil, derrors.TemplateMismatch(template, p.text, got, count)
		}
	}

	results := make([]string, count)
	var sb strings.Builder
	for i := 0; i < count; i++ {
		sb.Reset()
		for _, p := range pieces {
			if p.variable {
				sb.WriteString(substitutions[p.text][i])
			} else {
				sb.WriteString(p.text)
			}
		}
		results[i] = sb.String()
	}
	return results, nil
}

// RelativePath strips base from absolute so the result can be evaluated
// against the sub-object found at base. The result always starts with "/".
// A path outside base is returned unchanged.
func RelativePath(absolute, base string) string {
	abs := normalizePath(absolute)
	b := normalizePath(base)

	switch {
	case b == "/":
		return abs
	case abs == b:
		return "/"
	case strings.HasPrefix(abs, b+"/"):
		return abs[len(b):]
	default:
		return abs
	}
}

func normalizePath(p string) string {
	trimmed := strings.Trim(p, "/")
	if trimmed == "" {
		return "/"
	}
	return "/" + trimmed
}

// FormatValue renders a scalar record value as a lexical string. Maps,
// sequences and nil are rejected.
func FormatValue(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case json.Number:
		return val.String(), true
	case bool:
		return strconv.FormatBool(val), true
	default:
		return "", false
	}
}

type templatePiece struct {
	text     string
	variable bool
	offset   int
}

func parseTemplate(template string) []templatePiece {
	var pieces []templatePiece
	literalStart := 0

	for i := 0; i < len(template); i++ {
		if template[i] != '{' {
			continue
		}
		end := strings.IndexByte(template[i+1:], '}')
		if end < 0 {
			break
		}
		end += i + 1
		name := template[i+1 : end]
		if name == "" {
			continue
		}

		if literalStart < i {
			pieces = append(pieces, templatePiece{text: template[literalStart:i], offset: literalStart})
		}
		pieces = append(pieces, templatePiece{text: name, variable: true, offset: i})
		literalStart = end + 1
		i = end
	}

	if literalStart < len(template) {
		pieces = append(pieces, templatePiece{text: template[literalStart:], offset: literalStart})
	}
	return pieces
}
