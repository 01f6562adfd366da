package template

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/flosch/pongo2/v6"
)

func init() {
	// Prompts are plain text; HTML escaping would corrupt them.
	pongo2.SetAutoescape(false)
}

// RenderError reports a template that failed to compile or execute.
type RenderError struct {
	Err error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render template: %v", e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Render executes tpl against data.
func Render(tpl string, data map[string]any) (string, error) {
	if !strings.Contains(tpl, "{{") && !strings.Contains(tpl, "{%") {
		return tpl, nil
	}

	compiled, err := pongo2.FromString(tpl)
	if err != nil {
		return "", &RenderError{Err: err}
	}
	out, err := compiled.Execute(pongo2.Context(data))
	if err != nil {
		return "", &RenderError{Err: err}
	}
	return out, nil
}

// Validate compiles tpl without executing it.
func Validate(tpl string) error {
	if _, err := pongo2.FromString(tpl); err != nil {
		return &RenderError{Err: err}
	}
	return nil
}

// Object is a JSON object output. Field access works in templates and
// plain interpolation prints the original JSON.
type Object map[string]any

func (o Object) String() string {
	data, _ := json.Marshal(map[string]any(o))
	return string(data)
}

// List is a JSON array output, iterable in {% for %} loops.
type List []any

func (l List) String() string {
	data, _ := json.Marshal([]any(l))
	return string(data)
}

// Value converts a raw agent output into the form exposed to templates:
// JSON objects become Object, JSON arrays become List, everything else
// stays a string.
func Value(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return raw
	}
	switch trimmed[0] {
	case '{':
		var obj map[string]any
		if err := json.Unmarshal([]byte(trimmed), &obj); err == nil {
			return Object(obj)
		}
	case '[':
		var list []any
		if err := json.Unmarshal([]byte(trimmed), &list); err == nil {
			return List(list)
		}
	}
	return raw
}
