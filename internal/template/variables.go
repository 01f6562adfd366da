// Package template analyses and renders step intent templates.
//
// Templates use Jinja syntax: {{ var }}, {{ var.field }}, {% if var %} and
// {% for x in var %}. Analysis is purely lexical so it can run before any
// value exists; rendering is delegated to pongo2.
package template

import (
	"regexp"
	"sort"
	"strings"
)

// Builtin names are supplied by the orchestrator and never create dependencies.
const (
	BuiltinTask           = "task"
	BuiltinPreviousOutput = "previous_output"
)

// IsBuiltin reports whether name is provided by the orchestrator itself.
func IsBuiltin(name string) bool {
	return name == BuiltinTask || name == BuiltinPreviousOutput
}

var (
	exprPattern = regexp.MustCompile(`(?s)\{\{-?(.*?)-?\}\}`)
	tagPattern  = regexp.MustCompile(`(?s)\{%-?(.*?)-?%\}`)
	forPattern  = regexp.MustCompile(`(?s)^for\s+(.+?)\s+in\s+(.+?)(\s+reversed)?(\s+sorted)?$`)
	setPattern  = regexp.MustCompile(`(?s)^set\s+([A-Za-z_][A-Za-z0-9_]*)\s*=\s*(.+)$`)
	withPattern = regexp.MustCompile(`(?s)^with\s+([A-Za-z_][A-Za-z0-9_]*)\s*=\s*(.+)$`)
)

// keywords are identifiers of the template language, not variables.
var keywords = map[string]bool{
	"and": true, "or": true, "not": true, "in": true, "is": true,
	"true": true, "false": true, "none": true,
	"True": true, "False": true, "None": true,
	"forloop": true,
}

// ExtractVariables returns the sorted, de-duplicated root names a template
// references through {{ var }}, {{ var.field }}, {% if var %} and
// {% for x in var %}. Dot paths collapse to their root, filter names are
// ignored, and names bound by the template itself (loop variables, set)
// are excluded.
func ExtractVariables(tpl string) []string {
	seen := make(map[string]bool)
	bound := make(map[string]bool)

	for _, m := range tagPattern.FindAllStringSubmatch(tpl, -1) {
		collectTag(strings.TrimSpace(m[1]), seen, bound)
	}
	for _, m := range exprPattern.FindAllStringSubmatch(tpl, -1) {
		collectExpr(m[1], seen)
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		if bound[name] || keywords[name] {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// collectTag records references made by a {% ... %} tag body.
func collectTag(body string, seen, bound map[string]bool) {
	word, rest, _ := strings.Cut(body, " ")
	rest = strings.TrimSpace(rest)

	switch word {
	case "if", "elif":
		collectExpr(rest, seen)
	case "for":
		m := forPattern.FindStringSubmatch(body)
		if m == nil {
			return
		}
		for _, v := range strings.Split(m[1], ",") {
			bound[strings.TrimSpace(v)] = true
		}
		collectExpr(m[2], seen)
	case "set":
		if m := setPattern.FindStringSubmatch(body); m != nil {
			bound[m[1]] = true
			collectExpr(m[2], seen)
		}
	case "with":
		if m := withPattern.FindStringSubmatch(body); m != nil {
			bound[m[1]] = true
			collectExpr(m[2], seen)
		}
	}
}

// collectExpr scans an expression and records every root identifier,
// skipping attribute names (after '.'), filter names (after '|') and
// string literals.
func collectExpr(expr string, seen map[string]bool) {
	var prev byte
	for i := 0; i < len(expr); {
		c := expr[i]

		switch {
		case c == '"' || c == '\'':
			end := strings.IndexByte(expr[i+1:], c)
			if end < 0 {
				return
			}
			i += end + 2
			prev = c
		case isIdentStart(c):
			j := i + 1
			for j < len(expr) && isIdentPart(expr[j]) {
				j++
			}
			if prev != '.' && prev != '|' {
				seen[expr[i:j]] = true
			}
			i = j
			prev = 'a'
		case c >= '0' && c <= '9':
			j := i + 1
			for j < len(expr) && (isIdentPart(expr[j]) || expr[j] == '.') {
				j++
			}
			i = j
			prev = '0'
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		default:
			prev = c
			i++
		}
	}
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
