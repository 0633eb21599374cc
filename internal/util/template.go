package util

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"text/template"
)

// forbiddenDirectives could be used to reach outside the data passed in
var forbiddenDirectives = []string{"{{call", "{{define", "{{template", "{{block"}

// templateCache maps template source to its parsed *template.Template
var templateCache sync.Map

// ParseTemplate validates and parses a template, reusing earlier parses of the same source
func ParseTemplate(tmpl string) (*template.Template, error) {
	if cached, ok := templateCache.Load(tmpl); ok {
		return cached.(*template.Template), nil
	}

	for _, directive := range forbiddenDirectives {
		if strings.Contains(tmpl, directive) {
			return nil, fmt.Errorf("template contains forbidden directive: %s", directive)
		}
	}

	t, err := template.New("prompt").
		Option("missingkey=error").
		Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	actual, _ := templateCache.LoadOrStore(tmpl, t)
	return actual.(*template.Template), nil
}

// MustParseTemplate is ParseTemplate for package-level prompt skeletons
func MustParseTemplate(tmpl string) *template.Template {
	t, err := ParseTemplate(tmpl)
	if err != nil {
		panic(err)
	}
	return t
}

// RenderTemplate renders a template string with the given data
func RenderTemplate(tmpl string, data any) (string, error) {
	t, err := ParseTemplate(tmpl)
	if err != nil {
		return "", err
	}
	return Execute(t, data)
}

// Execute runs a parsed template into a string
func Execute(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

// TruncateString truncates a string to maxLen runes (Unicode-safe)
func TruncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
