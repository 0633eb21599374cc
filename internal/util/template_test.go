package util

import (
	"strings"
	"sync"
	"testing"
)

func TestRenderTemplate_Basic(t *testing.T) {
	tmpl := "Hello {{.Name}}, you are {{.Age}} years old."
	data := map[string]any{
		"Name": "Alice",
		"Age":  30,
	}

	result, err := RenderTemplate(tmpl, data)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	expected := "Hello Alice, you are 30 years old."
	if result != expected {
		t.Errorf("Expected '%s', got '%s'", expected, result)
	}
}

func TestRenderTemplate_Struct(t *testing.T) {
	data := struct {
		Product string
		CTA     string
	}{Product: "AI 簡報生成工具", CTA: "立即免費試用"}

	result, err := RenderTemplate("- 產品/服務: {{.Product}}\n- CTA: {{.CTA}}", data)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !strings.Contains(result, "AI 簡報生成工具") || !strings.Contains(result, "立即免費試用") {
		t.Errorf("unexpected render: %q", result)
	}
}

func TestRenderTemplate_DataIsNotInterpreted(t *testing.T) {
	result, err := RenderTemplate("{{.Value}}", map[string]any{"Value": "{{call .X}}"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if result != "{{call .X}}" {
		t.Errorf("data should be inserted verbatim, got %q", result)
	}
}

func TestRenderTemplate_InvalidTemplate(t *testing.T) {
	_, err := RenderTemplate("Hello {{.Name", map[string]any{"Name": "Alice"})
	if err == nil {
		t.Error("Expected error for invalid template, got nil")
	}
}

func TestRenderTemplate_MissingKey(t *testing.T) {
	_, err := RenderTemplate("Hello {{.Name}}", map[string]any{})
	if err == nil {
		t.Error("Expected error for missing key, got nil")
	}
}

func TestRenderTemplate_ForbiddenDirectives(t *testing.T) {
	tests := []string{
		`{{define "x"}}hi{{end}}`,
		`{{template "x"}}`,
		`{{block "x" .}}hi{{end}}`,
		`{{call .Fn}}`,
	}

	for _, tmpl := range tests {
		t.Run(tmpl, func(t *testing.T) {
			_, err := RenderTemplate(tmpl, map[string]any{})
			if err == nil || !strings.Contains(err.Error(), "forbidden directive") {
				t.Errorf("Expected forbidden directive error, got %v", err)
			}
		})
	}
}

func TestTemplateCaching(t *testing.T) {
	tmpl := "Hello {{.Name}}"
	first, err := ParseTemplate(tmpl)
	if err != nil {
		t.Fatalf("ParseTemplate failed: %v", err)
	}
	second, err := ParseTemplate(tmpl)
	if err != nil {
		t.Fatalf("ParseTemplate failed: %v", err)
	}
	if first != second {
		t.Error("Expected the cached template to be reused")
	}
}

func TestTemplateCachingConcurrency(t *testing.T) {
	tmpl := "Worker {{.ID}}"
	var wg sync.WaitGroup
	errs := make(chan error, 50)

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if _, err := RenderTemplate(tmpl, map[string]any{"ID": id}); err != nil {
				errs <- err
			}
		}(i)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent render failed: %v", err)
	}
}

func TestMustParseTemplate_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected panic for invalid template")
		}
	}()
	MustParseTemplate("{{.Broken")
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{name: "shorter_than_max", input: "hello", maxLen: 10, want: "hello"},
		{name: "equal_to_max", input: "hello", maxLen: 5, want: "hello"},
		{name: "longer_than_max", input: "hello world", maxLen: 5, want: "hello..."},
		{name: "multibyte", input: "立即免費試用", maxLen: 2, want: "立即..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateString(tt.input, tt.maxLen); got != tt.want {
				t.Errorf("TruncateString(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
		})
	}
}
