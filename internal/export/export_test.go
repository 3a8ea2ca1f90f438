package export

import (
	"html/template"
	"strings"
	"testing"
	"time"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "simple name",
			input:    "Meeting Notes",
			expected: "Meeting-Notes",
		},
		{
			name:     "special characters stripped",
			input:    "Q3 Plan: draft (v2)!",
			expected: "Q3-Plan-draft-v2",
		},
		{
			name:     "empty name",
			input:    "",
			expected: "document",
		},
		{
			name:     "only special characters",
			input:    "???///",
			expected: "document",
		},
		{
			name:     "long name truncated",
			input:    strings.Repeat("a", 80),
			expected: strings.Repeat("a", 50),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeFilename(tt.input); got != tt.expected {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"abc", "abc"},
		{"a b", "a%20b"},
		{"<p>", "%3Cp%3E"},
		{"a.b-c_d~e", "a.b-c_d~e"},
	}
	for _, tt := range tests {
		if got := percentEncodeForDataURL(tt.input); got != tt.expected {
			t.Errorf("percentEncodeForDataURL(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestRenderDocumentHTML(t *testing.T) {
	html, err := RenderDocumentHTML(TemplateData{
		Name:        "Meeting Notes",
		ContentHTML: template.HTML("<p>agenda</p>"),
		Author:      "ada",
		UpdatedAt:   time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("RenderDocumentHTML() error = %v", err)
	}

	if !strings.Contains(html, "<h1 class=\"doc-title\">Meeting Notes</h1>") {
		t.Error("rendered HTML should contain the document name")
	}
	if !strings.Contains(html, "<p>agenda</p>") {
		t.Error("rendered HTML should contain the content markup unescaped")
	}
	if !strings.Contains(html, "Mar 14, 2026") {
		t.Error("rendered HTML should contain the formatted date")
	}
}

func TestRenderDocumentHTMLEscapesName(t *testing.T) {
	html, err := RenderDocumentHTML(TemplateData{
		Name: "<script>alert(1)</script>",
	})
	if err != nil {
		t.Fatalf("RenderDocumentHTML() error = %v", err)
	}
	if strings.Contains(html, "<script>alert(1)</script>") {
		t.Error("document name must be escaped")
	}
}
