package email

import (
	"strings"
	"testing"
)

func TestServiceIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{
			name:     "empty config",
			config:   Config{},
			expected: false,
		},
		{
			name: "missing host",
			config: Config{
				Port: "587",
				From: "test@example.com",
			},
			expected: false,
		},
		{
			name: "missing port",
			config: Config{
				Host: "smtp.example.com",
				From: "test@example.com",
			},
			expected: false,
		},
		{
			name: "missing from",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
			},
			expected: false,
		},
		{
			name: "fully configured",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
				From: "test@example.com",
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.config)
			if svc.IsConfigured() != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", svc.IsConfigured(), tt.expected)
			}
		})
	}
}

func TestRenderInviteTemplate(t *testing.T) {
	data := inviteData{
		AppName:      "Quillpad",
		DocumentName: "Meeting Notes",
		InviteURL:    "https://example.com/auth?challenge=abc123",
	}

	html, err := renderTemplate(inviteEmailTemplate, data)
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	if !strings.Contains(html, "Quillpad") {
		t.Error("template should contain app name")
	}
	if !strings.Contains(html, "Meeting Notes") {
		t.Error("template should contain document name")
	}
	if !strings.Contains(html, "https://example.com/auth?challenge=abc123") {
		t.Error("template should contain invite URL")
	}
	if !strings.Contains(html, "24 hours") {
		t.Error("template should mention expiration time")
	}
}

func TestRenderSignInTemplate(t *testing.T) {
	data := signInData{
		AppName:   "Quillpad",
		SignInURL: "https://example.com/auth?challenge=xyz789",
	}

	html, err := renderTemplate(signInEmailTemplate, data)
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	if !strings.Contains(html, "Quillpad") {
		t.Error("template should contain app name")
	}
	if !strings.Contains(html, "https://example.com/auth?challenge=xyz789") {
		t.Error("template should contain sign-in URL")
	}
	if !strings.Contains(html, "only be used once") {
		t.Error("template should mention single use")
	}
}
