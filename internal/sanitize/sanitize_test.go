package sanitize

import (
	"strings"
	"testing"
)

func TestHTMLStripsScripts(t *testing.T) {
	in := `<p>hello</p><script>alert(1)</script>`
	out := HTML(in)
	if strings.Contains(out, "script") {
		t.Fatalf("script tag survived: %q", out)
	}
	if !strings.Contains(out, "<p>hello</p>") {
		t.Fatalf("safe markup dropped: %q", out)
	}
}

func TestHTMLStripsEventHandlers(t *testing.T) {
	out := HTML(`<p onclick="steal()">x</p>`)
	if strings.Contains(out, "onclick") {
		t.Fatalf("event handler survived: %q", out)
	}
}

func TestHTMLKeepsEditorClasses(t *testing.T) {
	out := HTML(`<p class="ql-align-center">centered</p>`)
	if !strings.Contains(out, `class="ql-align-center"`) {
		t.Fatalf("editor class dropped: %q", out)
	}
}

func TestHTMLKeepsFormatting(t *testing.T) {
	in := `<h1>Title</h1><p><strong>bold</strong> and <em>italic</em></p><ul><li>item</li></ul>`
	if out := HTML(in); out != in {
		t.Fatalf("formatting changed: %q", out)
	}
}
