// Package sanitize strips unsafe markup from editor content before it is
// persisted or rebroadcast.
package sanitize

import "github.com/microcosm-cc/bluemonday"

var policy = func() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	// Rich-text editors mark alignment, indentation and code blocks with
	// class attributes.
	p.AllowAttrs("class").Globally()
	return p
}()

// HTML returns markup with scripts, event handlers and unsafe URLs
// removed. Safe formatting tags pass through unchanged.
func HTML(markup string) string {
	return policy.Sanitize(markup)
}
