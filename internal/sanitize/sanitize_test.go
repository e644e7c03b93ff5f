package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	s := New()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain text", in: "hello", want: "hello"},
		{name: "allowed formatting", in: "<strong>bold</strong> <em>it</em>", want: "<strong>bold</strong> <em>it</em>"},
		{name: "script removed", in: `hi<script>alert(1)</script>`, want: "hi"},
		{name: "event handler dropped", in: `<p onclick="x()">p</p>`, want: "<p>p</p>"},
		{name: "disallowed tag unwrapped", in: `<div>text</div>`, want: "text"},
		{name: "trimmed", in: "  spaced  ", want: "spaced"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Sanitize(tt.in))
		})
	}
}

func TestSanitizeKeepsLinks(t *testing.T) {
	got := New().Sanitize(`<a href="https://example.com" style="color:red">site</a>`)
	assert.Contains(t, got, `href="https://example.com"`)
	assert.NotContains(t, got, "style")
	assert.Contains(t, got, ">site</a>")
}

func TestSanitizeDropsScriptURLs(t *testing.T) {
	got := New().Sanitize(`<a href="javascript:alert(1)">x</a>`)
	assert.NotContains(t, got, "javascript")
	assert.Contains(t, got, "x")
}

// TestSanitizeEscapesText pins the entity encoding of plain text. Clients
// render message bodies as HTML, where these display as typed.
func TestSanitizeEscapesText(t *testing.T) {
	s := New()

	assert.Equal(t, "it&#39;s", s.Sanitize("it's"))
	assert.Equal(t, "say &#34;hi&#34;", s.Sanitize(`say "hi"`))
	assert.Equal(t, "fish &amp; chips", s.Sanitize("fish & chips"))
	assert.Equal(t, "<em>it&#39;s</em>", s.Sanitize("<em>it's</em>"))
}
