// Package sanitize strips message bodies down to a small set of formatting
// tags before they are stored or broadcast.
package sanitize

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer cleans user-supplied HTML. It is safe for concurrent use.
type Sanitizer struct {
	policy *bluemonday.Policy
}

// New returns the message body policy: basic inline formatting, code blocks,
// lists and links. Links keep href, target and rel only.
func New() *Sanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements("p", "br", "strong", "em", "u", "code", "pre", "ul", "ol", "li")
	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("target").Matching(bluemonday.Paragraph).OnElements("a")
	p.AllowAttrs("rel").Matching(bluemonday.SpaceSeparatedTokens).OnElements("a")
	p.AllowStandardURLs()
	return &Sanitizer{policy: p}
}

// Sanitize returns text with disallowed markup removed and surrounding
// whitespace trimmed. The result is HTML: quotes and ampersands in text come
// back as entities, so clients must render content as markup.
func (s *Sanitizer) Sanitize(text string) string {
	return strings.TrimSpace(s.policy.Sanitize(text))
}
