// Package htmlsanitize strips markup from user-supplied text.
//
// Responses, replies, questions and group names are stored as plain text.
// PlainText removes well-formed tags and decodes entities; text with no
// well-formed tag is kept exactly as typed, so "a<b" or "I <3 you" survive.
package htmlsanitize

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strict = bluemonday.StrictPolicy()

	// an opening, closing or self-closing element tag, or a comment
	tagPattern = regexp.MustCompile(`<(?:/?[A-Za-z][A-Za-z0-9-]*(?:\s[^<>]*)?/?|!--[\s\S]*?--)>`)
)

// PlainText removes all markup from s and unescapes entities.
// Content of <script> and <style> elements is dropped entirely.
// A string without a well-formed tag is returned unchanged; a stray "<"
// next to real tags is kept as text.
func PlainText(s string) string {
	if s == "" || !HasMarkup(s) {
		return s
	}
	return html.UnescapeString(strict.Sanitize(escapeStray(s)))
}

// escapeStray escapes every "<" that does not open a well-formed tag so
// the HTML parser reads it as text.
func escapeStray(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	last := 0
	for _, loc := range tagPattern.FindAllStringIndex(s, -1) {
		b.WriteString(strings.ReplaceAll(s[last:loc[0]], "<", "&lt;"))
		b.WriteString(s[loc[0]:loc[1]])
		last = loc[1]
	}
	b.WriteString(strings.ReplaceAll(s[last:], "<", "&lt;"))
	return b.String()
}

// HasMarkup reports whether s contains at least one well-formed tag.
func HasMarkup(s string) bool {
	if !strings.Contains(s, "<") {
		return false
	}
	return tagPattern.MatchString(s)
}
