package search

import (
	"strings"
	"unicode"
)

// SnippetRadius is the number of characters kept on each side of a match.
const SnippetRadius = 80

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

// EscapeHTML escapes text for safe display.
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

// indexFold finds needle in hay from rune offset from, comparing runes
// case-insensitively. It returns -1 when there is no match.
func indexFold(hay, needle []rune, from int) int {
	if len(needle) == 0 {
		return -1
	}
	for i := from; i+len(needle) <= len(hay); i++ {
		match := true
		for j, r := range needle {
			if unicode.ToLower(hay[i+j]) != unicode.ToLower(r) {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// Highlight escapes text and wraps every case-insensitive occurrence of
// query in <mark>, keeping the original casing.
func Highlight(text, query string) string {
	if query == "" {
		return EscapeHTML(text)
	}
	return highlightRunes([]rune(text), []rune(query))
}

func highlightRunes(text, query []rune) string {
	var b strings.Builder
	cursor := 0
	for cursor < len(text) {
		idx := indexFold(text, query, cursor)
		if idx == -1 {
			b.WriteString(EscapeHTML(string(text[cursor:])))
			break
		}
		b.WriteString(EscapeHTML(string(text[cursor:idx])))
		b.WriteString("<mark>")
		b.WriteString(EscapeHTML(string(text[idx : idx+len(query)])))
		b.WriteString("</mark>")
		cursor = idx + len(query)
	}
	return b.String()
}

// Snippet returns the highlighted context around the first occurrence of
// query in text, with ellipses where the text was cut. ok is false when
// query does not occur.
func Snippet(text, query string) (snippet string, ok bool) {
	runes := []rune(text)
	q := []rune(query)
	idx := indexFold(runes, q, 0)
	if idx == -1 {
		return "", false
	}

	start := max(0, idx-SnippetRadius)
	end := min(len(runes), idx+len(q)+SnippetRadius)

	var b strings.Builder
	if start > 0 {
		b.WriteString("…")
	}
	b.WriteString(highlightRunes(runes[start:end], q))
	if end < len(runes) {
		b.WriteString("…")
	}
	return b.String(), true
}
