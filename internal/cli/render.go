package cli

import (
	"html"
	"strings"

	"github.com/fatih/color"
)

var (
	folderColor = color.New(color.FgBlue, color.Bold)
	markColor   = color.New(color.FgYellow, color.Bold)
	dimColor    = color.New(color.Faint)
	errColor    = color.New(color.FgRed)
)

// renderMarked turns highlighted HTML into terminal text, coloring the
// <mark> spans.
func renderMarked(s string) string {
	var b strings.Builder
	for {
		start := strings.Index(s, "<mark>")
		if start < 0 {
			break
		}
		end := strings.Index(s[start:], "</mark>")
		if end < 0 {
			break
		}
		end += start
		b.WriteString(html.UnescapeString(s[:start]))
		b.WriteString(markColor.Sprint(html.UnescapeString(s[start+len("<mark>") : end])))
		s = s[end+len("</mark>"):]
	}
	b.WriteString(html.UnescapeString(s))
	return b.String()
}
