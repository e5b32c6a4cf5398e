package preview

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DecodeText decodes data as UTF-8. If that produces replacement characters
// the bytes are decoded as Windows-1251 instead.
func DecodeText(data []byte) string {
	body := bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(body) && !bytes.ContainsRune(body, utf8.RuneError) {
		return string(body)
	}

	decoded, _, err := transform.Bytes(charmap.Windows1251.NewDecoder(), body)
	if err != nil {
		return strings.ToValidUTF8(string(body), "\uFFFD")
	}
	return string(decoded)
}

// PrettyJSON re-indents valid JSON with two spaces. Invalid input is
// returned unchanged with ok=false.
func PrettyJSON(text string) (string, bool) {
	src := []byte(strings.TrimSpace(text))
	if len(src) == 0 || !json.Valid(src) {
		return text, false
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, src, "", "  "); err != nil {
		return text, false
	}
	return buf.String(), true
}
