package preview

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"path"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ErrNotDocx is returned when the archive has no main document part.
var ErrNotDocx = errors.New("not a word document")

var docxPolicy = func() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowDataURIImages()
	return p
}()

// DocxToHTML converts a .docx document into sanitized HTML. Paragraph styles
// Title and Heading1-6 become headings, numbered paragraphs become list
// items. Inline images are embedded as data URIs.
func DocxToHTML(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}

	c := &docxConverter{zip: zr, rels: map[string]relationship{}}
	if err := c.loadRelationships(); err != nil {
		return "", err
	}

	doc, err := c.open("word/document.xml")
	if err != nil {
		return "", ErrNotDocx
	}
	defer doc.Close()

	if err := c.convert(xml.NewDecoder(doc)); err != nil {
		return "", fmt.Errorf("parse document: %w", err)
	}

	out := strings.TrimSpace(docxPolicy.Sanitize(c.out.String()))
	if out == "" {
		return MsgEmptyDocument, nil
	}
	return out, nil
}

type relationship struct {
	ID         string `xml:"Id,attr"`
	Target     string `xml:"Target,attr"`
	TargetMode string `xml:"TargetMode,attr"`
}

type paragraph struct {
	body  strings.Builder
	style string
	list  bool
	media bool
}

type docxConverter struct {
	zip  *zip.Reader
	rels map[string]relationship
	out  strings.Builder

	paras    []*paragraph
	bold     bool
	italic   bool
	under    bool
	inRun    bool
	inText   bool
	href     string
	listOpen bool
}

func (c *docxConverter) open(name string) (io.ReadCloser, error) {
	for _, f := range c.zip.File {
		if f.Name == name {
			return f.Open()
		}
	}
	return nil, fmt.Errorf("%s: %w", name, ErrNotDocx)
}

func (c *docxConverter) loadRelationships() error {
	rc, err := c.open("word/_rels/document.xml.rels")
	if err != nil {
		return nil
	}
	defer rc.Close()

	var doc struct {
		Relationships []relationship `xml:"Relationship"`
	}
	if err := xml.NewDecoder(rc).Decode(&doc); err != nil {
		return fmt.Errorf("parse relationships: %w", err)
	}
	for _, r := range doc.Relationships {
		c.rels[r.ID] = r
	}
	return nil
}

func attr(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// toggle reads an on/off run property such as <w:b/> or <w:b w:val="0"/>.
func toggle(el xml.StartElement) bool {
	switch strings.ToLower(attr(el, "val")) {
	case "0", "false", "off", "none":
		return false
	}
	return true
}

func (c *docxConverter) current() *paragraph {
	if len(c.paras) == 0 {
		return nil
	}
	return c.paras[len(c.paras)-1]
}

func (c *docxConverter) convert(dec *xml.Decoder) error {
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			c.closeList()
			return nil
		}
		if err != nil {
			return err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			c.start(t)
		case xml.EndElement:
			c.end(t)
		case xml.CharData:
			if p := c.current(); p != nil && c.inText {
				c.writeRun(p, html.EscapeString(string(t)))
			}
		}
	}
}

func (c *docxConverter) start(el xml.StartElement) {
	p := c.current()
	switch el.Name.Local {
	case "p":
		c.paras = append(c.paras, &paragraph{})
	case "pStyle":
		if p != nil {
			p.style = attr(el, "val")
		}
	case "numPr":
		if p != nil {
			p.list = true
		}
	case "r":
		c.inRun = true
		c.bold, c.italic, c.under = false, false, false
	case "b":
		c.bold = toggle(el)
	case "i":
		c.italic = toggle(el)
	case "u":
		c.under = toggle(el)
	case "t":
		c.inText = true
	case "tab":
		if p != nil && c.inRun {
			p.body.WriteString(" ")
		}
	case "br", "cr":
		if p != nil {
			p.body.WriteString("<br>")
		}
	case "hyperlink":
		c.href = c.linkTarget(el)
	case "blip":
		if p != nil {
			if img := c.image(attr(el, "embed")); img != "" {
				p.body.WriteString(img)
				p.media = true
			}
		}
	case "tbl":
		if p == nil {
			c.closeList()
			c.out.WriteString("<table>")
		}
	case "tr":
		if p == nil {
			c.out.WriteString("<tr>")
		}
	case "tc":
		if p == nil {
			c.out.WriteString("<td>")
		}
	}
}

func (c *docxConverter) end(el xml.EndElement) {
	switch el.Name.Local {
	case "t":
		c.inText = false
	case "r":
		c.inRun = false
	case "hyperlink":
		c.href = ""
	case "p":
		c.endParagraph()
	case "tc":
		if c.current() == nil {
			c.closeList()
			c.out.WriteString("</td>")
		}
	case "tr":
		if c.current() == nil {
			c.out.WriteString("</tr>")
		}
	case "tbl":
		if c.current() == nil {
			c.out.WriteString("</table>")
		}
	}
}

func (c *docxConverter) writeRun(p *paragraph, text string) {
	if c.bold {
		text = "<strong>" + text + "</strong>"
	}
	if c.italic {
		text = "<em>" + text + "</em>"
	}
	if c.under {
		text = "<u>" + text + "</u>"
	}
	if c.href != "" {
		text = `<a href="` + html.EscapeString(c.href) + `">` + text + "</a>"
	}
	p.body.WriteString(text)
}

func (c *docxConverter) endParagraph() {
	n := len(c.paras)
	if n == 0 {
		return
	}
	p := c.paras[n-1]
	c.paras = c.paras[:n-1]

	content := p.body.String()
	if strings.TrimSpace(content) == "" && !p.media {
		return
	}

	// Paragraphs nested in text boxes flow into the enclosing paragraph.
	if parent := c.current(); parent != nil {
		parent.body.WriteString(content + " ")
		parent.media = parent.media || p.media
		return
	}

	if p.list {
		if !c.listOpen {
			c.out.WriteString("<ul>")
			c.listOpen = true
		}
		c.out.WriteString("<li>" + content + "</li>")
		return
	}

	c.closeList()
	tag := headingTag(p.style)
	c.out.WriteString("<" + tag + ">" + content + "</" + tag + ">")
}

func (c *docxConverter) closeList() {
	if c.listOpen {
		c.out.WriteString("</ul>")
		c.listOpen = false
	}
}

func headingTag(style string) string {
	s := strings.ToLower(strings.ReplaceAll(style, " ", ""))
	if s == "title" {
		return "h1"
	}
	if strings.HasPrefix(s, "heading") && len(s) == len("heading")+1 {
		if d := s[len(s)-1]; d >= '1' && d <= '6' {
			return "h" + string(d)
		}
	}
	return "p"
}

func (c *docxConverter) linkTarget(el xml.StartElement) string {
	if anchor := attr(el, "anchor"); anchor != "" {
		return "#" + anchor
	}
	rel, ok := c.rels[attr(el, "id")]
	if !ok || !strings.EqualFold(rel.TargetMode, "External") {
		return ""
	}
	return rel.Target
}

// image returns an <img> tag for an embedded picture, or "" if the part
// cannot be read.
func (c *docxConverter) image(relID string) string {
	rel, ok := c.rels[relID]
	if !ok || strings.EqualFold(rel.TargetMode, "External") {
		return ""
	}
	name := strings.TrimPrefix(rel.Target, "/")
	if !strings.HasPrefix(name, "word/") {
		name = path.Join("word", name)
	}

	mimeType := ImageMIME(strings.TrimPrefix(path.Ext(name), "."))
	if mimeType == "" {
		return ""
	}

	rc, err := c.open(name)
	if err != nil {
		return ""
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return ""
	}
	return `<img src="data:` + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data) + `" alt="">`
}
