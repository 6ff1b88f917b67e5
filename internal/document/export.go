package document

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Export formats.
const (
	FormatHTML     = "html"
	FormatMarkdown = "md"
	FormatText     = "txt"
)

// File is a rendered download.
type File struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Export renders text as a downloadable file named after the loaded document.
func Export(text, filename, format string) (*File, error) {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "report"
	}

	switch format {
	case FormatHTML:
		return &File{
			Filename:    base + ".html",
			ContentType: "text/html; charset=utf-8",
			Data:        renderHTML(base, text),
		}, nil
	case FormatMarkdown:
		return &File{
			Filename:    base + ".md",
			ContentType: "text/markdown; charset=utf-8",
			Data:        []byte(text),
		}, nil
	case FormatText, "":
		return &File{
			Filename:    base + ".txt",
			ContentType: "text/plain; charset=utf-8",
			Data:        []byte(text),
		}, nil
	default:
		return nil, fmt.Errorf("%w: export format %q", ErrUnsupportedFormat, format)
	}
}

// renderHTML builds a standalone page. Lines starting with '#' become
// headings; other blank-line separated blocks become paragraphs.
func renderHTML(title, text string) []byte {
	body := element(atom.Body)
	for _, block := range strings.Split(normalizeNewlines(text), "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		body.AppendChild(blockNode(block))
	}

	head := element(atom.Head)
	meta := element(atom.Meta)
	meta.Attr = []html.Attribute{{Key: "charset", Val: "utf-8"}}
	head.AppendChild(meta)
	titleNode := element(atom.Title)
	titleNode.AppendChild(&html.Node{Type: html.TextNode, Data: title})
	head.AppendChild(titleNode)

	root := element(atom.Html)
	root.AppendChild(head)
	root.AppendChild(body)

	doc := &html.Node{Type: html.DocumentNode}
	doc.AppendChild(&html.Node{Type: html.DoctypeNode, Data: "html"})
	doc.AppendChild(root)

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return plainParagraphs(title, text)
	}
	return buf.Bytes()
}

func blockNode(block string) *html.Node {
	if level := headingLevel(block); level > 0 && !strings.Contains(block, "\n") {
		h := element(headingAtoms[level-1])
		h.AppendChild(&html.Node{Type: html.TextNode, Data: strings.TrimSpace(block[level:])})
		return h
	}

	p := element(atom.P)
	for i, line := range strings.Split(block, "\n") {
		if i > 0 {
			p.AppendChild(element(atom.Br))
		}
		p.AppendChild(&html.Node{Type: html.TextNode, Data: line})
	}
	return p
}

var headingAtoms = []atom.Atom{atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6}

func headingLevel(block string) int {
	level := 0
	for level < len(block) && block[level] == '#' {
		level++
	}
	if level == 0 || level > len(headingAtoms) || level >= len(block) || block[level] != ' ' {
		return 0
	}
	return level
}

func element(a atom.Atom) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
}

func plainParagraphs(title, text string) []byte {
	var buf bytes.Buffer
	buf.WriteString("<!DOCTYPE html><html><head><meta charset=\"utf-8\"><title>")
	buf.WriteString(html.EscapeString(title))
	buf.WriteString("</title></head><body>")
	for _, block := range strings.Split(normalizeNewlines(text), "\n\n") {
		if block = strings.TrimSpace(block); block != "" {
			buf.WriteString("<p>" + html.EscapeString(block) + "</p>")
		}
	}
	buf.WriteString("</body></html>")
	return buf.Bytes()
}
