// Package document converts uploaded files to report text and report text
// back to downloadable files.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

var (
	// ErrEmptyFile is returned when the upload has no readable text.
	ErrEmptyFile = errors.New("file is empty")
	// ErrUnsupportedFormat is returned for file types that cannot be read.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrCorrupted is returned when the bytes do not match the declared format.
	ErrCorrupted = errors.New("file is corrupted or not valid text")
)

// MaxUploadSize bounds accepted uploads.
const MaxUploadSize = 10 << 20

// Extract returns the report text of an uploaded file. The format is chosen
// by the file extension.
func Extract(data []byte, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt", ".md", ".markdown", ".html", ".htm":
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return "", ErrEmptyFile
	}
	if len(data) > MaxUploadSize {
		return "", fmt.Errorf("%w: larger than %d bytes", ErrCorrupted, MaxUploadSize)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) || bytes.IndexByte(data, 0) >= 0 {
		return "", ErrCorrupted
	}

	var text string
	if ext == ".html" || ext == ".htm" {
		var err error
		if text, err = extractHTML(data); err != nil {
			return "", fmt.Errorf("%w: %v", ErrCorrupted, err)
		}
	} else {
		text = normalizeNewlines(string(data))
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyFile
	}
	return text, nil
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

var blockElements = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "li": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"tr": true, "table": true, "ul": true, "ol": true, "blockquote": true,
	"pre": true, "header": true, "footer": true, "figure": true,
	"td": true, "th": true,
}

var skipElements = map[string]bool{
	"script": true, "style": true, "head": true, "noscript": true, "template": true,
}

// extractHTML keeps the visible text with one paragraph per block element.
func extractHTML(data []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", err
	}

	var paragraphs []string
	var current strings.Builder
	flush := func() {
		p := strings.Join(strings.Fields(current.String()), " ")
		if p != "" {
			paragraphs = append(paragraphs, p)
		}
		current.Reset()
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			if skipElements[n.Data] {
				return
			}
			if n.Data == "br" {
				flush()
				return
			}
			if blockElements[n.Data] {
				flush()
				defer flush()
			}
		case html.TextNode:
			current.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	flush()

	return strings.Join(paragraphs, "\n\n"), nil
}
