// Package ingest turns uploaded files into submission content. Markdown
// is rendered to HTML, PDFs are reduced to plain text, HTML and plain
// text pass through.
package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/yuin/goldmark"
)

// ErrUnsupportedType is returned for file extensions outside the allowed
// set.
var ErrUnsupportedType = errors.New("unsupported file type")

// ErrEmptyContent is returned when extraction yields nothing usable.
var ErrEmptyContent = errors.New("empty content")

// Content is the extracted submission payload. Exactly one of HTML or
// Text is set, depending on the source format.
type Content struct {
	HTML string
	Text string
}

// AllowedExtensions lists the accepted upload extensions.
var AllowedExtensions = []string{".html", ".htm", ".txt", ".md", ".pdf"}

// FromFile extracts submission content from an uploaded file based on its
// extension.
func FromFile(filename string, data []byte) (Content, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".html", ".htm":
		html := strings.TrimSpace(string(data))
		if html == "" {
			return Content{}, ErrEmptyContent
		}
		return Content{HTML: html}, nil

	case ".txt":
		text := strings.TrimSpace(string(data))
		if text == "" {
			return Content{}, ErrEmptyContent
		}
		return Content{Text: text}, nil

	case ".md":
		var buf bytes.Buffer
		if err := goldmark.Convert(data, &buf); err != nil {
			return Content{}, fmt.Errorf("render markdown: %w", err)
		}
		html := strings.TrimSpace(buf.String())
		if html == "" {
			return Content{}, ErrEmptyContent
		}
		return Content{HTML: html}, nil

	case ".pdf":
		text, err := extractPDF(data)
		if err != nil {
			return Content{}, err
		}
		return Content{Text: text}, nil

	default:
		return Content{}, ErrUnsupportedType
	}
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("parse pdf: %w", err)
	}

	var buf bytes.Buffer
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(strings.TrimSpace(text))
	}

	text := strings.TrimSpace(buf.String())
	if text == "" {
		return "", fmt.Errorf("%w: no extractable text in pdf", ErrEmptyContent)
	}
	return text, nil
}
