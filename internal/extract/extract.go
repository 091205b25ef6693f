// Package extract turns uploaded document bytes into plain text.
package extract

import (
	"bytes"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// DefaultMinChars is the least amount of text, after trimming, that a
// document must yield.
const DefaultMinChars = 100

// Format identifies how a document was decoded.
type Format string

const (
	FormatPDF      Format = "pdf"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
)

var pdfMagic = []byte("%PDF-")

// Result is the outcome of a successful extraction.
type Result struct {
	Text   string
	Format Format
	// Pages is the number of pages that contributed text (PDF only).
	Pages int
	// Headings lists section titles in document order (Markdown only).
	Headings []string
}

// Title returns the first heading, if any.
func (r *Result) Title() string {
	if len(r.Headings) == 0 {
		return ""
	}
	return r.Headings[0]
}

// Extractor decodes PDF, Markdown and plain text documents. It holds no
// per-document state and is safe for concurrent use.
type Extractor struct {
	minChars int
	openPDF  func([]byte) (pageSource, error)
	markdown *markdownReader
}

// New creates an Extractor that rejects documents yielding fewer than
// minChars characters. A negative minChars selects DefaultMinChars.
func New(minChars int) *Extractor {
	if minChars < 0 {
		minChars = DefaultMinChars
	}
	return &Extractor{
		minChars: minChars,
		openPDF:  openFitz,
		markdown: newMarkdownReader(),
	}
}

// Detect picks the decoder for raw. PDF is recognised by its magic bytes,
// Markdown by the display name's extension, or for an unnamed upload by a
// leading "# " heading. Anything else must be UTF-8.
func Detect(raw []byte, displayName string) (Format, bool) {
	if bytes.HasPrefix(raw, pdfMagic) {
		return FormatPDF, true
	}
	if !utf8.Valid(raw) {
		return "", false
	}
	switch strings.ToLower(filepath.Ext(displayName)) {
	case ".md", ".markdown":
		return FormatMarkdown, true
	}
	if strings.TrimSpace(displayName) == "" && bytes.HasPrefix(bytes.TrimLeft(raw, " \t\r\n"), []byte("# ")) {
		return FormatMarkdown, true
	}
	return FormatText, true
}

// Extract returns the trimmed text of raw. Failures are *Error values.
func (e *Extractor) Extract(raw []byte, displayName string) (*Result, error) {
	format, ok := Detect(raw, displayName)
	if !ok {
		return nil, &Error{Reason: ErrUnparseable}
	}

	result := &Result{Format: format}
	switch format {
	case FormatPDF:
		text, pages, err := e.extractPDF(raw)
		if err != nil {
			return nil, &Error{Reason: ErrUnparseable, Err: err}
		}
		result.Text = text
		result.Pages = pages
	case FormatMarkdown:
		result.Text, result.Headings = e.markdown.read(raw)
	default:
		result.Text = strings.ReplaceAll(string(raw), "\r\n", "\n")
	}

	result.Text = strings.TrimSpace(result.Text)
	if result.Text == "" || utf8.RuneCountInString(result.Text) < e.minChars {
		return nil, &Error{Reason: ErrInsufficientContent}
	}
	return result, nil
}
