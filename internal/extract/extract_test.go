package extract

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePage struct {
	text string
	err  error
}

type fakePDF struct {
	pages  []fakePage
	closed bool
}

func (f *fakePDF) NumPage() int { return len(f.pages) }

func (f *fakePDF) Text(i int) (string, error) {
	return f.pages[i].text, f.pages[i].err
}

func (f *fakePDF) Close() error {
	f.closed = true
	return nil
}

func withPDF(e *Extractor, doc *fakePDF, openErr error) *Extractor {
	e.openPDF = func([]byte) (pageSource, error) {
		if openErr != nil {
			return nil, openErr
		}
		return doc, nil
	}
	return e
}

var fakePDFBytes = []byte("%PDF-1.7\n...")

func TestExtract_PlainText(t *testing.T) {
	body := strings.Repeat("Plain words in a text file.\r\n", 10)

	result, err := New(DefaultMinChars).Extract([]byte("  "+body+"  "), "notes.txt")
	require.NoError(t, err)

	assert.Equal(t, FormatText, result.Format)
	assert.NotContains(t, result.Text, "\r")
	assert.Equal(t, strings.TrimSpace(strings.ReplaceAll(body, "\r\n", "\n")), result.Text)
}

func TestExtract_WhitespaceOnly(t *testing.T) {
	_, err := New(DefaultMinChars).Extract([]byte(" \n\t\n   \n"), "blank.txt")
	require.Error(t, err)

	var extractErr *Error
	require.ErrorAs(t, err, &extractErr)
	assert.ErrorIs(t, err, ErrInsufficientContent)
	assert.Contains(t, err.Error(), "insufficient content")
}

func TestExtract_EmptyRejectedWithoutThreshold(t *testing.T) {
	e := New(0)

	_, err := e.Extract([]byte("  \n\t "), "x.txt")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientContent)

	_, err = e.Extract([]byte("#   \n\n"), "empty.md")
	assert.ErrorIs(t, err, ErrInsufficientContent)

	result, err := e.Extract([]byte(" a "), "one.txt")
	require.NoError(t, err)
	assert.Equal(t, "a", result.Text)
}

func TestExtract_MinCharsBoundary(t *testing.T) {
	e := New(DefaultMinChars)

	_, err := e.Extract([]byte(strings.Repeat("a", 99)), "short.txt")
	assert.ErrorIs(t, err, ErrInsufficientContent)

	// Counted in characters, so 100 two-byte runes pass.
	result, err := e.Extract([]byte(strings.Repeat("ü", 100)), "exact.txt")
	require.NoError(t, err)
	assert.Len(t, []rune(result.Text), 100)
}

func TestExtract_Binary(t *testing.T) {
	_, err := New(DefaultMinChars).Extract([]byte{0xff, 0xfe, 0x00, 0x81, 0x90}, "image.png")
	assert.ErrorIs(t, err, ErrUnparseable)
}

func TestExtract_PDFPages(t *testing.T) {
	page := strings.Repeat("Page text. ", 12)
	doc := &fakePDF{pages: []fakePage{
		{text: "  " + page + "\n"},
		{text: "   \n"},
		{err: errors.New("broken page")},
		{text: page},
	}}
	e := withPDF(New(DefaultMinChars), doc, nil)

	result, err := e.Extract(fakePDFBytes, "report.pdf")
	require.NoError(t, err)

	assert.Equal(t, FormatPDF, result.Format)
	assert.Equal(t, 2, result.Pages)
	assert.Equal(t, strings.TrimSpace(page)+"\n"+strings.TrimSpace(page), result.Text)
	assert.True(t, doc.closed, "document should be closed")
}

func TestExtract_PDFDetectedByMagicNotName(t *testing.T) {
	doc := &fakePDF{pages: []fakePage{{text: strings.Repeat("x", 150)}}}
	e := withPDF(New(DefaultMinChars), doc, nil)

	result, err := e.Extract(fakePDFBytes, "upload.bin")
	require.NoError(t, err)
	assert.Equal(t, FormatPDF, result.Format)
}

func TestExtract_PDFWithoutText(t *testing.T) {
	doc := &fakePDF{pages: []fakePage{{text: ""}, {text: "\n\n"}}}
	e := withPDF(New(DefaultMinChars), doc, nil)

	_, err := e.Extract(fakePDFBytes, "scanned.pdf")
	assert.ErrorIs(t, err, ErrInsufficientContent)
}

func TestExtract_PDFOpenFailure(t *testing.T) {
	cause := errors.New("corrupt xref table")
	e := withPDF(New(DefaultMinChars), nil, cause)

	_, err := e.Extract(fakePDFBytes, "broken.pdf")
	assert.ErrorIs(t, err, ErrUnparseable)
	assert.ErrorIs(t, err, cause)
}

func TestExtract_Markdown(t *testing.T) {
	source := "# Employee Handbook\n\n" +
		"Welcome to the company. This handbook explains **how we work** and what we expect.\n\n" +
		"## Leave Policy\n\n" +
		"- Annual leave is 25 days\n" +
		"- Sick leave is unlimited\n\n" +
		"```\nleave --request 3d\n```\n\n" +
		"See <https://example.com/policy> for details.\n"

	result, err := New(DefaultMinChars).Extract([]byte(source), "handbook.md")
	require.NoError(t, err)

	assert.Equal(t, FormatMarkdown, result.Format)
	assert.Equal(t, []string{"Employee Handbook", "Leave Policy"}, result.Headings)
	assert.Equal(t, "Employee Handbook", result.Title())

	assert.NotContains(t, result.Text, "#")
	assert.NotContains(t, result.Text, "**")
	assert.Contains(t, result.Text, "Employee Handbook\n\nWelcome to the company.")
	assert.Contains(t, result.Text, "how we work")
	assert.Contains(t, result.Text, "Annual leave is 25 days\nSick leave is unlimited")
	assert.Contains(t, result.Text, "leave --request 3d")
	assert.Contains(t, result.Text, "https://example.com/policy")
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name   string
		raw    []byte
		file   string
		want   Format
		wantOK bool
	}{
		{"pdf magic", []byte("%PDF-1.4 rest"), "a.txt", FormatPDF, true},
		{"markdown ext", []byte("# hi"), "README.MD", FormatMarkdown, true},
		{"markdown long ext", []byte("# hi"), "notes.markdown", FormatMarkdown, true},
		{"plain", []byte("hello"), "hello", FormatText, true},
		{"unnamed heading", []byte("\n# Handbook\n\ntext"), "", FormatMarkdown, true},
		{"named heading stays text", []byte("# Handbook"), "notes.txt", FormatText, true},
		{"unnamed plain", []byte("hello"), " ", FormatText, true},
		{"binary", []byte{0xc3, 0x28}, "x.md", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Detect(tt.raw, tt.file)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
