package extract

import (
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// pageSource is the part of a fitz document the extractor reads.
type pageSource interface {
	NumPage() int
	Text(pageNumber int) (string, error)
	Close() error
}

func openFitz(raw []byte) (pageSource, error) {
	doc, err := fitz.NewFromMemory(raw)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// extractPDF concatenates page text in page order, one newline between
// pages. Pages that fail or hold no text are skipped.
func (e *Extractor) extractPDF(raw []byte) (string, int, error) {
	doc, err := e.openPDF(raw)
	if err != nil {
		return "", 0, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	var pages []string
	for i := 0; i < doc.NumPage(); i++ {
		text, err := doc.Text(i)
		if err != nil {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}

	return strings.Join(pages, "\n"), len(pages), nil
}
