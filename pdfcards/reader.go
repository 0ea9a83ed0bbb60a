// Package pdfcards turns PDF documents into flashcard drafts by extracting
// text page by page and asking a model to write question/answer pairs.
package pdfcards

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Reader yields the text of a document one page at a time.
type Reader interface {
	NumPages() int
	PageText(page int) (string, error)
	Close() error
}

// pdfReader reads pages through ledongthuc/pdf.
type pdfReader struct {
	file   interface{ Close() error }
	reader *pdf.Reader
}

// OpenPDF opens a PDF file for page extraction.
func OpenPDF(path string) (Reader, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	return &pdfReader{file: file, reader: reader}, nil
}

func (r *pdfReader) NumPages() int {
	return r.reader.NumPage()
}

// PageText extracts the plain text of a page. Pages are 1-based. Pages with
// no content dictionary yield an empty string.
func (r *pdfReader) PageText(page int) (string, error) {
	p := r.reader.Page(page)
	if p.V.IsNull() {
		return "", nil
	}

	text, err := p.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("failed to extract text from page %d: %w", page, err)
	}
	return strings.TrimSpace(text), nil
}

func (r *pdfReader) Close() error {
	return r.file.Close()
}
