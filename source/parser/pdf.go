package parser

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/c360studio/reportengine/source"
	"github.com/c360studio/reportengine/source/ocr"
	"github.com/ledongthuc/pdf"
)

// pageSeparator separates page texts in the extracted body.
const pageSeparator = "\n\n---\n\n"

// PDFParser extracts embedded text from PDF documents. Scanned PDFs carry no
// text layer; for those the configured OCR engine is tried before giving up.
type PDFParser struct {
	engine ocr.Engine
	logger *slog.Logger
}

// NewPDFParser creates a new PDF parser. engine may be nil.
func NewPDFParser(engine ocr.Engine, logger *slog.Logger) *PDFParser {
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFParser{engine: engine, logger: logger}
}

// Parse parses a PDF document and extracts text content.
func (p *PDFParser) Parse(ctx context.Context, filename string, content []byte) (*source.Document, error) {
	reader, err := pdf.NewReader(newBytesReaderAt(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}

	doc := &source.Document{
		ID:       source.GenerateDocID("pdf", filename, content),
		Filename: filepath.Base(filename),
		MimeType: "application/pdf",
		Method:   source.MethodPDF,
	}

	var textBuilder strings.Builder
	numPages := reader.NumPage()
	doc.Pages = numPages
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// Some pages fail on broken fonts; keep the rest.
			doc.Warn("page %d: %v", i, err)
			continue
		}

		if strings.TrimSpace(text) != "" {
			if textBuilder.Len() > 0 {
				textBuilder.WriteString(pageSeparator)
			}
			textBuilder.WriteString(text)
		}
	}

	doc.Body = textBuilder.String()
	if doc.Body == "" {
		p.fallbackToOCR(ctx, filename, content, doc)
	}
	doc.Content = doc.Body

	return doc, nil
}

// fallbackToOCR fills an image-only PDF's body from the OCR engine, or leaves
// a placeholder so the document still shows up in the evidence index.
func (p *PDFParser) fallbackToOCR(ctx context.Context, filename string, content []byte, doc *source.Document) {
	if p.engine != nil {
		text, err := p.engine.Recognize(ctx, filename, content)
		if err == nil {
			doc.Body = text
			doc.Method = source.MethodOCR
			return
		}
		p.logger.Warn("OCR fallback failed", "file", doc.Filename, "engine", p.engine.Name(), "error", err)
		doc.Warn("ocr fallback failed: %v", err)
	}

	doc.Method = source.MethodNone
	doc.Body = fmt.Sprintf("[PDF document with %d pages - no text content extracted]", doc.Pages)
	doc.Warn("no text layer")
}

// CanParse returns true if this parser can handle the given MIME type.
func (p *PDFParser) CanParse(mimeType string) bool {
	return mimeType == "application/pdf"
}

// MimeType returns the primary MIME type for this parser.
func (p *PDFParser) MimeType() string {
	return "application/pdf"
}

// bytesReaderAt implements io.ReaderAt for a byte slice.
type bytesReaderAt struct {
	data []byte
}

func newBytesReaderAt(data []byte) *bytesReaderAt {
	return &bytesReaderAt{data: data}
}

func (r *bytesReaderAt) ReadAt(p []byte, off int64) (n int, err error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset")
	}
	if off >= int64(len(r.data)) {
		return 0, io.EOF
	}
	n = copy(p, r.data[off:])
	if n < len(p) {
		err = io.EOF
	}
	return n, err
}
