package parser

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/c360studio/reportengine/source"
	"github.com/c360studio/reportengine/source/ocr"
)

// ImageParser recognizes text in photographs and scans. Media is evidence in
// its own right, so a missing engine or an OCR failure is a warning, not an
// error.
type ImageParser struct {
	engine ocr.Engine
}

// NewImageParser creates an image parser. engine may be nil.
func NewImageParser(engine ocr.Engine) *ImageParser {
	return &ImageParser{engine: engine}
}

// Parse runs OCR over the image.
func (p *ImageParser) Parse(ctx context.Context, filename string, content []byte) (*source.Document, error) {
	doc := &source.Document{
		ID:       source.GenerateDocID("img", filename, content),
		Filename: filepath.Base(filename),
		MimeType: MimeTypeFromExtension(filepath.Ext(filename)),
		Method:   source.MethodNone,
	}

	if strings.HasPrefix(doc.MimeType, "video/") {
		return doc, nil
	}

	if p.engine == nil {
		doc.Warn("no OCR engine configured")
		return doc, nil
	}

	text, err := p.engine.Recognize(ctx, filename, content)
	if err != nil {
		doc.Warn("ocr (%s): %v", p.engine.Name(), err)
		return doc, nil
	}

	doc.Body = strings.TrimSpace(text)
	doc.Content = doc.Body
	doc.Method = source.MethodOCR
	return doc, nil
}

// CanParse returns true for any image or video MIME type.
func (p *ImageParser) CanParse(mimeType string) bool {
	return IsMedia(mimeType)
}

// MimeType returns the primary MIME type for this parser.
func (p *ImageParser) MimeType() string {
	return "image/jpeg"
}
