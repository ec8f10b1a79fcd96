package parser

import (
	"context"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/c360studio/reportengine/source"
	"github.com/gogs/chardet"
	"golang.org/x/text/encoding/htmlindex"
)

// minDetectConfidence is the chardet confidence below which we keep the bytes as-is.
const minDetectConfidence = 40

// TextParser handles plain text, field logs and CSV exports. Investigator
// notes often come from older tools in Windows-1252 or Latin-1, so non-UTF-8
// input is detected and decoded.
type TextParser struct {
	detector *chardet.Detector
}

// NewTextParser creates a new plain text parser.
func NewTextParser() *TextParser {
	return &TextParser{detector: chardet.NewTextDetector()}
}

// Parse decodes the content to UTF-8 and returns it as the document body.
func (p *TextParser) Parse(_ context.Context, filename string, content []byte) (*source.Document, error) {
	doc := &source.Document{
		ID:       source.GenerateDocID("text", filename, content),
		Filename: filepath.Base(filename),
		MimeType: MimeTypeFromExtension(filepath.Ext(filename)),
		Method:   source.MethodText,
	}

	text, warning := p.decode(content)
	if warning != "" {
		doc.Warn("%s", warning)
	}

	text = normalizeNewlines(text)
	doc.Content = text
	doc.Body = text

	return doc, nil
}

// decode converts content to a UTF-8 string.
func (p *TextParser) decode(content []byte) (string, string) {
	if utf8.Valid(content) {
		return strings.TrimPrefix(string(content), "\ufeff"), ""
	}

	result, err := p.detector.DetectBest(content)
	if err != nil || result == nil || result.Confidence < minDetectConfidence {
		return strings.ToValidUTF8(string(content), "\ufffd"), "unknown text encoding; invalid bytes replaced"
	}

	enc, err := htmlindex.Get(result.Charset)
	if err != nil {
		return strings.ToValidUTF8(string(content), "\ufffd"), "unsupported charset " + result.Charset
	}

	decoded, err := enc.NewDecoder().Bytes(content)
	if err != nil {
		return strings.ToValidUTF8(string(content), "\ufffd"), "decode " + result.Charset + " failed"
	}

	return string(decoded), ""
}

// CanParse returns true if this parser can handle the given MIME type.
func (p *TextParser) CanParse(mimeType string) bool {
	switch mimeType {
	case "text/plain", "text/csv":
		return true
	default:
		return false
	}
}

// MimeType returns the primary MIME type for this parser.
func (p *TextParser) MimeType() string {
	return "text/plain"
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
