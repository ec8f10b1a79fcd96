// Package source provides the document model shared by the extraction
// pipeline: what an uploaded file looked like once its text was pulled out.
package source

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
)

// Method records how the text of a document was obtained.
type Method string

const (
	// MethodText indicates the file was already text (plain, markdown, csv, logs).
	MethodText Method = "text"
	// MethodPDF indicates text embedded in a PDF was extracted.
	MethodPDF Method = "pdf"
	// MethodDOCX indicates text was read from a Word document.
	MethodDOCX Method = "docx"
	// MethodHTML indicates readable content was extracted from HTML.
	MethodHTML Method = "html"
	// MethodOCR indicates text was recognized by an OCR engine.
	MethodOCR Method = "ocr"
	// MethodNone indicates no text could be obtained (media kept as evidence only).
	MethodNone Method = "none"
)

// Document represents a parsed document with its content and metadata.
type Document struct {
	// ID is the document identifier derived from filename and content hash.
	ID string `json:"id"`

	// Filename is the original base filename.
	Filename string `json:"filename"`

	// MimeType is the detected MIME type.
	MimeType string `json:"mime_type"`

	// Title is the document title when one could be determined.
	Title string `json:"title,omitempty"`

	// Content is the raw decoded content (UTF-8).
	Content string `json:"content"`

	// Body is the extracted text used downstream.
	Body string `json:"body"`

	// Pages is the page count for paginated formats.
	Pages int `json:"pages,omitempty"`

	// Method records how Body was produced.
	Method Method `json:"method"`

	// Warnings collects non-fatal extraction problems.
	Warnings []string `json:"warnings,omitempty"`
}

// HasText reports whether any usable text was extracted.
func (d *Document) HasText() bool {
	return strings.TrimSpace(d.Body) != ""
}

// Warn records a non-fatal extraction warning.
func (d *Document) Warn(format string, args ...any) {
	d.Warnings = append(d.Warnings, fmt.Sprintf(format, args...))
}

// ContentHash computes a SHA256 hash of the content.
func ContentHash(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}

// GenerateDocID creates a stable document ID from a prefix, filename and content hash.
func GenerateDocID(prefix, filename string, content []byte) string {
	base := filepath.Base(filename)
	name := sanitizeID(strings.TrimSuffix(base, filepath.Ext(base)))

	// 12 hex chars is plenty within a single case.
	shortHash := ContentHash(content)[:12]

	return fmt.Sprintf("doc.%s.%s.%s", prefix, name, shortHash)
}

// sanitizeID makes a string safe for use as an ID segment.
func sanitizeID(s string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == '-' || r == '_' || r == ' ':
			sb.WriteRune('-')
		}
	}
	return sb.String()
}
