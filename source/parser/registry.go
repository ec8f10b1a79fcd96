// Package parser extracts text from uploaded case documents. Each parser
// handles one family of MIME types; the Registry picks one by extension.
package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/c360studio/reportengine/source"
	"github.com/c360studio/reportengine/source/ocr"
)

// Sentinel errors for parsing.
var (
	ErrNoParser     = errors.New("no parser for file type")
	ErrEmptyContent = errors.New("empty content")
)

// Parser defines the interface for document parsers.
type Parser interface {
	// Parse extracts a document from raw file content.
	Parse(ctx context.Context, filename string, content []byte) (*source.Document, error)

	// CanParse returns true if this parser handles the given MIME type.
	CanParse(mimeType string) bool

	// MimeType returns the primary MIME type for this parser.
	MimeType() string
}

// Registry manages document parsers.
type Registry struct {
	mu      sync.RWMutex
	parsers map[string]Parser // keyed by primary MIME type
}

// NewRegistry creates a registry with the default parsers. The OCR engine may
// be nil, in which case images are stored without text and image-only PDFs
// keep a placeholder body.
func NewRegistry(engine ocr.Engine, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Registry{
		parsers: make(map[string]Parser),
	}

	r.Register(NewTextParser())
	r.Register(NewMarkdownParser())
	r.Register(NewPDFParser(engine, logger))
	r.Register(NewDOCXParser())
	r.Register(NewHTMLParser())
	r.Register(NewImageParser(engine))

	return r
}

// Register adds a parser to the registry.
func (r *Registry) Register(p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsers[p.MimeType()] = p
}

// GetByMimeType returns a parser for the given MIME type.
func (r *Registry) GetByMimeType(mimeType string) Parser {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.parsers[mimeType]; ok {
		return p
	}

	// Deterministic fallback order
	keys := make([]string, 0, len(r.parsers))
	for k := range r.parsers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if r.parsers[k].CanParse(mimeType) {
			return r.parsers[k]
		}
	}

	return nil
}

// GetByExtension returns a parser for a file based on its extension.
func (r *Registry) GetByExtension(filename string) Parser {
	return r.GetByMimeType(MimeTypeFromExtension(filepath.Ext(filename)))
}

// Parse parses a document using the appropriate parser.
func (r *Registry) Parse(ctx context.Context, filename string, content []byte) (*source.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyContent, filepath.Base(filename))
	}

	p := r.GetByExtension(filename)
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoParser, filepath.Ext(filename))
	}

	doc, err := p.Parse(ctx, filename, content)
	if err != nil {
		return nil, err
	}
	if doc.MimeType == "" {
		doc.MimeType = MimeTypeFromExtension(filepath.Ext(filename))
	}
	return doc, nil
}

// ListMimeTypes returns all registered MIME types, sorted.
func (r *Registry) ListMimeTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.parsers))
	for t := range r.parsers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// IsMedia reports whether the MIME type is a photo or video kept as media evidence.
func IsMedia(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/") || strings.HasPrefix(mimeType, "video/")
}

// MimeTypeFromExtension returns the MIME type for a file extension.
func MimeTypeFromExtension(ext string) string {
	switch strings.ToLower(ext) {
	case ".md", ".markdown":
		return "text/markdown"
	case ".txt", ".log", ".text":
		return "text/plain"
	case ".csv":
		return "text/csv"
	case ".html", ".htm":
		return "text/html"
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".bmp":
		return "image/bmp"
	case ".gif":
		return "image/gif"
	case ".mp4":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".avi":
		return "video/x-msvideo"
	default:
		return "application/octet-stream"
	}
}
