package parser

import (
	"context"
	"io"
	"testing"
)

func TestPDFParser_MimeType(t *testing.T) {
	p := NewPDFParser(nil, nil)
	if p.MimeType() != "application/pdf" {
		t.Errorf("expected application/pdf, got %s", p.MimeType())
	}
}

func TestPDFParser_CanParse(t *testing.T) {
	p := NewPDFParser(nil, nil)

	tests := []struct {
		mimeType string
		want     bool
	}{
		{"application/pdf", true},
		{"text/plain", false},
		{"image/png", false},
	}

	for _, tt := range tests {
		t.Run(tt.mimeType, func(t *testing.T) {
			got := p.CanParse(tt.mimeType)
			if got != tt.want {
				t.Errorf("CanParse(%s) = %v, want %v", tt.mimeType, got, tt.want)
			}
		})
	}
}

func TestPDFParser_ParseInvalidPDF(t *testing.T) {
	p := NewPDFParser(nil, nil)

	_, err := p.Parse(context.Background(), "test.pdf", []byte("not a pdf file"))
	if err == nil {
		t.Error("expected error for invalid PDF content")
	}
}

func TestBytesReaderAt(t *testing.T) {
	r := newBytesReaderAt([]byte("0123456789"))

	buf := make([]byte, 4)
	n, err := r.ReadAt(buf, 2)
	if err != nil || n != 4 || string(buf) != "2345" {
		t.Fatalf("ReadAt(2) = %d, %v, %q", n, err, buf)
	}

	n, err = r.ReadAt(buf, 8)
	if err != io.EOF || n != 2 {
		t.Fatalf("ReadAt(8) = %d, %v; want 2, EOF", n, err)
	}

	if _, err := r.ReadAt(buf, -1); err == nil {
		t.Fatal("expected error for negative offset")
	}
}

// Note: parsing a real PDF needs a fixture file; the OCR fallback is covered
// through the image parser, which shares the engine contract.
