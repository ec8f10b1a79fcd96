package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/c360studio/reportengine/source"
)

const docxMimeType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// maxDocumentXML bounds the decompressed size of word/document.xml.
const maxDocumentXML = 64 << 20

// DOCXParser extracts paragraph text from Word documents.
type DOCXParser struct{}

// NewDOCXParser creates a new DOCX parser.
func NewDOCXParser() *DOCXParser {
	return &DOCXParser{}
}

// Parse reads word/document.xml from the container and flattens its runs.
func (p *DOCXParser) Parse(_ context.Context, filename string, content []byte) (*source.Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open DOCX: %w", err)
	}

	var body *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			body = f
			break
		}
	}
	if body == nil {
		return nil, errors.New("open DOCX: word/document.xml missing")
	}

	rc, err := body.Open()
	if err != nil {
		return nil, fmt.Errorf("open document.xml: %w", err)
	}
	defer rc.Close()

	text, err := flattenWordXML(io.LimitReader(rc, maxDocumentXML))
	if err != nil {
		return nil, fmt.Errorf("read document.xml: %w", err)
	}

	return &source.Document{
		ID:       source.GenerateDocID("docx", filename, content),
		Filename: filepath.Base(filename),
		MimeType: docxMimeType,
		Content:  text,
		Body:     text,
		Method:   source.MethodDOCX,
	}, nil
}

// flattenWordXML walks WordprocessingML tokens: w:t carries text, w:p ends a
// paragraph, w:tab and w:br are whitespace.
func flattenWordXML(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var sb strings.Builder
	inText := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				sb.WriteString("\t")
			case "br", "cr":
				sb.WriteString("\n")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}

	return strings.TrimSpace(sb.String()), nil
}

// CanParse returns true if this parser can handle the given MIME type.
func (p *DOCXParser) CanParse(mimeType string) bool {
	return mimeType == docxMimeType
}

// MimeType returns the primary MIME type for this parser.
func (p *DOCXParser) MimeType() string {
	return docxMimeType
}
