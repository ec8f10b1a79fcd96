package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"
	"unicode/utf8"

	"github.com/c360studio/reportengine/source"
	"github.com/c360studio/reportengine/source/ocr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextParser_Parse(t *testing.T) {
	p := NewTextParser()

	t.Run("utf-8 with BOM and CRLF", func(t *testing.T) {
		content := []byte("\ufeff03/01/2024 08:15 - Arrived on site\r\n03/01/2024 09:02 - Subject departed\r\n")
		doc, err := p.Parse(context.Background(), "field_log.txt", content)
		require.NoError(t, err)

		assert.Equal(t, source.MethodText, doc.Method)
		assert.Equal(t, "text/plain", doc.MimeType)
		assert.Equal(t, "03/01/2024 08:15 - Arrived on site\n03/01/2024 09:02 - Subject departed\n", doc.Body)
		assert.Empty(t, doc.Warnings)
	})

	t.Run("legacy 8-bit encoding decodes to valid UTF-8", func(t *testing.T) {
		// "Rapport de surveillance: le sujet a quitté la résidence" in ISO-8859-1
		latin1 := []byte("Rapport de surveillance: le sujet a quitt\xe9 la r\xe9sidence \xe0 8h15. " +
			"Le v\xe9hicule \xe9tait gar\xe9 devant l'\xe9glise.")
		doc, err := p.Parse(context.Background(), "notes.txt", latin1)
		require.NoError(t, err)

		assert.True(t, utf8.ValidString(doc.Body))
		assert.Contains(t, doc.Body, "Rapport de surveillance")
	})
}

func TestMarkdownParser_Parse(t *testing.T) {
	p := NewMarkdownParser()

	t.Run("title from heading", func(t *testing.T) {
		content := "# Retainer Agreement\n\nScope: surveillance of claimant.\n"
		doc, err := p.Parse(context.Background(), "agreement.md", []byte(content))
		require.NoError(t, err)

		assert.Equal(t, "Retainer Agreement", doc.Title)
		assert.Equal(t, content, doc.Body)
	})

	t.Run("frontmatter stripped", func(t *testing.T) {
		content := "---\ntitle: Intake Memo\nauthor: J. Reyes\n---\n# Ignored Heading\n\nBody text.\n"
		doc, err := p.Parse(context.Background(), "memo.md", []byte(content))
		require.NoError(t, err)

		assert.Equal(t, "Intake Memo", doc.Title)
		assert.Equal(t, "# Ignored Heading\n\nBody text.\n", doc.Body)
		assert.Equal(t, content, doc.Content)
	})

	t.Run("unterminated frontmatter kept as body", func(t *testing.T) {
		content := "---\ntitle: Broken\n\nNo closing delimiter.\n"
		doc, err := p.Parse(context.Background(), "broken.md", []byte(content))
		require.NoError(t, err)

		assert.Equal(t, content, doc.Body)
		assert.Len(t, doc.Warnings, 1)
	})
}

func TestDOCXParser_Parse(t *testing.T) {
	documentXML := `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Claimant:</w:t></w:r><w:r><w:tab/><w:t>Dana Whitfield</w:t></w:r></w:p>
    <w:p><w:r><w:t xml:space="preserve">Objective: verify </w:t></w:r><w:r><w:t>activity level.</w:t></w:r></w:p>
  </w:body>
</w:document>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	doc, err := NewDOCXParser().Parse(context.Background(), "assignment.docx", buf.Bytes())
	require.NoError(t, err)

	assert.Equal(t, source.MethodDOCX, doc.Method)
	assert.Equal(t, "Claimant:\tDana Whitfield\nObjective: verify activity level.", doc.Body)

	_, err = NewDOCXParser().Parse(context.Background(), "bad.docx", []byte("plain text"))
	assert.Error(t, err)
}

func TestHTMLParser_Parse(t *testing.T) {
	page := `<html><head><title>Public Profile</title></head>
<body>
<nav><a href="/">Home</a></nav>
<article>
<h1>Dana Whitfield</h1>
<p>Posted photos from a softball tournament held on March 2, 2024 in Riverside.
The subject is shown pitching in several games throughout the afternoon.</p>
<p>Comments mention the team finished second overall after four games.</p>
</article>
</body></html>`

	doc, err := NewHTMLParser().Parse(context.Background(), "profile.html", []byte(page))
	require.NoError(t, err)

	assert.Equal(t, source.MethodHTML, doc.Method)
	assert.NotEmpty(t, doc.Title)
	assert.Contains(t, doc.Body, "softball tournament")
	assert.NotContains(t, doc.Body, "<p>")
}

func TestExtractHTMLTitle(t *testing.T) {
	assert.Equal(t, "Docket Search", extractHTMLTitle([]byte("<html><head><title> Docket Search </title></head></html>")))
	assert.Equal(t, "", extractHTMLTitle([]byte("<p>no title</p>")))
}

func TestImageParser_Parse(t *testing.T) {
	t.Run("with engine", func(t *testing.T) {
		engine := &ocr.StaticEngine{Texts: map[string]string{"receipt.jpg": " Fuel $48.20 "}}
		doc, err := NewImageParser(engine).Parse(context.Background(), "receipt.jpg", []byte{1})
		require.NoError(t, err)

		assert.Equal(t, source.MethodOCR, doc.Method)
		assert.Equal(t, "Fuel $48.20", doc.Body)
	})

	t.Run("without engine", func(t *testing.T) {
		doc, err := NewImageParser(nil).Parse(context.Background(), "IMG_0042.png", []byte{1})
		require.NoError(t, err)

		assert.Equal(t, source.MethodNone, doc.Method)
		assert.False(t, doc.HasText())
		assert.Equal(t, []string{"no OCR engine configured"}, doc.Warnings)
	})

	t.Run("engine failure is a warning", func(t *testing.T) {
		doc, err := NewImageParser(&ocr.StaticEngine{}).Parse(context.Background(), "blank.png", []byte{1})
		require.NoError(t, err)

		assert.Equal(t, source.MethodNone, doc.Method)
		assert.Len(t, doc.Warnings, 1)
	})

	t.Run("video skips OCR", func(t *testing.T) {
		doc, err := NewImageParser(nil).Parse(context.Background(), "clip.mp4", []byte{1})
		require.NoError(t, err)

		assert.Equal(t, "video/mp4", doc.MimeType)
		assert.Empty(t, doc.Warnings)
	})
}
