package ocr

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/reportengine/config"
)

func TestTesseractEngine_Recognize(t *testing.T) {
	// "sh" stands in for the binary so Available passes; run is faked.
	engine := NewTesseractEngine(TesseractConfig{Binary: "sh"}, nil)

	var gotArgs []string
	engine.run = func(_ context.Context, name string, args ...string) ([]byte, error) {
		gotArgs = append([]string{name}, args...)
		return []byte("  Plate 7XYZ123 observed\n"), nil
	}

	text, err := engine.Recognize(context.Background(), "photo_001.JPG", []byte{0xff, 0xd8})
	require.NoError(t, err)
	assert.Equal(t, "Plate 7XYZ123 observed", text)
	require.Len(t, gotArgs, 5)
	assert.Equal(t, "sh", gotArgs[0])
	assert.Equal(t, "stdout", gotArgs[2])
	assert.Equal(t, []string{"-l", "eng"}, gotArgs[3:])
}

func TestTesseractEngine_EmptyResultNotRetried(t *testing.T) {
	engine := NewTesseractEngine(TesseractConfig{Binary: "sh"}, nil)

	calls := 0
	engine.run = func(context.Context, string, ...string) ([]byte, error) {
		calls++
		return []byte("   "), nil
	}

	_, err := engine.Recognize(context.Background(), "blank.png", []byte("x"))
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestTesseractEngine_Unavailable(t *testing.T) {
	engine := NewTesseractEngine(TesseractConfig{Binary: "definitely-not-a-real-ocr-binary"}, nil)

	assert.False(t, engine.Available())
	_, err := engine.Recognize(context.Background(), "scan.png", []byte("x"))
	assert.True(t, errors.Is(err, ErrEngineUnavailable))
}

func TestStaticEngine(t *testing.T) {
	engine := &StaticEngine{Texts: map[string]string{"scan.png": "Invoice #42"}}

	text, err := engine.Recognize(context.Background(), "/tmp/uploads/scan.png", nil)
	require.NoError(t, err)
	assert.Equal(t, "Invoice #42", text)

	_, err = engine.Recognize(context.Background(), "other.png", nil)
	assert.ErrorIs(t, err, ErrNoText)
}

func TestFromConfig(t *testing.T) {
	assert.Nil(t, FromConfig(config.OCRConfig{Engine: "none"}, nil))

	engine := FromConfig(config.OCRConfig{Engine: "tesseract", Binary: "/opt/tesseract/bin/tesseract"}, nil)
	require.NotNil(t, engine)
	tess, ok := engine.(*TesseractEngine)
	require.True(t, ok)
	assert.Equal(t, "/opt/tesseract/bin/tesseract", tess.cfg.Binary)
	assert.Equal(t, "eng", tess.cfg.Language)
}
