package ocr

import (
	"log/slog"

	"github.com/c360studio/reportengine/config"
)

// FromConfig returns the engine named by cfg, or nil when OCR is off.
func FromConfig(cfg config.OCRConfig, logger *slog.Logger) Engine {
	if cfg.Engine != "tesseract" {
		return nil
	}
	return NewTesseractEngine(TesseractConfig{
		Binary:   cfg.Binary,
		Language: cfg.Language,
		Timeout:  cfg.Timeout,
	}, logger)
}
