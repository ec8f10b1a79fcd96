// Package ocr wraps third-party OCR engines behind a small interface so the
// extraction pipeline can recognize text in scanned pages and photographs
// without knowing which engine is installed.
package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/c360studio/semstreams/pkg/retry"
)

// Sentinel errors for OCR operations.
var (
	ErrEngineUnavailable = errors.New("ocr engine unavailable")
	ErrNoText            = errors.New("ocr produced no text")
)

// Engine recognizes text in an image or scanned document.
type Engine interface {
	// Name identifies the engine in logs and provenance.
	Name() string

	// Recognize returns the text found in content.
	Recognize(ctx context.Context, filename string, content []byte) (string, error)
}

// TesseractConfig configures the tesseract command-line engine.
type TesseractConfig struct {
	// Binary is the tesseract executable (default: "tesseract").
	Binary string
	// Language is the tesseract language code (default: "eng").
	Language string
	// Timeout bounds a single recognition call.
	Timeout time.Duration
}

// TesseractEngine runs the external tesseract binary.
type TesseractEngine struct {
	cfg    TesseractConfig
	logger *slog.Logger

	// run is swapped in tests.
	run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewTesseractEngine creates a tesseract-backed engine.
func NewTesseractEngine(cfg TesseractConfig, logger *slog.Logger) *TesseractEngine {
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TesseractEngine{cfg: cfg, logger: logger, run: runCommand}
}

// Name returns the engine name.
func (e *TesseractEngine) Name() string {
	return "tesseract"
}

// Available reports whether the tesseract binary resolves on PATH.
func (e *TesseractEngine) Available() bool {
	_, err := exec.LookPath(e.cfg.Binary)
	return err == nil
}

// Recognize writes content to a temporary file and runs tesseract on it.
// Process failures are retried; an empty result is not.
func (e *TesseractEngine) Recognize(ctx context.Context, filename string, content []byte) (string, error) {
	if !e.Available() {
		return "", fmt.Errorf("%w: %s not found", ErrEngineUnavailable, e.cfg.Binary)
	}

	tmp, err := os.CreateTemp("", "ocr-*"+strings.ToLower(filepath.Ext(filename)))
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}

	var text string
	err = retry.Do(ctx, retry.DefaultConfig(), func() error {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()

		out, err := e.run(callCtx, e.cfg.Binary, tmp.Name(), "stdout", "-l", e.cfg.Language)
		if err != nil {
			e.logger.Warn("OCR attempt failed", "file", filename, "error", err)
			return err
		}
		text = strings.TrimSpace(string(out))
		if text == "" {
			return retry.NonRetryable(ErrNoText)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("tesseract %s: %w", filename, err)
	}

	return text, nil
}

// runCommand executes a command and returns stdout, folding stderr into the error.
func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// StaticEngine returns fixed text per filename. It backs tests and dry runs.
type StaticEngine struct {
	Texts map[string]string
}

// Name returns the engine name.
func (e *StaticEngine) Name() string {
	return "static"
}

// Recognize returns the configured text for the file's base name.
func (e *StaticEngine) Recognize(_ context.Context, filename string, _ []byte) (string, error) {
	text, ok := e.Texts[filepath.Base(filename)]
	if !ok || strings.TrimSpace(text) == "" {
		return "", ErrNoText
	}
	return text, nil
}
