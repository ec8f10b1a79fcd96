// Package intake takes uploaded files into a case: each file is stored in
// the evidence locker, its text extracted and the item classified to a
// report section.
package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/c360studio/reportengine/config"
	"github.com/c360studio/reportengine/locker"
	"github.com/c360studio/reportengine/metrics"
	"github.com/c360studio/reportengine/source"
	"github.com/c360studio/reportengine/source/parser"
)

// ErrCaseMismatch is returned when the locker belongs to another case.
var ErrCaseMismatch = errors.New("locker belongs to a different case")

// Options configures a Processor.
type Options struct {
	Locker  *locker.Locker
	Parsers *parser.Registry
	Config  config.IntakeConfig
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Processor runs intake batches against one case locker.
type Processor struct {
	locker  *locker.Locker
	parsers *parser.Registry
	filter  *Filter
	workers int
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewProcessor creates a processor.
func NewProcessor(opts Options) (*Processor, error) {
	if opts.Locker == nil {
		return nil, errors.New("locker is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Parsers == nil {
		opts.Parsers = parser.NewRegistry(nil, opts.Logger)
	}
	filter, err := NewFilter(opts.Config.Include, opts.Config.Exclude)
	if err != nil {
		return nil, err
	}
	workers := opts.Config.Workers
	if workers < 1 {
		workers = 1
	}
	return &Processor{
		locker:  opts.Locker,
		parsers: opts.Parsers,
		filter:  filter,
		workers: workers,
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}, nil
}

// Filter returns the processor's file filter.
func (p *Processor) Filter() *Filter { return p.filter }

// FileError records why one file was not taken in.
type FileError struct {
	Path string
	Err  error
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s: %v", filepath.Base(e.Path), e.Err)
}

func (e FileError) Unwrap() error { return e.Err }

// Result summarizes an intake batch.
type Result struct {
	// Processed counts files stored, extracted and classified.
	Processed int
	// Failed counts files that could not be read or extracted.
	Failed int
	// Duplicates counts files whose content is already in the locker.
	Duplicates int
	// Items are the stored items in path order, failures included.
	Items  []*locker.Item
	Errors []FileError
}

type extraction struct {
	path     string
	content  []byte
	doc      *source.Document
	readErr  error
	parseErr error
}

// Process takes paths into the case. Directories are expanded through the
// intake filter. Text extraction runs in parallel; locker writes are made
// one file at a time in path order. A failed file does not stop the batch.
func (p *Processor) Process(ctx context.Context, caseID string, paths []string, actor string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if caseID != p.locker.CaseID() {
		return nil, fmt.Errorf("%w: %s", ErrCaseMismatch, caseID)
	}
	files, err := p.filter.Expand(paths)
	if err != nil {
		return nil, err
	}

	extracted := make([]extraction, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			extracted[i] = p.extract(gctx, path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{}
	for _, x := range extracted {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		p.take(ctx, x, actor, res)
	}

	p.logger.Info("Intake batch complete",
		"case", caseID,
		"files", len(files),
		"processed", res.Processed,
		"failed", res.Failed,
		"duplicates", res.Duplicates)
	return res, nil
}

func (p *Processor) extract(ctx context.Context, path string) extraction {
	x := extraction{path: path}
	x.content, x.readErr = os.ReadFile(path)
	if x.readErr != nil {
		return x
	}
	x.doc, x.parseErr = p.parsers.Parse(ctx, path, x.content)
	return x
}

// take stores one extracted file and records the outcome on res.
func (p *Processor) take(ctx context.Context, x extraction, actor string, res *Result) {
	fail := func(err error) {
		res.Failed++
		res.Errors = append(res.Errors, FileError{Path: x.path, Err: err})
		p.metrics.DocumentProcessed("failed", "")
		p.logger.Warn("Intake failed", "file", filepath.Base(x.path), "error", err)
	}

	if x.readErr != nil {
		fail(x.readErr)
		return
	}

	item, err := p.locker.Store(ctx, x.path, x.content, actor)
	if errors.Is(err, locker.ErrDuplicateItem) {
		res.Duplicates++
		res.Errors = append(res.Errors, FileError{Path: x.path, Err: err})
		p.metrics.DocumentProcessed("duplicate", "")
		return
	}
	if err != nil {
		fail(err)
		return
	}

	if x.parseErr != nil {
		if failed, markErr := p.locker.MarkFailed(ctx, item.ID, x.parseErr); markErr == nil {
			item = failed
		}
		res.Items = append(res.Items, item)
		fail(x.parseErr)
		return
	}

	if _, err := p.locker.AttachText(ctx, item.ID, x.doc, actor); err != nil {
		res.Items = append(res.Items, item)
		fail(err)
		return
	}
	item, err = p.locker.Classify(ctx, item.ID, actor)
	if err != nil {
		fail(err)
		return
	}

	res.Processed++
	res.Items = append(res.Items, item)
	p.metrics.DocumentProcessed("processed", string(x.doc.Method))
	p.logger.Debug("Evidence taken in",
		"file", item.Filename,
		"exhibit", item.Exhibit,
		"section", item.Section,
		"method", x.doc.Method)
}
