// Package toolkit runs deterministic calculations over a case before any
// section is rendered: document metadata, surveillance timeline, mileage,
// subject identity and billing.
package toolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360studio/reportengine/casefile"
	"github.com/c360studio/reportengine/config"
)

// Tool names.
const (
	ToolMetadata = "metadata"
	ToolTimeline = "timeline"
	ToolMileage  = "mileage"
	ToolIdentity = "identity"
	ToolBilling  = "billing"
)

// Document is the toolkit's view of one evidence item.
type Document struct {
	ItemID   string    `json:"item_id"`
	Exhibit  string    `json:"exhibit"`
	Filename string    `json:"filename"`
	Section  string    `json:"section"`
	Kind     string    `json:"kind"`
	MimeType string    `json:"mime_type"`
	Method   string    `json:"method"`
	Text     string    `json:"-"`
	AddedAt  time.Time `json:"added_at"`
}

// Input is everything a tool may read.
type Input struct {
	Metadata  casefile.Metadata
	Documents []Document
	Config    config.ToolkitConfig
	// Results holds the results of tools that already ran.
	Results Results
}

// Tool is one deterministic helper.
type Tool interface {
	Name() string
	Run(ctx context.Context, in *Input) (any, error)
}

// Result is the outcome of one tool run.
type Result struct {
	Tool    string        `json:"tool"`
	OK      bool          `json:"ok"`
	Error   string        `json:"error,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
	Data    any           `json:"data,omitempty"`
}

// Results are keyed by tool name.
type Results map[string]Result

// Engine runs tools in registration order.
type Engine struct {
	tools    []Tool
	logger   *slog.Logger
	observer func(Result)
}

// NewEngine creates an engine with the given tools.
func NewEngine(logger *slog.Logger, tools ...Tool) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{tools: tools, logger: logger}
}

// DefaultEngine returns an engine with every built-in tool. Billing runs
// last because it reads the timeline and mileage results.
func DefaultEngine(logger *slog.Logger) *Engine {
	return NewEngine(logger,
		MetadataTool{},
		TimelineTool{},
		MileageTool{},
		IdentityTool{},
		BillingTool{},
	)
}

// OnResult sets a callback invoked after every tool run.
func (e *Engine) OnResult(fn func(Result)) {
	e.observer = fn
}

// Tools returns the registered tool names in run order.
func (e *Engine) Tools() []string {
	names := make([]string, len(e.tools))
	for i, t := range e.tools {
		names[i] = t.Name()
	}
	return names
}

// Run executes every tool. A failing tool is recorded in its Result and
// does not stop the others; only context cancellation aborts the run.
func (e *Engine) Run(ctx context.Context, in *Input) (Results, error) {
	results := Results{}
	in.Results = results

	for _, tool := range e.tools {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		start := time.Now()
		data, err := tool.Run(ctx, in)
		r := Result{Tool: tool.Name(), Elapsed: time.Since(start)}
		if err != nil {
			r.Error = err.Error()
			e.logger.Warn("Toolkit tool failed", "tool", tool.Name(), "error", err)
		} else {
			r.OK = true
			r.Data = data
			e.logger.Debug("Toolkit tool finished", "tool", tool.Name(), "elapsed", r.Elapsed)
		}
		results[tool.Name()] = r
		if e.observer != nil {
			e.observer(r)
		}
	}

	return results, nil
}

// AsMap converts results for storage in the case bundle.
func (r Results) AsMap() map[string]any {
	out := make(map[string]any, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// newData returns an empty typed result for a known tool.
func newData(tool string) any {
	switch tool {
	case ToolMetadata:
		return &MetadataResult{}
	case ToolTimeline:
		return &TimelineResult{}
	case ToolMileage:
		return &MileageResult{}
	case ToolIdentity:
		return &IdentityResult{}
	case ToolBilling:
		return &BillingResult{}
	}
	return nil
}

// LoadResults decodes the toolkit results stored in a bundle back into
// their typed forms. Unknown tools keep their raw JSON data.
func LoadResults(b *casefile.Bundle) (Results, error) {
	results := Results{}
	for _, name := range b.Keys(casefile.KindToolkitResults) {
		var raw struct {
			Tool    string          `json:"tool"`
			OK      bool            `json:"ok"`
			Error   string          `json:"error"`
			Elapsed time.Duration   `json:"elapsed"`
			Data    json.RawMessage `json:"data"`
		}
		if err := b.Get(casefile.KindToolkitResults, name, &raw); err != nil {
			return nil, err
		}

		r := Result{Tool: raw.Tool, OK: raw.OK, Error: raw.Error, Elapsed: raw.Elapsed}
		if len(raw.Data) > 0 && string(raw.Data) != "null" {
			data := newData(name)
			if data == nil {
				r.Data = raw.Data
			} else {
				if err := json.Unmarshal(raw.Data, data); err != nil {
					return nil, fmt.Errorf("decode toolkit result %s: %w", name, err)
				}
				r.Data = data
			}
		}
		results[name] = r
	}
	return results, nil
}

// Metadata returns the metadata result, or nil.
func (r Results) Metadata() *MetadataResult {
	v, _ := r[ToolMetadata].Data.(*MetadataResult)
	return v
}

// Timeline returns the timeline result, or nil.
func (r Results) Timeline() *TimelineResult {
	v, _ := r[ToolTimeline].Data.(*TimelineResult)
	return v
}

// Mileage returns the mileage result, or nil.
func (r Results) Mileage() *MileageResult {
	v, _ := r[ToolMileage].Data.(*MileageResult)
	return v
}

// Identity returns the identity result, or nil.
func (r Results) Identity() *IdentityResult {
	v, _ := r[ToolIdentity].Data.(*IdentityResult)
	return v
}

// Billing returns the billing result, or nil.
func (r Results) Billing() *BillingResult {
	v, _ := r[ToolBilling].Data.(*BillingResult)
	return v
}
