// Package gateway sequences section rendering, approval and revision, and
// announces every step with a radio-style signal.
package gateway

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/reportengine/section"
)

// Code is a signal code.
type Code string

const (
	// CodeApproved: a section payload was approved and locked.
	CodeApproved Code = "10-4"
	// CodeToolkitReady: toolkit results are stored on the bundle.
	CodeToolkitReady Code = "10-6"
	// CodeSectionComplete: a section finished rendering.
	CodeSectionComplete Code = "10-8"
	// CodeRevisionRequested: a section must be re-rendered.
	CodeRevisionRequested Code = "10-9"
	// CodeHalt: dispatch stops until resumed.
	CodeHalt Code = "10-10"
)

var meanings = map[Code]string{
	CodeApproved:          "approved",
	CodeToolkitReady:      "toolkit ready",
	CodeSectionComplete:   "section complete",
	CodeRevisionRequested: "revision requested",
	CodeHalt:              "halt",
}

// Codes returns every signal code.
func Codes() []Code {
	return []Code{CodeApproved, CodeToolkitReady, CodeSectionComplete, CodeRevisionRequested, CodeHalt}
}

// IsValid returns true if the code is known.
func (c Code) IsValid() bool {
	_, ok := meanings[c]
	return ok
}

// Meaning returns the plain-language meaning of the code.
func (c Code) Meaning() string {
	if m, ok := meanings[c]; ok {
		return m
	}
	return "unknown"
}

// ParseCode parses "10-8" or "8".
func ParseCode(s string) (Code, error) {
	c := Code(s)
	if !c.IsValid() {
		c = Code("10-" + s)
	}
	if !c.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownSignal, s)
	}
	return c, nil
}

// Signal is one event in the gateway protocol.
type Signal struct {
	ID      string           `json:"id"`
	Code    Code             `json:"code"`
	Section section.ID       `json:"section,omitempty"`
	Payload *section.Summary `json:"payload,omitempty"`
	Actor   string           `json:"actor,omitempty"`
	Note    string           `json:"note,omitempty"`
	At      time.Time        `json:"at"`
}

func newSignal(code Code, id section.ID, actor, note string, at time.Time) Signal {
	return Signal{
		ID:      uuid.New().String(),
		Code:    code,
		Section: id,
		Actor:   actor,
		Note:    note,
		At:      at,
	}
}

// String renders the signal for logs and listings.
func (s Signal) String() string {
	out := fmt.Sprintf("%s (%s)", s.Code, s.Code.Meaning())
	if s.Section != "" {
		out += " " + s.Section.Label()
	}
	if s.Note != "" {
		out += ": " + s.Note
	}
	return out
}
