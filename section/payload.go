package section

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/c360studio/reportengine/casefile"
)

// Severity grades a QA flag.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// QAFlag is one quality finding on a payload.
type QAFlag struct {
	Rule     string   `json:"rule"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Provenance records what a payload was built from.
type Provenance struct {
	EvidenceIDs []string   `json:"evidence_ids,omitempty"`
	Toolkit     []string   `json:"toolkit,omitempty"`
	Upstream    map[ID]int `json:"upstream,omitempty"`
}

// Payload is the output of one section renderer.
type Payload struct {
	SectionID     ID                  `json:"section_id"`
	Title         string              `json:"title"`
	Version       int                 `json:"version"`
	Status        Status              `json:"status"`
	Data          map[string]any      `json:"data"`
	Narrative     string              `json:"narrative"`
	QAFlags       []QAFlag            `json:"qa_flags,omitempty"`
	Provenance    Provenance          `json:"provenance"`
	ReportType    casefile.ReportType `json:"report_type,omitempty"`
	Stale         bool                `json:"stale,omitempty"`
	Revision      int                 `json:"revision"`
	RevisionNotes []string            `json:"revision_notes,omitempty"`
	RenderedAt    time.Time           `json:"rendered_at"`
	ApprovedAt    *time.Time          `json:"approved_at,omitempty"`
	ApprovedBy    string              `json:"approved_by,omitempty"`
}

// NewPayload starts a payload for id.
func NewPayload(id ID) *Payload {
	return &Payload{
		SectionID: id,
		Title:     id.Title(),
		Data:      map[string]any{},
		Provenance: Provenance{
			Upstream: map[ID]int{},
		},
	}
}

// Flag adds a QA flag.
func (p *Payload) Flag(rule string, severity Severity, format string, args ...any) {
	p.QAFlags = append(p.QAFlags, QAFlag{Rule: rule, Severity: severity, Message: fmt.Sprintf(format, args...)})
}

// HasErrors reports whether any QA flag has error severity.
func (p *Payload) HasErrors() bool {
	for _, f := range p.QAFlags {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Normalize round-trips Data through JSON so every value is a plain JSON
// type (string, float64, bool, []any, map[string]any).
func (p *Payload) Normalize() error {
	data, err := json.Marshal(p.Data)
	if err != nil {
		return fmt.Errorf("marshal %s data: %w", p.SectionID, err)
	}
	normalized := map[string]any{}
	if err := json.Unmarshal(data, &normalized); err != nil {
		return fmt.Errorf("unmarshal %s data: %w", p.SectionID, err)
	}
	p.Data = normalized
	return nil
}

// Clone returns a deep copy.
func (p *Payload) Clone() *Payload {
	data, err := json.Marshal(p)
	if err != nil {
		c := *p
		return &c
	}
	var c Payload
	if err := json.Unmarshal(data, &c); err != nil {
		c = *p
	}
	return &c
}

// Hash returns the sha256 of the payload's content fields.
func (p *Payload) Hash() string {
	content := struct {
		SectionID  ID                  `json:"section_id"`
		Version    int                 `json:"version"`
		Data       map[string]any      `json:"data"`
		Narrative  string              `json:"narrative"`
		ReportType casefile.ReportType `json:"report_type"`
	}{p.SectionID, p.Version, p.Data, p.Narrative, p.ReportType}
	data, _ := json.Marshal(content)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Summary is the short form of a payload kept in the case bundle.
type Summary struct {
	SectionID  ID                  `json:"section_id"`
	Title      string              `json:"title"`
	Version    int                 `json:"version"`
	ReportType casefile.ReportType `json:"report_type,omitempty"`
	Headline   string              `json:"headline"`
	Evidence   int                 `json:"evidence"`
	QAFlags    int                 `json:"qa_flags"`
	Hash       string              `json:"hash"`
}

// Summarize returns the bundle summary of the payload.
func (p *Payload) Summarize() Summary {
	return Summary{
		SectionID:  p.SectionID,
		Title:      p.Title,
		Version:    p.Version,
		ReportType: p.ReportType,
		Headline:   headline(p.Narrative),
		Evidence:   len(p.Provenance.EvidenceIDs),
		QAFlags:    len(p.QAFlags),
		Hash:       p.Hash(),
	}
}

// headline returns the first prose line of a narrative, cut to 160 runes.
func headline(narrative string) string {
	for _, line := range strings.Split(narrative, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "|") {
			continue
		}
		line = strings.TrimLeft(line, "-* ")
		if r := []rune(line); len(r) > 160 {
			return string(r[:157]) + "..."
		}
		return line
	}
	return ""
}
