package section

import (
	"context"
	"time"

	"github.com/c360studio/reportengine/casefile"
	"github.com/c360studio/reportengine/config"
	"github.com/c360studio/reportengine/locker"
	"github.com/c360studio/reportengine/toolkit"
)

// Input is everything a renderer may read. Upstream holds only approved
// payloads of the section's dependencies.
type Input struct {
	Bundle        *casefile.Bundle
	Upstream      map[ID]*Payload
	Toolkit       toolkit.Results
	Evidence      []*locker.Item
	Texts         map[string]string
	Custody       []locker.Entry
	RevisionNotes []string
	Report        config.ReportConfig
	Now           time.Time
}

// Metadata returns the case metadata.
func (in *Input) Metadata() casefile.Metadata {
	if in.Bundle == nil {
		return casefile.Metadata{}
	}
	return in.Bundle.CaseMetadata
}

// EvidenceFor returns the evidence items classified to id.
func (in *Input) EvidenceFor(id ID) []*locker.Item {
	var out []*locker.Item
	for _, item := range in.Evidence {
		if item.Section == string(id) {
			out = append(out, item)
		}
	}
	return out
}

// Renderer builds one section payload.
type Renderer interface {
	ID() ID
	Render(ctx context.Context, in *Input) (*Payload, error)
}
