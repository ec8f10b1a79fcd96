package gateway

import (
	"time"

	"github.com/c360studio/reportengine/casefile"
	"github.com/c360studio/reportengine/section"
)

// SectionState is the gateway's record of one section.
type SectionState struct {
	ID            section.ID     `json:"id"`
	Status        section.Status `json:"status"`
	Version       int            `json:"version"`
	Revisions     int            `json:"revisions"`
	RevisionNotes []string       `json:"revision_notes,omitempty"`
	Attempts      int            `json:"attempts,omitempty"`
	Stale         bool           `json:"stale,omitempty"`
	QAErrors      int            `json:"qa_errors,omitempty"`
	QAWarnings    int            `json:"qa_warnings,omitempty"`
	Error         string         `json:"error,omitempty"`
	ApprovedBy    string         `json:"approved_by,omitempty"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// State is the persisted gateway state of one case.
type State struct {
	CaseID       string                       `json:"case_id"`
	ReportType   casefile.ReportType          `json:"report_type,omitempty"`
	ToolkitReady bool                         `json:"toolkit_ready"`
	Halted       bool                         `json:"halted"`
	HaltReason   string                       `json:"halt_reason,omitempty"`
	Sections     map[section.ID]*SectionState `json:"sections"`
	Queue        []Signal                     `json:"queue,omitempty"`
	History      []Signal                     `json:"history,omitempty"`
	UpdatedAt    time.Time                    `json:"updated_at"`
}

func newState(caseID string) *State {
	s := &State{CaseID: caseID, Sections: map[section.ID]*SectionState{}}
	s.ensureSections()
	return s
}

// ensureSections adds any section missing from a loaded state.
func (s *State) ensureSections() {
	if s.Sections == nil {
		s.Sections = map[section.ID]*SectionState{}
	}
	for _, id := range section.IDs() {
		if _, ok := s.Sections[id]; !ok {
			s.Sections[id] = &SectionState{ID: id, Status: section.StatusPending}
		}
	}
}

// Snapshot is a point-in-time copy of the gateway state.
type Snapshot struct {
	CaseID       string
	ReportType   casefile.ReportType
	ToolkitReady bool
	Halted       bool
	HaltReason   string
	// Sections are in pipeline order.
	Sections []SectionState
	Pending  int
	History  []Signal
}

// Section returns the state of id.
func (s Snapshot) Section(id section.ID) (SectionState, bool) {
	for _, st := range s.Sections {
		if st.ID == id {
			return st, true
		}
	}
	return SectionState{}, false
}

// Complete reports whether every section is approved and none is stale.
func (s Snapshot) Complete() bool {
	for _, st := range s.Sections {
		if st.Status != section.StatusApproved || st.Stale {
			return false
		}
	}
	return len(s.Sections) > 0
}

// Outstanding lists sections that keep the report from being assembled.
func (s Snapshot) Outstanding() []section.ID {
	var out []section.ID
	for _, st := range s.Sections {
		if st.Status != section.StatusApproved || st.Stale {
			out = append(out, st.ID)
		}
	}
	return out
}

func (s *State) snapshot() Snapshot {
	snap := Snapshot{
		CaseID:       s.CaseID,
		ReportType:   s.ReportType,
		ToolkitReady: s.ToolkitReady,
		Halted:       s.Halted,
		HaltReason:   s.HaltReason,
		Pending:      len(s.Queue),
		History:      append([]Signal(nil), s.History...),
	}
	for _, id := range section.IDs() {
		st := *s.Sections[id]
		st.RevisionNotes = append([]string(nil), st.RevisionNotes...)
		snap.Sections = append(snap.Sections, st)
	}
	return snap
}
