// Package casefile holds case metadata, the additive case bundle and the
// on-disk workspace layout under .reportengine/cases/<case-id>/.
package casefile

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ReportType classifies the report as a whole. Only section 1 decides it.
type ReportType string

const (
	ReportTypeSurveillance  ReportType = "surveillance"
	ReportTypeInvestigative ReportType = "investigative"
	ReportTypeHybrid        ReportType = "hybrid"
)

// IsValid reports whether the type is one of the known report types.
func (t ReportType) IsValid() bool {
	switch t {
	case ReportTypeSurveillance, ReportTypeInvestigative, ReportTypeHybrid:
		return true
	}
	return false
}

// ParseReportType parses a report type, accepting any case.
func ParseReportType(s string) (ReportType, error) {
	t := ReportType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidReportType, s)
	}
	return t, nil
}

// ErrInvalidReportType is returned for unknown report types.
var ErrInvalidReportType = errors.New("invalid report type")

// Subject describes the person under investigation.
type Subject struct {
	Name     string   `json:"name"`
	Aliases  []string `json:"aliases,omitempty"`
	Address  string   `json:"address,omitempty"`
	DOB      string   `json:"dob,omitempty"`
	Vehicles []string `json:"vehicles,omitempty"`
}

// Trip is a mileage entry recorded against the case.
type Trip struct {
	Date    string  `json:"date"`
	From    string  `json:"from,omitempty"`
	To      string  `json:"to,omitempty"`
	Miles   float64 `json:"miles"`
	Purpose string  `json:"purpose,omitempty"`
}

// Expense is a flat billable cost such as parking or records fees.
type Expense struct {
	Date        string `json:"date,omitempty"`
	Description string `json:"description"`
	AmountCents int64  `json:"amount_cents"`
}

// Metadata describes a case: who asked for it, who works it and who it is about.
type Metadata struct {
	CaseID         string     `json:"case_id"`
	Title          string     `json:"title"`
	Client         string     `json:"client,omitempty"`
	ClientContact  string     `json:"client_contact,omitempty"`
	Agency         string     `json:"agency,omitempty"`
	Investigator   string     `json:"investigator,omitempty"`
	License        string     `json:"license,omitempty"`
	Subject        Subject    `json:"subject"`
	Objectives     []string   `json:"objectives,omitempty"`
	AssignmentDate string     `json:"assignment_date,omitempty"`
	ReportDate     string     `json:"report_date,omitempty"`
	ReportTypeHint ReportType `json:"report_type_hint,omitempty"`

	// Rates override the configured toolkit defaults when non-zero.
	HourlyRateCents  int64 `json:"hourly_rate_cents,omitempty"`
	MileageRateCents int64 `json:"mileage_rate_cents,omitempty"`

	Trips    []Trip    `json:"trips,omitempty"`
	Expenses []Expense `json:"expenses,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Validate checks the metadata fields a case cannot exist without.
func (m *Metadata) Validate() error {
	if err := ValidateCaseID(m.CaseID); err != nil {
		return &ValidationError{Field: "case_id", Message: err.Error()}
	}
	if strings.TrimSpace(m.Title) == "" {
		return &ValidationError{Field: "title", Message: "is required"}
	}
	if m.ReportTypeHint != "" && !m.ReportTypeHint.IsValid() {
		return &ValidationError{Field: "report_type_hint", Message: fmt.Sprintf("unknown report type %q", m.ReportTypeHint)}
	}
	if m.HourlyRateCents < 0 || m.MileageRateCents < 0 {
		return &ValidationError{Field: "rates", Message: "must not be negative"}
	}
	for i, t := range m.Trips {
		if t.Miles < 0 {
			return &ValidationError{Field: fmt.Sprintf("trips[%d].miles", i), Message: "must not be negative"}
		}
	}
	for i, e := range m.Expenses {
		if e.Description == "" {
			return &ValidationError{Field: fmt.Sprintf("expenses[%d].description", i), Message: "is required"}
		}
	}
	return nil
}
