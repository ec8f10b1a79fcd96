// Package config provides configuration loading and management for the report engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete report engine configuration
type Config struct {
	Workspace      WorkspaceConfig      `yaml:"workspace"`
	Intake         IntakeConfig         `yaml:"intake"`
	OCR            OCRConfig            `yaml:"ocr"`
	Locker         LockerConfig         `yaml:"locker"`
	Classification ClassificationConfig `yaml:"classification"`
	Toolkit        ToolkitConfig        `yaml:"toolkit"`
	Gateway        GatewayConfig        `yaml:"gateway"`
	QA             QAConfig             `yaml:"qa"`
	NATS           NATSConfig           `yaml:"nats"`
	Report         ReportConfig         `yaml:"report"`
}

// WorkspaceConfig configures where case data lives
type WorkspaceConfig struct {
	// Root is the directory holding .reportengine/ (default: current directory)
	Root string `yaml:"root"`
}

// IntakeConfig configures document intake
type IntakeConfig struct {
	// Workers bounds parallel text extraction
	Workers int `yaml:"workers"`
	// Include lists doublestar patterns for files accepted from a directory
	Include []string `yaml:"include"`
	// Exclude lists doublestar patterns for files skipped from a directory
	Exclude []string `yaml:"exclude"`
	// Debounce is how long the watcher waits for writes to settle
	Debounce time.Duration `yaml:"debounce"`
}

// OCRConfig configures the OCR engine wrapper
type OCRConfig struct {
	// Engine is "tesseract" or "none"
	Engine string `yaml:"engine"`
	// Binary is the engine executable
	Binary string `yaml:"binary"`
	// Language is the engine language code
	Language string `yaml:"language"`
	// Timeout bounds one recognition call
	Timeout time.Duration `yaml:"timeout"`
}

// LockerConfig configures the evidence locker
type LockerConfig struct {
	// Backend is "file" (JSON manifest) or "sqlite"
	Backend string `yaml:"backend"`
}

// ClassificationRule routes an evidence item to a report section.
type ClassificationRule struct {
	// Name identifies the rule in custody entries
	Name string `yaml:"name"`
	// Section is the target section id (e.g. "3", "6")
	Section string `yaml:"section"`
	// Patterns are doublestar globs matched against the lowercase filename
	Patterns []string `yaml:"patterns,omitempty"`
	// Keywords are lowercase phrases matched against extracted text
	Keywords []string `yaml:"keywords,omitempty"`
	// MimePrefixes match the item's MIME type
	MimePrefixes []string `yaml:"mime_prefixes,omitempty"`
}

// ClassificationConfig configures evidence classification
type ClassificationConfig struct {
	// Rules are evaluated in order; first match wins
	Rules []ClassificationRule `yaml:"rules"`
	// DefaultSection receives documents no rule matched
	DefaultSection string `yaml:"default_section"`
}

// ToolkitConfig configures the deterministic toolkit
type ToolkitConfig struct {
	// HourlyRateCents is the default investigator rate
	HourlyRateCents int64 `yaml:"hourly_rate_cents"`
	// MileageRateCents is the default reimbursement per mile
	MileageRateCents int64 `yaml:"mileage_rate_cents"`
	// BillingIncrementMinutes rounds billable time up to this increment
	BillingIncrementMinutes int `yaml:"billing_increment_minutes"`
	// SessionGap splits surveillance entries on the same day into sessions
	SessionGap time.Duration `yaml:"session_gap"`
	// IdentityConfirmed is the score at or above which identity is confirmed
	IdentityConfirmed float64 `yaml:"identity_confirmed"`
	// IdentityPossible is the score at or above which identity is possible
	IdentityPossible float64 `yaml:"identity_possible"`
}

// GatewayConfig configures section orchestration
type GatewayConfig struct {
	// AutoApprove approves completed sections without error-level QA flags
	AutoApprove bool `yaml:"auto_approve"`
	// Actor is the name recorded for gateway-made decisions
	Actor string `yaml:"actor"`
	// MaxRevisions caps revision requests per section version
	MaxRevisions int `yaml:"max_revisions"`
}

// QARule is a boolean expression evaluated against a section payload.
type QARule struct {
	// Name identifies the rule in QA flags
	Name string `yaml:"name"`
	// Section limits the rule to one section id (empty = all)
	Section string `yaml:"section,omitempty"`
	// Expr must evaluate to true for the payload to pass
	Expr string `yaml:"expr"`
	// Severity is "warning" or "error"
	Severity string `yaml:"severity"`
	// Message explains a failure
	Message string `yaml:"message"`
}

// QAConfig configures payload quality checks
type QAConfig struct {
	Rules []QARule `yaml:"rules"`
}

// NATSConfig configures the optional signal mirror
type NATSConfig struct {
	// URL is the NATS server URL (empty = disabled)
	URL string `yaml:"url"`
	// SubjectPrefix prefixes signal subjects
	SubjectPrefix string `yaml:"subject_prefix"`
}

// ReportConfig configures agency details printed in the report
type ReportConfig struct {
	// Agency is the investigating agency name
	Agency string `yaml:"agency"`
	// License is the agency license number
	License string `yaml:"license"`
	// Disclosures are paragraphs printed on the disclosure page
	Disclosures []string `yaml:"disclosures"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Workspace: WorkspaceConfig{
			Root: "", // Current directory
		},
		Intake: IntakeConfig{
			Workers:  4,
			Include:  []string{"**/*"},
			Exclude:  []string{"**/.*", "**/~$*", "**/Thumbs.db"},
			Debounce: 500 * time.Millisecond,
		},
		OCR: OCRConfig{
			Engine:   "tesseract",
			Binary:   "tesseract",
			Language: "eng",
			Timeout:  2 * time.Minute,
		},
		Locker: LockerConfig{
			Backend: "file",
		},
		Classification: ClassificationConfig{
			Rules:          DefaultClassificationRules(),
			DefaultSection: "5",
		},
		Toolkit: ToolkitConfig{
			HourlyRateCents:         7500,
			MileageRateCents:        67,
			BillingIncrementMinutes: 15,
			SessionGap:              2 * time.Hour,
			IdentityConfirmed:       0.85,
			IdentityPossible:        0.5,
		},
		Gateway: GatewayConfig{
			AutoApprove:  false,
			Actor:        "gateway",
			MaxRevisions: 3,
		},
		QA: QAConfig{
			Rules: nil,
		},
		NATS: NATSConfig{
			URL:           "",
			SubjectPrefix: "reportengine.signal",
		},
		Report: ReportConfig{
			Disclosures: []string{
				"This report contains confidential information prepared at the request of the client named herein and is intended solely for the client's use.",
				"Observations are limited to the dates and times recorded in this report. No inference is made regarding activity outside those periods.",
			},
		},
	}
}

// DefaultClassificationRules returns the built-in evidence routing rules.
func DefaultClassificationRules() []ClassificationRule {
	return []ClassificationRule{
		{
			Name:         "media",
			Section:      "8",
			MimePrefixes: []string{"image/", "video/"},
		},
		{
			Name:     "contract",
			Section:  "1",
			Patterns: []string{"*contract*", "*agreement*", "*retainer*", "*assignment*", "*referral*"},
			Keywords: []string{"scope of work", "retainer agreement", "assignment details"},
		},
		{
			Name:     "billing",
			Section:  "6",
			Patterns: []string{"*invoice*", "*receipt*", "*expense*", "*mileage*"},
			Keywords: []string{"invoice", "amount due", "receipt"},
		},
		{
			Name:     "surveillance-log",
			Section:  "3",
			Patterns: []string{"*surveillance*", "*field*log*", "*activity*log*", "*field*notes*"},
			Keywords: []string{"surveillance log", "subject departed", "subject observed"},
		},
		{
			Name:     "subject-background",
			Section:  "2",
			Patterns: []string{"*background*", "*subject*", "*dmv*", "*profile*"},
			Keywords: []string{"date of birth", "known addresses", "vehicle registration"},
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Intake.Workers < 1 {
		return fmt.Errorf("intake.workers must be at least 1")
	}
	switch c.OCR.Engine {
	case "tesseract", "none":
	default:
		return fmt.Errorf("ocr.engine must be tesseract or none, got %q", c.OCR.Engine)
	}
	switch c.Locker.Backend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("locker.backend must be file or sqlite, got %q", c.Locker.Backend)
	}
	if c.Classification.DefaultSection == "" {
		return fmt.Errorf("classification.default_section is required")
	}
	for i, rule := range c.Classification.Rules {
		if rule.Section == "" {
			return fmt.Errorf("classification.rules[%d].section is required", i)
		}
		if len(rule.Patterns) == 0 && len(rule.Keywords) == 0 && len(rule.MimePrefixes) == 0 {
			return fmt.Errorf("classification.rules[%d] has no patterns, keywords or mime_prefixes", i)
		}
	}
	if c.Toolkit.HourlyRateCents < 0 || c.Toolkit.MileageRateCents < 0 {
		return fmt.Errorf("toolkit rates must not be negative")
	}
	if c.Toolkit.BillingIncrementMinutes < 1 {
		return fmt.Errorf("toolkit.billing_increment_minutes must be at least 1")
	}
	if c.Toolkit.IdentityPossible < 0 || c.Toolkit.IdentityConfirmed > 1 ||
		c.Toolkit.IdentityPossible > c.Toolkit.IdentityConfirmed {
		return fmt.Errorf("toolkit identity thresholds must satisfy 0 <= possible <= confirmed <= 1")
	}
	if c.Gateway.Actor == "" {
		return fmt.Errorf("gateway.actor is required")
	}
	if c.Gateway.MaxRevisions < 1 {
		return fmt.Errorf("gateway.max_revisions must be at least 1")
	}
	for i, rule := range c.QA.Rules {
		if rule.Name == "" || rule.Expr == "" {
			return fmt.Errorf("qa.rules[%d] needs name and expr", i)
		}
		if rule.Severity != "warning" && rule.Severity != "error" {
			return fmt.Errorf("qa.rules[%d].severity must be warning or error", i)
		}
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Workspace
	if other.Workspace.Root != "" {
		c.Workspace.Root = other.Workspace.Root
	}

	// Intake
	if other.Intake.Workers != 0 {
		c.Intake.Workers = other.Intake.Workers
	}
	if len(other.Intake.Include) > 0 {
		c.Intake.Include = other.Intake.Include
	}
	if len(other.Intake.Exclude) > 0 {
		c.Intake.Exclude = other.Intake.Exclude
	}
	if other.Intake.Debounce != 0 {
		c.Intake.Debounce = other.Intake.Debounce
	}

	// OCR
	if other.OCR.Engine != "" {
		c.OCR.Engine = other.OCR.Engine
	}
	if other.OCR.Binary != "" {
		c.OCR.Binary = other.OCR.Binary
	}
	if other.OCR.Language != "" {
		c.OCR.Language = other.OCR.Language
	}
	if other.OCR.Timeout != 0 {
		c.OCR.Timeout = other.OCR.Timeout
	}

	// Locker
	if other.Locker.Backend != "" {
		c.Locker.Backend = other.Locker.Backend
	}

	// Classification
	if len(other.Classification.Rules) > 0 {
		c.Classification.Rules = other.Classification.Rules
	}
	if other.Classification.DefaultSection != "" {
		c.Classification.DefaultSection = other.Classification.DefaultSection
	}

	// Toolkit
	if other.Toolkit.HourlyRateCents != 0 {
		c.Toolkit.HourlyRateCents = other.Toolkit.HourlyRateCents
	}
	if other.Toolkit.MileageRateCents != 0 {
		c.Toolkit.MileageRateCents = other.Toolkit.MileageRateCents
	}
	if other.Toolkit.BillingIncrementMinutes != 0 {
		c.Toolkit.BillingIncrementMinutes = other.Toolkit.BillingIncrementMinutes
	}
	if other.Toolkit.SessionGap != 0 {
		c.Toolkit.SessionGap = other.Toolkit.SessionGap
	}
	if other.Toolkit.IdentityConfirmed != 0 {
		c.Toolkit.IdentityConfirmed = other.Toolkit.IdentityConfirmed
	}
	if other.Toolkit.IdentityPossible != 0 {
		c.Toolkit.IdentityPossible = other.Toolkit.IdentityPossible
	}

	// Gateway
	if other.Gateway.AutoApprove {
		c.Gateway.AutoApprove = true
	}
	if other.Gateway.Actor != "" {
		c.Gateway.Actor = other.Gateway.Actor
	}
	if other.Gateway.MaxRevisions != 0 {
		c.Gateway.MaxRevisions = other.Gateway.MaxRevisions
	}

	// QA
	if len(other.QA.Rules) > 0 {
		c.QA.Rules = other.QA.Rules
	}

	// NATS
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}
	if other.NATS.SubjectPrefix != "" {
		c.NATS.SubjectPrefix = other.NATS.SubjectPrefix
	}

	// Report
	if other.Report.Agency != "" {
		c.Report.Agency = other.Report.Agency
	}
	if other.Report.License != "" {
		c.Report.License = other.Report.License
	}
	if len(other.Report.Disclosures) > 0 {
		c.Report.Disclosures = other.Report.Disclosures
	}
}
