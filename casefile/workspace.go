package casefile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Directory and file names of the workspace layout.
const (
	RootDir      = ".reportengine"
	CasesDir     = "cases"
	BundleFile   = "bundle.json"
	EvidenceDir  = "evidence"
	SectionsDir  = "sections"
	ArchiveDir   = "archive"
	ReportDir    = "report"
	ManifestFile = "manifest.json"
	CustodyFile  = "custody.jsonl"
	LockerDBFile = "locker.db"
	GatewayFile  = "gateway.json"
)

// Sentinel errors for workspace operations.
var (
	ErrCaseIDRequired = errors.New("case id is required")
	ErrInvalidCaseID  = errors.New("invalid case id: must be alphanumeric with dots, hyphens or underscores, no path separators")
	ErrCaseNotFound   = errors.New("case not found")
	ErrCaseExists     = errors.New("case already exists")
)

// caseIDPattern allows ids like "2024-0142" or "WC_17.b", 1-64 chars.
var caseIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// ValidateCaseID checks if a case id is valid and safe for use in file paths.
func ValidateCaseID(id string) error {
	if id == "" {
		return ErrCaseIDRequired
	}
	// Prevent path traversal
	if strings.Contains(id, "..") || strings.ContainsAny(id, `/\`) {
		return ErrInvalidCaseID
	}
	if !caseIDPattern.MatchString(id) {
		return ErrInvalidCaseID
	}
	return nil
}

// Workspace manages the .reportengine directory under a root.
type Workspace struct {
	root string
}

// NewWorkspace creates a workspace rooted at root.
func NewWorkspace(root string) *Workspace {
	return &Workspace{root: root}
}

// RootPath returns the full path to the .reportengine directory.
func (w *Workspace) RootPath() string {
	return filepath.Join(w.root, RootDir)
}

// CasesPath returns the path to the cases directory.
func (w *Workspace) CasesPath() string {
	return filepath.Join(w.RootPath(), CasesDir)
}

// CasePath returns the directory of one case.
func (w *Workspace) CasePath(id string) string {
	return filepath.Join(w.CasesPath(), id)
}

// EvidencePath returns the directory holding stored evidence files.
func (w *Workspace) EvidencePath(id string) string {
	return filepath.Join(w.CasePath(id), EvidenceDir)
}

// SectionsPath returns the directory holding section payloads.
func (w *Workspace) SectionsPath(id string) string {
	return filepath.Join(w.CasePath(id), SectionsDir)
}

// ArchivePath returns the directory holding superseded section versions.
func (w *Workspace) ArchivePath(id string) string {
	return filepath.Join(w.SectionsPath(id), ArchiveDir)
}

// ReportPath returns the directory final assembly writes into.
func (w *Workspace) ReportPath(id string) string {
	return filepath.Join(w.CasePath(id), ReportDir)
}

// ManifestPath returns the evidence manifest file.
func (w *Workspace) ManifestPath(id string) string {
	return filepath.Join(w.CasePath(id), ManifestFile)
}

// CustodyPath returns the chain-of-custody log file.
func (w *Workspace) CustodyPath(id string) string {
	return filepath.Join(w.CasePath(id), CustodyFile)
}

// LockerDBPath returns the sqlite locker database file.
func (w *Workspace) LockerDBPath(id string) string {
	return filepath.Join(w.CasePath(id), LockerDBFile)
}

// GatewayStatePath returns the gateway state file.
func (w *Workspace) GatewayStatePath(id string) string {
	return filepath.Join(w.CasePath(id), GatewayFile)
}

// Exists reports whether a case has been created.
func (w *Workspace) Exists(id string) bool {
	if err := ValidateCaseID(id); err != nil {
		return false
	}
	_, err := os.Stat(filepath.Join(w.CasePath(id), BundleFile))
	return err == nil
}

// Create creates the case directories and an empty bundle.
func (w *Workspace) Create(ctx context.Context, meta Metadata) (*Bundle, error) {
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if w.Exists(meta.CaseID) {
		return nil, fmt.Errorf("%w: %s", ErrCaseExists, meta.CaseID)
	}

	for _, dir := range []string{
		w.EvidencePath(meta.CaseID),
		w.ArchivePath(meta.CaseID),
		w.ReportPath(meta.CaseID),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create case directory: %w", err)
		}
	}

	bundle := NewBundle(meta)
	if err := w.Save(ctx, bundle); err != nil {
		return nil, err
	}
	return bundle, nil
}

// Load loads a case bundle from .reportengine/cases/{id}/bundle.json.
func (w *Workspace) Load(ctx context.Context, id string) (*Bundle, error) {
	if err := ValidateCaseID(id); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bundle := NewBundle(Metadata{})
	if err := ReadJSON(filepath.Join(w.CasePath(id), BundleFile), bundle); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrCaseNotFound, id)
		}
		return nil, fmt.Errorf("failed to load case %s: %w", id, err)
	}
	return bundle, nil
}

// Save writes the bundle to .reportengine/cases/{id}/bundle.json.
func (w *Workspace) Save(ctx context.Context, bundle *Bundle) error {
	id := bundle.CaseMetadata.CaseID
	if err := ValidateCaseID(id); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	bundle.mu.RLock()
	defer bundle.mu.RUnlock()

	if err := WriteJSON(filepath.Join(w.CasePath(id), BundleFile), bundle); err != nil {
		return fmt.Errorf("failed to save case %s: %w", id, err)
	}
	return nil
}

// ListResult contains the results of listing cases, including any
// non-fatal errors encountered while loading individual cases.
type ListResult struct {
	Cases  []Metadata
	Errors []error
}

// List returns the metadata of every case, sorted by case id.
func (w *Workspace) List(ctx context.Context) (*ListResult, error) {
	result := &ListResult{
		Cases:  []Metadata{},
		Errors: []error{},
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(w.CasesPath())
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return nil, fmt.Errorf("failed to read cases directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		bundle, err := w.Load(ctx, entry.Name())
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			result.Errors = append(result.Errors,
				fmt.Errorf("failed to load case %s: %w", entry.Name(), err))
			continue
		}
		result.Cases = append(result.Cases, bundle.CaseMetadata)
	}

	sort.Slice(result.Cases, func(i, j int) bool {
		return result.Cases[i].CaseID < result.Cases[j].CaseID
	})
	return result, nil
}
