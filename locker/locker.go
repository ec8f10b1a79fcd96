package locker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/c360studio/reportengine/casefile"
	"github.com/c360studio/reportengine/config"
	"github.com/c360studio/reportengine/source"
	"github.com/c360studio/reportengine/source/parser"
	"github.com/google/uuid"
)

// Manifest is the evidence index written after every locker change.
type Manifest struct {
	CaseID      string         `json:"case_id"`
	GeneratedAt time.Time      `json:"generated_at"`
	ItemCount   int            `json:"item_count"`
	TotalBytes  int64          `json:"total_bytes"`
	BySection   map[string]int `json:"by_section"`
	ByKind      map[Kind]int   `json:"by_kind"`
	CustodyLen  int            `json:"custody_entries"`
	CustodyHead string         `json:"custody_head"`
	Items       []*Item        `json:"items"`
}

// Locker stores and classifies the evidence of one case.
type Locker struct {
	mu           sync.Mutex
	caseID       string
	evidenceDir  string
	manifestPath string
	store        Store
	custody      *CustodyLog
	classifier   *Classifier
	logger       *slog.Logger
}

// Options holds the parts a Locker is built from.
type Options struct {
	CaseID       string
	EvidenceDir  string
	ManifestPath string
	Store        Store
	Custody      *CustodyLog
	Classifier   *Classifier
	Logger       *slog.Logger
}

// New creates a locker from explicit parts.
func New(opts Options) *Locker {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Locker{
		caseID:       opts.CaseID,
		evidenceDir:  opts.EvidenceDir,
		manifestPath: opts.ManifestPath,
		store:        opts.Store,
		custody:      opts.Custody,
		classifier:   opts.Classifier,
		logger:       logger.With("case", opts.CaseID),
	}
}

// Open opens the locker of a case in ws with the configured backend.
func Open(ws *casefile.Workspace, caseID string, cfg *config.Config, logger *slog.Logger) (*Locker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := casefile.ValidateCaseID(caseID); err != nil {
		return nil, err
	}
	if !ws.Exists(caseID) {
		return nil, fmt.Errorf("%w: %s", casefile.ErrCaseNotFound, caseID)
	}

	var store Store
	var err error
	switch cfg.Locker.Backend {
	case "file", "":
		store, err = OpenFileStore(filepath.Join(ws.CasePath(caseID), ItemsFile))
	case "sqlite":
		store, err = OpenSQLStore(ws.LockerDBPath(caseID))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, cfg.Locker.Backend)
	}
	if err != nil {
		return nil, err
	}

	custody, err := OpenCustodyLog(ws.CustodyPath(caseID))
	if err != nil && !errors.Is(err, ErrCustodyTampered) {
		_ = store.Close()
		return nil, err
	}
	if err != nil {
		logger.Warn("Custody log failed verification", "case", caseID, "error", err)
	}

	classifier, err := NewClassifier(cfg.Classification)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return New(Options{
		CaseID:       caseID,
		EvidenceDir:  ws.EvidencePath(caseID),
		ManifestPath: ws.ManifestPath(caseID),
		Store:        store,
		Custody:      custody,
		Classifier:   classifier,
		Logger:       logger,
	}), nil
}

// CaseID returns the case this locker belongs to.
func (l *Locker) CaseID() string {
	return l.caseID
}

// Custody returns the chain-of-custody log.
func (l *Locker) Custody() *CustodyLog {
	return l.custody
}

// Close closes the underlying store.
func (l *Locker) Close() error {
	return l.store.Close()
}

// Store saves an uploaded file, deduplicated by content hash, and records
// a "received" custody entry. A duplicate returns the existing item along
// with ErrDuplicateItem.
func (l *Locker) Store(ctx context.Context, filename string, content []byte, actor string) (*Item, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, ErrFilenameRequired
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	items, err := l.store.List(ctx)
	if err != nil {
		return nil, err
	}
	hash := source.ContentHash(content)
	for _, existing := range items {
		if existing.SHA256 == hash {
			return existing, fmt.Errorf("%w: %s has the same content as %s (%s)",
				ErrDuplicateItem, filepath.Base(filename), existing.Exhibit, existing.Filename)
		}
	}

	id := uuid.NewString()
	base := filepath.Base(filename)
	ext := strings.ToLower(filepath.Ext(base))
	mimeType := parser.MimeTypeFromExtension(ext)
	kind := KindDocument
	if parser.IsMedia(mimeType) {
		kind = KindMedia
	}

	if err := os.MkdirAll(l.evidenceDir, 0755); err != nil {
		return nil, fmt.Errorf("create evidence dir: %w", err)
	}
	storedPath := filepath.Join(l.evidenceDir, id+ext)
	if err := os.WriteFile(storedPath, content, 0444); err != nil {
		return nil, fmt.Errorf("write evidence file: %w", err)
	}

	item := &Item{
		ID:         id,
		Exhibit:    fmt.Sprintf("E-%03d", len(items)+1),
		CaseID:     l.caseID,
		Filename:   base,
		StoredPath: storedPath,
		SHA256:     hash,
		Size:       int64(len(content)),
		MimeType:   mimeType,
		Kind:       kind,
		Status:     StatusReceived,
		AddedBy:    actor,
		AddedAt:    time.Now().UTC(),
	}
	if err := l.store.Put(ctx, item); err != nil {
		_ = os.Remove(storedPath)
		return nil, err
	}

	if _, err := l.custody.Append(ctx, Entry{
		Action: ActionReceived,
		ItemID: id,
		SHA256: hash,
		Actor:  actor,
		Detail: fmt.Sprintf("%s (%d bytes)", base, len(content)),
	}); err != nil {
		return nil, err
	}

	l.logger.Info("Evidence received", "item", id, "exhibit", item.Exhibit, "file", base, "kind", kind)
	return item, l.writeManifest(ctx)
}

// AttachText stores the extracted text of an item and records an
// "extracted" custody entry.
func (l *Locker) AttachText(ctx context.Context, id string, doc *source.Document, actor string) (*Item, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	item, err := l.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	item.Title = doc.Title
	item.ExtractMethod = string(doc.Method)
	item.Warnings = append([]string(nil), doc.Warnings...)
	item.Status = StatusExtracted
	item.Error = ""

	detail := fmt.Sprintf("method=%s", doc.Method)
	if doc.HasText() {
		textPath := filepath.Join(l.evidenceDir, id+".txt")
		if err := os.WriteFile(textPath, []byte(doc.Body), 0644); err != nil {
			return nil, fmt.Errorf("write extracted text: %w", err)
		}
		item.TextPath = textPath
		detail += fmt.Sprintf(" chars=%d text_sha256=%s", len(doc.Body), source.ContentHash([]byte(doc.Body)))
	}

	if err := l.store.Update(ctx, item); err != nil {
		return nil, err
	}
	if _, err := l.custody.Append(ctx, Entry{
		Action: ActionExtracted,
		ItemID: id,
		SHA256: item.SHA256,
		Actor:  actor,
		Detail: detail,
	}); err != nil {
		return nil, err
	}
	return item, l.writeManifest(ctx)
}

// MarkFailed records an extraction failure on the item.
func (l *Locker) MarkFailed(ctx context.Context, id string, cause error) (*Item, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	item, err := l.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	item.Status = StatusFailed
	item.Error = cause.Error()
	if err := l.store.Update(ctx, item); err != nil {
		return nil, err
	}
	return item, l.writeManifest(ctx)
}

// Classify routes an item to a section and records a "classified" entry.
func (l *Locker) Classify(ctx context.Context, id, actor string) (*Item, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	item, err := l.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	text := ""
	if item.HasText() {
		data, err := os.ReadFile(item.TextPath)
		if err != nil {
			return nil, fmt.Errorf("read extracted text: %w", err)
		}
		text = string(data)
	}

	c := l.classifier.Classify(item, text)
	item.Section = c.Section
	item.Rule = c.Rule
	if item.Status != StatusFailed {
		item.Status = StatusClassified
	}

	if err := l.store.Update(ctx, item); err != nil {
		return nil, err
	}
	if _, err := l.custody.Append(ctx, Entry{
		Action: ActionClassified,
		ItemID: id,
		SHA256: item.SHA256,
		Actor:  actor,
		Detail: fmt.Sprintf("section=%s rule=%s (%s)", c.Section, c.Rule, c.Reason),
	}); err != nil {
		return nil, err
	}

	l.logger.Debug("Evidence classified", "item", id, "section", c.Section, "rule", c.Rule)
	return item, l.writeManifest(ctx)
}

// Reclassify moves an item to another section by hand.
func (l *Locker) Reclassify(ctx context.Context, id, section, actor, reason string) (*Item, error) {
	if strings.TrimSpace(section) == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidSection)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	item, err := l.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	from := item.Section
	item.Section = section
	item.Rule = "manual"
	if item.Status != StatusFailed {
		item.Status = StatusClassified
	}

	if err := l.store.Update(ctx, item); err != nil {
		return nil, err
	}
	if _, err := l.custody.Append(ctx, Entry{
		Action: ActionReclassified,
		ItemID: id,
		SHA256: item.SHA256,
		Actor:  actor,
		Detail: fmt.Sprintf("section %s -> %s: %s", from, section, reason),
	}); err != nil {
		return nil, err
	}
	return item, l.writeManifest(ctx)
}

// Get returns one item.
func (l *Locker) Get(ctx context.Context, id string) (*Item, error) {
	return l.store.Get(ctx, id)
}

// Resolve finds an item by id, id prefix or exhibit label.
func (l *Locker) Resolve(ctx context.Context, ref string) (*Item, error) {
	items, err := l.store.List(ctx)
	if err != nil {
		return nil, err
	}
	var match *Item
	for _, item := range items {
		if item.ID == ref || strings.EqualFold(item.Exhibit, ref) {
			return item, nil
		}
		if len(ref) >= 6 && strings.HasPrefix(item.ID, ref) {
			if match != nil {
				return nil, fmt.Errorf("%w: %s is ambiguous", ErrItemNotFound, ref)
			}
			match = item
		}
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, ref)
	}
	return match, nil
}

// Items returns every item in intake order.
func (l *Locker) Items(ctx context.Context) ([]*Item, error) {
	return l.store.List(ctx)
}

// ItemsForSection returns the items classified to section.
func (l *Locker) ItemsForSection(ctx context.Context, section string) ([]*Item, error) {
	items, err := l.store.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []*Item
	for _, item := range items {
		if item.Section == section {
			out = append(out, item)
		}
	}
	return out, nil
}

// Text returns the extracted text of an item.
func (l *Locker) Text(ctx context.Context, id string) (string, error) {
	item, err := l.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if !item.HasText() {
		return "", fmt.Errorf("%w: %s", ErrNoText, id)
	}
	data, err := os.ReadFile(item.TextPath)
	if err != nil {
		return "", fmt.Errorf("read extracted text: %w", err)
	}
	return string(data), nil
}

// RecordAccess appends an "accessed" custody entry.
func (l *Locker) RecordAccess(ctx context.Context, id, actor, detail string) error {
	item, err := l.store.Get(ctx, id)
	if err != nil {
		return err
	}
	_, err = l.custody.Append(ctx, Entry{
		Action: ActionAccessed,
		ItemID: id,
		SHA256: item.SHA256,
		Actor:  actor,
		Detail: detail,
	})
	return err
}

// RecordExport appends an "exported" custody entry for every item in ids.
func (l *Locker) RecordExport(ctx context.Context, ids []string, actor, detail string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	for _, id := range sorted {
		item, err := l.store.Get(ctx, id)
		if err != nil {
			return err
		}
		if _, err := l.custody.Append(ctx, Entry{
			Action: ActionExported,
			ItemID: id,
			SHA256: item.SHA256,
			Actor:  actor,
			Detail: detail,
		}); err != nil {
			return err
		}
	}
	return l.writeManifest(ctx)
}

// Manifest builds the current evidence index.
func (l *Locker) Manifest(ctx context.Context) (*Manifest, error) {
	items, err := l.store.List(ctx)
	if err != nil {
		return nil, err
	}
	m := &Manifest{
		CaseID:      l.caseID,
		GeneratedAt: time.Now().UTC(),
		ItemCount:   len(items),
		BySection:   map[string]int{},
		ByKind:      map[Kind]int{},
		CustodyLen:  l.custody.Len(),
		CustodyHead: l.custody.Head(),
		Items:       items,
	}
	for _, item := range items {
		m.TotalBytes += item.Size
		m.ByKind[item.Kind]++
		if item.Section != "" {
			m.BySection[item.Section]++
		}
	}
	return m, nil
}

// writeManifest must be called with l.mu held.
func (l *Locker) writeManifest(ctx context.Context) error {
	if l.manifestPath == "" {
		return nil
	}
	m, err := l.Manifest(ctx)
	if err != nil {
		return err
	}
	if err := casefile.WriteJSON(l.manifestPath, m); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}
