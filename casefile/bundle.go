package casefile

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Kind names one of the bundle's keyed collections.
type Kind string

const (
	KindDocumentIndex      Kind = "document_index"
	KindToolkitResults     Kind = "toolkit_results"
	KindRepositoryMetadata Kind = "repository_metadata"
	KindSectionSummaries   Kind = "section_summaries"
)

// Sentinel errors for bundle operations.
var (
	ErrBundleKeyExists   = errors.New("bundle key already exists")
	ErrBundleKeyNotFound = errors.New("bundle key not found")
	ErrUnknownKind       = errors.New("unknown bundle kind")
	ErrToolkitResultsSet = errors.New("toolkit results already stored")
)

// Bundle is the shared case context every section renders from. Stages only
// ever add keys to it; a key once written is never replaced.
type Bundle struct {
	CaseMetadata       Metadata                   `json:"case_metadata"`
	DocumentIndex      map[string]json.RawMessage `json:"document_index"`
	ToolkitResults     map[string]json.RawMessage `json:"toolkit_results"`
	RepositoryMetadata map[string]json.RawMessage `json:"repository_metadata"`
	SectionSummaries   map[string]json.RawMessage `json:"section_summaries"`

	mu sync.RWMutex
}

// NewBundle creates an empty bundle for the given case.
func NewBundle(meta Metadata) *Bundle {
	return &Bundle{
		CaseMetadata:       meta,
		DocumentIndex:      map[string]json.RawMessage{},
		ToolkitResults:     map[string]json.RawMessage{},
		RepositoryMetadata: map[string]json.RawMessage{},
		SectionSummaries:   map[string]json.RawMessage{},
	}
}

func (b *Bundle) collection(kind Kind) (map[string]json.RawMessage, error) {
	var m *map[string]json.RawMessage
	switch kind {
	case KindDocumentIndex:
		m = &b.DocumentIndex
	case KindToolkitResults:
		m = &b.ToolkitResults
	case KindRepositoryMetadata:
		m = &b.RepositoryMetadata
	case KindSectionSummaries:
		m = &b.SectionSummaries
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	if *m == nil {
		*m = map[string]json.RawMessage{}
	}
	return *m, nil
}

// Put adds value under kind/key. Existing keys are never overwritten.
func (b *Bundle) Put(kind Kind, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", kind, key, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	coll, err := b.collection(kind)
	if err != nil {
		return err
	}
	if _, exists := coll[key]; exists {
		return fmt.Errorf("%w: %s/%s", ErrBundleKeyExists, kind, key)
	}
	coll[key] = data
	return nil
}

// Has reports whether kind/key is present.
func (b *Bundle) Has(kind Kind, key string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	coll, err := b.collection(kind)
	if err != nil {
		return false
	}
	_, ok := coll[key]
	return ok
}

// Get decodes kind/key into out.
func (b *Bundle) Get(kind Kind, key string, out any) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	coll, err := b.collection(kind)
	if err != nil {
		return err
	}
	data, ok := coll[key]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrBundleKeyNotFound, kind, key)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s/%s: %w", kind, key, err)
	}
	return nil
}

// Keys returns the sorted keys of a collection.
func (b *Bundle) Keys(kind Kind) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	coll, err := b.collection(kind)
	if err != nil {
		return nil
	}
	keys := make([]string, 0, len(coll))
	for k := range coll {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SetToolkitResults stores all toolkit results at once. It may only be
// called while the toolkit collection is empty.
func (b *Bundle) SetToolkitResults(results map[string]any) error {
	encoded := make(map[string]json.RawMessage, len(results))
	for name, r := range results {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal toolkit result %s: %w", name, err)
		}
		encoded[name] = data
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.ToolkitResults) > 0 {
		return ErrToolkitResultsSet
	}
	b.ToolkitResults = encoded
	return nil
}

// HasToolkitResults reports whether toolkit results have been stored.
func (b *Bundle) HasToolkitResults() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.ToolkitResults) > 0
}

// SummaryKey is the section_summaries key for a section version.
func SummaryKey(sectionID string, version int) string {
	return fmt.Sprintf("%s.v%d", sectionID, version)
}
