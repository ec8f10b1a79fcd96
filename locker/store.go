package locker

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/c360studio/reportengine/casefile"
)

// ItemsFile is the JSON file the file backend keeps its items in.
const ItemsFile = "items.json"

// Store persists evidence items.
type Store interface {
	Put(ctx context.Context, item *Item) error
	Get(ctx context.Context, id string) (*Item, error)
	List(ctx context.Context) ([]*Item, error)
	Update(ctx context.Context, item *Item) error
	Close() error
}

// sortItems orders items by intake time, then id.
func sortItems(items []*Item) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].AddedAt.Equal(items[j].AddedAt) {
			return items[i].AddedAt.Before(items[j].AddedAt)
		}
		return items[i].ID < items[j].ID
	})
}

// FileStore keeps items in memory and rewrites a JSON file after each change.
type FileStore struct {
	mu     sync.RWMutex
	path   string
	items  map[string]*Item
	closed bool
}

type itemsFile struct {
	Items []*Item `json:"items"`
}

// OpenFileStore loads the store at path, creating it empty when missing.
func OpenFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path, items: map[string]*Item{}}

	var f itemsFile
	if err := casefile.ReadJSON(path, &f); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("open file store: %w", err)
		}
	}
	for _, item := range f.Items {
		s.items[item.ID] = item
	}
	return s, nil
}

// Put adds a new item.
func (s *FileStore) Put(ctx context.Context, item *Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if _, exists := s.items[item.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateItem, item.ID)
	}
	s.items[item.ID] = item.clone()
	return s.flush()
}

// Get returns a copy of the item with the given id.
func (s *FileStore) Get(ctx context.Context, id string) (*Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	return item.clone(), nil
}

// List returns copies of all items in intake order.
func (s *FileStore) List(ctx context.Context) ([]*Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]*Item, 0, len(s.items))
	for _, item := range s.items {
		items = append(items, item.clone())
	}
	sortItems(items)
	return items, nil
}

// Update replaces an existing item.
func (s *FileStore) Update(ctx context.Context, item *Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if _, ok := s.items[item.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, item.ID)
	}
	s.items[item.ID] = item.clone()
	return s.flush()
}

// Close marks the store closed. Data is already on disk.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// flush must be called with the write lock held.
func (s *FileStore) flush() error {
	items := make([]*Item, 0, len(s.items))
	for _, item := range s.items {
		items = append(items, item)
	}
	sortItems(items)

	return casefile.WriteJSON(s.path, itemsFile{Items: items})
}
