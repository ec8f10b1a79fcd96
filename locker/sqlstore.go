package locker

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// sqlSchemaVersion is the target schema version for this build.
const sqlSchemaVersion = 1

var sqlSchemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);
CREATE TABLE IF NOT EXISTS items (
	id       TEXT PRIMARY KEY,
	case_id  TEXT NOT NULL,
	sha256   TEXT NOT NULL,
	section  TEXT,
	added_at TEXT NOT NULL,
	data     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_items_section ON items(section);
`

// SQLStore implements Store with SQLite.
type SQLStore struct {
	db *sql.DB
}

// OpenSQLStore opens or creates a SQLite DB at path and runs migrations.
func OpenSQLStore(path string) (*SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &SQLStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate() error {
	var tableCount int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableCount)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableCount == 0 {
		if _, err := s.db.Exec(sqlSchemaV1); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_version(version) VALUES(?)", sqlSchemaVersion); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
		return nil
	}

	var v int
	if err := s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&v); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if v != sqlSchemaVersion {
		return fmt.Errorf("unknown schema version %d", v)
	}
	return nil
}

// Put adds a new item.
func (s *SQLStore) Put(ctx context.Context, item *Item) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO items(id, case_id, sha256, section, added_at, data) VALUES(?, ?, ?, ?, ?, ?)",
		item.ID, item.CaseID, item.SHA256, item.Section, item.AddedAt.UTC().Format(time.RFC3339Nano), string(data))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateItem, item.ID)
		}
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

// Get returns the item with the given id.
func (s *SQLStore) Get(ctx context.Context, id string) (*Item, error) {
	var data string
	err := s.db.QueryRowContext(ctx, "SELECT data FROM items WHERE id = ?", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return decodeItem(data)
}

// List returns all items in intake order.
func (s *SQLStore) List(ctx context.Context) ([]*Item, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT data FROM items ORDER BY added_at, id")
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		item, err := decodeItem(data)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	// RFC3339Nano strings do not sort exactly when fractional digits differ.
	sortItems(items)
	return items, nil
}

// Update replaces an existing item.
func (s *SQLStore) Update(ctx context.Context, item *Item) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE items SET section = ?, data = ? WHERE id = ?",
		item.Section, string(data), item.ID)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrItemNotFound, item.ID)
	}
	return nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func decodeItem(data string) (*Item, error) {
	var item Item
	if err := json.Unmarshal([]byte(data), &item); err != nil {
		return nil, fmt.Errorf("decode item: %w", err)
	}
	return &item, nil
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: UNIQUE")
}
