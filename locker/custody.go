package locker

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Action is a chain-of-custody event type.
type Action string

const (
	ActionReceived     Action = "received"
	ActionExtracted    Action = "extracted"
	ActionClassified   Action = "classified"
	ActionReclassified Action = "reclassified"
	ActionExported     Action = "exported"
	ActionAccessed     Action = "accessed"
)

// Entry is one line of the custody log. Hash covers PrevHash and every
// other field, so altering or removing any entry breaks the chain.
type Entry struct {
	Seq      int       `json:"seq"`
	At       time.Time `json:"at"`
	Action   Action    `json:"action"`
	ItemID   string    `json:"item_id,omitempty"`
	SHA256   string    `json:"sha256,omitempty"`
	Actor    string    `json:"actor"`
	Detail   string    `json:"detail,omitempty"`
	PrevHash string    `json:"prev_hash"`
	Hash     string    `json:"hash"`
}

// computeHash returns sha256(prev_hash || canonical entry without hash).
func (e Entry) computeHash() (string, error) {
	e.Hash = ""
	canonical, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("marshal custody entry: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(e.PrevHash))
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// CustodyLog is an append-only JSON-lines log with a hash chain.
type CustodyLog struct {
	mu      sync.Mutex
	path    string
	entries []Entry
}

// OpenCustodyLog loads the log at path, creating an empty one when missing.
// An existing log that fails verification is returned with ErrCustodyTampered
// so callers can still report on it.
func OpenCustodyLog(path string) (*CustodyLog, error) {
	l := &CustodyLog{path: path}

	entries, err := readEntries(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, err
	}
	l.entries = entries

	if err := VerifyEntries(entries); err != nil {
		return l, err
	}
	return l, nil
}

func readEntries(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrCustodyTampered, line, err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read custody log: %w", err)
	}
	return entries, nil
}

// Append seals e onto the chain and writes it to disk. Seq, PrevHash and
// Hash are assigned here; a zero At is set to now.
func (l *CustodyLog) Append(ctx context.Context, e Entry) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e.Seq = len(l.entries) + 1
	if e.At.IsZero() {
		e.At = time.Now()
	}
	e.At = e.At.UTC()
	e.PrevHash = ""
	if n := len(l.entries); n > 0 {
		e.PrevHash = l.entries[n-1].Hash
	}
	hash, err := e.computeHash()
	if err != nil {
		return Entry{}, err
	}
	e.Hash = hash

	line, err := json.Marshal(e)
	if err != nil {
		return Entry{}, fmt.Errorf("marshal custody entry: %w", err)
	}
	line = append(line, '\n')

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return Entry{}, fmt.Errorf("create custody dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return Entry{}, fmt.Errorf("open custody log: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return Entry{}, fmt.Errorf("append custody entry: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return Entry{}, fmt.Errorf("sync custody log: %w", err)
	}
	if err := f.Close(); err != nil {
		return Entry{}, fmt.Errorf("close custody log: %w", err)
	}

	l.entries = append(l.entries, e)
	return e, nil
}

// Entries returns a copy of all entries.
func (l *CustodyLog) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

// EntriesFor returns the entries recorded for one item.
func (l *CustodyLog) EntriesFor(itemID string) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Entry
	for _, e := range l.entries {
		if e.ItemID == itemID {
			out = append(out, e)
		}
	}
	return out
}

// Head returns the hash of the last entry, or "" for an empty log.
func (l *CustodyLog) Head() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return ""
	}
	return l.entries[len(l.entries)-1].Hash
}

// Len returns the number of entries.
func (l *CustodyLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Verify re-reads the log from disk and checks the hash chain. It also
// detects entries removed from the tail since this log was opened.
func (l *CustodyLog) Verify() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	onDisk, err := readEntries(l.path)
	if err != nil {
		if os.IsNotExist(err) && len(l.entries) == 0 {
			return nil
		}
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: log file missing", ErrCustodyTampered)
		}
		return err
	}
	if err := VerifyEntries(onDisk); err != nil {
		return err
	}
	if len(onDisk) < len(l.entries) {
		return fmt.Errorf("%w: %d entries on disk, %d recorded", ErrCustodyTampered, len(onDisk), len(l.entries))
	}
	for i, e := range l.entries {
		if onDisk[i].Hash != e.Hash {
			return fmt.Errorf("%w: entry %d differs from recorded chain", ErrCustodyTampered, e.Seq)
		}
	}
	return nil
}

// VerifyEntries checks sequence numbers and the hash chain of entries.
func VerifyEntries(entries []Entry) error {
	prev := ""
	for i, e := range entries {
		if e.Seq != i+1 {
			return fmt.Errorf("%w: entry %d has sequence %d", ErrCustodyTampered, i+1, e.Seq)
		}
		if e.PrevHash != prev {
			return fmt.Errorf("%w: entry %d does not link to its predecessor", ErrCustodyTampered, e.Seq)
		}
		want, err := e.computeHash()
		if err != nil {
			return err
		}
		if e.Hash != want {
			return fmt.Errorf("%w: entry %d hash mismatch", ErrCustodyTampered, e.Seq)
		}
		prev = e.Hash
	}
	return nil
}
