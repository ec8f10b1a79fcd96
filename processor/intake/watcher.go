package intake

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/c360studio/reportengine/source"
)

const (
	// eventChannelBuffer is the size of the watch event channel.
	eventChannelBuffer = 256

	defaultDebounce = 500 * time.Millisecond
)

// Op is the kind of change a watch event reports.
type Op string

// OpCreate and OpModify enumerate watch event operations. Deleted uploads
// are not reported: evidence already in the locker is kept.
const (
	OpCreate Op = "create"
	OpModify Op = "modify"
)

// Event is a settled file change in the upload directory.
type Event struct {
	// Path is relative to the watched directory, slash-separated.
	Path string
	// AbsPath is the absolute file path.
	AbsPath string
	Op      Op
	SHA256  string
}

// Watcher watches an upload directory and reports files whose content
// changed once writes have settled for the debounce interval.
type Watcher struct {
	dir      string
	filter   *Filter
	debounce time.Duration
	watcher  *fsnotify.Watcher
	logger   *slog.Logger

	pendingMu sync.Mutex
	pending   map[string]fsnotify.Op

	hashMu sync.RWMutex
	hashes map[string]string

	events chan Event
	done   chan struct{}

	started       atomic.Bool
	droppedEvents atomic.Int64
}

// NewWatcher creates a watcher on dir. Files are accepted by filter; a nil
// filter accepts everything that is not hidden.
func NewWatcher(dir string, filter *Filter, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if filter == nil {
		var err error
		if filter, err = NewFilter(nil, []string{"**/.*"}); err != nil {
			return nil, err
		}
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		dir:      abs,
		filter:   filter,
		debounce: debounce,
		watcher:  fsw,
		logger:   logger,
		pending:  make(map[string]fsnotify.Op),
		hashes:   make(map[string]string),
		events:   make(chan Event, eventChannelBuffer),
		done:     make(chan struct{}),
	}, nil
}

// Events returns the channel of watch events. It is closed when the
// watcher stops.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Start creates the directory if needed, adds watches and begins
// processing events until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return err
	}
	if err := w.addWatchesRecursive(w.dir); err != nil {
		return err
	}

	w.started.Store(true)
	go w.processEvents(ctx)

	w.logger.Info("Upload watcher started", "dir", w.dir, "debounce", w.debounce)
	return nil
}

// Stop closes the underlying watcher and waits for event processing to end.
func (w *Watcher) Stop() error {
	err := w.watcher.Close()
	if w.started.Load() {
		<-w.done
	}
	return err
}

// Seed records the hash of a file already taken in, so an unchanged copy
// does not raise an event.
func (w *Watcher) Seed(rel, hash string) {
	w.hashMu.Lock()
	defer w.hashMu.Unlock()
	w.hashes[rel] = hash
}

func (w *Watcher) hash(rel string) (string, bool) {
	w.hashMu.RLock()
	defer w.hashMu.RUnlock()
	hash, ok := w.hashes[rel]
	return hash, ok
}

// DroppedEvents returns the number of events dropped on a full channel.
func (w *Watcher) DroppedEvents() int64 {
	return w.droppedEvents.Load()
}

func (w *Watcher) addWatchesRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("Failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.done)
	defer close(w.events)
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", "error", err)

		case <-ticker.C:
			w.flushPending(ctx)
		}
	}
}

func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addWatchesRecursive(event.Name); err != nil {
				w.logger.Warn("Failed to watch new directory", "path", event.Name, "error", err)
			}
			return
		}
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	rel, err := filepath.Rel(w.dir, event.Name)
	if err != nil || !w.filter.Match(filepath.ToSlash(rel)) {
		return
	}

	w.pendingMu.Lock()
	w.pending[event.Name] |= event.Op
	w.pendingMu.Unlock()
}

// flushPending emits events for files whose content changed since the
// last flush that saw them.
func (w *Watcher) flushPending(ctx context.Context) {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	toProcess := w.pending
	w.pending = make(map[string]fsnotify.Op)
	w.pendingMu.Unlock()

	for path := range toProcess {
		if ctx.Err() != nil {
			return
		}

		content, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				w.logger.Warn("Failed to read changed file", "path", path, "error", err)
			}
			continue
		}

		rel, _ := filepath.Rel(w.dir, path)
		rel = filepath.ToSlash(rel)
		newHash := source.ContentHash(content)
		oldHash, hadHash := w.hash(rel)
		if hadHash && oldHash == newHash {
			continue
		}
		w.Seed(rel, newHash)

		op := OpCreate
		if hadHash {
			op = OpModify
		}
		w.sendEvent(Event{Path: rel, AbsPath: path, Op: op, SHA256: newHash})
	}
}

func (w *Watcher) sendEvent(event Event) {
	select {
	case w.events <- event:
	default:
		dropped := w.droppedEvents.Add(1)
		w.logger.Warn("Event channel full, dropping event", "path", event.Path, "total_dropped", dropped)
	}
}
