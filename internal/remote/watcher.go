package remote

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/roach88/replica/internal/entity"
)

// DefaultDebounce is how long a type must stay quiet before a change for
// it is emitted.
const DefaultDebounce = 100 * time.Millisecond

// Watcher watches the type directories of a directory export and emits an
// entity type once its files have stopped changing for the debounce
// interval. Bursts of writes to one type collapse into a single change.
type Watcher struct {
	root     string
	types    []entity.Type
	debounce time.Duration

	watcher *fsnotify.Watcher
	changes chan entity.Type
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex
	running bool
	stopped bool
	dirs    map[string]entity.Type

	queueMu sync.Mutex
	queue   map[entity.Type]time.Time
}

// NewWatcher creates a watcher for types under root. A debounce of zero
// or less uses DefaultDebounce. The watcher must be started with Start.
func NewWatcher(root string, types []entity.Type, debounce time.Duration) (*Watcher, error) {
	if len(types) == 0 {
		return nil, fmt.Errorf("remote: no entity types to watch")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &Watcher{
		root:     root,
		types:    types,
		debounce: debounce,
		watcher:  fsw,
		changes:  make(chan entity.Type, len(types)),
		errors:   make(chan error, 10),
		done:     make(chan struct{}),
		dirs:     make(map[string]entity.Type, len(types)),
		queue:    make(map[entity.Type]time.Time),
	}, nil
}

// Start begins watching. Every type directory must exist.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}
	if w.stopped {
		return fmt.Errorf("watcher already stopped")
	}

	for _, typ := range w.types {
		dir, err := filepath.Abs(filepath.Join(w.root, string(typ)))
		if err != nil {
			return fmt.Errorf("resolve %s directory: %w", typ, err)
		}
		if err := w.watcher.Add(dir); err != nil {
			for added := range w.dirs {
				_ = w.watcher.Remove(added)
			}
			clear(w.dirs)
			return fmt.Errorf("failed to watch %s directory %s: %w", typ, dir, err)
		}
		w.dirs[dir] = typ
	}

	w.running = true
	w.wg.Add(2)
	go w.processEvents()
	go w.processQueue()

	return nil
}

// Stop stops watching and closes the Changes and Errors channels.
// It blocks until the background goroutines have exited.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	wasRunning := w.running
	w.running = false
	w.stopped = true
	w.mu.Unlock()

	close(w.done)
	err := w.watcher.Close()
	if wasRunning {
		w.wg.Wait()
	}
	close(w.changes)
	close(w.errors)

	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

// Changes emits entity types whose files changed.
func (w *Watcher) Changes() <-chan entity.Type {
	return w.changes
}

// Errors emits watcher errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// IsRunning reports whether the watcher is running.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if typ, ok := w.convertEvent(event); ok {
				w.queueChange(typ)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			case <-w.done:
				return
			}
		}
	}
}

// convertEvent maps a file event to the type owning the file. Chmod and
// non-JSON files are ignored.
func (w *Watcher) convertEvent(event fsnotify.Event) (entity.Type, bool) {
	if !strings.HasSuffix(event.Name, ".json") {
		return "", false
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return "", false
	}
	path, err := filepath.Abs(event.Name)
	if err != nil {
		return "", false
	}
	w.mu.Lock()
	typ, ok := w.dirs[filepath.Dir(path)]
	w.mu.Unlock()
	return typ, ok
}

func (w *Watcher) queueChange(typ entity.Type) {
	w.queueMu.Lock()
	defer w.queueMu.Unlock()
	w.queue[typ] = time.Now()
}

func (w *Watcher) processQueue() {
	defer w.wg.Done()

	ticker := time.NewTicker(max(w.debounce/2, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			for _, typ := range w.due() {
				select {
				case w.changes <- typ:
				case <-w.done:
					return
				}
			}
		}
	}
}

// due removes and returns the types that have been quiet long enough.
func (w *Watcher) due() []entity.Type {
	w.queueMu.Lock()
	defer w.queueMu.Unlock()

	now := time.Now()
	var out []entity.Type
	for typ, queuedAt := range w.queue {
		if now.Sub(queuedAt) < w.debounce {
			continue
		}
		out = append(out, typ)
		delete(w.queue, typ)
	}
	return out
}
