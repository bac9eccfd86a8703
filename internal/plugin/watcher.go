package plugin

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// EventKind distinguishes a validated reload request from a security
// violation surfaced by the watcher.
type EventKind int

const (
	// EventReload signals a modified plugin file that passed per-path
	// validation and should be re-loaded.
	EventReload EventKind = iota
	// EventSecurityViolation signals a modified path that failed
	// per-path validation (bad extension, missing file).
	EventSecurityViolation
)

// Event is what the Hot-Reload Watcher emits for the orchestrator to
// consume.
type Event struct {
	Kind   EventKind
	Path   string
	Reason string
}

// debounceWindow is the minimum interval between two events emitted for
// the same path; editors and copy tools fire bursts of writes for one
// logical change.
const debounceWindow = 2 * time.Second

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the structured logger.
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// Watcher converts filesystem change events under a plugin directory into
// validated Events on a small bounded channel. Duplicate events are
// benign (the same hash produces the same Loader outcome); dropped events
// recover on the next change, so the channel is allowed to be lossy under
// backpressure.
type Watcher struct {
	policy SecurityPolicy
	events chan Event
	logger *slog.Logger

	lastSeen map[string]time.Time
}

// NewWatcher returns a Watcher that will validate events against policy.
func NewWatcher(policy SecurityPolicy, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		policy:   policy,
		events:   make(chan Event, 8),
		logger:   discardLogger,
		lastSeen: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Events returns the channel Events are published on.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Run watches dir recursively until ctx is cancelled. It is single-task:
// callers should run it on its own goroutine.
func (w *Watcher) Run(ctx context.Context, dir string) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := addRecursive(fw, dir); err != nil {
		return err
	}
	w.logger.Info("plugin hot-reload watcher started", "dir", dir)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// A directory created under the watch root extends the
			// recursive watch; it is not a plugin candidate itself.
			if ev.Op&fsnotify.Create != 0 {
				if info, err := statFile(ev.Name); err == nil && info.IsDir() {
					if err := addRecursive(fw, ev.Name); err != nil {
						w.logger.Error("failed to watch new directory", "dir", ev.Name, "error", err)
					}
					continue
				}
			}
			w.handleModify(ev.Name)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleModify(path string) {
	now := time.Now()
	if last, seen := w.lastSeen[path]; seen && now.Sub(last) < debounceWindow {
		return
	}
	w.lastSeen[path] = now

	if err := validatePath(path, w.policy); err != nil {
		w.publish(Event{Kind: EventSecurityViolation, Path: path, Reason: err.Error()})
		return
	}
	w.publish(Event{Kind: EventReload, Path: path})
}

func (w *Watcher) publish(e Event) {
	select {
	case w.events <- e:
	default:
		w.logger.Warn("hot-reload event dropped, channel full", "path", e.Path)
	}
}

func validatePath(path string, policy SecurityPolicy) error {
	ext := filepath.Ext(path)
	if !policy.allowsExtension(ext) {
		return &ErrInvalidExtension{Path: path, Extension: ext}
	}
	info, err := statFile(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return &ErrInvalidExtension{Path: path, Extension: "(directory)"}
	}
	return nil
}

func addRecursive(fw *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return fw.Add(path)
		}
		return nil
	})
}
