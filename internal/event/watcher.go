package event

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher classifies filesystem changes into raw Events and ingests them
// into a Pipeline. It owns no filtering logic itself — dedup/rate-limit live
// in the Pipeline — it only does the kind classification spec §4.1 leaves
// implicit ("Accepts raw events from external watchers").
type Watcher struct {
	fsw        *fsnotify.Watcher
	pipeline   *Pipeline
	specDirs   []string
	logger     *slog.Logger
	healthTick time.Duration
}

// NewWatcher creates a Watcher rooted under the given directories. specDirs
// names directories (relative to any watched root) whose contents are
// classified as spec-changed rather than code-modified.
func NewWatcher(pipeline *Pipeline, specDirs []string, healthTick time.Duration, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if healthTick <= 0 {
		healthTick = 30 * time.Second
	}
	return &Watcher{
		fsw:        fsw,
		pipeline:   pipeline,
		specDirs:   specDirs,
		logger:     logger.With("component", "watcher"),
		healthTick: healthTick,
	}, nil
}

// Add registers a directory tree root for watching.
func (w *Watcher) Add(root string) error { return w.fsw.Add(root) }

// Run consumes fsnotify events and a health-check timer until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.healthTick)
	defer ticker.Stop()
	defer w.fsw.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.pipeline.Ingest(New(KindHealthCheck, "", time.Now()))
		case fsEvent, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if raw, ok := w.classify(fsEvent); ok {
				w.pipeline.Ingest(raw)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// QueueUserCommand injects a user-command event programmatically, as spec
// §4.1 requires for sources that are not filesystem-driven.
func (w *Watcher) QueueUserCommand(sourcePath string, metadata map[string]string) {
	e := New(KindUserCommand, sourcePath, time.Now())
	for k, v := range metadata {
		e = e.WithMetadata(k, v)
	}
	w.pipeline.Ingest(e)
}

// QueueDependencyUpdate injects a dependency-updated event, fired by a
// go.mod/go.sum watch rather than generic code-modified classification.
func (w *Watcher) QueueDependencyUpdate(path string) {
	w.pipeline.Ingest(New(KindDependencyUpdated, path, time.Now()))
}

func (w *Watcher) classify(fsEvent fsnotify.Event) (Event, bool) {
	if fsEvent.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return Event{}, false
	}

	base := filepath.Base(fsEvent.Name)
	switch {
	case base == "go.mod" || base == "go.sum":
		return New(KindDependencyUpdated, fsEvent.Name, time.Now()), true
	case strings.HasSuffix(base, "_test.go") || strings.Contains(base, "_test."):
		return New(KindTestAdded, fsEvent.Name, time.Now()), true
	case w.underSpecDir(fsEvent.Name):
		return New(KindSpecChanged, fsEvent.Name, time.Now()), true
	case isConfigFile(base):
		return New(KindConfigChanged, fsEvent.Name, time.Now()), true
	default:
		return New(KindCodeModified, fsEvent.Name, time.Now()), true
	}
}

func (w *Watcher) underSpecDir(path string) bool {
	for _, dir := range w.specDirs {
		if strings.HasPrefix(path, dir) {
			return true
		}
	}
	ext := filepath.Ext(path)
	return ext == ".feature" || (ext == ".md" && strings.Contains(path, "spec"))
}

func isConfigFile(base string) bool {
	switch filepath.Ext(base) {
	case ".toml", ".ini":
		return true
	}
	return base == "config.yaml" || base == "config.yml" || base == ".env"
}
