package module

import (
	"context"
	"fmt"
	"log/slog"
)

// Loader loads, unloads and reloads modules from disk, validating bytes
// before instantiation and leaving the registry untouched on any failure
// (spec §4.3: "any failure at any step leaves the registry in its
// pre-call state").
type Loader struct {
	registry *Registry
	native   NativeFactory
	logger   *slog.Logger
}

// NewLoader returns a Loader backed by registry. native supplies the
// construction strategy for .so/.dll/.dylib artifacts (see NativeFactory).
func NewLoader(registry *Registry, native NativeFactory, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{registry: registry, native: native, logger: logger.With("component", "module_loader")}
}

// Load validates path, instantiates the module, initializes it (one-shot
// async call) and registers it under id. On any step's failure the
// registry is left exactly as it was.
func (l *Loader) Load(ctx context.Context, id, path string) (*Loaded, error) {
	if _, exists := l.registry.Get(id); exists {
		return nil, ErrDuplicateID
	}

	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	if err := ValidatorFor(format).Validate(path); err != nil {
		return nil, err
	}

	meta, err := LoadMetadata(MetadataPath(path))
	if err != nil {
		return nil, err
	}

	instance, err := l.instantiate(format, path, meta)
	if err != nil {
		return nil, err
	}

	if err := instance.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("module: initialize %s: %w", id, err)
	}

	loaded := &Loaded{ID: id, Instance: instance, Path: path, Format: format}
	loaded.LoadedAt = nowFunc()
	if err := l.registry.Register(loaded); err != nil {
		_ = instance.Shutdown(ctx)
		return nil, err
	}

	l.logger.Info("module loaded", "id", id, "format", format, "path", path)
	return loaded, nil
}

// Unload shuts down the module gracefully and removes it from the registry.
func (l *Loader) Unload(ctx context.Context, id string) error {
	loaded, ok := l.registry.Get(id)
	if !ok {
		return ErrNotFound
	}
	if err := loaded.Instance.Shutdown(ctx); err != nil {
		return fmt.Errorf("module: shutdown %s: %w", id, err)
	}
	l.registry.Remove(id)
	l.logger.Info("module unloaded", "id", id)
	return nil
}

// Reload captures state via the module interface, unloads the old
// instance, loads the new version from newPath, and restores state via the
// interface. Any failure leaves the registry in its pre-call state: on a
// mid-sequence error the old instance is kept registered.
func (l *Loader) Reload(ctx context.Context, id, newPath string) (*Loaded, error) {
	old, ok := l.registry.Get(id)
	if !ok {
		return nil, ErrNotFound
	}

	state, err := old.Instance.GetState()
	if err != nil {
		return nil, fmt.Errorf("module: capture state for reload %s: %w", id, err)
	}

	format, err := DetectFormat(newPath)
	if err != nil {
		return nil, err
	}
	if err := ValidatorFor(format).Validate(newPath); err != nil {
		return nil, err
	}
	meta, err := LoadMetadata(MetadataPath(newPath))
	if err != nil {
		return nil, err
	}

	next, err := l.instantiate(format, newPath, meta)
	if err != nil {
		return nil, err
	}
	if err := next.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("module: initialize reloaded %s: %w", id, err)
	}
	if err := next.RestoreState(state); err != nil {
		_ = next.Shutdown(ctx)
		return nil, fmt.Errorf("module: restore state for %s: %w", id, err)
	}

	if err := old.Instance.Shutdown(ctx); err != nil {
		l.logger.Warn("old instance shutdown failed during reload", "id", id, "error", err)
	}

	replacement := &Loaded{ID: id, Instance: next, Path: newPath, Format: format, LoadedAt: nowFunc()}
	if err := l.registry.Replace(id, replacement); err != nil {
		return nil, err
	}
	return replacement, nil
}

func (l *Loader) instantiate(format Format, path string, meta Metadata) (Interface, error) {
	if format == FormatWasm {
		return newWasmRuntime(meta), nil
	}
	if l.native == nil {
		return nil, fmt.Errorf("module: no native factory registered for %s", path)
	}
	return l.native(path, meta)
}

// nowFunc is a seam for tests; production code never overrides it.
var nowFunc = defaultNow
