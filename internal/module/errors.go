package module

import "errors"

var (
	// ErrDuplicateID is returned when a load would register an id already
	// present in the registry.
	ErrDuplicateID = errors.New("module: id already registered")
	// ErrNotFound is returned when an operation targets an unregistered id.
	ErrNotFound = errors.New("module: id not found")
	// ErrUnsupportedFormat is returned for an artifact extension the loader
	// does not recognize.
	ErrUnsupportedFormat = errors.New("module: unsupported artifact format")
	// ErrValidationFailed is returned when format-specific pre-load
	// validation rejects an artifact.
	ErrValidationFailed = errors.New("module: validation failed")
	// ErrWasmNotImplemented is returned by the Wasm runtime's Execute and
	// HandleMessage: structural validation is implemented, execution is not
	// (see DESIGN.md's Open Question resolution — the original Rust
	// implementation itself has no working Wasm host).
	ErrWasmNotImplemented = errors.New("module: wasm execution not implemented")
)
