package traffic

import "errors"

var (
	// ErrIllegalTransition is returned when an operation is attempted from
	// a state the spec's op table does not permit it in.
	ErrIllegalTransition = errors.New("traffic: illegal state transition")
	// ErrRejected is returned by RouteMessage when the module's state
	// rejects new traffic outright (Draining, Paused).
	ErrRejected = errors.New("traffic: request rejected")
	// ErrUnknownModule names a module with no registered traffic state.
	// Controller does not return it: it creates a module's traffic state
	// on first use.
	ErrUnknownModule = errors.New("traffic: unknown module")
)
