package event

import "errors"

// ErrNoHandler is returned by UniversalEventHandler.Handle for an
// unregistered event type (spec.md §7's NoHandler taxonomy entry).
var ErrNoHandler = errors.New("pygase: no handler registered for event type")
