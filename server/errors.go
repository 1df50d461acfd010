package server

import "errors"

// ErrUnknownClient is returned by DispatchEvent when targeting an address
// that has no active connection.
var ErrUnknownClient = errors.New("pygase: unknown client address")

// ErrNotHostClient is surfaced (as a diagnostic, never as a panic) when a
// non-host client attempts the reserved shutdown event.
var ErrNotHostClient = errors.New("pygase: only the host client may trigger shutdown")
