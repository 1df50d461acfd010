package conn

import "errors"

// Errors correspond to spec.md §7's taxonomy entries for the connection
// engine.
var (
	// ErrDuplicateSequence is returned by receive for a datagram whose
	// sequence has already been accounted for.
	ErrDuplicateSequence = errors.New("pygase: duplicate sequence number")

	// ErrDead is returned by the sender loop once a connection has gone
	// unresponsive for longer than the configured dead timeout.
	ErrDead = errors.New("pygase: connection timed out")
)
