package client

import "errors"

// ErrAlreadyConnected is returned by Connect when called on a client that
// already has a live connection.
var ErrAlreadyConnected = errors.New("pygase: already connected")

// ErrNotConnected is returned by operations that require a live connection
// (DispatchEvent, Disconnect) when none exists.
var ErrNotConnected = errors.New("pygase: not connected")
