package store

import "errors"

// ErrClosed is returned by operations attempted on a Store after Close.
var ErrClosed = errors.New("pygase: store closed")
