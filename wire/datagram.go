package wire

import (
	"bytes"

	"github.com/sbischoff-ai/pygase/seqnum"
)

// Encode combines Magic, an encoded Header and an already-rendered body into
// one datagram, rejecting it at encode time if it would exceed maxSize
// (spec.md §4.1: "a single datagram MUST NOT exceed the configured max
// size; attempting to encode an over-size package is an encode-time error
// and the caller must split or drop events").
func Encode(h Header, width seqnum.Width, body []byte, maxSize int) ([]byte, error) {
	total := MagicSize + HeaderSize(width) + len(body)
	if total > maxSize {
		return nil, ErrSizeOverflow
	}

	dst := make([]byte, 0, total)
	dst = append(dst, Magic[:]...)
	dst = EncodeHeader(dst, h, width)
	dst = append(dst, body...)
	return dst, nil
}

// Decode splits a received datagram into its Header and body, verifying the
// protocol magic first.
func Decode(data []byte, width seqnum.Width) (Header, []byte, error) {
	if len(data) < MagicSize {
		return Header{}, nil, ErrTruncated
	}
	if !bytes.Equal(data[:MagicSize], Magic[:]) {
		return Header{}, nil, ErrProtocolMismatch
	}
	return DecodeHeader(data[MagicSize:], width)
}
