package wire

import (
	"encoding/binary"

	"github.com/sbischoff-ai/pygase/seqnum"
)

var be = binary.BigEndian

// Magic is the fixed 4-byte protocol identifier prepended to every
// datagram. Receivers drop datagrams whose first 4 bytes differ.
var Magic = [4]byte{'P', 'G', 'S', 1}

const MagicSize = len(Magic)

// bitfieldSize is the fixed width of the ack bitfield field, independent of
// the sequence number width.
const bitfieldSize = 4

// HeaderSize returns the byte size of the Header for a given sequence
// number width: width bytes for Sequence, width bytes for Ack, plus the
// fixed 4-byte ack bitfield. At the spec's default width of 2 this is 8
// bytes, so that MagicSize+HeaderSize(2) == 12 — the datagram prefix size
// spec.md §4.1 names (see DESIGN.md for why that 12 is attributed to the
// combined magic+header rather than the header alone: original_source's
// Package.to_datagram lays out exactly protocol_id(4)+sequence(2)+ack(2)+
// ack_bitfield(4) = 12 bytes total).
func HeaderSize(width seqnum.Width) int {
	return int(width)*2 + bitfieldSize
}

// Header carries the three per-datagram bookkeeping fields described in
// spec.md §3/§4.2.
type Header struct {
	Sequence    seqnum.Number
	Ack         seqnum.Number
	AckBitfield uint32
}

// EncodeHeader appends h's wire representation to dst and returns the
// extended slice.
func EncodeHeader(dst []byte, h Header, width seqnum.Width) []byte {
	dst = appendSeq(dst, h.Sequence, width)
	dst = appendSeq(dst, h.Ack, width)
	var bf [bitfieldSize]byte
	be.PutUint32(bf[:], h.AckBitfield)
	return append(dst, bf[:]...)
}

func appendSeq(dst []byte, n seqnum.Number, width seqnum.Width) []byte {
	buf := make([]byte, width)
	v := uint64(n)
	for i := int(width) - 1; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
	return append(dst, buf...)
}

// DecodeHeader parses a Header from the start of data and returns the
// remainder of data following the header.
func DecodeHeader(data []byte, width seqnum.Width) (Header, []byte, error) {
	if len(data) < HeaderSize(width) {
		return Header{}, nil, ErrTruncated
	}
	seq := readSeq(data[:width])
	data = data[width:]
	ack := readSeq(data[:width])
	data = data[width:]
	bf := be.Uint32(data[:bitfieldSize])
	data = data[bitfieldSize:]
	return Header{Sequence: seq, Ack: ack, AckBitfield: bf}, data, nil
}

func readSeq(b []byte) seqnum.Number {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return seqnum.Number(v)
}
