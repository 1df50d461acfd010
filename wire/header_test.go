package wire

import (
	"testing"

	"github.com/sbischoff-ai/pygase/seqnum"
)

func TestHeaderRoundTrip(t *testing.T) {
	width := seqnum.Width(2)
	h := Header{Sequence: 42, Ack: 41, AckBitfield: 0xF0F0F0F0}

	encoded := EncodeHeader(nil, h, width)
	if len(encoded) != HeaderSize(width) {
		t.Fatalf("encoded size = %d, want %d", len(encoded), HeaderSize(width))
	}

	got, rest, err := DecodeHeader(encoded, width)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 0 {
		t.Fatalf("leftover bytes: %d", len(rest))
	}
	if got != h {
		t.Fatalf("got %+v, want %+v", got, h)
	}
}

func TestHeaderSizeMatchesDefaultWidth(t *testing.T) {
	if MagicSize+HeaderSize(2) != 12 {
		t.Fatalf("magic+header at width 2 = %d, want 12", MagicSize+HeaderSize(2))
	}
}

func TestDecodeHeaderTruncated(t *testing.T) {
	_, _, err := DecodeHeader([]byte{1, 2, 3}, 2)
	if err != ErrTruncated {
		t.Fatalf("err = %v, want ErrTruncated", err)
	}
}

func TestHeaderWidthOne(t *testing.T) {
	width := seqnum.Width(1)
	h := Header{Sequence: 200, Ack: 199, AckBitfield: 7}
	encoded := EncodeHeader(nil, h, width)
	got, _, err := DecodeHeader(encoded, width)
	if err != nil {
		t.Fatal(err)
	}
	if got != h {
		t.Fatalf("got %+v, want %+v", got, h)
	}
}
