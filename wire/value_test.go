package wire

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/sbischoff-ai/pygase/gamestate"
	"github.com/sbischoff-ai/pygase/seqnum"
)

func roundTrip(t *testing.T, v any) any {
	t.Helper()
	var buf bytes.Buffer
	if err := EncodeValue(&buf, v); err != nil {
		t.Fatalf("encode(%v): %v", v, err)
	}
	got, err := DecodeValue(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("decode(%v): %v", v, err)
	}
	return got
}

func TestValueRoundTripPrimitives(t *testing.T) {
	cases := []any{
		nil,
		true,
		false,
		int64(0),
		int64(-1),
		int64(1 << 40),
		int64(-(1 << 40)),
		3.5,
		"",
		"hello, world",
		[]byte{1, 2, 3},
	}
	for _, c := range cases {
		got := roundTrip(t, c)
		if !reflect.DeepEqual(got, c) {
			t.Fatalf("got %#v (%T), want %#v (%T)", got, got, c, c)
		}
	}
}

func TestValueRoundTripIntNarrowing(t *testing.T) {
	got := roundTrip(t, int32(42))
	if got != int64(42) {
		t.Fatalf("got %#v, want int64(42)", got)
	}
}

func TestValueRoundTripNested(t *testing.T) {
	v := map[string]any{
		"name":   "unit",
		"hp":     int64(100),
		"items":  []any{"sword", "shield", int64(3)},
		"pos":    3.25,
		"nested": map[string]any{"a": true, "b": nil},
	}
	got := roundTrip(t, v)
	if !reflect.DeepEqual(got, v) {
		t.Fatalf("got %#v, want %#v", got, v)
	}
}

func TestValueRoundTripSeqNum(t *testing.T) {
	v := SeqNum{Width: 2, Value: seqnum.Number(65000)}
	got := roundTrip(t, v)
	sn, ok := got.(SeqNum)
	if !ok {
		t.Fatalf("got %#v, want SeqNum", got)
	}
	if sn != v {
		t.Fatalf("got %+v, want %+v", sn, v)
	}
}

func TestValueRoundTripDeleted(t *testing.T) {
	got := roundTrip(t, gamestate.Deleted)
	if !gamestate.IsDeleted(got) {
		t.Fatalf("got %#v, want TO_DELETE sentinel", got)
	}
}

func TestEncodeValueRejectsUnsupportedType(t *testing.T) {
	var buf bytes.Buffer
	err := EncodeValue(&buf, struct{ X int }{1})
	if err == nil {
		t.Fatal("expected error for unsupported type")
	}
}

func TestDecodeValueUnknownTag(t *testing.T) {
	_, err := DecodeValue(bytes.NewReader([]byte{0xFF}))
	if err != ErrUnknownTag {
		t.Fatalf("err = %v, want ErrUnknownTag", err)
	}
}

func TestDecodeValueTruncatedString(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(tagString)
	putUvarint(&buf, 10)
	buf.WriteString("short")
	_, err := DecodeValue(bytes.NewReader(buf.Bytes()))
	if err != ErrTruncated {
		t.Fatalf("err = %v, want ErrTruncated", err)
	}
}
