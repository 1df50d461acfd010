package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/sbischoff-ai/pygase/gamestate"
	"github.com/sbischoff-ai/pygase/seqnum"
)

// Value tags for the compact self-describing body encoding (spec.md §4.1,
// §6). The set of decodable values is exactly the serializable primitive
// set spec.md §6 names, plus the two reserved extensions the spec calls
// out by name: a SequenceNumber tag (for width-exact round trip) and a
// TO_DELETE sentinel tag.
const (
	tagNil byte = iota
	tagTrue
	tagFalse
	tagInt
	tagFloat
	tagString
	tagBytes
	tagArray
	tagMap
	tagSeqNum
	tagDeleted
)

// SeqNum carries a sequence number value tagged with the byte width it was
// produced with, so the codec can preserve width-exact round trip even
// though seqnum.Number itself doesn't remember its width (spec.md §4.1).
type SeqNum struct {
	Width seqnum.Width
	Value seqnum.Number
}

func putUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func readUvarint(r *bytes.Reader) (uint64, error) {
	v, err := binary.ReadUvarint(r)
	if err != nil {
		return 0, ErrTruncated
	}
	return v, nil
}

// EncodeValue appends v's self-describing encoding to buf. v must belong to
// the serializable primitive set (nil, bool, a signed integer type, a
// float type, string, []byte, wire.SeqNum, gamestate.Deleted, or a []any /
// map[string]any nesting of the above). A bare seqnum.Number is rejected
// with an error, since it carries no width.
func EncodeValue(buf *bytes.Buffer, v any) error {
	switch x := v.(type) {
	case nil:
		buf.WriteByte(tagNil)
	case bool:
		if x {
			buf.WriteByte(tagTrue)
		} else {
			buf.WriteByte(tagFalse)
		}
	case int:
		encodeInt(buf, int64(x))
	case int8:
		encodeInt(buf, int64(x))
	case int16:
		encodeInt(buf, int64(x))
	case int32:
		encodeInt(buf, int64(x))
	case int64:
		encodeInt(buf, x)
	case float32:
		encodeFloat(buf, float64(x))
	case float64:
		encodeFloat(buf, x)
	case string:
		buf.WriteByte(tagString)
		putUvarint(buf, uint64(len(x)))
		buf.WriteString(x)
	case []byte:
		buf.WriteByte(tagBytes)
		putUvarint(buf, uint64(len(x)))
		buf.Write(x)
	case seqnum.Number:
		return fmt.Errorf("pygase: bare seqnum.Number has no width, wrap in wire.SeqNum")
	case SeqNum:
		buf.WriteByte(tagSeqNum)
		buf.WriteByte(byte(x.Width))
		dst := appendSeq(nil, x.Value, x.Width)
		buf.Write(dst)
	case []any:
		buf.WriteByte(tagArray)
		putUvarint(buf, uint64(len(x)))
		for _, e := range x {
			if err := EncodeValue(buf, e); err != nil {
				return err
			}
		}
	case map[string]any:
		buf.WriteByte(tagMap)
		putUvarint(buf, uint64(len(x)))
		for k, val := range x {
			putUvarint(buf, uint64(len(k)))
			buf.WriteString(k)
			if err := EncodeValue(buf, val); err != nil {
				return err
			}
		}
	default:
		if gamestate.IsDeleted(v) {
			buf.WriteByte(tagDeleted)
			return nil
		}
		return fmt.Errorf("pygase: value of type %T is not in the serializable primitive set", v)
	}
	return nil
}

func encodeInt(buf *bytes.Buffer, v int64) {
	buf.WriteByte(tagInt)
	// zigzag varint: compact for small magnitudes, exact for the full int64 range.
	putUvarint(buf, uint64((v<<1)^(v>>63)))
}

func encodeFloat(buf *bytes.Buffer, v float64) {
	buf.WriteByte(tagFloat)
	var tmp [8]byte
	be.PutUint64(tmp[:], math.Float64bits(v))
	buf.Write(tmp[:])
}

// DecodeValue reads one self-describing value from r.
func DecodeValue(r *bytes.Reader) (any, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return nil, ErrTruncated
	}
	switch tag {
	case tagNil:
		return nil, nil
	case tagTrue:
		return true, nil
	case tagFalse:
		return false, nil
	case tagInt:
		u, err := readUvarint(r)
		if err != nil {
			return nil, err
		}
		return int64(u>>1) ^ -int64(u&1), nil
	case tagFloat:
		var tmp [8]byte
		if _, err := io.ReadFull(r, tmp[:]); err != nil {
			return nil, ErrTruncated
		}
		return math.Float64frombits(be.Uint64(tmp[:])), nil
	case tagString:
		n, err := readUvarint(r)
		if err != nil {
			return nil, err
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, ErrTruncated
		}
		return string(b), nil
	case tagBytes:
		n, err := readUvarint(r)
		if err != nil {
			return nil, err
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, ErrTruncated
		}
		return b, nil
	case tagSeqNum:
		width, err := r.ReadByte()
		if err != nil {
			return nil, ErrTruncated
		}
		buf := make([]byte, width)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, ErrTruncated
		}
		return SeqNum{Width: seqnum.Width(width), Value: readSeq(buf)}, nil
	case tagDeleted:
		return gamestate.Deleted, nil
	case tagArray:
		n, err := readUvarint(r)
		if err != nil {
			return nil, err
		}
		arr := make([]any, n)
		for i := range arr {
			v, err := DecodeValue(r)
			if err != nil {
				return nil, err
			}
			arr[i] = v
		}
		return arr, nil
	case tagMap:
		n, err := readUvarint(r)
		if err != nil {
			return nil, err
		}
		m := make(map[string]any, n)
		for i := uint64(0); i < n; i++ {
			klen, err := readUvarint(r)
			if err != nil {
				return nil, err
			}
			kb := make([]byte, klen)
			if _, err := io.ReadFull(r, kb); err != nil {
				return nil, ErrTruncated
			}
			v, err := DecodeValue(r)
			if err != nil {
				return nil, err
			}
			m[string(kb)] = v
		}
		return m, nil
	default:
		return nil, ErrUnknownTag
	}
}
