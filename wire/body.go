package wire

import (
	"bytes"

	"github.com/sbischoff-ai/pygase/event"
	"github.com/sbischoff-ai/pygase/gamestate"
	"github.com/sbischoff-ai/pygase/seqnum"
)

// encodeEvent and decodeEvent implement spec.md §3's Event shape:
// {type, positional_args, keyword_args}.
func encodeEvent(buf *bytes.Buffer, ev event.Event) error {
	if err := EncodeValue(buf, ev.Type); err != nil {
		return err
	}
	args := make([]any, len(ev.PositionalArgs))
	copy(args, ev.PositionalArgs)
	if err := EncodeValue(buf, args); err != nil {
		return err
	}
	kwargs := make(map[string]any, len(ev.KeywordArgs))
	for k, v := range ev.KeywordArgs {
		kwargs[k] = v
	}
	return EncodeValue(buf, kwargs)
}

func decodeEvent(r *bytes.Reader) (event.Event, error) {
	typeVal, err := DecodeValue(r)
	if err != nil {
		return event.Event{}, err
	}
	typeStr, ok := typeVal.(string)
	if !ok {
		return event.Event{}, ErrDecode
	}

	argsVal, err := DecodeValue(r)
	if err != nil {
		return event.Event{}, err
	}
	args, _ := argsVal.([]any)

	kwargsVal, err := DecodeValue(r)
	if err != nil {
		return event.Event{}, err
	}
	kwargs, _ := kwargsVal.(map[string]any)

	return event.New(typeStr, args, kwargs), nil
}

func encodeEvents(buf *bytes.Buffer, events []event.Event) error {
	putUvarint(buf, uint64(len(events)))
	for _, ev := range events {
		if err := encodeEvent(buf, ev); err != nil {
			return err
		}
	}
	return nil
}

func decodeEvents(r *bytes.Reader) ([]event.Event, error) {
	n, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	events := make([]event.Event, n)
	for i := range events {
		ev, err := decodeEvent(r)
		if err != nil {
			return nil, err
		}
		events[i] = ev
	}
	return events, nil
}

// encodeStateUpdate and decodeStateUpdate encode a gamestate.Update as its
// TimeOrder (a tagged SeqNum value), one raw byte for StatusSet, one raw
// byte for Status, and the attribute map as a tagged map value, so the
// dynamic attribute set round-trips through the same compact codec as
// everything else.
func encodeStateUpdate(buf *bytes.Buffer, u *gamestate.Update, width seqnum.Width) error {
	if err := EncodeValue(buf, SeqNum{Width: width, Value: u.TimeOrder}); err != nil {
		return err
	}
	buf.WriteByte(boolByte(u.StatusSet))
	buf.WriteByte(byte(u.Status))
	attrs := make(map[string]any, len(u.Attrs))
	for k, v := range u.Attrs {
		attrs[k] = v
	}
	return EncodeValue(buf, attrs)
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func decodeStateUpdate(r *bytes.Reader) (*gamestate.Update, error) {
	toVal, err := DecodeValue(r)
	if err != nil {
		return nil, err
	}
	sn, ok := toVal.(SeqNum)
	if !ok {
		return nil, ErrDecode
	}

	statusSetByte, err := r.ReadByte()
	if err != nil {
		return nil, ErrTruncated
	}
	statusByte, err := r.ReadByte()
	if err != nil {
		return nil, ErrTruncated
	}

	attrsVal, err := DecodeValue(r)
	if err != nil {
		return nil, err
	}
	attrs, ok := attrsVal.(map[string]any)
	if !ok {
		return nil, ErrDecode
	}

	return &gamestate.Update{
		TimeOrder: sn.Value,
		Status:    gamestate.Status(statusByte),
		StatusSet: statusSetByte != 0,
		Attrs:     attrs,
	}, nil
}

// Plain is the minimal body shape: just events. It is used as a degenerate
// form of either direction's body when no state information needs to
// travel (spec.md §4.1).
type Plain struct {
	Events []event.Event
}

// Client is the body shape a client connection sends: its last-received
// update's time order, plus events.
type Client struct {
	TimeOrder seqnum.Number
	Events    []event.Event
}

// Server is the body shape a server connection sends: a delta meant to
// catch the client up, plus events.
type Server struct {
	Update *gamestate.Update
	Events []event.Event
}

// EncodePlain, EncodeClient and EncodeServer render a body shape to bytes.
// The caller frames the result with Encode, which prepends Magic and the
// header and enforces the maxSize budget on the whole datagram.
func EncodePlain(body Plain) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeEvents(&buf, body.Events); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func EncodeClient(body Client, width seqnum.Width) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeValue(&buf, SeqNum{Width: width, Value: body.TimeOrder}); err != nil {
		return nil, err
	}
	if err := encodeEvents(&buf, body.Events); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func EncodeServer(body Server, width seqnum.Width) ([]byte, error) {
	var buf bytes.Buffer
	u := body.Update
	if u == nil {
		u = gamestate.NewUpdate(0)
	}
	if err := encodeStateUpdate(&buf, u, width); err != nil {
		return nil, err
	}
	if err := encodeEvents(&buf, body.Events); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodePlain, DecodeClient and DecodeServer parse a body previously
// produced by the matching Encode* function. The caller (the connection
// engine) already knows which shape to expect because the variant is
// implicit from who sent the datagram (spec.md §4.1).
func DecodePlain(body []byte) (Plain, error) {
	events, err := decodeEvents(bytes.NewReader(body))
	if err != nil {
		return Plain{}, ErrDecode
	}
	return Plain{Events: events}, nil
}

func DecodeClient(body []byte) (Client, error) {
	r := bytes.NewReader(body)
	toVal, err := DecodeValue(r)
	if err != nil {
		return Client{}, ErrDecode
	}
	sn, ok := toVal.(SeqNum)
	if !ok {
		return Client{}, ErrDecode
	}
	events, err := decodeEvents(r)
	if err != nil {
		return Client{}, ErrDecode
	}
	return Client{TimeOrder: sn.Value, Events: events}, nil
}

func DecodeServer(body []byte) (Server, error) {
	r := bytes.NewReader(body)
	update, err := decodeStateUpdate(r)
	if err != nil {
		return Server{}, ErrDecode
	}
	events, err := decodeEvents(r)
	if err != nil {
		return Server{}, ErrDecode
	}
	return Server{Update: update, Events: events}, nil
}
