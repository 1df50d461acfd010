// Package conn implements the connection engine spec.md §4.2 describes:
// per-peer sequence/ack bookkeeping, a two-state congestion quality
// machine, and reliable-event dispatch with ack/retry/timeout semantics.
// It is shared by both the server's per-client connections and the
// client's single connection to its server; callers supply the
// direction-specific body shape through the buildBody/parseBody functions
// passed to New.
package conn

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sbischoff-ai/pygase/config"
	"github.com/sbischoff-ai/pygase/event"
	"github.com/sbischoff-ai/pygase/gacelog"
	"github.com/sbischoff-ai/pygase/sched"
	"github.com/sbischoff-ai/pygase/seqnum"
	"github.com/sbischoff-ai/pygase/wire"
)

// Status is a connection's liveness state (spec.md §4.2).
type Status int

const (
	Disconnected Status = iota
	Connecting
	Connected
)

func (s Status) String() string {
	switch s {
	case Connected:
		return "Connected"
	case Connecting:
		return "Connecting"
	default:
		return "Disconnected"
	}
}

// Quality is the congestion-avoidance state driving the sender's tick
// rate (spec.md §4.2).
type Quality int

const (
	Good Quality = iota
	Bad
)

func (q Quality) String() string {
	if q == Bad {
		return "Bad"
	}
	return "Good"
}

type sendRecord struct {
	sentAt      time.Time
	callbackIDs []uint64
}

type eventCallbacks struct {
	ev              event.Event
	ackCallback     func()
	timeoutCallback func()
	retriesLeft     int
}

type outgoingEvent struct {
	ev         event.Event
	callbackID uint64
}

// Conn is one end of a connection: it owns sequence/ack bookkeeping, the
// congestion quality machine, and the pending-event ack/retry table. It
// knows nothing about sockets; Send and the body codec are injected.
type Conn struct {
	id     string
	width  seqnum.Width
	cfg    config.Config
	logger gacelog.Logger

	send      func(datagram []byte) error
	buildBody func(events []event.Event) ([]byte, error)
	parseBody func(body []byte) ([]event.Event, error)
	onEvent   func(ev event.Event)

	mu             sync.Mutex
	localSequence  seqnum.Number
	remoteSequence seqnum.Number
	ackBitfield    uint32
	latency        time.Duration
	status         Status
	lastRecv       time.Time

	quality           Quality
	badHold           time.Duration
	goodHold          time.Duration
	badSince          time.Time
	goodSince         time.Time
	lastQualityChange time.Time

	pendingSends   map[seqnum.Number]sendRecord
	nextCallbackID uint64
	callbacks      map[uint64]*eventCallbacks
	outgoing       []outgoingEvent
}

// New returns a Conn in Connecting status, ready to have its three
// cooperative loops (RunReceiver, RunSender, RunRetrySupervisor) started.
//
// send transmits one already-framed datagram. buildBody renders the
// direction-specific body shape (Plain/Client/Server) from the events due
// to go out this tick. parseBody does the reverse for a received body.
// onEvent is invoked, in datagram order, for every event a received body
// carries.
func New(width seqnum.Width, cfg config.Config, logger gacelog.Logger, send func([]byte) error, buildBody func([]event.Event) ([]byte, error), parseBody func([]byte) ([]event.Event, error), onEvent func(event.Event)) *Conn {
	if logger == nil {
		logger = gacelog.Nop{}
	}
	id := uuid.New().String()
	now := time.Now()
	return &Conn{
		id:                id,
		width:             width,
		cfg:               cfg,
		logger:            gacelog.WithFields(logger, "conn_id", id),
		send:              send,
		buildBody:         buildBody,
		parseBody:         parseBody,
		onEvent:           onEvent,
		status:            Connecting,
		lastRecv:          now,
		quality:           Good,
		badHold:           cfg.BadHold,
		goodHold:          cfg.GoodHold,
		lastQualityChange: now,
		pendingSends:      map[seqnum.Number]sendRecord{},
		callbacks:         map[uint64]*eventCallbacks{},
	}
}

// ID returns the connection's diagnostic identifier, stable for its
// lifetime and attached to every log line it emits.
func (c *Conn) ID() string {
	return c.id
}

// Status reports the connection's current liveness state.
func (c *Conn) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Quality reports the connection's current congestion state.
func (c *Conn) Quality() Quality {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quality
}

// Latency returns the current smoothed round-trip-time estimate.
func (c *Conn) Latency() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latency
}

// DispatchEvent queues ev for the next outgoing datagram. ackCallback, if
// non-nil, fires once the datagram carrying ev is acknowledged.
// timeoutCallback, if non-nil, fires once retries are exhausted without an
// ack. retries bounds the total number of sends: each time a send goes
// unacknowledged past the event timeout, retries is decremented and the
// event is re-sent only while it stays positive, so retries <= 1 means a
// single send (spec.md §4.2).
func (c *Conn) DispatchEvent(ev event.Event, ackCallback, timeoutCallback func(), retries int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var id uint64
	if ackCallback != nil || timeoutCallback != nil || retries > 0 {
		c.nextCallbackID++
		id = c.nextCallbackID
		c.callbacks[id] = &eventCallbacks{ev: ev, ackCallback: ackCallback, timeoutCallback: timeoutCallback, retriesLeft: retries}
	}
	c.outgoing = append(c.outgoing, outgoingEvent{ev: ev, callbackID: id})
}

// tickInterval returns the sender's current tick period, driven by
// quality (spec.md §4.2: Good 40 Hz, Bad 5 Hz by default).
func (c *Conn) tickInterval() time.Duration {
	c.mu.Lock()
	rate := c.cfg.GoodRateHz
	if c.quality == Bad {
		rate = c.cfg.BadRateHz
	}
	c.mu.Unlock()
	if rate <= 0 {
		rate = 1
	}
	return time.Duration(float64(time.Second) / rate)
}

// tick assembles and sends the next outgoing datagram, fitting as many
// queued events as the configured max datagram size allows.
func (c *Conn) tick() error {
	c.mu.Lock()
	batch := append([]outgoingEvent(nil), c.outgoing...)
	c.mu.Unlock()

	for {
		events := make([]event.Event, len(batch))
		for i, oe := range batch {
			events[i] = oe.ev
		}
		body, err := c.buildBody(events)
		if err != nil {
			return err
		}

		c.mu.Lock()
		header := wire.Header{Sequence: c.localSequence.Next(c.width), Ack: c.remoteSequence, AckBitfield: c.ackBitfield}
		width := c.width
		maxSize := c.cfg.MaxDatagramSize
		c.mu.Unlock()

		datagram, err := wire.Encode(header, width, body, maxSize)
		if err == nil {
			c.mu.Lock()
			c.localSequence = header.Sequence
			callbackIDs := make([]uint64, 0, len(batch))
			for _, oe := range batch {
				if oe.callbackID != 0 {
					callbackIDs = append(callbackIDs, oe.callbackID)
				}
			}
			c.pendingSends[header.Sequence] = sendRecord{sentAt: time.Now(), callbackIDs: callbackIDs}
			c.outgoing = c.outgoing[len(batch):]
			c.mu.Unlock()

			return c.send(datagram)
		}
		if !errors.Is(err, wire.ErrSizeOverflow) {
			return err
		}
		if len(batch) == 0 {
			return err
		}
		batch = batch[:len(batch)-1]
	}
}

// receive processes one decoded datagram: bookkeeping, ack resolution,
// latency update and event dispatch (spec.md §4.2).
func (c *Conn) receive(data []byte, now time.Time) error {
	header, body, err := wire.Decode(data, c.width)
	if err != nil {
		return err
	}

	events, err := c.parseBody(body)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if err := c.updateRemoteInfo(header.Sequence); err != nil {
		c.mu.Unlock()
		return err
	}
	c.lastRecv = now
	c.status = Connected
	c.resolveAcks(header.Ack, header.AckBitfield, now)
	c.mu.Unlock()

	for _, ev := range events {
		c.onEvent(ev)
	}
	return nil
}

// updateRemoteInfo implements spec.md §4.2 step 1-2. Caller holds c.mu.
func (c *Conn) updateRemoteInfo(seq seqnum.Number) error {
	if c.remoteSequence.IsZero() {
		c.remoteSequence = seq
		return nil
	}

	diff := seq.Diff(c.remoteSequence, c.width)
	switch {
	case diff == 0:
		return ErrDuplicateSequence
	case diff > 0:
		if diff > 32 {
			c.ackBitfield = 0
		} else {
			c.ackBitfield = (c.ackBitfield << uint(diff)) | (1 << uint(diff-1))
		}
		c.remoteSequence = seq
		return nil
	default:
		d := uint(-diff)
		if d > 32 {
			return nil
		}
		bit := uint32(1) << (d - 1)
		if c.ackBitfield&bit != 0 {
			return ErrDuplicateSequence
		}
		c.ackBitfield |= bit
		return nil
	}
}

// resolveAcks implements spec.md §4.2 step 3-4. Caller holds c.mu.
func (c *Conn) resolveAcks(ack seqnum.Number, bitfield uint32, now time.Time) {
	var acked []seqnum.Number
	for seq := range c.pendingSends {
		if seq == ack {
			acked = append(acked, seq)
			continue
		}
		diff := ack.Diff(seq, c.width)
		if diff > 0 && diff <= 32 {
			bit := uint32(1) << uint(diff-1)
			if bitfield&bit != 0 {
				acked = append(acked, seq)
			}
		}
	}

	for _, seq := range acked {
		rec := c.pendingSends[seq]
		c.updateLatency(now.Sub(rec.sentAt))
		for _, id := range rec.callbackIDs {
			cb, ok := c.callbacks[id]
			if !ok {
				continue
			}
			if cb.ackCallback != nil {
				cb.ackCallback()
			}
			delete(c.callbacks, id)
		}
		delete(c.pendingSends, seq)
	}
}

func (c *Conn) updateLatency(rtt time.Duration) {
	if c.latency == 0 {
		c.latency = rtt
		return
	}
	c.latency = time.Duration(0.9*float64(c.latency) + 0.1*float64(rtt))
}

// checkLiveness reverts status to Connecting past the idle timeout and
// reports false past the dead timeout, at which point the owner must tear
// the connection down (spec.md §4.2).
func (c *Conn) checkLiveness(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	since := now.Sub(c.lastRecv)
	if since > c.cfg.DeadTimeout {
		c.status = Disconnected
		return false
	}
	if since > c.cfg.IdleTimeout {
		c.status = Connecting
	}
	return true
}

// retryPending scans for timed-out sends, retransmitting or declaring
// their reliable events lost (spec.md §4.2's retry supervisor).
func (c *Conn) retryPending(now time.Time) {
	c.mu.Lock()
	var expired []seqnum.Number
	for seq, rec := range c.pendingSends {
		if now.Sub(rec.sentAt) > c.cfg.EventTimeout {
			expired = append(expired, seq)
		}
	}

	var toRequeue []outgoingEvent
	var toTimeout []*eventCallbacks
	for _, seq := range expired {
		rec := c.pendingSends[seq]
		delete(c.pendingSends, seq)
		for _, id := range rec.callbackIDs {
			cb, ok := c.callbacks[id]
			if !ok {
				continue
			}
			cb.retriesLeft--
			if cb.retriesLeft > 0 {
				toRequeue = append(toRequeue, outgoingEvent{ev: cb.ev, callbackID: id})
			} else {
				toTimeout = append(toTimeout, cb)
				delete(c.callbacks, id)
			}
		}
	}
	c.outgoing = append(c.outgoing, toRequeue...)
	c.mu.Unlock()

	for _, cb := range toTimeout {
		if cb.timeoutCallback != nil {
			cb.timeoutCallback()
		}
	}
}

// DrainTimeouts fires timeoutCallback for every reliable event still
// awaiting an ack, then clears all pending-send and outgoing-event state.
// It is idempotent: calling it on an already-drained connection is a
// no-op. Callers tear a connection down through this method — on the
// dead-connection path (spec.md §4.2, §7 PeerDead) and on explicit
// Shutdown/Disconnect (spec.md §4.6, §4.7) — so no reliable event is ever
// silently forgotten.
func (c *Conn) DrainTimeouts() {
	c.mu.Lock()
	toTimeout := make([]*eventCallbacks, 0, len(c.callbacks))
	for id, cb := range c.callbacks {
		toTimeout = append(toTimeout, cb)
		delete(c.callbacks, id)
	}
	c.pendingSends = map[seqnum.Number]sendRecord{}
	c.outgoing = nil
	c.mu.Unlock()

	for _, cb := range toTimeout {
		if cb.timeoutCallback != nil {
			cb.timeoutCallback()
		}
	}
}

// updateQuality runs the two-state congestion machine, applying
// multiplicative hold-time dampening on repeated oscillation (spec.md
// §4.2).
func (c *Conn) updateQuality(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	threshold := c.cfg.LatencyThreshold

	switch c.quality {
	case Good:
		if c.latency > threshold {
			if c.badSince.IsZero() {
				c.badSince = now
			} else if now.Sub(c.badSince) >= c.badHold {
				c.quality = Bad
				c.badSince = time.Time{}
				if now.Sub(c.lastQualityChange) < c.badHold {
					c.badHold = minDuration(c.badHold*2, c.cfg.MaxHold)
				}
				c.lastQualityChange = now
			}
		} else {
			c.badSince = time.Time{}
		}
	case Bad:
		if c.latency < threshold {
			if c.goodSince.IsZero() {
				c.goodSince = now
			} else if now.Sub(c.goodSince) >= c.goodHold {
				c.quality = Good
				c.goodSince = time.Time{}
				c.goodHold = maxDuration(c.goodHold/2, c.cfg.MinHold)
				c.lastQualityChange = now
			}
		} else {
			c.goodSince = time.Time{}
		}
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

// Flush sends one datagram immediately with whatever events are currently
// queued, instead of waiting for the sender loop's next scheduled tick.
// Callers use this to give a reliable event (e.g. the reserved shutdown
// event) a chance to go out before tearing the connection down.
func (c *Conn) Flush() error {
	return c.tick()
}

// RunReceiver pulls decoded-ready datagrams off incoming and feeds them
// through receive until ctx is canceled or incoming is closed.
func (c *Conn) RunReceiver(ctx context.Context, incoming <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-incoming:
			if !ok {
				return nil
			}
			if err := c.receive(data, time.Now()); err != nil {
				c.logger.Warn("dropping datagram", "error", err)
			}
		}
	}
}

// RunSender ticks at the quality-determined rate, sending one datagram per
// tick, until ctx is canceled or the connection is declared dead.
func (c *Conn) RunSender(ctx context.Context) error {
	for {
		if !sched.Sleep(ctx, c.tickInterval()) {
			return ctx.Err()
		}
		if err := c.tick(); err != nil {
			c.logger.Warn("send failed", "error", err)
		}
		if !c.checkLiveness(time.Now()) {
			c.DrainTimeouts()
			return ErrDead
		}
	}
}

// RunRetrySupervisor periodically scans for timed-out sends and updates
// the congestion quality machine, until ctx is canceled.
func (c *Conn) RunRetrySupervisor(ctx context.Context) error {
	interval := c.cfg.MinHold / 2
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	for {
		if !sched.Sleep(ctx, interval) {
			return ctx.Err()
		}
		now := time.Now()
		c.retryPending(now)
		c.updateQuality(now)
	}
}
