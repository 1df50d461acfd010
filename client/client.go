// Package client implements the frontend façade of spec.md §4.7: a single
// connection to a backend, a locally mirrored GameState kept current by
// applying every received update, and the same event dispatch/registration
// surface the server exposes.
package client

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/sbischoff-ai/pygase/conn"
	"github.com/sbischoff-ai/pygase/config"
	"github.com/sbischoff-ai/pygase/event"
	"github.com/sbischoff-ai/pygase/gacelog"
	"github.com/sbischoff-ai/pygase/gamestate"
	"github.com/sbischoff-ai/pygase/sched"
	"github.com/sbischoff-ai/pygase/seqnum"
	"github.com/sbischoff-ai/pygase/wire"
)

const maxPacketSize = 65507

// Client is the frontend half of a PyGase session (spec.md §4.7). The zero
// value is not usable; construct with New.
type Client struct {
	width   seqnum.Width
	cfg     config.Config
	logger  gacelog.Logger
	handlers *event.UniversalEventHandler

	stateMu sync.RWMutex
	mirror  *gamestate.State

	mu         sync.Mutex
	socket     *net.UDPConn
	serverAddr *net.UDPAddr
	engine     *conn.Conn
	group      *sched.Group
}

// New returns a disconnected Client with an empty mirrored GameState.
func New(cfg config.Config, width seqnum.Width, logger gacelog.Logger) *Client {
	if logger == nil {
		logger = gacelog.Nop{}
	}
	return &Client{
		width:    width,
		cfg:      cfg,
		logger:   logger,
		handlers: event.NewUniversalEventHandler(),
		mirror:   gamestate.New(),
	}
}

// RegisterEventHandler installs h as the receive-path handler for
// eventType, invoked whenever the backend dispatches a matching event
// (spec.md §4.7).
func (c *Client) RegisterEventHandler(eventType string, h event.Handler) {
	c.handlers.Register(eventType, h)
}

// WithState calls fn with exclusive read access to the mirrored GameState,
// holding the lock for the duration of the call so fn can safely read
// multiple attributes as one consistent snapshot (spec.md §4.7).
func (c *Client) WithState(fn func(state *gamestate.State)) {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	fn(c.mirror)
}

// State returns a defensive copy of the mirrored GameState for callers that
// just want a snapshot rather than a scoped callback.
func (c *Client) State() *gamestate.State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.mirror.Clone()
}

// Connect dials serverAddr over UDP and starts the connection's background
// loops under ctx. It blocks only long enough to resolve the address and
// open the socket; the handshake itself happens asynchronously as
// datagrams are exchanged.
func (c *Client) Connect(ctx context.Context, serverAddr string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.engine != nil {
		return ErrAlreadyConnected
	}

	udpAddr, err := net.ResolveUDPAddr("udp", serverAddr)
	if err != nil {
		return err
	}
	socket, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return err
	}

	c.socket = socket
	c.serverAddr = udpAddr
	c.engine = conn.New(c.width, c.cfg, c.logger,
		func(datagram []byte) error {
			_, err := socket.Write(datagram)
			return err
		},
		func(events []event.Event) ([]byte, error) {
			c.stateMu.RLock()
			timeOrder := c.mirror.TimeOrder
			c.stateMu.RUnlock()
			return wire.EncodeClient(wire.Client{TimeOrder: timeOrder, Events: events}, c.width)
		},
		func(body []byte) ([]event.Event, error) {
			decoded, err := wire.DecodeServer(body)
			if err != nil {
				return nil, err
			}
			if decoded.Update != nil {
				c.stateMu.Lock()
				c.mirror = c.mirror.Apply(decoded.Update, c.width)
				c.stateMu.Unlock()
			}
			return decoded.Events, nil
		},
		c.onEvent,
	)

	c.group = sched.NewGroup(ctx)
	incoming := make(chan []byte, 64)
	c.group.Go(func(ctx context.Context) error { return c.readLoop(ctx, incoming) })
	c.group.Go(func(ctx context.Context) error { return c.engine.RunReceiver(ctx, incoming) })
	c.group.Go(c.engine.RunSender)
	c.group.Go(c.engine.RunRetrySupervisor)

	return nil
}

func (c *Client) readLoop(ctx context.Context, incoming chan<- []byte) error {
	buf := make([]byte, maxPacketSize)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		n, err := c.socket.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		datagram := make([]byte, n)
		copy(datagram, buf[:n])
		select {
		case incoming <- datagram:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) onEvent(ev event.Event) {
	if !c.handlers.HasType(ev.Type) {
		return
	}
	if _, err := c.handlers.Handle(context.Background(), ev, nil); err != nil {
		c.logger.Warn("client: event handler failed", "event", ev.Type, "error", err)
	}
}

// DispatchEvent queues ev for the next outgoing datagram to the backend.
func (c *Client) DispatchEvent(ev event.Event, ackCallback, timeoutCallback func(), retries int) error {
	c.mu.Lock()
	engine := c.engine
	c.mu.Unlock()
	if engine == nil {
		return ErrNotConnected
	}
	engine.DispatchEvent(ev, ackCallback, timeoutCallback, retries)
	return nil
}

// Status reports the connection's current lifecycle state, or
// conn.Disconnected if Connect has never been called.
func (c *Client) Status() conn.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.engine == nil {
		return conn.Disconnected
	}
	return c.engine.Status()
}

// Disconnect tears down the connection. When shutdownServer is true it
// first dispatches the reserved shutdown event, which only succeeds if
// this client is the backend's host client (spec.md §4.7, §6).
func (c *Client) Disconnect(shutdownServer bool) error {
	c.mu.Lock()
	engine := c.engine
	group := c.group
	socket := c.socket
	c.mu.Unlock()
	if engine == nil {
		return ErrNotConnected
	}

	if shutdownServer {
		acked := make(chan struct{}, 1)
		engine.DispatchEvent(event.New(event.ShutdownType, nil, nil), func() {
			select {
			case acked <- struct{}{}:
			default:
			}
		}, nil, 0)
		// Send it now rather than waiting for the sender loop's next
		// scheduled tick, then give the backend a chance to ack before
		// the connection goes away underneath it.
		if err := engine.Flush(); err != nil {
			c.logger.Warn("client: flush of shutdown event failed", "error", err)
		}
		select {
		case <-acked:
		case <-time.After(c.cfg.EventTimeout):
		}
	}

	group.Cancel()
	engine.DrainTimeouts()
	_ = socket.Close()

	c.mu.Lock()
	c.engine = nil
	c.socket = nil
	c.group = nil
	c.mu.Unlock()
	return nil
}
