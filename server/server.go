// Package server implements the backend façade of spec.md §4.6: a UDP
// listener that maps peer addresses onto conn.Conn instances, the first of
// which becomes the host client, forwarding received events both to a
// server-side receive-path handler registry and to the state machine's
// event queue.
package server

import (
	"context"
	"net"
	"sync"

	"github.com/sbischoff-ai/pygase/conn"
	"github.com/sbischoff-ai/pygase/config"
	"github.com/sbischoff-ai/pygase/event"
	"github.com/sbischoff-ai/pygase/gacelog"
	"github.com/sbischoff-ai/pygase/sched"
	"github.com/sbischoff-ai/pygase/seqnum"
	"github.com/sbischoff-ai/pygase/statemachine"
	"github.com/sbischoff-ai/pygase/store"
	"github.com/sbischoff-ai/pygase/wire"
)

const maxPacketSize = 65507

// peer bundles one client's connection engine with the server-side
// bookkeeping the wire codec needs (its last-known time_order) that
// conn.Conn itself is agnostic to.
type peer struct {
	addr     string
	udp      *net.UDPAddr
	c        *conn.Conn
	incoming chan []byte

	mu                  sync.Mutex
	lastClientTimeOrder seqnum.Number
}

// Server is the backend half of a PyGase session (spec.md §4.6).
type Server struct {
	socket *net.UDPConn
	cfg    config.Config
	width  seqnum.Width
	store  *store.Store
	machine *statemachine.Machine
	logger gacelog.Logger

	handlers *event.UniversalEventHandler

	mu         sync.RWMutex
	peers      map[string]*peer
	hostClient string

	group *sched.Group
}

// New binds a UDP socket at addr ("host:port"; port 0 means OS-assigned)
// and returns a Server backed by store and driven by machine. Start the
// simulation loop on machine separately; Server only owns the network
// side.
func New(addr string, cfg config.Config, width seqnum.Width, s *store.Store, machine *statemachine.Machine, logger gacelog.Logger) (*Server, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	socket, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = gacelog.Nop{}
	}
	return &Server{
		socket:   socket,
		cfg:      cfg,
		width:    width,
		store:    s,
		machine:  machine,
		logger:   logger,
		handlers: event.NewUniversalEventHandler(),
		peers:    map[string]*peer{},
	}, nil
}

// LocalAddr returns the socket's bound address, useful when the caller
// requested an OS-assigned port.
func (srv *Server) LocalAddr() net.Addr {
	return srv.socket.LocalAddr()
}

// RegisterEventHandler installs a server-side handler that runs on the
// receive path, distinct from handlers registered on the state machine
// which run in the simulation loop (spec.md §4.6).
func (srv *Server) RegisterEventHandler(eventType string, h event.Handler) {
	srv.handlers.Register(eventType, h)
}

// DispatchEvent enqueues ev on the connection for targetAddr, or on every
// connection if targetAddr is empty ("all", spec.md §4.6).
func (srv *Server) DispatchEvent(ev event.Event, targetAddr string, ackCallback, timeoutCallback func(), retries int) error {
	srv.mu.RLock()
	defer srv.mu.RUnlock()

	if targetAddr == "" {
		for _, p := range srv.peers {
			p.c.DispatchEvent(ev, ackCallback, timeoutCallback, retries)
		}
		return nil
	}

	p, ok := srv.peers[targetAddr]
	if !ok {
		return ErrUnknownClient
	}
	p.c.DispatchEvent(ev, ackCallback, timeoutCallback, retries)
	return nil
}

// Clients returns the addresses of all currently connected peers.
func (srv *Server) Clients() []string {
	srv.mu.RLock()
	defer srv.mu.RUnlock()
	addrs := make([]string, 0, len(srv.peers))
	for addr := range srv.peers {
		addrs = append(addrs, addr)
	}
	return addrs
}

// HostClient returns the address of the first client to connect, the only
// one permitted to trigger the reserved shutdown event (spec.md §4.6).
func (srv *Server) HostClient() string {
	srv.mu.RLock()
	defer srv.mu.RUnlock()
	return srv.hostClient
}

// Serve reads datagrams off the socket and routes them to per-peer
// connections, starting each new connection's receiver, sender and
// retry-supervisor loops, until ctx is canceled or Shutdown closes the
// socket. It returns once the read loop has exited; the per-peer loops run
// detached under the same context and are not waited for.
func (srv *Server) Serve(ctx context.Context) error {
	srv.group = sched.NewGroup(ctx)
	srv.group.Go(srv.readLoop)
	err := srv.group.Wait()
	if err == context.Canceled {
		return nil
	}
	return err
}

// Shutdown stops every connection's tasks, draining each one's pending
// reliable events so their timeout callbacks fire rather than being
// silently forgotten, then closes the socket. This causes Serve to
// return.
func (srv *Server) Shutdown() {
	if srv.group != nil {
		srv.group.Cancel()
	}

	srv.mu.RLock()
	peers := make([]*peer, 0, len(srv.peers))
	for _, p := range srv.peers {
		peers = append(peers, p)
	}
	srv.mu.RUnlock()
	for _, p := range peers {
		p.c.DrainTimeouts()
	}

	_ = srv.socket.Close()
}

func (srv *Server) readLoop(ctx context.Context) error {
	buf := make([]byte, maxPacketSize)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, udpAddr, err := srv.socket.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			srv.logger.Error("server: read failed", "error", err)
			continue
		}

		datagram := make([]byte, n)
		copy(datagram, buf[:n])

		p := srv.peerFor(udpAddr)
		select {
		case p.incoming <- datagram:
		default:
			srv.logger.Debug("server: dropping datagram, peer queue full", "peer", p.addr)
		}
	}
}

// peerFor returns the connection for udpAddr, creating one (and
// designating it host client if it is the first) on first contact.
func (srv *Server) peerFor(udpAddr *net.UDPAddr) *peer {
	addr := udpAddr.String()

	srv.mu.RLock()
	p, ok := srv.peers[addr]
	srv.mu.RUnlock()
	if ok {
		return p
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if p, ok := srv.peers[addr]; ok {
		return p
	}

	p = &peer{addr: addr, udp: udpAddr, incoming: make(chan []byte, 64)}
	p.c = conn.New(srv.width, srv.cfg, srv.logger,
		func(datagram []byte) error {
			_, err := srv.socket.WriteToUDP(datagram, udpAddr)
			return err
		},
		func(events []event.Event) ([]byte, error) {
			p.mu.Lock()
			update := srv.store.UpdatesSince(p.lastClientTimeOrder)
			p.mu.Unlock()
			return wire.EncodeServer(wire.Server{Update: update, Events: events}, srv.width)
		},
		func(body []byte) ([]event.Event, error) {
			decoded, err := wire.DecodeClient(body)
			if err != nil {
				return nil, err
			}
			p.mu.Lock()
			p.lastClientTimeOrder = decoded.TimeOrder
			p.mu.Unlock()
			return decoded.Events, nil
		},
		func(ev event.Event) { srv.onEvent(addr, ev) },
	)

	srv.peers[addr] = p
	if srv.hostClient == "" {
		srv.hostClient = addr
	}

	if srv.group != nil {
		// Peer loops run detached from the server's errgroup: one
		// connection going dead (RunSender returns ErrDead) must not
		// tear down every other client's session.
		ctx := srv.group.Context()
		go func() {
			if err := p.c.RunReceiver(ctx, p.incoming); err != nil && ctx.Err() == nil {
				srv.logger.Debug("server: receiver stopped", "peer", p.addr, "error", err)
			}
		}()
		go func() {
			if err := p.c.RunSender(ctx); err != nil && ctx.Err() == nil {
				srv.logger.Info("server: connection lost", "peer", p.addr, "error", err)
				srv.dropPeer(addr)
			}
		}()
		go func() {
			if err := p.c.RunRetrySupervisor(ctx); err != nil && ctx.Err() == nil {
				srv.logger.Debug("server: retry supervisor stopped", "peer", p.addr, "error", err)
			}
		}()
	}

	return p
}

func (srv *Server) dropPeer(addr string) {
	srv.mu.Lock()
	delete(srv.peers, addr)
	if srv.hostClient == addr {
		srv.hostClient = ""
	}
	srv.mu.Unlock()
}

func (srv *Server) onEvent(clientAddr string, ev event.Event) {
	if ev.Type == event.ShutdownType {
		if clientAddr != srv.HostClient() {
			srv.logger.Info("server: rejecting shutdown from non-host client", "peer", clientAddr, "error", ErrNotHostClient)
			return
		}
		srv.logger.Info("server: shutdown requested by host client", "peer", clientAddr)
		if srv.handlers.HasType(ev.Type) {
			_, _ = srv.handlers.Handle(context.Background(), ev, map[string]any{"client_address": clientAddr})
		}
		if srv.machine != nil {
			srv.machine.EventWire(ev, clientAddr)
		}
		go srv.Shutdown()
		return
	}

	if srv.handlers.HasType(ev.Type) {
		if _, err := srv.handlers.Handle(context.Background(), ev, map[string]any{"client_address": clientAddr}); err != nil {
			srv.logger.Error("server: event handler failed", "event", ev.Type, "error", err)
		}
	}
	if srv.machine != nil {
		srv.machine.EventWire(ev, clientAddr)
	}
}
