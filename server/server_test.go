package server

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/sbischoff-ai/pygase/config"
	"github.com/sbischoff-ai/pygase/event"
	"github.com/sbischoff-ai/pygase/gamestate"
	"github.com/sbischoff-ai/pygase/seqnum"
	"github.com/sbischoff-ai/pygase/statemachine"
	"github.com/sbischoff-ai/pygase/store"
	"github.com/sbischoff-ai/pygase/wire"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.EventTimeout = 30 * time.Millisecond
	cfg.TickInterval = 5 * time.Millisecond
	st := store.New(2, cfg.CacheSize)
	machine := statemachine.New(st, 2, cfg.TickInterval, func(*gamestate.State, time.Duration) event.Patch {
		return nil
	}, event.NewUniversalEventHandler(), nil)

	srv, err := New("127.0.0.1:0", cfg, 2, st, machine, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(srv.Shutdown)
	return srv
}

func sendRaw(t *testing.T, conn *net.UDPConn, to *net.UDPAddr, seq seqnum.Number) {
	t.Helper()
	body, err := wire.EncodeClient(wire.Client{TimeOrder: 0, Events: nil}, 2)
	if err != nil {
		t.Fatal(err)
	}
	datagram, err := wire.Encode(wire.Header{Sequence: seq}, 2, body, 2048)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Write(datagram); err != nil {
		t.Fatal(err)
	}
}

func TestFirstConnectingAddressBecomesHostClient(t *testing.T) {
	srv := testServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)

	client, err := net.DialUDP("udp", nil, srv.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	sendRaw(t, client, srv.LocalAddr().(*net.UDPAddr), 1)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && srv.HostClient() == "" {
		time.Sleep(5 * time.Millisecond)
	}
	if srv.HostClient() == "" {
		t.Fatal("expected a host client to be designated")
	}
}

func TestRegisteredHandlerReceivesClientEvent(t *testing.T) {
	srv := testServer(t)

	var mu sync.Mutex
	var seen string
	srv.RegisterEventHandler("PING", event.Sync(func(ctx context.Context, args []any, kwargs map[string]any) (event.Patch, error) {
		mu.Lock()
		seen = kwargs["client_address"].(string)
		mu.Unlock()
		return nil, nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)

	client, err := net.DialUDP("udp", nil, srv.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	body, err := wire.EncodeClient(wire.Client{TimeOrder: 0, Events: []event.Event{event.New("PING", nil, nil)}}, 2)
	if err != nil {
		t.Fatal(err)
	}
	datagram, err := wire.Encode(wire.Header{Sequence: 1}, 2, body, 2048)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := client.Write(datagram); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		got := seen
		mu.Unlock()
		if got != "" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("handler never observed the client event")
}

func TestDispatchEventToUnknownClientFails(t *testing.T) {
	srv := testServer(t)
	err := srv.DispatchEvent(event.New("X", nil, nil), "127.0.0.1:9", nil, nil, 0)
	if err != ErrUnknownClient {
		t.Fatalf("err = %v, want ErrUnknownClient", err)
	}
}

func TestShutdownStopsServe(t *testing.T) {
	srv := testServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	time.Sleep(10 * time.Millisecond)
	srv.Shutdown()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}
}

func TestShutdownFiresOutstandingTimeoutCallbacks(t *testing.T) {
	srv := testServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)

	client, err := net.DialUDP("udp", nil, srv.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	sendRaw(t, client, srv.LocalAddr().(*net.UDPAddr), 1)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && len(srv.Clients()) == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if len(srv.Clients()) == 0 {
		t.Fatal("expected a peer connection to have been created")
	}

	var timedOut bool
	var mu sync.Mutex
	addr := srv.Clients()[0]
	if err := srv.DispatchEvent(event.New("PUSH", nil, nil), addr, nil, func() {
		mu.Lock()
		timedOut = true
		mu.Unlock()
	}, 1000); err != nil {
		t.Fatal(err)
	}

	time.Sleep(10 * time.Millisecond) // let the event get queued onto the connection
	srv.Shutdown()

	mu.Lock()
	defer mu.Unlock()
	if !timedOut {
		t.Fatal("expected Shutdown to drain and fire the outstanding timeout callback")
	}
}
