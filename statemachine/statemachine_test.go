package statemachine

import (
	"context"
	"testing"
	"time"

	"github.com/sbischoff-ai/pygase/event"
	"github.com/sbischoff-ai/pygase/gamestate"
	"github.com/sbischoff-ai/pygase/store"
)

func TestStartRunsTimeStepAndPushesUpdate(t *testing.T) {
	s := store.New(2, 100)
	m := New(s, 2, 5*time.Millisecond, func(state *gamestate.State, dt time.Duration) event.Patch {
		return event.Patch{"hp": int64(100)}
	}, nil, nil)

	m.Start(context.Background())
	defer m.Stop(time.Second)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if s.CurrentState().Attrs["hp"] == int64(100) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	got := s.CurrentState()
	if got.Attrs["hp"] != int64(100) {
		t.Fatalf("hp = %v, want 100", got.Attrs["hp"])
	}
	if got.Status != gamestate.Active {
		t.Fatalf("status = %v, want Active", got.Status)
	}
}

func TestStopSetsPaused(t *testing.T) {
	s := store.New(2, 100)
	m := New(s, 2, 5*time.Millisecond, nil, nil, nil)

	m.Start(context.Background())
	if !m.Stop(time.Second) {
		t.Fatal("Stop did not complete within timeout")
	}
	if s.CurrentState().Status != gamestate.Paused {
		t.Fatalf("status = %v, want Paused", s.CurrentState().Status)
	}
}

func TestStartTwiceIsNoOp(t *testing.T) {
	s := store.New(2, 100)
	m := New(s, 2, 5*time.Millisecond, nil, nil, nil)
	m.Start(context.Background())
	m.Start(context.Background())
	if !m.IsRunning() {
		t.Fatal("expected machine to be running")
	}
	m.Stop(time.Second)
}

func TestStopStoppedIsNoOp(t *testing.T) {
	s := store.New(2, 100)
	m := New(s, 2, 5*time.Millisecond, nil, nil, nil)
	if !m.Stop(time.Second) {
		t.Fatal("expected Stop on a never-started machine to report success")
	}
}

func TestEventWireDispatchesWithInjectedKwargs(t *testing.T) {
	s := store.New(2, 100)
	handlers := event.NewUniversalEventHandler()
	seen := make(chan string, 1)
	handlers.Register("GREET", event.Sync(func(ctx context.Context, args []any, kwargs map[string]any) (event.Patch, error) {
		addr, _ := kwargs["client_address"].(string)
		seen <- addr
		return event.Patch{}, nil
	}))

	m := New(s, 2, 5*time.Millisecond, nil, handlers, nil)
	m.Start(context.Background())
	defer m.Stop(time.Second)

	m.EventWire(event.New("GREET", nil, nil), "127.0.0.1:9000")

	select {
	case addr := <-seen:
		if addr != "127.0.0.1:9000" {
			t.Fatalf("client_address = %q, want 127.0.0.1:9000", addr)
		}
	case <-time.After(time.Second):
		t.Fatal("handler was never invoked")
	}
}
