// Package statemachine implements the simulation loop spec.md §4.4
// describes: it owns a store reference, drains events pushed to it via
// event_wire, calls the user's time_step callback, merges the resulting
// patches into one GameStateUpdate, and pushes it.
package statemachine

import (
	"context"
	"sync"
	"time"

	"github.com/sbischoff-ai/pygase/event"
	"github.com/sbischoff-ai/pygase/gacelog"
	"github.com/sbischoff-ai/pygase/gamestate"
	"github.com/sbischoff-ai/pygase/seqnum"
	"github.com/sbischoff-ai/pygase/store"
)

// TimeStep is the user-supplied per-tick callback. It receives a read-only
// snapshot of the state and the elapsed wall-clock time since the previous
// tick, and returns the patch of attributes it wants changed.
type TimeStep func(state *gamestate.State, dt time.Duration) event.Patch

// wireEvent is one event.Event queued via EventWire, paired with the kwargs the
// state machine must inject when it's handled (spec.md §4.4 step 2).
type wireEvent struct {
	ev             event.Event
	injectedKwargs map[string]any
}

// Machine runs the fixed-interval simulation loop against a store.
type Machine struct {
	store     *store.Store
	width     seqnum.Width
	interval  time.Duration
	timeStep  TimeStep
	events    *event.UniversalEventHandler
	logger    gacelog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	queueMu sync.Mutex
	queue   []wireEvent
}

// New returns a Machine bound to store s, running timeStep at interval,
// dispatching events through handlers. A nil timeStep is treated as a
// no-op tick that only drains events.
func New(s *store.Store, width seqnum.Width, interval time.Duration, timeStep TimeStep, handlers *event.UniversalEventHandler, logger gacelog.Logger) *Machine {
	if timeStep == nil {
		timeStep = func(*gamestate.State, time.Duration) event.Patch { return event.Patch{} }
	}
	if handlers == nil {
		handlers = event.NewUniversalEventHandler()
	}
	if logger == nil {
		logger = gacelog.Nop{}
	}
	return &Machine{
		store:    s,
		width:    width,
		interval: interval,
		timeStep: timeStep,
		events:   handlers,
		logger:   logger,
	}
}

// EventWire queues ev for processing on the next tick, with clientAddress
// injected as a handler kwarg alongside game_state and dt (spec.md §4.4
// step 2). It is safe to call from any goroutine, including while the loop
// is running.
func (m *Machine) EventWire(ev event.Event, clientAddress string) {
	m.queueMu.Lock()
	m.queue = append(m.queue, wireEvent{ev: ev, injectedKwargs: map[string]any{"client_address": clientAddress}})
	m.queueMu.Unlock()
}

func (m *Machine) drainQueue() []wireEvent {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()
	if len(m.queue) == 0 {
		return nil
	}
	drained := m.queue
	m.queue = nil
	return drained
}

// Start begins the simulation loop, setting game_status to Active.
// Starting an already-running Machine is a no-op (spec.md §4.4).
func (m *Machine) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true
	m.mu.Unlock()

	m.setStatus(gamestate.Active)
	go m.run(loopCtx)
}

// Stop requests the loop stop after finishing its current iteration and
// waits up to timeout for it to exit, reporting whether it did. Stopping an
// already-stopped Machine is a no-op that reports success (spec.md §4.4).
func (m *Machine) Stop(timeout time.Duration) bool {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return true
	}
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	cancel()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// IsRunning reports whether the simulation loop is active.
func (m *Machine) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Machine) setStatus(status gamestate.Status) {
	snapshot := m.store.CurrentState()
	u := gamestate.NewUpdate(snapshot.TimeOrder.Next(m.width))
	u.StatusSet = true
	u.Status = status
	if err := m.store.PushUpdate(u); err != nil {
		m.logger.Warn("failed to push status update", "error", err)
	}
}

func (m *Machine) run(ctx context.Context) {
	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		m.setStatus(gamestate.Paused)
		close(m.done)
	}()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		now := time.Now()
		dt := now.Sub(last)
		last = now

		m.tick(ctx, dt)

		elapsed := time.Since(now)
		remaining := m.interval - elapsed
		select {
		case <-ctx.Done():
			return
		case <-time.After(maxDuration(0, remaining)):
		}
	}
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

func (m *Machine) tick(ctx context.Context, dt time.Duration) {
	snapshot := m.store.CurrentState()

	var patches []event.Patch
	for _, qe := range m.drainQueue() {
		kwargs := map[string]any{"game_state": snapshot, "dt": dt}
		for k, v := range qe.injectedKwargs {
			kwargs[k] = v
		}
		patch, err := m.events.Handle(ctx, qe.ev, kwargs)
		if err != nil {
			m.logger.Warn("event handler failed", "type", qe.ev.Type, "error", err)
			continue
		}
		patches = append(patches, patch)
	}

	patches = append(patches, m.timeStep(snapshot, dt))

	merged := gamestate.NewUpdate(snapshot.TimeOrder.Next(m.width))
	for _, p := range patches {
		for k, v := range p {
			merged.Attrs[k] = v
		}
	}

	if err := m.store.PushUpdate(merged); err != nil {
		m.logger.Warn("failed to push tick update", "error", err)
	}
}
