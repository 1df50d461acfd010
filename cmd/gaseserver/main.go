// Command gaseserver runs a minimal PyGase backend: it listens on a UDP
// address and advances an "x" attribute by the "dx" of every MOVE event a
// client sends. The per-tick time step changes nothing on its own.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sbischoff-ai/pygase/config"
	"github.com/sbischoff-ai/pygase/event"
	"github.com/sbischoff-ai/pygase/gacelog/slogadapter"
	"github.com/sbischoff-ai/pygase/gamestate"
	"github.com/sbischoff-ai/pygase/server"
	"github.com/sbischoff-ai/pygase/statemachine"
	"github.com/sbischoff-ai/pygase/store"
)

func main() {
	addr := ":8080"
	if len(os.Args) > 1 {
		addr = os.Args[1]
	}

	cfg := config.Default()
	logger := slogadapter.New(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	st := store.New(cfg.SequenceWidth, cfg.CacheSize)
	handlers := event.NewUniversalEventHandler()
	handlers.Register("MOVE", event.Sync(func(ctx context.Context, args []any, kwargs map[string]any) (event.Patch, error) {
		dx, _ := kwargs["dx"].(float64)
		state := kwargs["game_state"].(*gamestate.State)
		x, _ := state.Attrs["x"].(float64)
		return event.Patch{"x": x + dx}, nil
	}))

	timeStep := func(state *gamestate.State, dt time.Duration) event.Patch {
		return nil
	}

	machine := statemachine.New(st, cfg.SequenceWidth, cfg.TickInterval, timeStep, handlers, logger)

	srv, err := server.New(addr, cfg, cfg.SequenceWidth, st, machine, logger)
	if err != nil {
		log.Fatalf("gaseserver: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	machine.Start(ctx)
	defer machine.Stop(time.Second)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		srv.Shutdown()
	}()

	logger.Info("gaseserver: listening", "addr", srv.LocalAddr().String())
	if err := srv.Serve(ctx); err != nil {
		log.Fatalf("gaseserver: %v", err)
	}
}
