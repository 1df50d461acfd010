// Command gaseclient connects to a gaseserver instance, sends a MOVE event
// once a second, and prints the mirrored game state's "x" attribute.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sbischoff-ai/pygase/client"
	"github.com/sbischoff-ai/pygase/config"
	"github.com/sbischoff-ai/pygase/event"
	"github.com/sbischoff-ai/pygase/gacelog/slogadapter"
	"github.com/sbischoff-ai/pygase/gamestate"
)

func main() {
	addr := "127.0.0.1:8080"
	if len(os.Args) > 1 {
		addr = os.Args[1]
	}

	cfg := config.Default()
	logger := slogadapter.New(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	c := client.New(cfg, cfg.SequenceWidth, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.Connect(ctx, addr); err != nil {
		log.Fatalf("gaseclient: %v", err)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-sigs:
			_ = c.Disconnect(false)
			return
		case <-ticker.C:
			_ = c.DispatchEvent(event.New("MOVE", nil, map[string]any{"dx": 1.0}), nil, nil, 2)
			c.WithState(func(state *gamestate.State) {
				logger.Info("gaseclient: state", "x", state.Attrs["x"], "time_order", state.TimeOrder)
			})
		}
	}
}
