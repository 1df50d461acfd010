// Package config carries every tunable the spec names, with defaults
// matching spec.md. Loading an override file is grounded in
// HimbeerserverDE-multiserver/config.go's use of gopkg.in/yaml.v2, but
// unlike that package's untyped map[interface{}]interface{}, this unmarshals
// directly into the typed Config struct.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/sbischoff-ai/pygase/seqnum"
)

// Config carries every tunable named across spec.md §3-§6.
type Config struct {
	// SequenceWidth is the byte width of a wire sequence number. Default 2.
	SequenceWidth seqnum.Width `yaml:"sequence_width"`

	// MaxDatagramSize bounds a single encoded datagram. Default 2048 bytes.
	MaxDatagramSize int `yaml:"max_datagram_size"`

	// CacheSize is the number of recent updates the store keeps. Default 100.
	CacheSize int `yaml:"cache_size"`

	// TickInterval is the simulation loop's target period. Default 20ms.
	TickInterval time.Duration `yaml:"tick_interval"`

	// EventTimeout is how long a reliable event waits for an ack before its
	// retry/timeout machinery kicks in. Default 1s.
	EventTimeout time.Duration `yaml:"event_timeout"`

	// IdleTimeout is how long without a valid datagram before a connection
	// reverts to Connecting. Default 5s.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// DeadTimeout is how long without a valid datagram before a connection
	// is closed outright. Default 15s.
	DeadTimeout time.Duration `yaml:"dead_timeout"`

	// LatencyThreshold is the RTT EWMA above which a connection is
	// considered congested. Default 250ms.
	LatencyThreshold time.Duration `yaml:"latency_threshold"`

	// GoodHold is the initial hold time latency must stay below threshold
	// before a Bad connection is promoted back to Good. Default 10s.
	GoodHold time.Duration `yaml:"good_hold"`

	// BadHold is the initial hold time latency must stay above threshold
	// before a Good connection is demoted to Bad. Default 1s.
	BadHold time.Duration `yaml:"bad_hold"`

	// GoodRateHz / BadRateHz are the sender tick rates for each quality
	// state. Defaults 40 and 5.
	GoodRateHz float64 `yaml:"good_rate_hz"`
	BadRateHz  float64 `yaml:"bad_rate_hz"`

	// MaxHold caps the doubling of BadHold under repeated flip-flop
	// dampening. Default 60s, grounded in the original source's
	// max_throttle_time.
	MaxHold time.Duration `yaml:"max_hold"`

	// MinHold is the floor GoodHold's halving on each recovery stops at.
	// Default 1s, grounded in the original source's min_throttle_time.
	MinHold time.Duration `yaml:"min_hold"`
}

// Default returns spec.md's default tuning.
func Default() Config {
	return Config{
		SequenceWidth:    2,
		MaxDatagramSize:  2048,
		CacheSize:        100,
		TickInterval:     20 * time.Millisecond,
		EventTimeout:     time.Second,
		IdleTimeout:      5 * time.Second,
		DeadTimeout:      15 * time.Second,
		LatencyThreshold: 250 * time.Millisecond,
		GoodHold:         10 * time.Second,
		BadHold:          time.Second,
		GoodRateHz:       40,
		BadRateHz:        5,
		MaxHold:          60 * time.Second,
		MinHold:          time.Second,
	}
}

// LoadYAML overlays path's contents onto Default(), leaving fields absent
// from the file at their default value. A key that is present in the file
// overwrites its default, even when its value is zero.
func LoadYAML(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
