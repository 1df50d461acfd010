// Package slogadapter adapts the standard library's log/slog to the
// gacelog.Logger interface, matching QYUbit-Axium's
// pkg/axlog/slog_adapter/slog.go.
package slogadapter

import (
	"log/slog"

	"github.com/sbischoff-ai/pygase/gacelog"
)

// Adapter wraps an *slog.Logger as a gacelog.Logger.
type Adapter struct {
	logger *slog.Logger
}

// New wraps logger. A nil logger wraps slog.Default().
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{logger: logger}
}

var _ gacelog.Logger = (*Adapter)(nil)

func (a *Adapter) Debug(msg string, keyValues ...any) { a.logger.Debug(msg, keyValues...) }
func (a *Adapter) Info(msg string, keyValues ...any)  { a.logger.Info(msg, keyValues...) }
func (a *Adapter) Warn(msg string, keyValues ...any)  { a.logger.Warn(msg, keyValues...) }
func (a *Adapter) Error(msg string, keyValues ...any) { a.logger.Error(msg, keyValues...) }
