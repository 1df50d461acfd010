// Package event implements the named, data-carrying messages exchanged
// between client and backend, and the handler registry that dispatches
// them (spec.md §4.5).
package event

import "context"

// ShutdownType is the one reserved event type spec.md §6 mandates: only the
// server's host client may dispatch it, and it requests server shutdown.
// Any other type beginning with "__" is reserved for future protocol use.
const ShutdownType = "__shutdown__"

// IsReserved reports whether t is a reserved event type (begins with "__").
func IsReserved(t string) bool {
	return len(t) >= 2 && t[0] == '_' && t[1] == '_'
}

// Event is a named, data-carrying message. It carries no id of its own: for
// ack/retry purposes it is identified by the sequence number of the
// datagram that carries it (spec.md §3).
type Event struct {
	Type           string
	PositionalArgs []any
	KeywordArgs    map[string]any
}

// New builds an Event, defaulting nil arg collections to empty ones so
// handlers never have to nil-check them.
func New(eventType string, positionalArgs []any, keywordArgs map[string]any) Event {
	if positionalArgs == nil {
		positionalArgs = []any{}
	}
	if keywordArgs == nil {
		keywordArgs = map[string]any{}
	}
	return Event{Type: eventType, PositionalArgs: positionalArgs, KeywordArgs: keywordArgs}
}

// Patch is what a handler returns: the set of GameState attributes it wants
// changed. Keys map directly onto gamestate.Update.Attrs.
type Patch map[string]any

// Handler is the tagged union of spec.md §9's design note: a handler is
// either a plain synchronous function or a suspension-capable one, and the
// dispatcher (UniversalEventHandler.Handle) awaits the latter without
// requiring the caller to coerce between the two.
type Handler struct {
	sync  func(ctx context.Context, args []any, kwargs map[string]any) (Patch, error)
	async func(ctx context.Context, args []any, kwargs map[string]any) (Patch, error)
}

// Sync wraps a synchronous handler function.
func Sync(fn func(ctx context.Context, args []any, kwargs map[string]any) (Patch, error)) Handler {
	return Handler{sync: fn}
}

// Async wraps a handler that may suspend (block on I/O, channels, etc.). It
// still runs to completion synchronously from the caller's perspective;
// tagging it Async only documents that it is safe to call from a goroutine
// without blocking whoever queued the event.
func Async(fn func(ctx context.Context, args []any, kwargs map[string]any) (Patch, error)) Handler {
	return Handler{async: fn}
}

func (h Handler) invoke(ctx context.Context, args []any, kwargs map[string]any) (Patch, error) {
	if h.async != nil {
		return h.async(ctx, args, kwargs)
	}
	return h.sync(ctx, args, kwargs)
}

func (h Handler) isZero() bool {
	return h.sync == nil && h.async == nil
}

// UniversalEventHandler holds one Handler per event type. Handle
// concatenates event.PositionalArgs as positionals and merges
// event.KeywordArgs with injected kwargs, giving precedence to the
// caller's explicit injected kwargs, then invokes the registered callback
// (spec.md §4.5).
type UniversalEventHandler struct {
	handlers map[string]Handler
}

// NewUniversalEventHandler returns an empty handler registry.
func NewUniversalEventHandler() *UniversalEventHandler {
	return &UniversalEventHandler{handlers: map[string]Handler{}}
}

// Register installs fn as the handler for eventType. Only one handler per
// type is kept; re-registering replaces it (spec.md §4.4).
func (u *UniversalEventHandler) Register(eventType string, h Handler) {
	u.handlers[eventType] = h
}

// HasType reports whether a handler is registered for eventType.
func (u *UniversalEventHandler) HasType(eventType string) bool {
	_, ok := u.handlers[eventType]
	return ok
}

// Handle dispatches ev to its registered handler, merging injectedKwargs
// into ev.KeywordArgs with injectedKwargs taking precedence on key
// collisions. It returns (nil, ErrNoHandler) for unknown event types, which
// callers surface as a warning diagnostic rather than a failure (spec.md
// §4.4, §7).
func (u *UniversalEventHandler) Handle(ctx context.Context, ev Event, injectedKwargs map[string]any) (Patch, error) {
	h, ok := u.handlers[ev.Type]
	if !ok || h.isZero() {
		return nil, ErrNoHandler
	}

	kwargs := make(map[string]any, len(ev.KeywordArgs)+len(injectedKwargs))
	for k, v := range ev.KeywordArgs {
		kwargs[k] = v
	}
	for k, v := range injectedKwargs {
		kwargs[k] = v
	}

	return h.invoke(ctx, ev.PositionalArgs, kwargs)
}
