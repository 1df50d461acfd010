// Package sched implements the cooperative task-group and cancellation
// runtime spec.md §5/§9 describes for the connection and state-machine
// loops: a set of goroutines that share one cancellation signal and whose
// exit is waited on together. The teacher drives session lifetimes with
// sync.WaitGroup.Go plus a shared context.Context
// (pkg/server/sessionManager.go); Group generalizes that pattern to
// propagate the first failing task's error to the rest of the group, which
// the plain WaitGroup form doesn't give you.
package sched

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Group runs a set of cooperating tasks under one context: canceling the
// context stops every task that respects it, and the first task to return
// a non-nil error cancels the rest.
type Group struct {
	ctx    context.Context
	cancel context.CancelFunc
	eg     *errgroup.Group
}

// NewGroup derives a cancelable Group from parent.
func NewGroup(parent context.Context) *Group {
	ctx, cancel := context.WithCancel(parent)
	eg, ctx := errgroup.WithContext(ctx)
	return &Group{ctx: ctx, cancel: cancel, eg: eg}
}

// Context returns the group's shared context. Tasks should select on
// Done() to notice cancellation.
func (g *Group) Context() context.Context {
	return g.ctx
}

// Go starts fn in a new goroutine under the group.
func (g *Group) Go(fn func(ctx context.Context) error) {
	g.eg.Go(func() error {
		return fn(g.ctx)
	})
}

// Cancel requests every task in the group stop.
func (g *Group) Cancel() {
	g.cancel()
}

// Wait blocks until every task has returned, then returns the first
// non-nil error, if any, and cancels the context so no task lingers.
func (g *Group) Wait() error {
	err := g.eg.Wait()
	g.cancel()
	return err
}

// Sleep blocks for d or until ctx is canceled, whichever comes first. It
// reports whether the sleep ran to completion (false means ctx was
// canceled first), matching the cooperative stop semantics spec.md §4.4
// requires of the simulation loop.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
