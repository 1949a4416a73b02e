package loom

import (
	"context"

	"github.com/xraph/loom/internal/shared"
)

// Startable instances get OnStart during App.Start, in construction order.
type Startable = shared.Startable

// Stoppable instances get OnStop during App.Stop, in reverse construction
// order.
type Stoppable = shared.Stoppable

// HealthReporter instances contribute to App.Health and the builtin
// health endpoint.
type HealthReporter = shared.HealthReporter

// Deferred is an in-flight factory result; dependents block on it only
// when they resolve the token.
type Deferred = shared.Deferred

var (
	// Async runs fn on its own goroutine and returns a Deferred for its
	// result.
	Async = shared.Async

	// Resolved wraps an already-built value as a Deferred.
	Resolved = shared.Resolved

	// Rejected wraps an error as a failed Deferred.
	Rejected = shared.Rejected
)

// Phase names a point in the application lifecycle for OnPhase hooks.
type Phase string

const (
	PhaseBeforeStart Phase = "before_start"
	PhaseAfterStart  Phase = "after_start"
	PhaseBeforeStop  Phase = "before_stop"
	PhaseAfterStop   Phase = "after_stop"
)

// Hook runs at a lifecycle phase. An error from a before_start hook aborts
// the start; errors from other phases are logged and do not stop the
// lifecycle.
type Hook func(ctx context.Context, app *App) error
