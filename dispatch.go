package loom

import "github.com/xraph/loom/internal/dispatch"

// Bridge connects the router and messaging transports to module pipelines
// and the container. App.Bridge exposes the application's instance.
type Bridge = dispatch.Bridge

// Outcome reports how far a dispatch travelled: whether the terminal
// handler ran, a middleware finished the request early, or cancellation
// stopped the chain.
type Outcome = dispatch.Outcome

const (
	Handled      = dispatch.Handled
	NotForwarded = dispatch.NotForwarded
	Aborted      = dispatch.Aborted
)

// BoundPattern is one message pattern bound through the bridge.
type BoundPattern = dispatch.BoundPattern

var (
	// Execute runs a context through a middleware chain into a terminal
	// handler with per-step cancellation guards. Adapters and the test
	// harness call it; application code normally does not.
	Execute = dispatch.Execute

	// Boundary classifies an error at the framework edge: reportable
	// errors pass through, everything else becomes an opaque internal
	// error.
	Boundary = dispatch.Boundary
)
