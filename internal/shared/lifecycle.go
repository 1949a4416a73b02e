package shared

import "context"

// Startable is implemented by provider instances that need a startup hook.
// The container invokes OnStart once per instance, in construction order,
// during application start; instances constructed later start immediately
// after construction.
type Startable interface {
	OnStart(ctx context.Context) error
}

// Stoppable is implemented by provider instances that need a shutdown hook.
// OnStop runs in reverse construction order during application stop.
type Stoppable interface {
	OnStop(ctx context.Context) error
}

// HealthReporter is implemented by provider instances that participate in
// the application health endpoint. A nil return means healthy.
type HealthReporter interface {
	Health(ctx context.Context) error
}
