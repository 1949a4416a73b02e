package messaging

import (
	"context"

	"github.com/xraph/loom/errors"
	"github.com/xraph/loom/internal/dispatch"
	"github.com/xraph/loom/logger"
)

// PatternSource looks up bound message patterns. The dispatch bridge
// satisfies it; tests may substitute their own table.
type PatternSource interface {
	Pattern(key string) (dispatch.BoundPattern, bool)
	Patterns() []dispatch.BoundPattern
}

// Dispatcher routes serialized payloads to the handler bound for their
// pattern. Handlers arrive already wrapped by the bridge, so dispatching
// through here carries the cancellation guard, the module-scoped
// resolver and the error boundary with it.
type Dispatcher struct {
	source PatternSource
	log    logger.Logger
}

// NewDispatcher builds a dispatcher over a pattern source.
func NewDispatcher(source PatternSource, log logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &Dispatcher{source: source, log: log.Named("messaging")}
}

// Patterns lists every bound pattern, so transports know what to serve.
func (d *Dispatcher) Patterns() []dispatch.BoundPattern {
	return d.source.Patterns()
}

// Dispatch executes the handler bound for pattern with a raw payload.
// The pattern may be a string, a map, or any JSON-encodable value; it is
// canonicalized the same way controllers declare theirs.
func (d *Dispatcher) Dispatch(ctx context.Context, pattern any, payload []byte) ([]byte, error) {
	key := patternKey(pattern)
	bound, ok := d.source.Pattern(key)
	if !ok {
		return nil, errors.NotFound("no handler bound for pattern " + key)
	}
	return bound.Handle(ctx, payload)
}

// Call dispatches with marshalling on both ends: in is encoded as the
// payload and the reply is decoded into out. A nil out discards the
// reply.
func (d *Dispatcher) Call(ctx context.Context, pattern any, in any, out any) error {
	payload, err := codec.Marshal(in)
	if err != nil {
		return err
	}
	reply, err := d.Dispatch(ctx, pattern, payload)
	if err != nil {
		return err
	}
	if out == nil || len(reply) == 0 {
		return nil
	}
	return codec.Unmarshal(reply, out)
}

// HandleEnvelope executes one decoded envelope and builds its reply.
// Transports share this so error mapping stays identical across Redis
// and WebSocket.
func (d *Dispatcher) HandleEnvelope(ctx context.Context, env Envelope) Reply {
	data, err := d.Dispatch(ctx, env.Pattern, env.Data)
	if err != nil {
		d.log.Debug("pattern dispatch failed",
			logger.String("pattern", env.Pattern),
			logger.Error(err))
		return NewErrorReply(env.ID, err)
	}
	return NewReply(env.ID, data)
}
