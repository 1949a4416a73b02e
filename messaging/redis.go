package messaging

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/xraph/loom/errors"
	"github.com/xraph/loom/logger"
)

// RedisConfig tunes the pub/sub transport. The prefix namespaces every
// channel so multiple applications can share one Redis.
type RedisConfig struct {
	Prefix      string
	CallTimeout time.Duration
}

// DefaultRedisConfig returns the transport defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Prefix:      "loom",
		CallTimeout: 5 * time.Second,
	}
}

func (c RedisConfig) withDefaults() RedisConfig {
	def := DefaultRedisConfig()
	if c.Prefix == "" {
		c.Prefix = def.Prefix
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = def.CallTimeout
	}
	return c
}

func (c RedisConfig) requestChannel(key string) string { return c.Prefix + ":req:" + key }
func (c RedisConfig) eventChannel(key string) string   { return c.Prefix + ":evt:" + key }
func (c RedisConfig) replyChannel(id string) string    { return c.Prefix + ":reply:" + id }

// RedisTransport serves bound patterns over Redis pub/sub. Each pattern
// listens on two channels: a request channel whose envelopes are
// answered on a per-call reply channel, and an event channel whose
// envelopes are fire-and-forget. Events fan out to every subscribed
// instance; requests are answered by each instance that receives them,
// so callers should treat extra replies as duplicates of the first.
type RedisTransport struct {
	client     *redis.Client
	dispatcher *Dispatcher
	config     RedisConfig
	log        logger.Logger

	mu      sync.Mutex
	started bool
	pubsub  *redis.PubSub
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewRedisTransport builds a transport over an existing client. The
// client's lifecycle stays with the caller.
func NewRedisTransport(client *redis.Client, dispatcher *Dispatcher, config RedisConfig, log logger.Logger) *RedisTransport {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &RedisTransport{
		client:     client,
		dispatcher: dispatcher,
		config:     config.withDefaults(),
		log:        log.Named("messaging.redis"),
	}
}

// Start verifies connectivity and begins serving every bound pattern.
func (t *RedisTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return errors.ErrLifecycleError("start", errors.New("redis transport already started"))
	}

	if err := t.client.Ping(ctx).Err(); err != nil {
		return errors.ErrLifecycleError("start", err)
	}

	patterns := t.dispatcher.Patterns()
	channels := make([]string, 0, len(patterns)*2)
	for _, bound := range patterns {
		key := bound.Pattern.Key()
		channels = append(channels, t.config.requestChannel(key), t.config.eventChannel(key))
	}

	t.started = true
	if len(channels) == 0 {
		t.log.Warn("no patterns bound, transport is idle")
		return nil
	}

	// The serve loop outlives the start call, so it runs under its own
	// cancellation root rather than the caller's context.
	runCtx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.pubsub = t.client.Subscribe(runCtx, channels...)

	t.wg.Add(1)
	go t.serve(runCtx, t.pubsub)

	t.log.Info("redis transport started",
		logger.Int("patterns", len(patterns)),
		logger.String("prefix", t.config.Prefix))
	return nil
}

func (t *RedisTransport) serve(ctx context.Context, pubsub *redis.PubSub) {
	defer t.wg.Done()
	for msg := range pubsub.Channel() {
		t.wg.Add(1)
		go func(msg *redis.Message) {
			defer t.wg.Done()
			t.handleMessage(ctx, msg)
		}(msg)
	}
}

func (t *RedisTransport) handleMessage(ctx context.Context, msg *redis.Message) {
	reqPrefix := t.config.Prefix + ":req:"
	evtPrefix := t.config.Prefix + ":evt:"

	env, err := DecodeEnvelope([]byte(msg.Payload))
	if err != nil {
		t.log.Warn("dropping malformed message",
			logger.String("channel", msg.Channel),
			logger.Error(err))
		return
	}

	switch {
	case strings.HasPrefix(msg.Channel, reqPrefix):
		if env.Pattern == "" {
			env.Pattern = strings.TrimPrefix(msg.Channel, reqPrefix)
		}
		reply := t.dispatcher.HandleEnvelope(ctx, env)
		if env.ID == "" {
			return
		}
		body, err := EncodeReply(reply)
		if err != nil {
			t.log.Error("encoding reply failed",
				logger.String("pattern", env.Pattern),
				logger.Error(err))
			return
		}
		if err := t.client.Publish(ctx, t.config.replyChannel(env.ID), body).Err(); err != nil {
			t.log.Error("publishing reply failed",
				logger.String("pattern", env.Pattern),
				logger.Error(err))
		}

	case strings.HasPrefix(msg.Channel, evtPrefix):
		if env.Pattern == "" {
			env.Pattern = strings.TrimPrefix(msg.Channel, evtPrefix)
		}
		if _, err := t.dispatcher.Dispatch(ctx, env.Pattern, env.Data); err != nil {
			t.log.Warn("event handler failed",
				logger.String("pattern", env.Pattern),
				logger.Error(err))
		}
	}
}

// Stop closes the subscription and waits for in-flight handlers to
// drain within the context budget. Past the budget, handlers are
// cancelled and Stop returns a lifecycle error.
func (t *RedisTransport) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return nil
	}
	t.started = false
	pubsub := t.pubsub
	cancel := t.cancel
	t.pubsub = nil
	t.cancel = nil
	t.mu.Unlock()

	var closeErr error
	if pubsub != nil {
		closeErr = pubsub.Close()
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		if cancel != nil {
			cancel()
		}
		return errors.ErrLifecycleError("stop", ctx.Err())
	}
	if cancel != nil {
		cancel()
	}
	t.log.Info("redis transport stopped")
	return closeErr
}

// RedisClient calls patterns served by a RedisTransport from another
// process. It is safe for concurrent use.
type RedisClient struct {
	client *redis.Client
	config RedisConfig
}

// NewRedisClient builds a caller over an existing client. Prefix and
// timeout must match the serving transport's configuration.
func NewRedisClient(client *redis.Client, config RedisConfig) *RedisClient {
	return &RedisClient{client: client, config: config.withDefaults()}
}

// Call publishes a request and awaits the correlated reply, decoding it
// into out. A nil out discards the reply body. Remote failures come
// back as *ErrorBody.
func (c *RedisClient) Call(ctx context.Context, pattern any, in any, out any) error {
	key := patternKey(pattern)
	data, err := codec.Marshal(in)
	if err != nil {
		return err
	}

	id := uuid.New().String()

	// Subscribe before publishing so the reply cannot race the
	// subscription.
	sub := c.client.Subscribe(ctx, c.config.replyChannel(id))
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return errors.ErrLifecycleError("subscribe", err)
	}

	body, err := EncodeEnvelope(Envelope{ID: id, Pattern: key, Data: data})
	if err != nil {
		return err
	}
	if err := c.client.Publish(ctx, c.config.requestChannel(key), body).Err(); err != nil {
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.config.CallTimeout)
	defer cancel()

	msg, err := sub.ReceiveMessage(waitCtx)
	if err != nil {
		if waitCtx.Err() != nil && ctx.Err() == nil {
			return errors.ErrTimeoutError("call "+key, c.config.CallTimeout)
		}
		return err
	}

	reply, err := DecodeReply([]byte(msg.Payload))
	if err != nil {
		return err
	}
	if reply.Error != nil {
		return reply.Error
	}
	if out == nil || len(reply.Data) == 0 {
		return nil
	}
	return codec.Unmarshal(reply.Data, out)
}

// Emit publishes a fire-and-forget event. Every transport instance
// subscribed to the pattern handles it; there is no reply.
func (c *RedisClient) Emit(ctx context.Context, pattern any, in any) error {
	key := patternKey(pattern)
	data, err := codec.Marshal(in)
	if err != nil {
		return err
	}
	body, err := EncodeEnvelope(Envelope{Pattern: key, Data: data})
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, c.config.eventChannel(key), body).Err()
}
