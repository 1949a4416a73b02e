package messaging

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xraph/loom/logger"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// GatewayConfig tunes the WebSocket gateway.
type GatewayConfig struct {
	// MaxMessageSize caps inbound frame size in bytes.
	MaxMessageSize int64

	ReadBufferSize  int
	WriteBufferSize int

	// CheckOrigin overrides the upgrade origin check. Nil allows all
	// origins.
	CheckOrigin func(r *http.Request) bool
}

// DefaultGatewayConfig returns the gateway defaults.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		MaxMessageSize:  1 << 20,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
}

func (c GatewayConfig) withDefaults() GatewayConfig {
	def := DefaultGatewayConfig()
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = def.MaxMessageSize
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = def.ReadBufferSize
	}
	if c.WriteBufferSize <= 0 {
		c.WriteBufferSize = def.WriteBufferSize
	}
	return c
}

// Gateway serves bound patterns over WebSocket connections. Clients
// send Envelope frames and receive Reply frames correlated by ID;
// envelopes without an ID are fire-and-forget. It implements
// http.Handler so it can be mounted on any route.
type Gateway struct {
	dispatcher *Dispatcher
	upgrader   websocket.Upgrader
	config     GatewayConfig
	log        logger.Logger

	mu     sync.Mutex
	conns  map[*gatewayConn]struct{}
	closed bool
}

// NewGateway builds a gateway over a dispatcher.
func NewGateway(dispatcher *Dispatcher, config GatewayConfig, log logger.Logger) *Gateway {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	config = config.withDefaults()
	checkOrigin := config.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &Gateway{
		dispatcher: dispatcher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     checkOrigin,
		},
		config: config,
		log:    log.Named("messaging.ws"),
		conns:  make(map[*gatewayConn]struct{}),
	}
}

type gatewayConn struct {
	conn *websocket.Conn
	send chan []byte

	once sync.Once
	done chan struct{}
}

// shutdown releases the write pump; safe to call more than once.
func (c *gatewayConn) shutdown() {
	c.once.Do(func() { close(c.done) })
}

// enqueue hands a frame to the write pump, applying backpressure when
// the buffer is full. It reports false when the connection is already
// shutting down.
func (c *gatewayConn) enqueue(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	case <-c.done:
		return false
	}
}

// tryEnqueue is the non-blocking variant used for broadcasts; slow
// consumers lose the frame instead of stalling the sender.
func (c *gatewayConn) tryEnqueue(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

// ServeHTTP upgrades the request and serves the connection until the
// peer goes away. It blocks for the lifetime of the connection.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		http.Error(w, "gateway is shutting down", http.StatusServiceUnavailable)
		return
	}
	g.mu.Unlock()

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Error("websocket upgrade failed",
			logger.String("remote", r.RemoteAddr),
			logger.Error(err))
		return
	}

	c := &gatewayConn{
		conn: conn,
		send: make(chan []byte, 256),
		done: make(chan struct{}),
	}
	g.register(c)

	go c.writePump()
	g.readPump(c)
}

func (g *Gateway) register(c *gatewayConn) {
	g.mu.Lock()
	g.conns[c] = struct{}{}
	g.mu.Unlock()
}

func (g *Gateway) unregister(c *gatewayConn) {
	g.mu.Lock()
	delete(g.conns, c)
	g.mu.Unlock()
}

// ConnCount reports the number of live connections.
func (g *Gateway) ConnCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}

func (g *Gateway) readPump(c *gatewayConn) {
	// Dispatches run under a connection-scoped context so handlers are
	// cancelled when the peer disconnects.
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		c.shutdown()
		c.conn.Close()
		g.unregister(c)
	}()

	c.conn.SetReadLimit(g.config.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.log.Debug("websocket read failed", logger.Error(err))
			}
			return
		}

		env, err := DecodeEnvelope(data)
		if err != nil {
			if frame, encErr := EncodeReply(NewErrorReply("", err)); encErr == nil {
				c.enqueue(frame)
			}
			continue
		}

		go func(env Envelope) {
			reply := g.dispatcher.HandleEnvelope(ctx, env)
			if env.ID == "" {
				return
			}
			frame, err := EncodeReply(reply)
			if err != nil {
				g.log.Error("encoding reply failed",
					logger.String("pattern", env.Pattern),
					logger.Error(err))
				return
			}
			c.enqueue(frame)
		}(env)
	}
}

func (c *gatewayConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Broadcast pushes an unsolicited event frame to every connection. The
// frame carries the pattern and payload but no correlation ID.
func (g *Gateway) Broadcast(pattern any, v any) error {
	data, err := codec.Marshal(v)
	if err != nil {
		return err
	}
	frame, err := EncodeEnvelope(Envelope{Pattern: patternKey(pattern), Data: data})
	if err != nil {
		return err
	}

	g.mu.Lock()
	conns := make([]*gatewayConn, 0, len(g.conns))
	for c := range g.conns {
		conns = append(conns, c)
	}
	g.mu.Unlock()

	for _, c := range conns {
		c.tryEnqueue(frame)
	}
	return nil
}

// Close rejects new upgrades and closes every live connection. Safe to
// call more than once.
func (g *Gateway) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	conns := make([]*gatewayConn, 0, len(g.conns))
	for c := range g.conns {
		conns = append(conns, c)
	}
	g.mu.Unlock()

	for _, c := range conns {
		c.shutdown()
	}
	return nil
}
