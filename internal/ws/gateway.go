package ws

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/example/lynk/internal/types"
)

// Authenticator verifies the inbound HTTP request before the connection is
// upgraded. Failure terminates the handshake; no room is ever joined for an
// unauthenticated request.
type Authenticator interface {
	Authenticate(r *http.Request) (types.Identity, error)
}

// AuthFunc adapts an ordinary function to the Authenticator interface.
type AuthFunc func(r *http.Request) (types.Identity, error)

// Authenticate implements Authenticator.
func (f AuthFunc) Authenticate(r *http.Request) (types.Identity, error) { return f(r) }

// Hooks receive connection lifecycle edges together with the registry's
// presence transition flags.
type Hooks struct {
	OnConnect    func(conn *Connection, firstForUser bool)
	OnDisconnect func(conn *Connection, lastForUser bool)
}

// GatewayConfig controls the runtime behaviour of the WebSocket gateway.
type GatewayConfig struct {
	PongWait       time.Duration
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	SendBuffer     int
	MaxMessageSize int64
	CheckOrigin    func(r *http.Request) bool
}

// Gateway upgrades HTTP requests into WebSocket connections, resolves the
// caller's identity, and wires each connection into the registry and its
// personal room.
type Gateway struct {
	auth     Authenticator
	registry *Registry
	rooms    *Rooms
	handler  FrameHandler
	hooks    Hooks
	logger   zerolog.Logger
	upgrader websocket.Upgrader
	cfg      GatewayConfig
}

// NewGateway creates a Gateway with sane defaults.
func NewGateway(auth Authenticator, registry *Registry, rooms *Rooms, handler FrameHandler, hooks Hooks, logger zerolog.Logger, cfg GatewayConfig) (*Gateway, error) {
	if auth == nil {
		return nil, errors.New("authenticator is required")
	}
	if registry == nil || rooms == nil {
		return nil, errors.New("registry and rooms are required")
	}
	if handler == nil {
		return nil, errors.New("frame handler is required")
	}
	if cfg.PongWait == 0 {
		cfg.PongWait = 60 * time.Second
	}
	if cfg.PingInterval == 0 {
		// Must beat the pong deadline or healthy connections get reaped.
		cfg.PingInterval = cfg.PongWait * 9 / 10
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.SendBuffer == 0 {
		cfg.SendBuffer = 64
	}
	if cfg.MaxMessageSize == 0 {
		cfg.MaxMessageSize = 64 << 10
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     cfg.CheckOrigin,
	}

	return &Gateway{
		auth:     auth,
		registry: registry,
		rooms:    rooms,
		handler:  handler,
		hooks:    hooks,
		logger:   logger,
		upgrader: upgrader,
		cfg:      cfg,
	}, nil
}

// ServeHTTP implements http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	identity, err := g.auth.Authenticate(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	wsConn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		g.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	gatewayUpgradeLatency.Observe(time.Since(start).Seconds())

	childLogger := g.logger.With().Str("user", string(identity.ID)).Logger()

	var conn *Connection
	conn = newConnection(wsConn, identity, g.rooms, childLogger, connectionOptions{
		pongWait:       g.cfg.PongWait,
		pingInterval:   g.cfg.PingInterval,
		writeTimeout:   g.cfg.WriteTimeout,
		sendBufferSize: g.cfg.SendBuffer,
		maxMessageSize: g.cfg.MaxMessageSize,
	}, func() {
		g.rooms.LeaveAll(conn)
		last, _ := g.registry.Unregister(identity.ID, conn)
		if g.hooks.OnDisconnect != nil {
			g.hooks.OnDisconnect(conn, last)
		}
		childLogger.Info().Bool("last", last).Msg("websocket connection closed")
	})

	// Personal room membership mirrors the connection lifetime. Conversation
	// rooms do not: clients re-issue conversation:join after a reconnect.
	g.rooms.Join(conn, UserRoom(identity.ID))
	first, total := g.registry.Register(identity.ID, conn)
	if g.hooks.OnConnect != nil {
		g.hooks.OnConnect(conn, first)
	}
	childLogger.Info().Bool("first", first).Int("connections", total).Msg("websocket connection established")

	go conn.run(g.handler)
}
