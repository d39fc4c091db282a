package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/example/lynk/internal/types"
)

var errSendBufferFull = errors.New("send buffer full")

// Session is the surface protocol handlers see for one authenticated
// connection. Connection implements it; tests substitute fakes.
type Session interface {
	Identity() types.Identity
	Join(room string)
	Leave(room string)
	Send(event string, payload any) error
	Ack(id uint64, ok bool, message string, payload any)
}

// FrameHandler dispatches one decoded inbound frame. Frames from a single
// connection are dispatched sequentially by its read loop, so a handler never
// races another handler of the same connection.
type FrameHandler interface {
	HandleFrame(ctx context.Context, s Session, f Frame)
}

type connectionOptions struct {
	pongWait       time.Duration
	pingInterval   time.Duration
	writeTimeout   time.Duration
	sendBufferSize int
	maxMessageSize int64
}

// Connection represents one upgraded WebSocket session bound to a verified
// identity.
type Connection struct {
	ws       *websocket.Conn
	identity types.Identity
	rooms    *Rooms
	logger   zerolog.Logger

	send      chan []byte
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	onClose   func()

	opts connectionOptions
}

func newConnection(wsConn *websocket.Conn, identity types.Identity, rooms *Rooms, logger zerolog.Logger, opts connectionOptions, onClose func()) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		ws:       wsConn,
		identity: identity,
		rooms:    rooms,
		logger:   logger,
		send:     make(chan []byte, opts.sendBufferSize),
		ctx:      ctx,
		cancel:   cancel,
		onClose:  onClose,
		opts:     opts,
	}
}

// Identity returns the authenticated user bound at handshake time.
func (c *Connection) Identity() types.Identity { return c.identity }

// Context exposes the connection lifecycle context.
func (c *Connection) Context() context.Context { return c.ctx }

// Join subscribes the connection to a room.
func (c *Connection) Join(room string) { c.rooms.Join(c, room) }

// Leave unsubscribes the connection from a room.
func (c *Connection) Leave(room string) { c.rooms.Leave(c, room) }

// Send enqueues a server-push event for this connection only.
func (c *Connection) Send(event string, payload any) error {
	frame, err := eventFrame(event, payload)
	if err != nil {
		return err
	}
	return c.enqueue(frame)
}

// Ack answers a request frame. Delivery is best effort; a failed ack is logged
// and the connection torn down by the usual backpressure path.
func (c *Connection) Ack(id uint64, ok bool, message string, payload any) {
	frame, err := ackFrame(id, ok, message, payload)
	if err != nil {
		c.logger.Error().Err(err).Msg("ack payload not serializable")
		return
	}
	if err := c.enqueue(frame); err != nil {
		c.logger.Debug().Err(err).Msg("ack dropped")
	}
}

func (c *Connection) enqueue(frame []byte) error {
	select {
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		c.logger.Warn().Str("user", string(c.identity.ID)).Msg("send buffer full; closing connection")
		c.close()
		return errSendBufferFull
	}
}

func (c *Connection) run(handler FrameHandler) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writeLoop()
	}()

	c.readLoop(handler)
	c.close()
	wg.Wait()
}

func (c *Connection) close() {
	c.closeOnce.Do(func() {
		c.cancel()
		if c.ws != nil {
			_ = c.ws.Close()
		}
		if c.onClose != nil {
			// Teardown walks rooms, the registry, and the presence hooks, which
			// can block on the data layer. close() is reachable from a room
			// delivery loop, so the chain must run off the caller's goroutine.
			go c.onClose()
		}
	})
}

func (c *Connection) readLoop(handler FrameHandler) {
	c.ws.SetReadLimit(c.opts.maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.opts.pongWait))
	})

	for {
		var frame Frame
		if err := c.ws.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug().Err(err).Msg("read loop exited")
			}
			return
		}
		if frame.Event == "" {
			continue
		}
		handler.HandleFrame(c.ctx, c, frame)
	}
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(c.opts.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			_ = c.control(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug().Err(err).Msg("write loop error")
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.control(websocket.PingMessage, nil); err != nil {
				c.logger.Debug().Err(err).Msg("heartbeat ping failed")
				c.close()
				return
			}
		}
	}
}

func (c *Connection) control(messageType int, payload []byte) error {
	return c.ws.WriteControl(messageType, payload, time.Now().Add(c.opts.writeTimeout))
}
