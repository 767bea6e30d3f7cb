// Package signal owns the WebSocket transport: upgrades, per-connection
// read/write pumps and the hand-off into the event router. The hub never
// sees a websocket, only connection ids.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mkrasov/huddle/internal/app"
	"github.com/mkrasov/huddle/internal/core"
)

var ErrBackpressure = errors.New("backpressure")

type Controller struct {
	Hub          *app.Hub
	ReadLimit    int64
	WriteTimeout time.Duration
	Limiter      *EventRateLimiter
}

func NewController(hub *app.Hub, readLimit int64, writeTimeout time.Duration) *Controller {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &Controller{
		Hub:          hub,
		ReadLimit:    readLimit,
		WriteTimeout: writeTimeout,
		Limiter:      NewEventRateLimiter(120, time.Second),
	}
}

// WsConn is one live websocket. It implements core.SignalConnection;
// the controller owns it and must Close() it.
type WsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWS upgrades the request and registers the connection with the
// hub. Presence is established only by a later join event.
func (ctl *Controller) HandleWS(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}

	connID := core.ConnID(uuid.NewString())
	conn := &WsConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}
	log.Info().Str("module", "signal").Str("conn", string(connID)).Msg("new ws connection")

	ctl.Hub.OnConnect(connID, conn)

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, connID, conn)
	go ctl.readPump(ctx, cancel, connID, conn)
}
