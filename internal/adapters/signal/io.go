package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mkrasov/huddle/internal/app"
	"github.com/mkrasov/huddle/internal/core"
)

func (ctl *Controller) writePump(ctx context.Context, connID core.ConnID, c *WsConn) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.WriteTimeout)); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("conn", string(connID)).Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("conn", string(connID)).Msg("writePump write error")
				return
			}
		}
	}
}

// readPump serializes dispatch per connection: events from one client
// are handled in arrival order. Exit is the disconnect signal and tears
// down presence and any call referencing this connection.
func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, connID core.ConnID, c *WsConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(connID)).Msg("readPump closing")
		ctl.Hub.OnDisconnect(connID)
		if ctl.Limiter != nil {
			ctl.Limiter.Forget(connID)
		}
		cancel()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				return
			}
			ctl.handleFrame(connID, data)
		}
	}
}

func (ctl *Controller) handleFrame(connID core.ConnID, data []byte) {
	var env app.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(connID)).Msg("bad envelope")
		return
	}
	if env.Event == "" {
		return
	}
	if ctl.Limiter != nil && !ctl.Limiter.Allow(connID) {
		log.Warn().Str("module", "signal").Str("conn", string(connID)).
			Str("event", string(env.Event)).Msg("rate limited, dropping event")
		return
	}
	ctl.Hub.Router.Dispatch(connID, env.Event, env.Data)
}
