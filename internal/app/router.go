package app

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mkrasov/huddle/internal/core"
)

// Handler processes one inbound event for one connection. The raw data
// is the event's payload, unparsed; each handler shapes it itself.
type Handler func(conn core.ConnID, data json.RawMessage)

// Router is the per-connection event dispatcher. It owns the table of
// live connections and the handler table, and is the only component that
// touches transport endpoints. A fault inside a handler is recovered and
// logged; the connection keeps operating.
type Router struct {
	mu       sync.RWMutex
	conns    map[core.ConnID]core.SignalConnection
	handlers map[EventName]Handler
}

func NewRouter() *Router {
	return &Router{
		conns:    make(map[core.ConnID]core.SignalConnection),
		handlers: make(map[EventName]Handler),
	}
}

// Register binds a handler to an event name. Last registration wins.
func (r *Router) Register(ev EventName, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[ev] = h
}

// Attach makes a connection addressable for EmitTo and BroadcastAll.
func (r *Router) Attach(id core.ConnID, conn core.SignalConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[id] = conn
	log.Info().Str("module", "app.router").Str("conn", string(id)).Msg("attached connection")
}

// Detach forgets a connection. The adapter still owns Close().
func (r *Router) Detach(id core.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
	log.Info().Str("module", "app.router").Str("conn", string(id)).Msg("detached connection")
}

// Dispatch routes one inbound envelope to its handler. Unknown events
// are ignored, matching the transport's accept-anything model.
func (r *Router) Dispatch(conn core.ConnID, ev EventName, data json.RawMessage) {
	r.mu.RLock()
	h, ok := r.handlers[ev]
	r.mu.RUnlock()
	if !ok {
		log.Debug().Str("module", "app.router").Str("event", string(ev)).Msg("unknown event")
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Str("module", "app.router").Str("event", string(ev)).
				Str("conn", string(conn)).Interface("panic", rec).Msg("handler panic recovered")
		}
	}()
	h(conn, data)
}

// EmitTo unicasts an event to a single connection. A missing connection
// is a no-op: presence resolution already treats absence as deliver-nothing.
func (r *Router) EmitTo(id core.ConnID, ev EventName, payload any) {
	frame, err := encode(ev, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "app.router").Str("event", string(ev)).Msg("encode failed")
		return
	}
	r.mu.RLock()
	conn, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok {
		return
	}
	if err := conn.TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "app.router").Str("conn", string(id)).
			Str("event", string(ev)).Msg("send failed")
	}
}

// BroadcastAll fans an event out to every live connection. Ordering is
// guaranteed only within each connection's own outbound stream.
func (r *Router) BroadcastAll(ev EventName, payload any) {
	frame, err := encode(ev, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "app.router").Str("event", string(ev)).Msg("encode failed")
		return
	}
	r.mu.RLock()
	targets := make([]core.SignalConnection, 0, len(r.conns))
	for _, c := range r.conns {
		targets = append(targets, c)
	}
	r.mu.RUnlock()
	for _, c := range targets {
		_ = c.TrySend(frame)
	}
}

func (r *Router) ConnCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func encode(ev EventName, payload any) (core.Frame, error) {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		data = b
	}
	return json.Marshal(Envelope{Event: ev, Data: data})
}
