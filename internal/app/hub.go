package app

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/mkrasov/huddle/internal/core"
	"github.com/mkrasov/huddle/internal/domain"
)

// Hub owns the single event channel per connected user: presence, call
// signaling and chat relay all hang off the same Router.
type Hub struct {
	Presence *Presence
	Router   *Router
	Calls    *Calls
	Relay    *Relay
}

func NewHub(store ConversationStore) *Hub {
	presence := NewPresence()
	router := NewRouter()
	h := &Hub{
		Presence: presence,
		Router:   router,
		Calls:    NewCalls(presence, router),
		Relay:    NewRelay(presence, router, store),
	}
	h.registerHandlers()
	return h
}

func (h *Hub) registerHandlers() {
	h.Router.Register(EvJoin, h.handleJoin)
	h.Router.Register(EvCallUser, h.handleCallUser)
	h.Router.Register(EvAnswerCall, h.handleAnswerCall)
	h.Router.Register(EvEndCall, h.handleEndCall)
	h.Router.Register(EvMessage, h.Relay.Message)
	h.Router.Register(EvTyping, func(conn core.ConnID, data json.RawMessage) {
		h.Relay.Typing(EvTyping, conn, data)
	})
	h.Router.Register(EvStopTyping, func(conn core.ConnID, data json.RawMessage) {
		h.Relay.Typing(EvStopTyping, conn, data)
	})
	h.Router.Register(EvPing, func(conn core.ConnID, _ json.RawMessage) {
		h.Router.EmitTo(conn, EvPong, nil)
	})
}

// OnConnect makes the connection addressable. Presence starts only at
// the first join event for the connection.
func (h *Hub) OnConnect(conn core.ConnID, sc core.SignalConnection) {
	h.Router.Attach(conn, sc)
}

// OnDisconnect is the only cancellation signal: presence entry removal
// and call teardown happen synchronously before the connection is
// forgotten.
func (h *Hub) OnDisconnect(conn core.ConnID) {
	h.Calls.OnDisconnect(conn)
	user, wentOffline, found := h.Presence.Leave(conn)
	if found && wentOffline {
		h.Calls.OnUserOffline(user)
	}
	h.Router.Detach(conn)
	if found && wentOffline {
		h.Router.BroadcastAll(EvOnlineUsers, h.Presence.Online())
	}
}

func (h *Hub) handleJoin(conn core.ConnID, data json.RawMessage) {
	var uid string
	if err := json.Unmarshal(data, &uid); err != nil {
		var obj struct {
			UserID string `json:"userId"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			log.Warn().Err(err).Str("module", "app.hub").Msg("bad join payload")
			return
		}
		uid = obj.UserID
	}
	user := domain.UserID(uid)
	if err := domain.ValidateUserID(user); err != nil {
		log.Warn().Err(err).Str("module", "app.hub").Str("conn", string(conn)).Msg("join rejected")
		return
	}

	online := h.Presence.Join(user, conn)
	h.Router.BroadcastAll(EvOnlineUsers, online)
}

func (h *Hub) handleCallUser(conn core.ConnID, data json.RawMessage) {
	caller, ok := h.Presence.UserOf(conn)
	if !ok {
		return
	}
	var p OfferPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "app.hub").Msg("bad call-user payload")
		return
	}
	h.Calls.Offer(caller, conn, p)
}

func (h *Hub) handleAnswerCall(conn core.ConnID, data json.RawMessage) {
	callee, ok := h.Presence.UserOf(conn)
	if !ok {
		return
	}
	var p AnswerPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "app.hub").Msg("bad answer-call payload")
		return
	}
	h.Calls.Answer(callee, conn, p)
}

func (h *Hub) handleEndCall(conn core.ConnID, data json.RawMessage) {
	var p EndPayload
	if len(data) > 0 {
		if err := json.Unmarshal(data, &p); err != nil {
			// Older clients send the bare connection id.
			var to string
			if json.Unmarshal(data, &to) == nil {
				p.To = to
			}
		}
	}
	h.Calls.End(conn, p)
}
