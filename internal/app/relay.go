package app

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mkrasov/huddle/internal/core"
	"github.com/mkrasov/huddle/internal/domain"
)

// ConversationStore is the persistent-store collaborator the relay needs.
// Simple CRUD only; durability is the store's problem.
type ConversationStore interface {
	SaveMessage(ctx context.Context, raw json.RawMessage) error
	ConversationParticipants(ctx context.Context, conversationID string) ([]domain.UserID, error)
}

// chatMessage extracts only the routing fields of a message event; the
// full payload is relayed byte-for-byte.
type chatMessage struct {
	Sender struct {
		ID string `json:"_id"`
	} `json:"sender"`
	Conversation struct {
		ID    string `json:"_id"`
		Users []struct {
			ID string `json:"_id"`
		} `json:"users"`
	} `json:"conversation"`
}

// Relay forwards chat messages and typing notifications between the
// participants of a conversation.
type Relay struct {
	presence *Presence
	emit     Emitter
	store    ConversationStore
}

func NewRelay(presence *Presence, emit Emitter, store ConversationStore) *Relay {
	return &Relay{presence: presence, emit: emit, store: store}
}

// Message fans the payload out to every participant except the sender,
// then persists it through the store.
func (r *Relay) Message(from core.ConnID, data json.RawMessage) {
	var msg chatMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Warn().Err(err).Str("module", "app.relay").Msg("bad message payload")
		return
	}

	for _, u := range msg.Conversation.Users {
		if u.ID == msg.Sender.ID {
			continue
		}
		for _, conn := range r.presence.Resolve(domain.UserID(u.ID)) {
			r.emit.EmitTo(conn, EvReceiveMessage, data)
		}
	}

	if r.store == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.store.SaveMessage(ctx, data); err != nil {
			log.Error().Err(err).Str("module", "app.relay").
				Str("conversation", msg.Conversation.ID).Msg("save message failed")
		}
	}()
}

// Typing relays a typing or stop-typing notification to the other
// participants of the conversation.
func (r *Relay) Typing(ev EventName, from core.ConnID, data json.RawMessage) {
	var convID string
	if err := json.Unmarshal(data, &convID); err != nil {
		log.Warn().Err(err).Str("module", "app.relay").Msg("bad typing payload")
		return
	}
	if r.store == nil {
		return
	}

	sender, _ := r.presence.UserOf(from)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	participants, err := r.store.ConversationParticipants(ctx, convID)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.relay").
			Str("conversation", convID).Msg("participant lookup failed")
		return
	}

	for _, u := range participants {
		if u == sender {
			continue
		}
		for _, conn := range r.presence.Resolve(u) {
			r.emit.EmitTo(conn, ev, convID)
		}
	}
}
