package app

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mkrasov/huddle/internal/core"
	"github.com/mkrasov/huddle/internal/domain"
)

// Emitter is the outbound half of the Router that the coordinator needs.
type Emitter interface {
	EmitTo(id core.ConnID, ev EventName, payload any)
}

// OfferPayload is the inbound call-user event.
type OfferPayload struct {
	TargetUserID  string          `json:"targetUserId"`
	Signal        json.RawMessage `json:"signal"`
	CallerName    string          `json:"callerName"`
	CallerPicture string          `json:"callerPicture"`
}

// RingPayload is the call-user event delivered to the callee. FromConn is
// the connection the callee must address its answer to.
type RingPayload struct {
	CallID        string          `json:"callId"`
	FromUserID    string          `json:"fromUserId"`
	FromConn      string          `json:"fromConn"`
	Signal        json.RawMessage `json:"signal"`
	CallerName    string          `json:"callerName"`
	CallerPicture string          `json:"callerPicture"`
}

type AnswerPayload struct {
	Signal json.RawMessage `json:"signal"`
	To     string          `json:"to"`
}

type AcceptedPayload struct {
	CallID string          `json:"callId"`
	Signal json.RawMessage `json:"signal"`
}

type EndPayload struct {
	To string `json:"to"`
}

type UnavailablePayload struct {
	TargetUserID string `json:"targetUserId"`
	Reason       string `json:"reason"`
}

type EndedPayload struct {
	CallID string `json:"callId"`
}

// Calls mediates offer/answer/teardown between exactly two presence
// entries. Sessions are indexed by participant pair and by connection so
// duplicate-call detection and disconnect cleanup are plain lookups.
// Signal blobs pass through untouched.
type Calls struct {
	mu       sync.Mutex
	presence *Presence
	emit     Emitter
	byPair   map[string]*domain.CallSession
	byConn   map[core.ConnID]*domain.CallSession
}

func NewCalls(presence *Presence, emit Emitter) *Calls {
	return &Calls{
		presence: presence,
		emit:     emit,
		byPair:   make(map[string]*domain.CallSession),
		byConn:   make(map[core.ConnID]*domain.CallSession),
	}
}

// Offer starts a ringing session and rings every live connection of the
// target. An offline target or an already-active session for the pair
// is answered with call-unavailable instead of a silent drop.
func (c *Calls) Offer(caller domain.UserID, callerConn core.ConnID, p OfferPayload) {
	target := domain.UserID(p.TargetUserID)
	if target == "" || target == caller {
		return
	}

	targets := c.presence.Resolve(target)
	if len(targets) == 0 {
		c.emit.EmitTo(callerConn, EvCallUnavailable, UnavailablePayload{
			TargetUserID: p.TargetUserID,
			Reason:       "offline",
		})
		return
	}

	c.mu.Lock()
	key := domain.PairKey(caller, target)
	if _, busy := c.byPair[key]; busy {
		c.mu.Unlock()
		c.emit.EmitTo(callerConn, EvCallUnavailable, UnavailablePayload{
			TargetUserID: p.TargetUserID,
			Reason:       "busy",
		})
		return
	}
	sess := &domain.CallSession{
		ID:         uuid.NewString(),
		Caller:     caller,
		Callee:     target,
		CallerConn: string(callerConn),
		Signal:     p.Signal,
		State:      domain.CallRinging,
	}
	c.byPair[key] = sess
	c.byConn[callerConn] = sess
	c.mu.Unlock()

	log.Info().Str("module", "app.calls").Str("call", sess.ID).
		Str("caller", string(caller)).Str("callee", string(target)).Msg("ringing")

	ring := RingPayload{
		CallID:        sess.ID,
		FromUserID:    string(caller),
		FromConn:      string(callerConn),
		Signal:        p.Signal,
		CallerName:    p.CallerName,
		CallerPicture: p.CallerPicture,
	}
	for _, conn := range targets {
		c.emit.EmitTo(conn, EvCallUser, ring)
	}
}

// Answer transitions a ringing session to accepted and delivers the
// answer signal to the initiator. An answer with no matching ringing
// session is a no-op.
func (c *Calls) Answer(callee domain.UserID, calleeConn core.ConnID, p AnswerPayload) {
	c.mu.Lock()
	sess, ok := c.byConn[core.ConnID(p.To)]
	if !ok || sess.State != domain.CallRinging || sess.Callee != callee {
		c.mu.Unlock()
		return
	}
	// The initiator may have vanished while the answer was in flight.
	if _, live := c.presence.UserOf(core.ConnID(sess.CallerConn)); !live {
		c.dropLocked(sess)
		c.mu.Unlock()
		return
	}
	sess.State = domain.CallAccepted
	sess.CalleeConn = string(calleeConn)
	c.byConn[calleeConn] = sess
	c.mu.Unlock()

	log.Info().Str("module", "app.calls").Str("call", sess.ID).Msg("accepted")
	c.emit.EmitTo(core.ConnID(sess.CallerConn), EvCallAccepted, AcceptedPayload{
		CallID: sess.ID,
		Signal: p.Signal,
	})
}

// End tears down the session referenced by the sender's connection (or,
// failing that, by the payload's target connection) and notifies the
// other party. The fallback lookup only honors participants: a ringing
// callee has no indexed connection yet but is still entitled to decline.
// A duplicate end-call finds no session and no-ops.
func (c *Calls) End(fromConn core.ConnID, p EndPayload) {
	c.mu.Lock()
	sess, ok := c.byConn[fromConn]
	if !ok {
		sess, ok = c.byConn[core.ConnID(p.To)]
		if ok {
			user, joined := c.presence.UserOf(fromConn)
			if !joined || (sess.Caller != user && sess.Callee != user) {
				c.mu.Unlock()
				return
			}
		}
	}
	if !ok {
		c.mu.Unlock()
		return
	}
	peers := c.peerConnsLocked(sess, fromConn)
	c.dropLocked(sess)
	c.mu.Unlock()

	log.Info().Str("module", "app.calls").Str("call", sess.ID).Msg("ended")
	for _, conn := range peers {
		c.emit.EmitTo(conn, EvEndCall, EndedPayload{CallID: sess.ID})
	}
}

// OnDisconnect synthesizes an end-call to the remaining party when a
// connection referenced by a session goes away.
func (c *Calls) OnDisconnect(conn core.ConnID) {
	c.mu.Lock()
	sess, ok := c.byConn[conn]
	if !ok {
		c.mu.Unlock()
		return
	}
	peers := c.peerConnsLocked(sess, conn)
	c.dropLocked(sess)
	c.mu.Unlock()

	log.Info().Str("module", "app.calls").Str("call", sess.ID).
		Str("conn", string(conn)).Msg("ended by disconnect")
	for _, peer := range peers {
		c.emit.EmitTo(peer, EvEndCall, EndedPayload{CallID: sess.ID})
	}
}

// OnUserOffline tears down ringing sessions that reference the user as
// callee. While ringing no callee connection is pinned, so the conn
// index cannot see the callee go away; the caller must still get a
// synthesized end-call once the callee's last connection drops.
func (c *Calls) OnUserOffline(user domain.UserID) {
	c.mu.Lock()
	var dropped []*domain.CallSession
	for _, sess := range c.byPair {
		if sess.State == domain.CallRinging && sess.Callee == user {
			dropped = append(dropped, sess)
		}
	}
	for _, sess := range dropped {
		c.dropLocked(sess)
	}
	c.mu.Unlock()

	for _, sess := range dropped {
		log.Info().Str("module", "app.calls").Str("call", sess.ID).
			Str("callee", string(user)).Msg("ended, callee offline")
		c.emit.EmitTo(core.ConnID(sess.CallerConn), EvEndCall, EndedPayload{CallID: sess.ID})
	}
}

// Active reports whether a session currently exists for the user pair.
func (c *Calls) Active(a, b domain.UserID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.byPair[domain.PairKey(a, b)]
	return ok
}

// peerConnsLocked resolves the connections of the party opposite the
// given connection. While ringing the callee has not pinned a connection
// yet, so every live connection of the callee is notified.
func (c *Calls) peerConnsLocked(sess *domain.CallSession, from core.ConnID) []core.ConnID {
	if string(from) == sess.CallerConn {
		if sess.CalleeConn != "" {
			return []core.ConnID{core.ConnID(sess.CalleeConn)}
		}
		return c.presence.Resolve(sess.Callee)
	}
	return []core.ConnID{core.ConnID(sess.CallerConn)}
}

func (c *Calls) dropLocked(sess *domain.CallSession) {
	sess.State = domain.CallEnded
	delete(c.byPair, domain.PairKey(sess.Caller, sess.Callee))
	delete(c.byConn, core.ConnID(sess.CallerConn))
	if sess.CalleeConn != "" {
		delete(c.byConn, core.ConnID(sess.CalleeConn))
	}
}
