package app

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mkrasov/huddle/internal/core"
)

type emitRec struct {
	Conn    core.ConnID
	Ev      EventName
	Payload any
}

type recEmitter struct {
	mu   sync.Mutex
	recs []emitRec
}

func (e *recEmitter) EmitTo(id core.ConnID, ev EventName, payload any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recs = append(e.recs, emitRec{Conn: id, Ev: ev, Payload: payload})
}

func (e *recEmitter) byEvent(ev EventName) []emitRec {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []emitRec
	for _, r := range e.recs {
		if r.Ev == ev {
			out = append(out, r)
		}
	}
	return out
}

func sigBlob(t *testing.T) json.RawMessage {
	t.Helper()
	return json.RawMessage(`{"type":"offer","sdp":"v=0 fake"}`)
}

func newCallsFixture() (*Presence, *recEmitter, *Calls) {
	p := NewPresence()
	e := &recEmitter{}
	return p, e, NewCalls(p, e)
}

func TestOfferRingsSingleTargetConnWithSignalUnchanged(t *testing.T) {
	p, e, c := newCallsFixture()
	p.Join("alice", "a1")
	p.Join("bob", "b1")

	sig := sigBlob(t)
	c.Offer("alice", "a1", OfferPayload{TargetUserID: "bob", Signal: sig, CallerName: "Alice"})

	rings := e.byEvent(EvCallUser)
	require.Len(t, rings, 1)
	require.Equal(t, core.ConnID("b1"), rings[0].Conn)

	ring, ok := rings[0].Payload.(RingPayload)
	require.True(t, ok)
	require.JSONEq(t, string(sig), string(ring.Signal))
	require.Equal(t, "a1", ring.FromConn)
	require.Equal(t, "alice", ring.FromUserID)
	require.True(t, c.Active("alice", "bob"))
}

func TestOfferRingsEveryConnOfTarget(t *testing.T) {
	p, e, c := newCallsFixture()
	p.Join("alice", "a1")
	p.Join("bob", "b1")
	p.Join("bob", "b2")

	c.Offer("alice", "a1", OfferPayload{TargetUserID: "bob", Signal: sigBlob(t)})

	rings := e.byEvent(EvCallUser)
	require.Len(t, rings, 2)
}

func TestOfferToOfflineUserEmitsUnavailable(t *testing.T) {
	p, e, c := newCallsFixture()
	p.Join("alice", "a1")

	c.Offer("alice", "a1", OfferPayload{TargetUserID: "bob", Signal: sigBlob(t)})

	require.Empty(t, e.byEvent(EvCallUser))
	unavail := e.byEvent(EvCallUnavailable)
	require.Len(t, unavail, 1)
	require.Equal(t, core.ConnID("a1"), unavail[0].Conn)
	require.Equal(t, UnavailablePayload{TargetUserID: "bob", Reason: "offline"}, unavail[0].Payload)
	require.False(t, c.Active("alice", "bob"))
}

func TestSecondOfferForSamePairIsBusy(t *testing.T) {
	p, e, c := newCallsFixture()
	p.Join("alice", "a1")
	p.Join("bob", "b1")

	c.Offer("alice", "a1", OfferPayload{TargetUserID: "bob", Signal: sigBlob(t)})
	c.Offer("bob", "b1", OfferPayload{TargetUserID: "alice", Signal: sigBlob(t)})

	unavail := e.byEvent(EvCallUnavailable)
	require.Len(t, unavail, 1)
	require.Equal(t, core.ConnID("b1"), unavail[0].Conn)
	require.Equal(t, "busy", unavail[0].Payload.(UnavailablePayload).Reason)
}

func TestAnswerAcceptsRingingSession(t *testing.T) {
	p, e, c := newCallsFixture()
	p.Join("alice", "a1")
	p.Join("bob", "b1")

	c.Offer("alice", "a1", OfferPayload{TargetUserID: "bob", Signal: sigBlob(t)})
	answer := json.RawMessage(`{"type":"answer","sdp":"v=0 reply"}`)
	c.Answer("bob", "b1", AnswerPayload{Signal: answer, To: "a1"})

	accepted := e.byEvent(EvCallAccepted)
	require.Len(t, accepted, 1)
	require.Equal(t, core.ConnID("a1"), accepted[0].Conn)
	require.JSONEq(t, string(answer), string(accepted[0].Payload.(AcceptedPayload).Signal))
}

func TestAnswerWithoutSessionIsNoop(t *testing.T) {
	p, e, c := newCallsFixture()
	p.Join("bob", "b1")

	require.NotPanics(t, func() {
		c.Answer("bob", "b1", AnswerPayload{Signal: sigBlob(t), To: "a1"})
	})
	require.Empty(t, e.byEvent(EvCallAccepted))
	require.False(t, c.Active("alice", "bob"))
}

func TestAnswerAfterCallerVanishedDiscardsSession(t *testing.T) {
	p, e, c := newCallsFixture()
	p.Join("alice", "a1")
	p.Join("bob", "b1")

	c.Offer("alice", "a1", OfferPayload{TargetUserID: "bob", Signal: sigBlob(t)})
	// Caller drops out of presence while the answer is in flight.
	p.Leave("a1")
	c.Answer("bob", "b1", AnswerPayload{Signal: sigBlob(t), To: "a1"})

	require.Empty(t, e.byEvent(EvCallAccepted))
	require.False(t, c.Active("alice", "bob"))
}

func TestEndCallNotifiesPeerAndDiscardsSession(t *testing.T) {
	p, e, c := newCallsFixture()
	p.Join("alice", "a1")
	p.Join("bob", "b1")

	c.Offer("alice", "a1", OfferPayload{TargetUserID: "bob", Signal: sigBlob(t)})
	c.Answer("bob", "b1", AnswerPayload{Signal: sigBlob(t), To: "a1"})
	c.End("b1", EndPayload{To: "a1"})

	ends := e.byEvent(EvEndCall)
	require.Len(t, ends, 1)
	require.Equal(t, core.ConnID("a1"), ends[0].Conn)
	require.False(t, c.Active("alice", "bob"))

	// Duplicate end-call finds no session and must no-op.
	c.End("b1", EndPayload{To: "a1"})
	require.Len(t, e.byEvent(EvEndCall), 1)
}

func TestCallerEndWhileRingingNotifiesAllCalleeConns(t *testing.T) {
	p, e, c := newCallsFixture()
	p.Join("alice", "a1")
	p.Join("bob", "b1")
	p.Join("bob", "b2")

	c.Offer("alice", "a1", OfferPayload{TargetUserID: "bob", Signal: sigBlob(t)})
	c.End("a1", EndPayload{})

	ends := e.byEvent(EvEndCall)
	require.Len(t, ends, 2)
}

func TestDisconnectSynthesizesEndCallToRemainingParty(t *testing.T) {
	p, e, c := newCallsFixture()
	p.Join("alice", "a1")
	p.Join("bob", "b1")

	c.Offer("alice", "a1", OfferPayload{TargetUserID: "bob", Signal: sigBlob(t)})
	c.OnDisconnect("a1")

	ends := e.byEvent(EvEndCall)
	require.Len(t, ends, 1)
	require.Equal(t, core.ConnID("b1"), ends[0].Conn)
	require.False(t, c.Active("alice", "bob"))
}

func TestCalleeOfflineMidRingingEndsSession(t *testing.T) {
	p, e, c := newCallsFixture()
	p.Join("alice", "a1")
	p.Join("bob", "b1")

	c.Offer("alice", "a1", OfferPayload{TargetUserID: "bob", Signal: sigBlob(t)})
	p.Leave("b1")
	c.OnUserOffline("bob")

	ends := e.byEvent(EvEndCall)
	require.Len(t, ends, 1)
	require.Equal(t, core.ConnID("a1"), ends[0].Conn)
	require.False(t, c.Active("alice", "bob"))

	// The pair is callable again once the callee returns.
	p.Join("bob", "b2")
	c.Offer("alice", "a1", OfferPayload{TargetUserID: "bob", Signal: sigBlob(t)})
	require.Empty(t, e.byEvent(EvCallUnavailable))
}

func TestCalleeOfflineLeavesUnrelatedSessionsAlone(t *testing.T) {
	p, e, c := newCallsFixture()
	p.Join("alice", "a1")
	p.Join("bob", "b1")
	p.Join("carol", "x1")
	p.Join("dave", "d1")

	c.Offer("alice", "a1", OfferPayload{TargetUserID: "bob", Signal: sigBlob(t)})
	c.Offer("carol", "x1", OfferPayload{TargetUserID: "dave", Signal: sigBlob(t)})

	p.Leave("b1")
	c.OnUserOffline("bob")

	require.Len(t, e.byEvent(EvEndCall), 1)
	require.False(t, c.Active("alice", "bob"))
	require.True(t, c.Active("carol", "dave"))
}

func TestCalleeDeclinesRingingCall(t *testing.T) {
	p, e, c := newCallsFixture()
	p.Join("alice", "a1")
	p.Join("bob", "b1")

	c.Offer("alice", "a1", OfferPayload{TargetUserID: "bob", Signal: sigBlob(t)})
	// The ringing callee has no indexed connection yet and ends via the
	// payload's target connection.
	c.End("b1", EndPayload{To: "a1"})

	ends := e.byEvent(EvEndCall)
	require.Len(t, ends, 1)
	require.Equal(t, core.ConnID("a1"), ends[0].Conn)
	require.False(t, c.Active("alice", "bob"))
}

func TestEndFromUninvolvedConnIsNoop(t *testing.T) {
	p, e, c := newCallsFixture()
	p.Join("alice", "a1")
	p.Join("bob", "b1")
	p.Join("carol", "x1")

	c.Offer("alice", "a1", OfferPayload{TargetUserID: "bob", Signal: sigBlob(t)})
	// A bystander naming the caller's connection must not tear the call
	// down.
	c.End("x1", EndPayload{To: "a1"})

	require.Empty(t, e.byEvent(EvEndCall))
	require.True(t, c.Active("alice", "bob"))
}

func TestEndFromUnjoinedConnIsNoop(t *testing.T) {
	p, e, c := newCallsFixture()
	p.Join("alice", "a1")
	p.Join("bob", "b1")

	c.Offer("alice", "a1", OfferPayload{TargetUserID: "bob", Signal: sigBlob(t)})
	c.End("ghost", EndPayload{To: "a1"})

	require.Empty(t, e.byEvent(EvEndCall))
	require.True(t, c.Active("alice", "bob"))
}

func TestDisconnectOfUninvolvedConnIsNoop(t *testing.T) {
	p, e, c := newCallsFixture()
	p.Join("alice", "a1")
	p.Join("bob", "b1")
	p.Join("carol", "x1")

	c.Offer("alice", "a1", OfferPayload{TargetUserID: "bob", Signal: sigBlob(t)})
	c.OnDisconnect("x1")

	require.Empty(t, e.byEvent(EvEndCall))
	require.True(t, c.Active("alice", "bob"))
}
