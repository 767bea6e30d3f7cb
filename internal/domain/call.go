package domain

import "encoding/json"

type CallState string

const (
	CallRinging  CallState = "ringing"
	CallAccepted CallState = "accepted"
	CallEnded    CallState = "ended"
)

// CallSession is one call negotiation between exactly two users.
// The signal blob is opaque offer/answer data and is never inspected.
type CallSession struct {
	ID         string
	Caller     UserID
	Callee     UserID
	CallerConn string
	CalleeConn string
	Signal     json.RawMessage
	State      CallState
}

// PairKey identifies the unordered participant pair of a session, so
// duplicate-call detection and disconnect cleanup are plain map lookups.
func PairKey(a, b UserID) string {
	if a > b {
		a, b = b, a
	}
	return string(a) + "|" + string(b)
}

func (s *CallSession) Involves(connID string) bool {
	return s.CallerConn == connID || (s.CalleeConn != "" && s.CalleeConn == connID)
}

// Peer returns the other participant relative to the given user.
func (s *CallSession) Peer(u UserID) UserID {
	if s.Caller == u {
		return s.Callee
	}
	return s.Caller
}
