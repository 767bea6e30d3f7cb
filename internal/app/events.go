package app

import "encoding/json"

// EventName enumerates the wire events. Dispatch goes through a single
// typed handler table keyed by these constants.
type EventName string

// Inbound events (client -> coordinator).
const (
	EvJoin       EventName = "join"
	EvCallUser   EventName = "call-user"
	EvAnswerCall EventName = "answer-call"
	EvEndCall    EventName = "end-call"
	EvMessage    EventName = "message"
	EvTyping     EventName = "typing"
	EvStopTyping EventName = "stop-typing"
	EvPing       EventName = "ping"
)

// Outbound events (coordinator -> client).
const (
	EvOnlineUsers     EventName = "get-online-users"
	EvCallAccepted    EventName = "call-accepted"
	EvCallUnavailable EventName = "call-unavailable"
	EvReceiveMessage  EventName = "receive-message"
	EvNewMessage      EventName = "new-message"
	EvBridgeQR        EventName = "whatsapp-qr"
	EvBridgeAuth      EventName = "whatsapp-authenticated"
	EvBridgeReady     EventName = "whatsapp-ready"
	EvPong            EventName = "pong"
)

// Envelope is the wire framing for every event in both directions.
type Envelope struct {
	Event EventName       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}
