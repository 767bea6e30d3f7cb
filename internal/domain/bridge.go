package domain

// BridgeState tracks the external messaging bridge lifecycle. Transitions
// are driven only by events from the bridge client, never forced locally.
type BridgeState string

const (
	BridgeUninitialized BridgeState = "uninitialized"
	BridgeAwaitingPair  BridgeState = "awaiting-pairing"
	BridgeAuthenticated BridgeState = "authenticated"
	BridgeReady         BridgeState = "ready"
	BridgeFailed        BridgeState = "failed"
)

// BridgeMessage is the normalized form of an inbound external-platform
// message. It is relayed immediately and never persisted here.
type BridgeMessage struct {
	ID        string `json:"id"`
	ChatID    string `json:"chatId"`
	From      string `json:"from"`
	To        string `json:"to"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
}
