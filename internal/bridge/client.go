// Package bridge connects the external messaging platform to the event
// channel. The platform client is an injected dependency behind the
// Client interface, so the coordinator can run against a fake.
package bridge

import (
	"context"

	"github.com/mkrasov/huddle/internal/domain"
)

// Handlers are the subscriptions a Client emits into. They must be set
// before Start; a Client never emits before Start is called.
type Handlers struct {
	OnQR            func(code string)
	OnAuthenticated func()
	OnReady         func()
	OnMessage       func(msg domain.BridgeMessage)
}

// Client is the outward shape of the external platform client. Its
// internal session-restoration mechanics are opaque; only lifecycle
// events and the outbound send capability are consumed.
type Client interface {
	// SetHandlers attaches the event subscriptions. Must be called
	// before Start.
	SetHandlers(h Handlers)
	// Start initializes the client and begins emitting events.
	Start(ctx context.Context) error
	// SendText sends an outbound message and returns the platform
	// message id.
	SendText(ctx context.Context, chatID, body string) (string, error)
	Close()
}
