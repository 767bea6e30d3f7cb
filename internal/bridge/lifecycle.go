package bridge

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/mkrasov/huddle/internal/domain"
)

var ErrNotReady = errors.New("bridge not ready")

// Manager owns the bridge client lifecycle. It attaches the adapter's
// subscriptions before the client is allowed to initialize, so no event
// can be emitted into an unwired router. State transitions are driven
// only by client events.
type Manager struct {
	client  Client
	adapter *Adapter

	mu    sync.RWMutex
	state domain.BridgeState
}

func NewManager(client Client, adapter *Adapter) *Manager {
	return &Manager{
		client:  client,
		adapter: adapter,
		state:   domain.BridgeUninitialized,
	}
}

// Start wires the subscriptions and then initializes the client. An
// initialization error is returned to the caller's fatal guard: there is
// no per-bridge recovery, an operator clears credentials and retries.
func (m *Manager) Start(ctx context.Context) error {
	inner := m.adapter.Handlers()
	m.client.SetHandlers(Handlers{
		OnQR: func(code string) {
			m.setState(domain.BridgeAwaitingPair)
			if inner.OnQR != nil {
				inner.OnQR(code)
			}
		},
		OnAuthenticated: func() {
			m.setState(domain.BridgeAuthenticated)
			if inner.OnAuthenticated != nil {
				inner.OnAuthenticated()
			}
		},
		OnReady: func() {
			m.setState(domain.BridgeReady)
			if inner.OnReady != nil {
				inner.OnReady()
			}
		},
		OnMessage: inner.OnMessage,
	})

	if err := m.client.Start(ctx); err != nil {
		m.setState(domain.BridgeFailed)
		return errors.Wrap(err, "bridge start")
	}
	return nil
}

func (m *Manager) State() domain.BridgeState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// SendText relays an outbound message through the client. Only valid
// once the bridge reports ready.
func (m *Manager) SendText(ctx context.Context, chatID, body string) (string, error) {
	if m.State() != domain.BridgeReady {
		return "", ErrNotReady
	}
	return m.client.SendText(ctx, chatID, body)
}

func (m *Manager) Close() {
	m.client.Close()
}

func (m *Manager) setState(s domain.BridgeState) {
	m.mu.Lock()
	prev := m.state
	m.state = s
	m.mu.Unlock()
	if prev != s {
		log.Info().Str("module", "bridge.lifecycle").
			Str("from", string(prev)).Str("to", string(s)).Msg("bridge state")
	}
}
