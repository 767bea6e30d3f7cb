package bridge

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/mkrasov/huddle/internal/domain"
)

// fakeClient records whether handlers were attached before Start and
// lets tests drive lifecycle events by hand.
type fakeClient struct {
	handlers        Handlers
	handlersSet     bool
	handlersAtStart bool
	started         bool
	startErr        error
	sent            []string
	closed          bool
}

func (f *fakeClient) SetHandlers(h Handlers) {
	f.handlers = h
	f.handlersSet = true
}

func (f *fakeClient) Start(context.Context) error {
	f.handlersAtStart = f.handlersSet
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	return nil
}

func (f *fakeClient) SendText(_ context.Context, chatID, body string) (string, error) {
	f.sent = append(f.sent, chatID+":"+body)
	return "msg-1", nil
}

func (f *fakeClient) Close() { f.closed = true }

func newManagerFixture() (*fakeClient, *fakeBroadcaster, *Manager) {
	cli := &fakeClient{}
	out := &fakeBroadcaster{}
	return cli, out, NewManager(cli, NewAdapter(out))
}

func TestManagerAttachesHandlersBeforeStart(t *testing.T) {
	cli, _, m := newManagerFixture()
	require.NoError(t, m.Start(context.Background()))
	require.True(t, cli.handlersAtStart)
	require.True(t, cli.started)
}

func TestManagerStateFollowsClientEvents(t *testing.T) {
	cli, out, m := newManagerFixture()
	require.Equal(t, domain.BridgeUninitialized, m.State())
	require.NoError(t, m.Start(context.Background()))

	cli.handlers.OnQR("code")
	require.Equal(t, domain.BridgeAwaitingPair, m.State())

	cli.handlers.OnAuthenticated()
	require.Equal(t, domain.BridgeAuthenticated, m.State())

	cli.handlers.OnReady()
	require.Equal(t, domain.BridgeReady, m.State())

	// Events also reached the adapter's broadcasts.
	require.Len(t, out.byEvent("whatsapp-qr"), 1)
	require.Len(t, out.byEvent("whatsapp-authenticated"), 1)
	require.Len(t, out.byEvent("whatsapp-ready"), 1)
}

func TestManagerStartFailurePropagates(t *testing.T) {
	cli, _, m := newManagerFixture()
	cli.startErr = errors.New("no session")

	err := m.Start(context.Background())
	require.Error(t, err)
	require.Equal(t, domain.BridgeFailed, m.State())
}

func TestManagerSendRequiresReady(t *testing.T) {
	cli, _, m := newManagerFixture()
	require.NoError(t, m.Start(context.Background()))

	_, err := m.SendText(context.Background(), "123@s.whatsapp.net", "hi")
	require.ErrorIs(t, err, ErrNotReady)

	cli.handlers.OnReady()
	id, err := m.SendText(context.Background(), "123@s.whatsapp.net", "hi")
	require.NoError(t, err)
	require.Equal(t, "msg-1", id)
	require.Equal(t, []string{"123@s.whatsapp.net:hi"}, cli.sent)
}

func TestManagerMessageFlowsThroughAdapterFilter(t *testing.T) {
	cli, out, m := newManagerFixture()
	require.NoError(t, m.Start(context.Background()))

	cli.handlers.OnMessage(domain.BridgeMessage{ID: "1", ChatID: "status@broadcast"})
	cli.handlers.OnMessage(domain.BridgeMessage{ID: "2", ChatID: "12@s.whatsapp.net", Body: "yo"})

	fwd := out.byEvent("new-message")
	require.Len(t, fwd, 1)
	require.Equal(t, "2", fwd[0].Payload.(domain.BridgeMessage).ID)
}
