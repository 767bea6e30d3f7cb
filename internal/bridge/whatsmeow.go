package bridge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/mkrasov/huddle/internal/domain"
)

// WhatsmeowClient implements Client on top of the WhatsApp Web protocol.
// The session is persisted in a sqlite store under sessionDir, so a
// restart reconnects without re-pairing.
type WhatsmeowClient struct {
	sessionDir string
	handlers   Handlers
	cli        *whatsmeow.Client
}

func NewWhatsmeowClient(sessionDir string) *WhatsmeowClient {
	return &WhatsmeowClient{sessionDir: sessionDir}
}

func (w *WhatsmeowClient) SetHandlers(h Handlers) {
	w.handlers = h
}

func (w *WhatsmeowClient) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.sessionDir, 0o755); err != nil {
		return errors.Wrap(err, "session dir")
	}
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on", filepath.Join(w.sessionDir, "session.db"))
	container, err := sqlstore.New("sqlite3", dsn, waLog.Noop)
	if err != nil {
		return errors.Wrap(err, "session store")
	}
	device, err := container.GetFirstDevice()
	if err != nil {
		return errors.Wrap(err, "device store")
	}

	w.cli = whatsmeow.NewClient(device, waLog.Noop)
	w.cli.AddEventHandler(w.dispatch)

	if w.cli.Store.ID == nil {
		// Fresh session: the QR channel must be obtained before Connect.
		qrChan, err := w.cli.GetQRChannel(ctx)
		if err != nil {
			return errors.Wrap(err, "qr channel")
		}
		if err := w.cli.Connect(); err != nil {
			return errors.Wrap(err, "connect")
		}
		go func() {
			for item := range qrChan {
				if item.Event == "code" && w.handlers.OnQR != nil {
					w.handlers.OnQR(item.Code)
				}
			}
		}()
		return nil
	}

	if err := w.cli.Connect(); err != nil {
		return errors.Wrap(err, "connect")
	}
	return nil
}

func (w *WhatsmeowClient) dispatch(evt any) {
	switch v := evt.(type) {
	case *events.PairSuccess:
		if w.handlers.OnAuthenticated != nil {
			w.handlers.OnAuthenticated()
		}
	case *events.Connected:
		if w.handlers.OnReady != nil {
			w.handlers.OnReady()
		}
	case *events.Message:
		if w.handlers.OnMessage == nil {
			return
		}
		var self string
		if w.cli.Store.ID != nil {
			self = w.cli.Store.ID.User
		}
		w.handlers.OnMessage(domain.BridgeMessage{
			ID:        string(v.Info.ID),
			ChatID:    v.Info.Chat.String(),
			From:      v.Info.Sender.User,
			To:        self,
			Body:      extractText(v.Message),
			Timestamp: v.Info.Timestamp.Unix(),
		})
	case *events.LoggedOut:
		log.Warn().Str("module", "bridge.whatsmeow").Msg("logged out, pairing required")
	}
}

func (w *WhatsmeowClient) SendText(ctx context.Context, chatID, body string) (string, error) {
	jid, err := types.ParseJID(chatID)
	if err != nil {
		return "", errors.Wrap(err, "chat id")
	}
	resp, err := w.cli.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(body),
	})
	if err != nil {
		return "", errors.Wrap(err, "send")
	}
	return string(resp.ID), nil
}

func (w *WhatsmeowClient) Close() {
	if w.cli != nil {
		w.cli.Disconnect()
	}
}

func extractText(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if text := msg.GetConversation(); text != "" {
		return text
	}
	return msg.GetExtendedTextMessage().GetText()
}
