package bridge

import (
	"encoding/base64"
	"strings"

	"github.com/rs/zerolog/log"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/mkrasov/huddle/internal/app"
	"github.com/mkrasov/huddle/internal/domain"
)

// Broadcaster is the fan-out half of the event router the adapter needs.
type Broadcaster interface {
	BroadcastAll(ev app.EventName, payload any)
}

// droppedChatMarkers identify platform-level announcement conversations.
// Messages from these never reach chat UIs.
var droppedChatMarkers = []string{
	"status@broadcast",
	"channel@broadcast",
	"newsletter@broadcast",
	"broadcast",
}

// Adapter republishes bridge client events as broadcast events to every
// connected session. Pure at-most-once forwarding: no dedup, no retry.
type Adapter struct {
	out Broadcaster
}

func NewAdapter(out Broadcaster) *Adapter {
	return &Adapter{out: out}
}

// Handlers returns the subscriptions to attach to the bridge client.
func (a *Adapter) Handlers() Handlers {
	return Handlers{
		OnQR:            a.onQR,
		OnAuthenticated: a.onAuthenticated,
		OnReady:         a.onReady,
		OnMessage:       a.OnMessage,
	}
}

func (a *Adapter) onQR(code string) {
	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		log.Error().Err(err).Str("module", "bridge.adapter").Msg("qr render failed")
		return
	}
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	log.Info().Str("module", "bridge.adapter").Msg("pairing qr received")
	a.out.BroadcastAll(app.EvBridgeQR, uri)
}

func (a *Adapter) onAuthenticated() {
	log.Info().Str("module", "bridge.adapter").Msg("bridge authenticated")
	a.out.BroadcastAll(app.EvBridgeAuth, nil)
}

func (a *Adapter) onReady() {
	log.Info().Str("module", "bridge.adapter").Msg("bridge ready")
	a.out.BroadcastAll(app.EvBridgeReady, nil)
}

// OnMessage forwards one inbound platform message, dropping announcement
// traffic before normalization.
func (a *Adapter) OnMessage(msg domain.BridgeMessage) {
	if Dropped(msg.ChatID) {
		log.Debug().Str("module", "bridge.adapter").Str("chat", msg.ChatID).Msg("ignored non-chat message")
		return
	}
	a.out.BroadcastAll(app.EvNewMessage, msg)
}

// Dropped reports whether a conversation id belongs to announcement
// traffic (status updates, channels, newsletters).
func Dropped(chatID string) bool {
	for _, marker := range droppedChatMarkers {
		if strings.Contains(chatID, marker) {
			return true
		}
	}
	return false
}
