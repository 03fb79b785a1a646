package telegram

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightpanel/internal/eventbus"
)

// Event data keys
const (
	KeyMessageID  = "message_id"
	KeyCallbackID = "callback_id"
	KeyData       = "data"
)

// Publisher queues events for processing
type Publisher interface {
	Publish(event eventbus.Event) bool
}

// Router turns updates into command and selection events keyed by chat id
type Router struct {
	bus     Publisher
	command string
}

// NewRouter creates a router that opens the panel on /command
func NewRouter(bus Publisher, command string) *Router {
	return &Router{bus: bus, command: strings.TrimPrefix(command, "/")}
}

// Route publishes the event for one update. Returns false for updates that are ignored or dropped.
func (r *Router) Route(update tgbotapi.Update) bool {
	switch {
	case update.CallbackQuery != nil:
		q := update.CallbackQuery
		if q.Message == nil || q.Message.Chat == nil {
			log.Debug().Str("callback", q.ID).Msg("Ignoring callback without a chat message")
			return false
		}
		return r.bus.Publish(eventbus.Event{
			Type: eventbus.EventTypeSelection,
			Key:  q.Message.Chat.ID,
			Data: map[string]any{
				KeyCallbackID: q.ID,
				KeyMessageID:  q.Message.MessageID,
				KeyData:       q.Data,
			},
		})

	case update.Message != nil && update.Message.IsCommand():
		msg := update.Message
		if !strings.EqualFold(msg.Command(), r.command) {
			return false
		}
		log.Debug().Int64("chat", msg.Chat.ID).Str("command", msg.Command()).Msg("Panel command received")
		return r.bus.Publish(eventbus.Event{
			Type: eventbus.EventTypeCommand,
			Key:  msg.Chat.ID,
			Data: map[string]any{KeyMessageID: msg.MessageID},
		})
	}
	return false
}
