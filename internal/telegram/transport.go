// Package telegram adapts the Telegram Bot API to the panel transport and
// turns incoming updates into bus events.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightpanel/internal/panel"
)

// BotAPI is the subset of *tgbotapi.BotAPI used to talk to chats
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Transport sends, edits and deletes panel messages
type Transport struct {
	api BotAPI
}

// NewTransport creates a transport over the bot API
func NewTransport(api BotAPI) *Transport {
	return &Transport{api: api}
}

// Send posts a new panel message
func (t *Transport) Send(_ context.Context, chatID int64, payload panel.Payload) (panel.MessageRef, error) {
	msg := tgbotapi.NewMessage(chatID, payload.Text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.ReplyMarkup = keyboard(payload)

	sent, err := t.api.Send(msg)
	if err != nil {
		return panel.MessageRef{}, fmt.Errorf("send message: %w", err)
	}
	return panel.MessageRef{ChatID: chatID, MessageID: sent.MessageID}, nil
}

// Edit replaces text and keyboard of a panel message
func (t *Transport) Edit(_ context.Context, ref panel.MessageRef, payload panel.Payload) error {
	edit := tgbotapi.NewEditMessageTextAndMarkup(ref.ChatID, ref.MessageID, payload.Text, keyboard(payload))
	edit.ParseMode = tgbotapi.ModeMarkdown

	if _, err := t.api.Request(edit); err != nil {
		return classify("edit message", err)
	}
	return nil
}

// Delete removes a message
func (t *Transport) Delete(_ context.Context, ref panel.MessageRef) error {
	if _, err := t.api.Request(tgbotapi.NewDeleteMessage(ref.ChatID, ref.MessageID)); err != nil {
		return classify("delete message", err)
	}
	return nil
}

// AnswerCallback acknowledges a button press, optionally showing text
func (t *Transport) AnswerCallback(_ context.Context, callbackID, text string) {
	if _, err := t.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		// answers are only accepted for a short while after the press
		log.Debug().Err(err).Str("callback", callbackID).Msg("Failed to answer callback query")
	}
}

func keyboard(payload panel.Payload) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(payload.Keyboard))
	for _, r := range payload.Keyboard {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(r))
		for _, b := range r {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// classify maps the Bot API's benign edit rejections onto the panel sentinels
func classify(op string, err error) error {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %w", op, err)
	}

	desc := strings.ToLower(apiErr.Message)
	switch {
	case strings.Contains(desc, "message is not modified"):
		return fmt.Errorf("%s: %w", op, panel.ErrNotModified)
	case strings.Contains(desc, "message to edit not found"),
		strings.Contains(desc, "message to delete not found"):
		return fmt.Errorf("%s: %w", op, panel.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}
