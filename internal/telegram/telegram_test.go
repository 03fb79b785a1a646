package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/lightpanel/internal/eventbus"
	"github.com/dokzlo13/lightpanel/internal/panel"
)

type fakeBot struct {
	sent       []tgbotapi.Chattable
	requested  []tgbotapi.Chattable
	sendErr    error
	requestErr error
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.sent = append(b.sent, c)
	if b.sendErr != nil {
		return tgbotapi.Message{}, b.sendErr
	}
	return tgbotapi.Message{MessageID: 77}, nil
}

func (b *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	b.requested = append(b.requested, c)
	if b.requestErr != nil {
		return &tgbotapi.APIResponse{Ok: false}, b.requestErr
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

var testPayload = panel.Payload{
	Text: "💡 *Controls for Kitchen*",
	Keyboard: [][]panel.Button{
		{{Label: "🔆 Brightness +", Data: "bright_inc:Kitchen"}, {Label: "🔅 Brightness -", Data: "bright_dec:Kitchen"}},
		{{Label: "❌ Close panel", Data: "close"}},
	},
}

func TestTransport_Send(t *testing.T) {
	bot := &fakeBot{}
	tr := NewTransport(bot)

	ref, err := tr.Send(context.Background(), 42, testPayload)
	require.NoError(t, err)
	assert.Equal(t, panel.MessageRef{ChatID: 42, MessageID: 77}, ref)

	require.Len(t, bot.sent, 1)
	msg, ok := bot.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Equal(t, tgbotapi.ModeMarkdown, msg.ParseMode)

	markup, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, markup.InlineKeyboard, 2)
	assert.Equal(t, "🔅 Brightness -", markup.InlineKeyboard[0][1].Text)
	require.NotNil(t, markup.InlineKeyboard[0][1].CallbackData)
	assert.Equal(t, "bright_dec:Kitchen", *markup.InlineKeyboard[0][1].CallbackData)
}

func TestTransport_SendError(t *testing.T) {
	tr := NewTransport(&fakeBot{sendErr: &tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"}})

	_, err := tr.Send(context.Background(), 42, testPayload)
	require.Error(t, err)
	assert.False(t, errors.Is(err, panel.ErrNotFound))
}

func TestTransport_Edit(t *testing.T) {
	bot := &fakeBot{}
	tr := NewTransport(bot)

	require.NoError(t, tr.Edit(context.Background(), panel.MessageRef{ChatID: 42, MessageID: 77}, testPayload))
	require.Len(t, bot.requested, 1)
	edit, ok := bot.requested[0].(tgbotapi.EditMessageTextConfig)
	require.True(t, ok)
	assert.Equal(t, 77, edit.MessageID)
	assert.Equal(t, testPayload.Text, edit.Text)
	assert.Equal(t, tgbotapi.ModeMarkdown, edit.ParseMode)
	require.NotNil(t, edit.ReplyMarkup)
	assert.Len(t, edit.ReplyMarkup.InlineKeyboard, 2)
}

func TestTransport_ClassifiesErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"not_modified", &tgbotapi.Error{Code: 400, Message: "Bad Request: message is not modified: specified new message content and reply markup are exactly the same"}, panel.ErrNotModified},
		{"edit_not_found", &tgbotapi.Error{Code: 400, Message: "Bad Request: message to edit not found"}, panel.ErrNotFound},
		{"delete_not_found", &tgbotapi.Error{Code: 400, Message: "Bad Request: message to delete not found"}, panel.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTransport(&fakeBot{requestErr: tt.err})
			err := tr.Edit(context.Background(), panel.MessageRef{ChatID: 1, MessageID: 2}, testPayload)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	flood := &tgbotapi.Error{Code: 429, Message: "Too Many Requests: retry after 5"}
	tr := NewTransport(&fakeBot{requestErr: flood})
	err := tr.Edit(context.Background(), panel.MessageRef{ChatID: 1, MessageID: 2}, testPayload)
	require.Error(t, err)
	assert.False(t, errors.Is(err, panel.ErrNotModified))
	assert.False(t, errors.Is(err, panel.ErrNotFound))

	var apiErr *tgbotapi.Error
	assert.True(t, errors.As(err, &apiErr))
}

func TestTransport_DeleteAndAnswer(t *testing.T) {
	bot := &fakeBot{}
	tr := NewTransport(bot)

	require.NoError(t, tr.Delete(context.Background(), panel.MessageRef{ChatID: 42, MessageID: 77}))
	tr.AnswerCallback(context.Background(), "cb-1", "Closing panel...")

	require.Len(t, bot.requested, 2)
	del, ok := bot.requested[0].(tgbotapi.DeleteMessageConfig)
	require.True(t, ok)
	assert.Equal(t, 77, del.MessageID)

	answer, ok := bot.requested[1].(tgbotapi.CallbackConfig)
	require.True(t, ok)
	assert.Equal(t, "cb-1", answer.CallbackQueryID)
	assert.Equal(t, "Closing panel...", answer.Text)
}

type recordingBus struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (b *recordingBus) Publish(e eventbus.Event) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
	return true
}

func (b *recordingBus) snapshot() []eventbus.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]eventbus.Event(nil), b.events...)
}

func commandUpdate(chatID int64, text string) tgbotapi.Update {
	cmdLen := len(text)
	for i, r := range text {
		if r == ' ' {
			cmdLen = i
			break
		}
	}
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 10,
		Chat:      &tgbotapi.Chat{ID: chatID},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}},
	}}
}

func TestRouter(t *testing.T) {
	bus := &recordingBus{}
	router := NewRouter(bus, "/hue")

	assert.True(t, router.Route(commandUpdate(42, "/hue")))
	assert.True(t, router.Route(commandUpdate(42, "/HUE@light_bot")))
	assert.False(t, router.Route(commandUpdate(42, "/start")))
	assert.False(t, router.Route(tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 42}, Text: "hue"}}))

	assert.True(t, router.Route(tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb-9",
		Data:    "toggle:Kitchen",
		Message: &tgbotapi.Message{MessageID: 77, Chat: &tgbotapi.Chat{ID: -100}},
	}}))
	assert.False(t, router.Route(tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{ID: "inline", Data: "close"}}))

	events := bus.snapshot()
	require.Len(t, events, 3)
	assert.Equal(t, eventbus.Event{Type: eventbus.EventTypeCommand, Key: 42, Data: map[string]any{KeyMessageID: 10}}, events[0])
	assert.Equal(t, eventbus.Event{
		Type: eventbus.EventTypeSelection,
		Key:  -100,
		Data: map[string]any{KeyCallbackID: "cb-9", KeyMessageID: 77, KeyData: "toggle:Kitchen"},
	}, events[2])
}

type fakeSource struct {
	ch      chan tgbotapi.Update
	stopped chan struct{}
	config  tgbotapi.UpdateConfig
}

func (s *fakeSource) GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	s.config = cfg
	return s.ch
}

func (s *fakeSource) StopReceivingUpdates() { close(s.stopped) }

func TestPoller(t *testing.T) {
	bus := &recordingBus{}
	source := &fakeSource{ch: make(chan tgbotapi.Update, 1), stopped: make(chan struct{})}
	poller := NewPoller(source, NewRouter(bus, "hue"), 30*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		poller.Run(ctx)
		close(done)
	}()

	source.ch <- commandUpdate(5, "/hue")
	require.Eventually(t, func() bool { return len(bus.snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	<-source.stopped
	assert.Equal(t, 30, source.config.Timeout)
}
