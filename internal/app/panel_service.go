package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightpanel/internal/eventbus"
	"github.com/dokzlo13/lightpanel/internal/panel"
	"github.com/dokzlo13/lightpanel/internal/telegram"
)

// Task event data keys
const (
	keyTaskKind = "kind"
	keyTaskSeq  = "seq"
)

// CallbackAnswerer acknowledges button presses
type CallbackAnswerer interface {
	AnswerCallback(ctx context.Context, callbackID, text string)
}

// PanelService connects bus events to the panel manager and dispatcher.
// Every handler runs on the worker owning the event's chat id.
type PanelService struct {
	bus        *eventbus.Bus
	manager    *panel.Manager
	dispatcher *panel.Dispatcher
	answerer   CallbackAnswerer
}

// NewPanelService creates a new PanelService.
func NewPanelService(bus *eventbus.Bus, manager *panel.Manager, dispatcher *panel.Dispatcher, answerer CallbackAnswerer) *PanelService {
	return &PanelService{
		bus:        bus,
		manager:    manager,
		dispatcher: dispatcher,
		answerer:   answerer,
	}
}

// Register subscribes the panel handlers and routes session timers through the bus.
// ctx is passed to every handler invocation.
func (s *PanelService) Register(ctx context.Context) {
	s.bus.Subscribe(eventbus.EventTypeCommand, func(e eventbus.Event) {
		s.handleCommand(ctx, e)
	})
	s.bus.Subscribe(eventbus.EventTypeSelection, func(e eventbus.Event) {
		s.handleSelection(ctx, e)
	})
	s.bus.Subscribe(eventbus.EventTypeTask, func(e eventbus.Event) {
		s.handleTask(ctx, e)
	})

	s.manager.SetTaskPoster(s.postTask)
	log.Debug().Msg("Panel handlers registered")
}

func (s *PanelService) postTask(chatID int64, kind panel.TaskKind, seq uint64) bool {
	return s.bus.Publish(eventbus.Event{
		Type: eventbus.EventTypeTask,
		Key:  chatID,
		Data: map[string]any{keyTaskKind: kind, keyTaskSeq: seq},
	})
}

func (s *PanelService) handleCommand(ctx context.Context, e eventbus.Event) {
	messageID, _ := e.Data[telegram.KeyMessageID].(int)
	if _, err := s.manager.Open(ctx, e.Key, messageID); err != nil {
		log.Error().Err(err).Int64("chat", e.Key).Msg("Failed to open panel")
	}
}

func (s *PanelService) handleSelection(ctx context.Context, e eventbus.Event) {
	callbackID, _ := e.Data[telegram.KeyCallbackID].(string)
	messageID, _ := e.Data[telegram.KeyMessageID].(int)
	data, _ := e.Data[telegram.KeyData].(string)

	// rejected selections are already logged by the dispatcher
	answer, _ := s.dispatcher.Handle(ctx, panel.Selection{
		ChatID:    e.Key,
		MessageID: messageID,
		Data:      data,
	})

	if callbackID != "" {
		s.answerer.AnswerCallback(ctx, callbackID, answer)
	}
}

func (s *PanelService) handleTask(ctx context.Context, e eventbus.Event) {
	kind, ok := e.Data[keyTaskKind].(panel.TaskKind)
	if !ok {
		log.Warn().Interface("data", e.Data).Msg("Malformed task event")
		return
	}
	seq, _ := e.Data[keyTaskSeq].(uint64)
	s.manager.RunTask(ctx, e.Key, kind, seq)
}
