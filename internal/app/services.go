package app

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightpanel/internal/config"
	"github.com/dokzlo13/lightpanel/internal/db"
	"github.com/dokzlo13/lightpanel/internal/eventbus"
	"github.com/dokzlo13/lightpanel/internal/ledger"
	"github.com/dokzlo13/lightpanel/internal/panel"
	"github.com/dokzlo13/lightpanel/internal/telegram"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB     *db.DB
	Ledger *ledger.Ledger
	Bus    *eventbus.Bus

	// Telegram side
	Bot       *tgbotapi.BotAPI
	Transport *telegram.Transport
	Router    *telegram.Router

	// Panel
	Manager    *panel.Manager
	Dispatcher *panel.Dispatcher

	// High-level services
	Hue     *HueService
	Panel   *PanelService
	Updates *UpdateService
	Health  *HealthService
}

// NewServices creates all services with proper dependency injection.
// ctx bounds bridge discovery and the bot login.
func NewServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	// Initialize database
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database

	// Initialize ledger and drop old journal entries
	s.Ledger = ledger.New(database.DB)
	if pruned, err := s.Ledger.DeleteOlderThan(ctx, cfg.Database.Retention.Duration()); err != nil {
		log.Warn().Err(err).Msg("Failed to prune panel journal")
	} else if pruned > 0 {
		log.Info().Int64("entries", pruned).Msg("Pruned panel journal")
	}

	// Initialize Hue client and rooms
	s.Hue, err = NewHueService(ctx, cfg)
	if err != nil {
		s.Close()
		return nil, err
	}

	// Initialize bot
	s.Bot, err = tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("telegram login failed: %w", err)
	}
	s.Bot.Debug = cfg.Telegram.Debug
	log.Info().Str("bot", s.Bot.Self.UserName).Msg("Authorized on Telegram")

	// Initialize event bus
	s.Bus = eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())

	// Initialize panel
	s.Transport = telegram.NewTransport(s.Bot)
	renderer := panel.NewRenderer(s.Hue.Client, s.Hue.Rooms)
	s.Manager = panel.NewManager(renderer, s.Transport, panel.Options{
		RefreshInterval: cfg.Panel.RefreshInterval.Duration(),
		IdleTimeout:     cfg.Panel.IdleTimeout.Duration(),
		Journal:         s.Ledger,
	})
	s.Dispatcher = panel.NewDispatcher(s.Manager, s.Hue.Client, s.Hue.Rooms, s.Ledger)
	s.Panel = NewPanelService(s.Bus, s.Manager, s.Dispatcher, s.Transport)

	// Initialize update receiving
	s.Router = telegram.NewRouter(s.Bus, cfg.Telegram.Command)
	s.Updates = NewUpdateService(cfg, s.Bot, s.Router)

	// Initialize health service
	s.Health = NewHealthService(cfg, s.Manager.ActiveCount)

	return s, nil
}

// Start starts all services in the correct order.
// The onFatalError callback is called when a fatal error occurs (e.g., the webhook listener fails).
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	// Handlers must exist before the first update arrives
	s.Panel.Register(ctx)

	if err := s.Updates.Start(ctx, onFatalError); err != nil {
		return err
	}

	s.Health.Start(ctx)

	log.Info().
		Str("mode", s.cfg.Telegram.Mode).
		Str("command", "/"+s.cfg.Telegram.Command).
		Msg("Listening for panel commands")
	return nil
}

// Stop gracefully stops all services: pending events are drained, then open panels are removed.
func (s *Services) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.GetShutdownTimeout())
	defer cancel()

	if s.Bus != nil {
		s.Bus.Close(ctx)
	}
	if s.Manager != nil {
		s.Manager.CloseAll(ctx, panel.ReasonShutdown)
	}

	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Hue != nil {
		s.Hue.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
