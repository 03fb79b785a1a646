package app

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightpanel/internal/config"
	"github.com/dokzlo13/lightpanel/internal/telegram"
	"github.com/dokzlo13/lightpanel/internal/webhook"
)

// UpdateService receives Telegram updates, by long polling or over a webhook.
type UpdateService struct {
	cfg    *config.Config
	bot    *tgbotapi.BotAPI
	router *telegram.Router
}

// NewUpdateService creates a new UpdateService.
func NewUpdateService(cfg *config.Config, bot *tgbotapi.BotAPI, router *telegram.Router) *UpdateService {
	return &UpdateService{
		cfg:    cfg,
		bot:    bot,
		router: router,
	}
}

// Start prepares the bot for the configured mode and starts receiving in the background.
func (s *UpdateService) Start(ctx context.Context, onFatalError func(error)) error {
	switch s.cfg.Telegram.Mode {
	case "webhook":
		return s.startWebhook(ctx, onFatalError)
	default:
		return s.startPolling(ctx)
	}
}

func (s *UpdateService) startPolling(ctx context.Context) error {
	// getUpdates is refused while a webhook is set. Presses queued while we
	// were down refer to panels that no longer exist.
	if _, err := s.bot.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: true}); err != nil {
		return fmt.Errorf("failed to remove webhook: %w", err)
	}

	poller := telegram.NewPoller(s.bot, s.router, s.cfg.Telegram.PollTimeout.Duration())
	go poller.Run(ctx)
	return nil
}

func (s *UpdateService) startWebhook(ctx context.Context, onFatalError func(error)) error {
	wc := s.cfg.Telegram.Webhook

	if wc.PublicURL != "" {
		wh, err := tgbotapi.NewWebhook(wc.PublicURL)
		if err != nil {
			return fmt.Errorf("invalid webhook public_url: %w", err)
		}
		wh.AllowedUpdates = []string{"message", "callback_query"}
		wh.DropPendingUpdates = true
		if _, err := s.bot.Request(wh); err != nil {
			return fmt.Errorf("failed to register webhook: %w", err)
		}
		log.Info().Str("url", wc.PublicURL).Msg("Registered Telegram webhook")
	}

	server := webhook.NewServer(wc.Host, wc.Port, wc.Path, s.bot, s.router)
	go func() {
		if err := server.Run(ctx, s.cfg.GetShutdownTimeout()); err != nil {
			log.Error().Err(err).Msg("Webhook server error")
			if onFatalError != nil {
				onFatalError(err)
			}
		}
	}()
	return nil
}
