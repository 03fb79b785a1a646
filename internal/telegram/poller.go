package telegram

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// UpdateSource is the long-polling side of *tgbotapi.BotAPI
type UpdateSource interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Poller receives updates by long polling and hands them to a Router
type Poller struct {
	source  UpdateSource
	router  *Router
	timeout time.Duration
}

// NewPoller creates a long-polling update loop
func NewPoller(source UpdateSource, router *Router, timeout time.Duration) *Poller {
	return &Poller{source: source, router: router, timeout: timeout}
}

// Run blocks until ctx is cancelled or the update channel closes
func (p *Poller) Run(ctx context.Context) {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = int(p.timeout.Seconds())
	cfg.AllowedUpdates = []string{"message", "callback_query"}

	updates := p.source.GetUpdatesChan(cfg)
	log.Info().Dur("timeout", p.timeout).Msg("Polling Telegram for updates")

	for {
		select {
		case <-ctx.Done():
			p.source.StopReceivingUpdates()
			log.Debug().Msg("Telegram polling stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			p.router.Route(update)
		}
	}
}
