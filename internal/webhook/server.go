// Package webhook receives Telegram updates over HTTP.
package webhook

import (
	"context"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// UpdateDecoder decodes an update from a webhook request; *tgbotapi.BotAPI implements it
type UpdateDecoder interface {
	HandleUpdate(r *http.Request) (*tgbotapi.Update, error)
}

// UpdateRouter consumes decoded updates
type UpdateRouter interface {
	Route(update tgbotapi.Update) bool
}

// Server is an HTTP server that receives Telegram webhook calls and routes the updates.
type Server struct {
	addr       string
	path       string
	decoder    UpdateDecoder
	router     UpdateRouter
	httpServer *http.Server
}

// NewServer creates a new webhook server listening on host:port and accepting updates on path.
func NewServer(host string, port int, path string, decoder UpdateDecoder, router UpdateRouter) *Server {
	return &Server{
		addr:    fmt.Sprintf("%s:%d", host, port),
		path:    path,
		decoder: decoder,
		router:  router,
	}
}

// Handler returns the HTTP handler serving the webhook path
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleUpdate)
	return mux
}

// Run starts the webhook server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("addr", s.addr).Str("path", s.path).Msg("Starting Telegram webhook server")

	// Handle graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Webhook server shutdown error")
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

// handleUpdate decodes one update and routes it. Telegram retries non-2xx
// answers, so only undecodable requests are rejected.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	update, err := s.decoder.HandleUpdate(r)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to decode webhook update")
		http.Error(w, "bad update", http.StatusBadRequest)
		return
	}

	routed := s.router.Route(*update)
	log.Debug().
		Int("update_id", update.UpdateID).
		Bool("routed", routed).
		Msg("Received webhook update")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
