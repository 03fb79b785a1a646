package panel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/dokzlo13/lightpanel/internal/ledger"
)

// Default session timings
const (
	DefaultRefreshInterval = 10 * time.Second
	DefaultIdleTimeout     = 60 * time.Second

	expireRetryInterval = time.Second
)

// TaskKind identifies a scheduled session task
type TaskKind string

const (
	TaskRefresh TaskKind = "refresh"
	TaskExpire  TaskKind = "expire"
)

// Close reasons recorded in logs and the journal
const (
	ReasonClosed     = "closed"
	ReasonExpired    = "expired"
	ReasonSuperseded = "superseded"
	ReasonShutdown   = "shutdown"
)

// TaskPoster hands a fired task to whatever serialises work for the chat.
// It must not block and returns false if the task was dropped.
type TaskPoster func(chatID int64, kind TaskKind, seq uint64) bool

// Options configures a Manager
type Options struct {
	RefreshInterval time.Duration
	IdleTimeout     time.Duration
	Clock           Clock
	Journal         Journal
}

// Snapshot is a read-only copy of a live session
type Snapshot struct {
	ID       string
	ChatID   int64
	View     View
	Message  MessageRef
	OpenedAt time.Time
}

type taskHandle struct {
	seq   uint64
	timer Timer
}

func (h *taskHandle) cancel() {
	if h.timer != nil {
		h.timer.Stop()
	}
	*h = taskHandle{}
}

// session is owned by its chat's worker; only the map is shared.
type session struct {
	id       string
	chatID   int64
	view     View
	message  MessageRef
	last     *Payload
	openedAt time.Time

	refresh        taskHandle
	expire         taskHandle
	refreshPending atomic.Bool
	expireSeq      atomic.Uint64 // seq of the live expiry, 0 once closed
}

// Manager keeps at most one panel session per chat.
//
// All methods taking a chat id must be called from that chat's serialised
// worker; timers never touch sessions directly and go through the TaskPoster.
type Manager struct {
	renderer  *Renderer
	transport Transport
	clock     Clock
	journal   Journal

	refreshInterval time.Duration
	idleTimeout     time.Duration

	mu       sync.RWMutex
	sessions map[int64]*session
	post     TaskPoster
	seq      atomic.Uint64
}

// NewManager creates a session manager
func NewManager(renderer *Renderer, transport Transport, opts Options) *Manager {
	m := &Manager{
		renderer:        renderer,
		transport:       transport,
		clock:           lo.Ternary[Clock](opts.Clock != nil, opts.Clock, SystemClock{}),
		journal:         lo.Ternary[Journal](opts.Journal != nil, opts.Journal, nopJournal{}),
		refreshInterval: lo.Ternary(opts.RefreshInterval > 0, opts.RefreshInterval, DefaultRefreshInterval),
		idleTimeout:     lo.Ternary(opts.IdleTimeout > 0, opts.IdleTimeout, DefaultIdleTimeout),
		sessions:        make(map[int64]*session),
	}
	m.post = m.runInline
	return m
}

// SetTaskPoster routes fired tasks through p instead of running them on the timer goroutine
func (m *Manager) SetTaskPoster(p TaskPoster) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.post = p
}

func (m *Manager) runInline(chatID int64, kind TaskKind, seq uint64) bool {
	m.RunTask(context.Background(), chatID, kind, seq)
	return true
}

// Open shows a fresh main panel in the chat, replacing any existing one.
// commandMsgID, when non-zero, is the user's command message and is deleted.
func (m *Manager) Open(ctx context.Context, chatID int64, commandMsgID int) (Snapshot, error) {
	if commandMsgID != 0 {
		if err := m.transport.Delete(ctx, MessageRef{ChatID: chatID, MessageID: commandMsgID}); err != nil {
			log.Debug().Err(err).Int64("chat", chatID).Msg("Failed to delete command message")
		}
	}

	if old := m.get(chatID); old != nil {
		m.teardown(ctx, old, ReasonSuperseded)
	}

	payload, err := m.renderer.Render(ctx, MainView())
	if err != nil {
		return Snapshot{}, err
	}

	ref, err := m.transport.Send(ctx, chatID, payload)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to send panel: %w", err)
	}

	s := &session{
		id:       uuid.NewString(),
		chatID:   chatID,
		view:     MainView(),
		message:  ref,
		last:     &payload,
		openedAt: m.clock.Now(),
	}

	m.mu.Lock()
	m.sessions[chatID] = s
	m.mu.Unlock()

	m.scheduleRefresh(s)
	m.resetExpiration(s)

	m.record(ctx, ledger.EventPanelOpened, s, map[string]any{"message_id": ref.MessageID})
	log.Info().
		Int64("chat", chatID).
		Str("session", s.id).
		Int("message", ref.MessageID).
		Msg("Panel opened")

	return s.snapshot(), nil
}

// Navigate switches the chat's panel to view and re-renders it.
// notice, when set, replaces the body text until the next refresh.
// Resets the idle timer.
func (m *Manager) Navigate(ctx context.Context, chatID int64, view View, notice string) error {
	s := m.get(chatID)
	if s == nil {
		return ErrNoSession
	}
	if view.Kind != ViewMain && !m.renderer.rooms.Has(view.Room) {
		return fmt.Errorf("%w: %q", ErrUnknownRoom, view.Room)
	}

	s.view = view
	m.render(ctx, s, notice)
	m.resetExpiration(s)
	return nil
}

// Close tears down the chat's panel. Closing a chat without a panel is a no-op.
func (m *Manager) Close(ctx context.Context, chatID int64, reason string) {
	if s := m.get(chatID); s != nil {
		m.teardown(ctx, s, reason)
	}
}

// CloseAll tears down every panel, deleting their messages
func (m *Manager) CloseAll(ctx context.Context, reason string) {
	m.mu.RLock()
	all := lo.Values(m.sessions)
	m.mu.RUnlock()

	for _, s := range all {
		m.teardown(ctx, s, reason)
	}
}

// RunTask executes a fired refresh or expiration task. Tasks for a closed
// session or with a superseded sequence number do nothing.
func (m *Manager) RunTask(ctx context.Context, chatID int64, kind TaskKind, seq uint64) {
	s := m.get(chatID)
	if s == nil {
		return
	}

	switch kind {
	case TaskRefresh:
		if s.refresh.seq != seq {
			return
		}
		s.refreshPending.Store(false)
		m.render(ctx, s, "")

	case TaskExpire:
		if s.expire.seq != seq {
			return
		}
		log.Info().Int64("chat", chatID).Str("session", s.id).Msg("Panel idle, closing")
		m.teardown(ctx, s, ReasonExpired)
	}
}

// Lookup returns the chat's live session
func (m *Manager) Lookup(chatID int64) (Snapshot, bool) {
	s := m.get(chatID)
	if s == nil {
		return Snapshot{}, false
	}
	return s.snapshot(), true
}

// ActiveCount returns the number of open panels
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) get(chatID int64) *session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[chatID]
}

func (m *Manager) poster() TaskPoster {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.post
}

func (m *Manager) render(ctx context.Context, s *session, notice string) {
	payload, err := m.renderer.Render(ctx, s.view)
	if err != nil {
		log.Error().Err(err).Int64("chat", s.chatID).Str("view", s.view.String()).Msg("Failed to render panel")
		return
	}
	if notice != "" {
		payload.Text = notice
	}
	m.push(ctx, s, payload)
}

// push edits the panel message unless payload matches what is already shown
func (m *Manager) push(ctx context.Context, s *session, payload Payload) {
	if s.last != nil && s.last.Equal(payload) {
		log.Trace().Int64("chat", s.chatID).Msg("Panel unchanged, skipping edit")
		return
	}

	err := m.transport.Edit(ctx, s.message, payload)
	switch {
	case err == nil, errors.Is(err, ErrNotModified):
		s.last = &payload
	case errors.Is(err, ErrNotFound):
		log.Debug().Int64("chat", s.chatID).Str("session", s.id).Msg("Panel message gone, edit ignored")
	default:
		log.Error().Err(err).Int64("chat", s.chatID).Str("session", s.id).Msg("Failed to update panel")
	}
}

func (m *Manager) scheduleRefresh(s *session) {
	s.refresh.cancel()
	s.refreshPending.Store(false)

	seq := m.seq.Add(1)
	chatID := s.chatID
	s.refresh = taskHandle{
		seq: seq,
		timer: m.clock.Every(m.refreshInterval, func() {
			// coalesce: one queued refresh per session at a time
			if !s.refreshPending.CompareAndSwap(false, true) {
				return
			}
			if !m.poster()(chatID, TaskRefresh, seq) {
				s.refreshPending.Store(false)
			}
		}),
	}
}

func (m *Manager) resetExpiration(s *session) {
	s.expire.cancel()

	seq := m.seq.Add(1)
	s.expireSeq.Store(seq)
	s.expire = taskHandle{
		seq: seq,
		timer: m.clock.AfterFunc(m.idleTimeout, func() {
			m.postExpire(s, seq)
		}),
	}
}

// postExpire queues the expiry, retrying until it is queued or superseded
func (m *Manager) postExpire(s *session, seq uint64) {
	if s.expireSeq.Load() != seq {
		return
	}
	if m.poster()(s.chatID, TaskExpire, seq) {
		return
	}
	log.Debug().Int64("chat", s.chatID).Str("session", s.id).Msg("Expiry not queued, retrying")
	m.clock.AfterFunc(expireRetryInterval, func() {
		m.postExpire(s, seq)
	})
}

func (m *Manager) teardown(ctx context.Context, s *session, reason string) {
	s.expireSeq.Store(0)
	s.refresh.cancel()
	s.expire.cancel()

	m.mu.Lock()
	current, ok := m.sessions[s.chatID]
	if ok && current == s {
		delete(m.sessions, s.chatID)
	}
	m.mu.Unlock()
	if !ok || current != s {
		return
	}

	if err := m.transport.Delete(ctx, s.message); err != nil {
		log.Warn().Err(err).Int64("chat", s.chatID).Str("session", s.id).Msg("Failed to delete panel message")
	}

	m.record(ctx, ledger.EventPanelClosed, s, map[string]any{
		"reason":   reason,
		"duration": m.clock.Now().Sub(s.openedAt).Round(time.Second).String(),
	})
	log.Info().
		Int64("chat", s.chatID).
		Str("session", s.id).
		Str("reason", reason).
		Msg("Panel closed")
}

func (m *Manager) record(ctx context.Context, eventType ledger.EventType, s *session, payload map[string]any) {
	if err := m.journal.Append(ctx, eventType, s.chatID, s.id, payload); err != nil {
		log.Warn().Err(err).Str("event", string(eventType)).Str("session", s.id).Msg("Failed to journal panel event")
	}
}

func (s *session) snapshot() Snapshot {
	return Snapshot{ID: s.id, ChatID: s.chatID, View: s.view, Message: s.message, OpenedAt: s.openedAt}
}
