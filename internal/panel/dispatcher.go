package panel

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/dokzlo13/lightpanel/internal/hue"
	"github.com/dokzlo13/lightpanel/internal/ledger"
)

// Selection is a button press in a chat
type Selection struct {
	ChatID    int64
	MessageID int // message carrying the button; 0 if unknown
	Data      string
}

// Dispatcher applies button presses: light writes first, then navigation.
type Dispatcher struct {
	sessions *Manager
	devices  Devices
	rooms    Rooms
	journal  Journal
}

// NewDispatcher creates a dispatcher. journal may be nil.
func NewDispatcher(sessions *Manager, devices Devices, rooms Rooms, journal Journal) *Dispatcher {
	if journal == nil {
		journal = nopJournal{}
	}
	return &Dispatcher{sessions: sessions, devices: devices, rooms: rooms, journal: journal}
}

// batchResult counts the outcome of a best-effort write batch
type batchResult struct {
	written int
	failed  int
	skipped int
}

// Handle applies one selection and returns the text to answer the button press with.
// Rejected selections are logged and returned as errors; they never change state.
func (d *Dispatcher) Handle(ctx context.Context, sel Selection) (string, error) {
	logger := log.With().Int64("chat", sel.ChatID).Str("data", sel.Data).Logger()

	action, err := ParseAction(sel.Data)
	if err != nil {
		if errors.Is(err, ErrInvalidPayload) {
			logger.Warn().Err(err).Msg("Ignoring selection with invalid payload")
		} else {
			logger.Debug().Err(err).Msg("Ignoring unknown selection")
		}
		return "", err
	}

	snap, ok := d.sessions.Lookup(sel.ChatID)
	if !ok {
		logger.Debug().Msg("Ignoring selection without an open panel")
		return "", ErrNoSession
	}
	if sel.MessageID != 0 && sel.MessageID != snap.Message.MessageID {
		logger.Debug().Int("message", sel.MessageID).Msg("Ignoring selection from a stale panel message")
		return "", fmt.Errorf("%w: message %d is not the live panel", ErrNoSession, sel.MessageID)
	}
	if action.Room != "" && !d.rooms.Has(action.Room) {
		logger.Warn().Str("room", action.Room).Msg("Ignoring selection for unknown room")
		return "", fmt.Errorf("%w: %q", ErrUnknownRoom, action.Room)
	}

	var (
		next   View
		notice string
		result *batchResult
	)

	switch action.Kind {
	case ActionClose:
		d.sessions.Close(ctx, sel.ChatID, ReasonClosed)
		return "Closing panel...", nil

	case ActionBack:
		next = MainView()

	case ActionRoom, ActionBackRoom:
		next = RoomView(action.Room)

	case ActionColor:
		next = ColorView(action.Room)

	case ActionAllOff:
		result = d.writeAll(ctx, d.rooms.AllDevices(), hue.Power(false))
		next, notice = MainView(), noticeAllOff()

	case ActionToggle:
		on := !d.anyOn(ctx, d.rooms.DevicesOf(action.Room))
		result = d.writeAll(ctx, d.rooms.DevicesOf(action.Room), hue.Power(on))
		next, notice = RoomView(action.Room), noticeToggle(action.Room, on)

	case ActionBrightInc, ActionBrightDec:
		delta := lo.Ternary(action.Kind == ActionBrightInc, BrightnessStep, -BrightnessStep)
		result = d.writeEach(ctx, d.rooms.DevicesOf(action.Room), func(s hue.LightState) (hue.StateUpdate, bool) {
			current := 0
			if s.On {
				current = ToPercent(s.Bri)
			}
			raw := ToRaw(StepPercent(current, delta))
			if raw == 0 {
				// stepping down never switches a light off
				raw = 1
			}
			return hue.Power(true).WithBri(raw), true
		})
		next, notice = RoomView(action.Room), noticeBrightness(action.Room, delta)

	case ActionBrightSet:
		update := hue.Power(false)
		if action.Percent > 0 {
			update = hue.Power(true).WithBri(ToRaw(action.Percent))
		}
		result = d.writeAll(ctx, d.rooms.DevicesOf(action.Room), update)
		next, notice = RoomView(action.Room), noticeBrightnessSet(action.Room, action.Percent)

	case ActionSetColor:
		result = d.writeAll(ctx, d.rooms.DevicesOf(action.Room), hue.Power(true).WithColor(action.Hue, action.Sat))
		next, notice = RoomView(action.Room), noticeColor(action.Room)

	case ActionCtInc, ActionCtDec:
		delta := lo.Ternary(action.Kind == ActionCtInc, CtStep, -CtStep)
		result = d.writeEach(ctx, d.rooms.DevicesOf(action.Room), func(s hue.LightState) (hue.StateUpdate, bool) {
			if s.Ct == nil {
				return hue.StateUpdate{}, false
			}
			return hue.Power(true).WithCt(StepCt(*s.Ct, delta)), true
		})
		next, notice = ColorView(action.Room), noticeTone(action.Room, delta)
	}

	if result != nil {
		logger.Info().
			Str("action", string(action.Kind)).
			Str("room", action.Room).
			Int("written", result.written).
			Int("failed", result.failed).
			Int("skipped", result.skipped).
			Msg("Action applied")

		payload := map[string]any{
			"action":  string(action.Kind),
			"written": result.written,
			"failed":  result.failed,
		}
		if action.Room != "" {
			payload["room"] = action.Room
		}
		if err := d.journal.Append(ctx, ledger.EventActionApplied, sel.ChatID, snap.ID, payload); err != nil {
			logger.Warn().Err(err).Msg("Failed to journal action")
		}
	}

	if err := d.sessions.Navigate(ctx, sel.ChatID, next, notice); err != nil {
		return "", err
	}
	return "", nil
}

// anyOn reports whether any reachable light is on
func (d *Dispatcher) anyOn(ctx context.Context, ids []int) bool {
	for _, id := range ids {
		state, err := d.devices.ReadLight(ctx, id)
		if err != nil {
			log.Debug().Err(err).Int("light", id).Msg("Skipping unreachable light")
			continue
		}
		if state.On {
			return true
		}
	}
	return false
}

// writeAll sends the same update to every light; failures do not stop the batch
func (d *Dispatcher) writeAll(ctx context.Context, ids []int, update hue.StateUpdate) *batchResult {
	res := &batchResult{}
	for _, id := range ids {
		d.write(ctx, id, update, res)
	}
	return res
}

// writeEach reads every light and writes what compute returns for it.
// Unreachable lights and lights compute declines are skipped.
func (d *Dispatcher) writeEach(ctx context.Context, ids []int, compute func(hue.LightState) (hue.StateUpdate, bool)) *batchResult {
	res := &batchResult{}
	for _, id := range ids {
		state, err := d.devices.ReadLight(ctx, id)
		if err != nil {
			log.Debug().Err(err).Int("light", id).Msg("Skipping unreachable light")
			res.skipped++
			continue
		}
		update, ok := compute(state)
		if !ok {
			res.skipped++
			continue
		}
		d.write(ctx, id, update, res)
	}
	return res
}

func (d *Dispatcher) write(ctx context.Context, id int, update hue.StateUpdate, res *batchResult) {
	if err := d.devices.WriteLight(ctx, id, update); err != nil {
		log.Warn().Err(err).Int("light", id).Msg("Failed to write light state")
		res.failed++
		return
	}
	res.written++
}
