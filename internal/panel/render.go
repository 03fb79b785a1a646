package panel

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/dokzlo13/lightpanel/internal/hue"
)

// Devices reads and writes individual lights
type Devices interface {
	ReadLight(ctx context.Context, id int) (hue.LightState, error)
	WriteLight(ctx context.Context, id int, update hue.StateUpdate) error
}

// Rooms is the read-only room registry
type Rooms interface {
	RoomIDs() []string
	Has(room string) bool
	DevicesOf(room string) []int
	IsColor(room string) bool
	AllDevices() []int
}

const (
	iconOn  = "🟡"
	iconOff = "⚫️"
)

// PaletteEntry is one preset colour of the colour picker
type PaletteEntry struct {
	Label string
	Hue   uint16
	Sat   uint8
}

// Palette is offered for colour-capable rooms
var Palette = []PaletteEntry{
	{"🟥 Red", 0, 254},
	{"🟩 Green", 25500, 254},
	{"🟦 Blue", 46920, 254},
	{"🟨 Yellow", 12750, 254},
	{"🟪 Purple", 56100, 254},
	{"⚪ White", 0, 0},
}

var closeButton = Button{"❌ Close panel", string(ActionClose)}

// Renderer turns a View into a Payload from live light state
type Renderer struct {
	devices Devices
	rooms   Rooms
}

// NewRenderer creates a renderer over the given lights and rooms
func NewRenderer(devices Devices, rooms Rooms) *Renderer {
	return &Renderer{devices: devices, rooms: rooms}
}

// Render reads the lights the view needs and builds its payload.
// Unreachable lights are left out of aggregates.
func (r *Renderer) Render(ctx context.Context, view View) (Payload, error) {
	if view.Kind != ViewMain && !r.rooms.Has(view.Room) {
		return Payload{}, fmt.Errorf("%w: %q", ErrUnknownRoom, view.Room)
	}

	pass := &readPass{ctx: ctx, devices: r.devices, states: make(map[int]readResult)}
	switch view.Kind {
	case ViewRoom:
		return r.renderRoom(pass, view.Room), nil
	case ViewColorPicker:
		return r.renderColor(pass, view.Room), nil
	default:
		return r.renderMain(pass), nil
	}
}

func (r *Renderer) renderMain(pass *readPass) Payload {
	keyboard := make([][]Button, 0, len(r.rooms.RoomIDs())+2)
	for _, room := range r.rooms.RoomIDs() {
		s := summarize(pass.read(r.rooms.DevicesOf(room)))
		keyboard = append(keyboard, row(Button{
			Label: fmt.Sprintf("%s %s (%d%%)", s.icon(), room, s.percent),
			Data:  Action{Kind: ActionRoom, Room: room}.Data(),
		}))
	}
	keyboard = append(keyboard,
		row(Button{"🛑 Turn everything off", string(ActionAllOff)}),
		row(closeButton),
	)

	return Payload{
		Text:     "💡 *Philips Hue Light Control*\n\nSelect a room:",
		Keyboard: keyboard,
	}
}

func (r *Renderer) renderRoom(pass *readPass, room string) Payload {
	s := summarize(pass.read(r.rooms.DevicesOf(room)))
	action := func(kind ActionKind) string { return Action{Kind: kind, Room: room}.Data() }
	setTo := func(pct int) string { return Action{Kind: ActionBrightSet, Percent: pct, Room: room}.Data() }

	return Payload{
		Text: fmt.Sprintf("💡 *Controls for %s*\n\nStatus: %s\nBrightness: %d%%", escape(room), s.icon(), s.percent),
		Keyboard: [][]Button{
			row(Button{"🔌 On/Off", action(ActionToggle)}),
			row(Button{"🔆 Brightness +", action(ActionBrightInc)}, Button{"🔅 Brightness -", action(ActionBrightDec)}),
			row(Button{"📉 25%", setTo(25)}, Button{"📊 50%", setTo(50)}, Button{"📈 100%", setTo(100)}),
			row(Button{"🎨 Colour", action(ActionColor)}),
			row(Button{"⬅ Back", string(ActionBack)}),
			row(closeButton),
		},
	}
}

func (r *Renderer) renderColor(pass *readPass, room string) Payload {
	back := row(Button{"⬅ Back", Action{Kind: ActionBackRoom, Room: room}.Data()})

	if r.rooms.IsColor(room) {
		keyboard := make([][]Button, 0, len(Palette)+2)
		for _, c := range Palette {
			keyboard = append(keyboard, row(Button{
				Label: c.Label,
				Data:  Action{Kind: ActionSetColor, Hue: c.Hue, Sat: c.Sat, Room: room}.Data(),
			}))
		}
		keyboard = append(keyboard, back, row(closeButton))
		return Payload{
			Text:     fmt.Sprintf("🎨 *Choose a colour for %s*", escape(room)),
			Keyboard: keyboard,
		}
	}

	ct := meanCt(pass.read(r.rooms.DevicesOf(room)))
	return Payload{
		Text: fmt.Sprintf("🎨 *Adjust the tone for %s*\nCurrent temperature: %d", escape(room), ct),
		Keyboard: [][]Button{
			row(Button{"➕ Warmer", Action{Kind: ActionCtInc, Room: room}.Data()}),
			row(Button{"➖ Cooler", Action{Kind: ActionCtDec, Room: room}.Data()}),
			back,
			row(closeButton),
		},
	}
}

type readResult struct {
	state hue.LightState
	err   error
}

// readPass reads each light at most once per render
type readPass struct {
	ctx     context.Context
	devices Devices
	states  map[int]readResult
}

func (p *readPass) read(ids []int) []hue.LightState {
	states := make([]hue.LightState, 0, len(ids))
	for _, id := range ids {
		res, ok := p.states[id]
		if !ok {
			state, err := p.devices.ReadLight(p.ctx, id)
			res = readResult{state: state, err: err}
			p.states[id] = res
			if err != nil {
				log.Debug().Err(err).Int("light", id).Msg("Skipping unreachable light")
			}
		}
		if res.err == nil {
			states = append(states, res.state)
		}
	}
	return states
}

// roomSummary aggregates the lights of one room
type roomSummary struct {
	anyOn   bool
	percent int
}

func (s roomSummary) icon() string {
	if s.anyOn {
		return iconOn
	}
	return iconOff
}

func summarize(states []hue.LightState) roomSummary {
	if len(states) == 0 {
		return roomSummary{}
	}
	total := lo.SumBy(states, func(s hue.LightState) int {
		if !s.On {
			return 0
		}
		return ToPercent(s.Bri)
	})
	return roomSummary{
		anyOn:   lo.SomeBy(states, func(s hue.LightState) bool { return s.On }),
		percent: total / len(states),
	}
}

// meanCt averages ct over lights that are on; off lights keep a stale value
func meanCt(states []hue.LightState) int {
	withCt := lo.Filter(states, func(s hue.LightState, _ int) bool { return s.On && s.Ct != nil })
	if len(withCt) == 0 {
		return DefaultCt
	}
	total := lo.SumBy(withCt, func(s hue.LightState) int { return int(*s.Ct) })
	return total / len(withCt)
}

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

// notice texts shown in place of the view body until the next refresh
func noticeAllOff() string { return "🛑 *All lights have been turned off*" }

func noticeToggle(room string, on bool) string {
	return fmt.Sprintf("✅ *Lights in %s turned %s*", escape(room), lo.Ternary(on, "on", "off"))
}

func noticeBrightness(room string, delta int) string {
	if delta > 0 {
		return fmt.Sprintf("🔆 *Brightness increased in %s*", escape(room))
	}
	return fmt.Sprintf("🔅 *Brightness decreased in %s*", escape(room))
}

func noticeBrightnessSet(room string, pct int) string {
	return fmt.Sprintf("🔆 *Brightness set to %d%% in %s*", pct, escape(room))
}

func noticeColor(room string) string {
	return fmt.Sprintf("🎨 *Colour applied in %s*", escape(room))
}

func noticeTone(room string, delta int) string {
	return fmt.Sprintf("🎨 *Tone adjusted in %s (%s)*", escape(room), lo.Ternary(delta > 0, "warmer", "cooler"))
}
