package panel

import (
	"fmt"
	"strconv"
	"strings"
)

// ActionKind is the verb of a button's callback data
type ActionKind string

const (
	ActionClose     ActionKind = "close"
	ActionBack      ActionKind = "back"
	ActionBackRoom  ActionKind = "backroom"
	ActionRoom      ActionKind = "room"
	ActionAllOff    ActionKind = "all_off"
	ActionToggle    ActionKind = "toggle"
	ActionBrightInc ActionKind = "bright_inc"
	ActionBrightDec ActionKind = "bright_dec"
	ActionBrightSet ActionKind = "bright_set"
	ActionColor     ActionKind = "color"
	ActionSetColor  ActionKind = "setcolor"
	ActionCtInc     ActionKind = "ct_inc"
	ActionCtDec     ActionKind = "ct_dec"
)

const (
	maxHue = 65535
	maxSat = 254
)

// Action is a decoded button press
type Action struct {
	Kind    ActionKind
	Room    string
	Percent int    // ActionBrightSet
	Hue     uint16 // ActionSetColor
	Sat     uint8  // ActionSetColor
}

// Data encodes the action as callback data. The room always comes last so
// names containing ':' survive a round trip.
func (a Action) Data() string {
	switch a.Kind {
	case ActionClose, ActionBack, ActionAllOff:
		return string(a.Kind)
	case ActionBrightSet:
		return fmt.Sprintf("%s:%d:%s", a.Kind, a.Percent, a.Room)
	case ActionSetColor:
		return fmt.Sprintf("%s:%d:%d:%s", a.Kind, a.Hue, a.Sat, a.Room)
	default:
		return string(a.Kind) + ":" + a.Room
	}
}

// ParseAction decodes callback data. Unknown verbs and missing rooms yield
// ErrUnknownSelection; malformed or out-of-range numbers yield ErrInvalidPayload.
func ParseAction(data string) (Action, error) {
	switch ActionKind(data) {
	case ActionClose, ActionBack, ActionAllOff:
		return Action{Kind: ActionKind(data)}, nil
	}

	verb, rest, ok := strings.Cut(data, ":")
	if !ok {
		return Action{}, fmt.Errorf("%w: %q", ErrUnknownSelection, data)
	}

	kind := ActionKind(verb)
	switch kind {
	case ActionBackRoom, ActionRoom, ActionToggle, ActionBrightInc, ActionBrightDec,
		ActionColor, ActionCtInc, ActionCtDec:
		if rest == "" {
			return Action{}, fmt.Errorf("%w: %q has no room", ErrUnknownSelection, data)
		}
		return Action{Kind: kind, Room: rest}, nil

	case ActionBrightSet:
		parts := strings.SplitN(rest, ":", 2)
		if len(parts) != 2 || parts[1] == "" {
			return Action{}, fmt.Errorf("%w: %q has no room", ErrUnknownSelection, data)
		}
		pct, err := parseBounded(parts[0], 100)
		if err != nil {
			return Action{}, fmt.Errorf("%w: brightness %q: %v", ErrInvalidPayload, parts[0], err)
		}
		return Action{Kind: kind, Percent: pct, Room: parts[1]}, nil

	case ActionSetColor:
		parts := strings.SplitN(rest, ":", 3)
		if len(parts) != 3 || parts[2] == "" {
			return Action{}, fmt.Errorf("%w: %q has no room", ErrUnknownSelection, data)
		}
		hue, err := parseBounded(parts[0], maxHue)
		if err != nil {
			return Action{}, fmt.Errorf("%w: hue %q: %v", ErrInvalidPayload, parts[0], err)
		}
		sat, err := parseBounded(parts[1], maxSat)
		if err != nil {
			return Action{}, fmt.Errorf("%w: saturation %q: %v", ErrInvalidPayload, parts[1], err)
		}
		return Action{Kind: kind, Hue: uint16(hue), Sat: uint8(sat), Room: parts[2]}, nil
	}

	return Action{}, fmt.Errorf("%w: %q", ErrUnknownSelection, data)
}

func parseBounded(s string, upper int) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > upper {
		return 0, fmt.Errorf("out of range [0,%d]", upper)
	}
	return n, nil
}
