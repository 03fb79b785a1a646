package hue

import (
	"strings"

	"github.com/amimof/huego"
)

// LightState is a snapshot of one light as reported by the bridge (v1 API).
// Ct, Hue and Sat are nil when the light does not report them.
type LightState struct {
	On        bool
	Bri       uint8
	Ct        *uint16
	Hue       *uint16
	Sat       *uint8
	Reachable bool
}

// StateUpdate is a partial light state for PUT /lights/{id}/state.
// Nil fields are omitted; zero values are sent, so hue 0 / sat 0 still reach the light.
type StateUpdate struct {
	On  *bool   `json:"on,omitempty"`
	Bri *uint8  `json:"bri,omitempty"`
	Hue *uint16 `json:"hue,omitempty"`
	Sat *uint8  `json:"sat,omitempty"`
	Ct  *uint16 `json:"ct,omitempty"`
}

// Power returns an update that only switches the light on or off
func Power(on bool) StateUpdate {
	return StateUpdate{On: &on}
}

// WithBri returns a copy of the update with brightness set
func (u StateUpdate) WithBri(bri uint8) StateUpdate {
	u.Bri = &bri
	return u
}

// WithColor returns a copy of the update with hue and saturation set
func (u StateUpdate) WithColor(hue uint16, sat uint8) StateUpdate {
	u.Hue = &hue
	u.Sat = &sat
	return u
}

// WithCt returns a copy of the update with colour temperature set
func (u StateUpdate) WithCt(ct uint16) StateUpdate {
	u.Ct = &ct
	return u
}

// Light is a bridge light with its numeric v1 id
type Light struct {
	ID   int
	Name string
	Type string
}

// IsColor reports whether the light type supports hue/saturation
func (l Light) IsColor() bool {
	return strings.Contains(strings.ToLower(l.Type), "color light")
}

// Room is a bridge group of type "Room"
type Room struct {
	ID     int
	Name   string
	Lights []int
}

// stateFromHuego converts huego's state, treating zero ct/hue/sat as "not reported".
// The bridge only omits those fields for lights without the capability, and
// valid ct values start at 153.
func stateFromHuego(s *huego.State) LightState {
	if s == nil {
		return LightState{}
	}
	state := LightState{
		On:        s.On,
		Bri:       s.Bri,
		Reachable: s.Reachable,
	}
	if s.Ct != 0 {
		ct := s.Ct
		state.Ct = &ct
	}
	if s.ColorMode == "hs" || s.ColorMode == "xy" || s.Hue != 0 || s.Sat != 0 {
		hue, sat := s.Hue, s.Sat
		state.Hue = &hue
		state.Sat = &sat
	}
	return state
}
