// Package panel implements the interactive light control panel: rendering of
// the three menu views, per-chat panel sessions with refresh and idle expiry,
// and dispatching of button presses to light writes.
package panel

import (
	"slices"
)

// ViewKind identifies which menu a session displays
type ViewKind int

const (
	ViewMain ViewKind = iota
	ViewRoom
	ViewColorPicker
)

// View is the menu a session currently displays. Room is empty for ViewMain.
type View struct {
	Kind ViewKind
	Room string
}

// MainView returns the room overview
func MainView() View { return View{Kind: ViewMain} }

// RoomView returns the detail view of one room
func RoomView(room string) View { return View{Kind: ViewRoom, Room: room} }

// ColorView returns the colour picker of one room
func ColorView(room string) View { return View{Kind: ViewColorPicker, Room: room} }

func (v View) String() string {
	switch v.Kind {
	case ViewRoom:
		return "room:" + v.Room
	case ViewColorPicker:
		return "color:" + v.Room
	default:
		return "main"
	}
}

// Button is one inline keyboard button
type Button struct {
	Label string
	Data  string
}

// Payload is the rendered content of a panel message
type Payload struct {
	Text     string
	Keyboard [][]Button
}

// Equal reports whether two payloads would display identically
func (p Payload) Equal(other Payload) bool {
	return p.Text == other.Text && slices.EqualFunc(p.Keyboard, other.Keyboard, func(a, b []Button) bool {
		return slices.Equal(a, b)
	})
}

func row(buttons ...Button) []Button {
	return buttons
}
