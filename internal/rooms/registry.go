// Package rooms holds the fixed mapping of room names to light ids.
package rooms

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/dokzlo13/lightpanel/internal/hue"
)

// Telegram rejects callback data longer than 64 bytes. The longest payload
// carrying a room name is "setcolor:<hue>:<sat>:<room>".
const (
	maxCallbackData   = 64
	longestDataPrefix = len("setcolor:65535:254:")

	// MaxNameBytes is the longest room name that still fits every callback payload
	MaxNameBytes = maxCallbackData - longestDataPrefix
)

// Room is one named group of lights
type Room struct {
	Name   string
	Lights []int
	Color  bool // hue/saturation palette instead of colour temperature
}

// Registry is an ordered, read-only set of rooms
type Registry struct {
	order []string
	rooms map[string]Room
}

// NewRegistry validates rooms and returns a registry that keeps their order
func NewRegistry(rooms []Room) (*Registry, error) {
	if len(rooms) == 0 {
		return nil, fmt.Errorf("no rooms defined")
	}

	r := &Registry{
		order: make([]string, 0, len(rooms)),
		rooms: make(map[string]Room, len(rooms)),
	}
	for i, room := range rooms {
		name := strings.TrimSpace(room.Name)
		if name == "" {
			return nil, fmt.Errorf("room %d: name is empty", i)
		}
		if len(name) > MaxNameBytes {
			return nil, fmt.Errorf("room %q: name longer than %d bytes", name, MaxNameBytes)
		}
		if _, dup := r.rooms[name]; dup {
			return nil, fmt.Errorf("room %q defined twice", name)
		}
		if len(room.Lights) == 0 {
			return nil, fmt.Errorf("room %q: no lights", name)
		}
		for _, id := range room.Lights {
			if id <= 0 {
				return nil, fmt.Errorf("room %q: invalid light id %d", name, id)
			}
		}

		r.order = append(r.order, name)
		r.rooms[name] = Room{
			Name:   name,
			Lights: append([]int(nil), room.Lights...),
			Color:  room.Color,
		}
	}
	return r, nil
}

// RoomIDs returns room names in registry order
func (r *Registry) RoomIDs() []string {
	return append([]string(nil), r.order...)
}

// Has reports whether the room exists
func (r *Registry) Has(room string) bool {
	_, ok := r.rooms[room]
	return ok
}

// DevicesOf returns the light ids of a room. It panics on an unknown room;
// callers validate names with Has first.
func (r *Registry) DevicesOf(room string) []int {
	entry, ok := r.rooms[room]
	if !ok {
		panic(fmt.Sprintf("rooms: unknown room %q", room))
	}
	return append([]int(nil), entry.Lights...)
}

// IsColor reports whether the room gets the colour palette
func (r *Registry) IsColor(room string) bool {
	return r.rooms[room].Color
}

// AllDevices returns every light id once, in first-seen room order
func (r *Registry) AllDevices() []int {
	var all []int
	for _, name := range r.order {
		all = append(all, r.rooms[name].Lights...)
	}
	return lo.Uniq(all)
}

// Len returns the number of rooms
func (r *Registry) Len() int {
	return len(r.order)
}

// BridgeLister is the part of the Hue client used to build rooms from the bridge
type BridgeLister interface {
	Lights(ctx context.Context) ([]hue.Light, error)
	Rooms(ctx context.Context) ([]hue.Room, error)
}

// FromBridge builds rooms from the bridge's Room groups. A room is colour-capable
// when every light in it is a colour light. Rooms without lights are skipped.
func FromBridge(ctx context.Context, bridge BridgeLister) ([]Room, error) {
	lights, err := bridge.Lights(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list lights: %w", err)
	}
	groups, err := bridge.Rooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}

	byID := lo.KeyBy(lights, func(l hue.Light) int { return l.ID })

	rooms := make([]Room, 0, len(groups))
	for _, g := range groups {
		if len(g.Lights) == 0 {
			log.Debug().Str("room", g.Name).Msg("Skipping bridge room without lights")
			continue
		}
		color := lo.EveryBy(g.Lights, func(id int) bool {
			l, ok := byID[id]
			return ok && l.IsColor()
		})
		rooms = append(rooms, Room{Name: g.Name, Lights: g.Lights, Color: color})
	}

	log.Info().Int("rooms", len(rooms)).Msg("Discovered rooms from bridge")
	return rooms, nil
}
