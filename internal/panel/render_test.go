package panel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/lightpanel/internal/hue"
	"github.com/dokzlo13/lightpanel/internal/rooms"
)

func newTestRenderer(t *testing.T, devices *fakeDevices, defs ...rooms.Room) *Renderer {
	t.Helper()
	registry, err := rooms.NewRegistry(defs)
	require.NoError(t, err)
	return NewRenderer(devices, registry)
}

func labels(p Payload) []string {
	var out []string
	for _, r := range p.Keyboard {
		for _, b := range r {
			out = append(out, b.Label)
		}
	}
	return out
}

func TestRender_MainKitchenScenario(t *testing.T) {
	devices := newFakeDevices()
	devices.set(1, hue.LightState{On: true, Bri: 127})
	devices.set(2, hue.LightState{On: false, Bri: 254})
	r := newTestRenderer(t, devices, rooms.Room{Name: "Kitchen", Lights: []int{1, 2}})

	p, err := r.Render(context.Background(), MainView())
	require.NoError(t, err)

	require.Len(t, p.Keyboard, 3)
	assert.Equal(t, Button{"🟡 Kitchen (25%)", "room:Kitchen"}, p.Keyboard[0][0])
	assert.Equal(t, Button{"🛑 Turn everything off", "all_off"}, p.Keyboard[1][0])
	assert.Equal(t, Button{"❌ Close panel", "close"}, p.Keyboard[2][0])
}

func TestRender_MainAggregation(t *testing.T) {
	devices := newFakeDevices()
	devices.set(1, hue.LightState{On: false, Bri: 254})
	devices.set(2, hue.LightState{On: false})
	devices.set(3, hue.LightState{On: true, Bri: 254})
	devices.set(4, hue.LightState{On: true, Bri: 100})
	devices.down[5] = true
	devices.down[6] = true
	r := newTestRenderer(t, devices,
		rooms.Room{Name: "Bedroom", Lights: []int{1, 2}},
		rooms.Room{Name: "Hall", Lights: []int{3, 4, 5}},
		rooms.Room{Name: "Garage", Lights: []int{6}},
		rooms.Room{Name: "Stairs", Lights: []int{3}},
	)

	p, err := r.Render(context.Background(), MainView())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"⚫️ Bedroom (0%)",
		"🟡 Hall (69%)", // mean(100, 39) over the two lights that answered
		"⚫️ Garage (0%)",
		"🟡 Stairs (100%)",
		"🛑 Turn everything off",
		"❌ Close panel",
	}, labels(p))

	// light 3 belongs to two rooms but is read once per render
	assert.Equal(t, 1, devices.reads[3])
}

func TestRender_Room(t *testing.T) {
	devices := newFakeDevices()
	devices.set(1, hue.LightState{On: true, Bri: 127})
	devices.set(2, hue.LightState{On: false})
	r := newTestRenderer(t, devices, rooms.Room{Name: "Kitchen", Lights: []int{1, 2}})

	p, err := r.Render(context.Background(), RoomView("Kitchen"))
	require.NoError(t, err)

	assert.Equal(t, "💡 *Controls for Kitchen*\n\nStatus: 🟡\nBrightness: 25%", p.Text)
	assert.Equal(t, [][]Button{
		{{"🔌 On/Off", "toggle:Kitchen"}},
		{{"🔆 Brightness +", "bright_inc:Kitchen"}, {"🔅 Brightness -", "bright_dec:Kitchen"}},
		{{"📉 25%", "bright_set:25:Kitchen"}, {"📊 50%", "bright_set:50:Kitchen"}, {"📈 100%", "bright_set:100:Kitchen"}},
		{{"🎨 Colour", "color:Kitchen"}},
		{{"⬅ Back", "back"}},
		{{"❌ Close panel", "close"}},
	}, p.Keyboard)
}

func TestRender_RoomEscapesMarkdown(t *testing.T) {
	devices := newFakeDevices()
	devices.set(1, hue.LightState{})
	r := newTestRenderer(t, devices, rooms.Room{Name: "Kid_room", Lights: []int{1}})

	p, err := r.Render(context.Background(), RoomView("Kid_room"))
	require.NoError(t, err)
	assert.Contains(t, p.Text, `Kid\_room`)
	assert.Equal(t, "toggle:Kid_room", p.Keyboard[0][0].Data)
}

func TestRender_ColorPalette(t *testing.T) {
	devices := newFakeDevices()
	devices.set(26, hue.LightState{On: true})
	r := newTestRenderer(t, devices, rooms.Room{Name: "Terrace", Lights: []int{26}, Color: true})

	p, err := r.Render(context.Background(), ColorView("Terrace"))
	require.NoError(t, err)

	require.Len(t, p.Keyboard, len(Palette)+2)
	assert.Equal(t, Button{"🟥 Red", "setcolor:0:254:Terrace"}, p.Keyboard[0][0])
	assert.Equal(t, Button{"⚪ White", "setcolor:0:0:Terrace"}, p.Keyboard[5][0])
	assert.Equal(t, Button{"⬅ Back", "backroom:Terrace"}, p.Keyboard[6][0])
	assert.Equal(t, closeButton, p.Keyboard[7][0])
	assert.Zero(t, devices.reads[26], "palette needs no light state")
}

func TestRender_ColorTemperature(t *testing.T) {
	devices := newFakeDevices()
	devices.set(1, hue.LightState{On: true, Ct: u16(366)})
	devices.set(2, hue.LightState{On: false, Ct: u16(200)})
	devices.set(3, hue.LightState{On: true})
	devices.set(4, hue.LightState{On: true})
	r := newTestRenderer(t, devices,
		rooms.Room{Name: "Kitchen", Lights: []int{1, 2, 3}},
		rooms.Room{Name: "Hall", Lights: []int{4}},
	)

	p, err := r.Render(context.Background(), ColorView("Kitchen"))
	require.NoError(t, err)
	assert.Equal(t, "🎨 *Adjust the tone for Kitchen*\nCurrent temperature: 366", p.Text, "off lights are left out")
	assert.Equal(t, []string{"➕ Warmer", "➖ Cooler", "⬅ Back", "❌ Close panel"}, labels(p))

	p, err = r.Render(context.Background(), ColorView("Hall"))
	require.NoError(t, err)
	assert.Contains(t, p.Text, "Current temperature: 300")
}

func TestRender_UnknownRoom(t *testing.T) {
	r := newTestRenderer(t, newFakeDevices(), rooms.Room{Name: "Kitchen", Lights: []int{1}})

	_, err := r.Render(context.Background(), RoomView("Attic"))
	assert.ErrorIs(t, err, ErrUnknownRoom)
}

func TestPayloadEqual(t *testing.T) {
	a := Payload{Text: "x", Keyboard: [][]Button{{{"a", "1"}}, {{"b", "2"}}}}
	b := Payload{Text: "x", Keyboard: [][]Button{{{"a", "1"}}, {{"b", "2"}}}}
	assert.True(t, a.Equal(b))

	b.Keyboard[1][0].Label = "c"
	assert.False(t, a.Equal(b))
	assert.False(t, a.Equal(Payload{Text: "y", Keyboard: a.Keyboard}))
	assert.False(t, a.Equal(Payload{Text: "x", Keyboard: a.Keyboard[:1]}))
}
