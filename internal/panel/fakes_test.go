package panel

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/lightpanel/internal/hue"
	"github.com/dokzlo13/lightpanel/internal/ledger"
	"github.com/dokzlo13/lightpanel/internal/rooms"
)

// fakeDevices is an in-memory bridge. Writes are applied to the stored state.
type fakeDevices struct {
	mu          sync.Mutex
	states      map[int]hue.LightState
	down        map[int]bool // reads and writes fail
	failWrites  map[int]bool
	reads       map[int]int
	writes      []lightWrite
	readsFailed int
}

type lightWrite struct {
	ID     int
	Update hue.StateUpdate
}

func newFakeDevices() *fakeDevices {
	return &fakeDevices{
		states:     make(map[int]hue.LightState),
		down:       make(map[int]bool),
		failWrites: make(map[int]bool),
		reads:      make(map[int]int),
	}
}

func (f *fakeDevices) set(id int, s hue.LightState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[id] = s
}

func (f *fakeDevices) ReadLight(_ context.Context, id int) (hue.LightState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads[id]++
	if f.down[id] {
		f.readsFailed++
		return hue.LightState{}, fmt.Errorf("%w: light %d", hue.ErrUnavailable, id)
	}
	s, ok := f.states[id]
	if !ok {
		return hue.LightState{}, fmt.Errorf("%w: light %d not found", hue.ErrUnavailable, id)
	}
	return s, nil
}

func (f *fakeDevices) WriteLight(_ context.Context, id int, u hue.StateUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, lightWrite{ID: id, Update: u})
	if f.down[id] || f.failWrites[id] {
		return fmt.Errorf("%w: light %d", hue.ErrUnavailable, id)
	}
	s := f.states[id]
	if u.On != nil {
		s.On = *u.On
	}
	if u.Bri != nil {
		s.Bri = *u.Bri
	}
	if u.Ct != nil {
		ct := *u.Ct
		s.Ct = &ct
	}
	if u.Hue != nil {
		h := *u.Hue
		s.Hue = &h
	}
	if u.Sat != nil {
		sat := *u.Sat
		s.Sat = &sat
	}
	f.states[id] = s
	return nil
}

func (f *fakeDevices) written() []lightWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]lightWrite(nil), f.writes...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeDevices) resetCounters() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = nil
	f.reads = make(map[int]int)
}

// fakeTransport records every call. editErr, when set, is returned by the next edits.
type fakeTransport struct {
	mu        sync.Mutex
	nextID    int
	sent      []Payload
	edits     []Payload
	deleted   []MessageRef
	sendErr   error
	editErr   error
	deleteErr error
}

func (t *fakeTransport) Send(_ context.Context, chatID int64, p Payload) (MessageRef, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return MessageRef{}, t.sendErr
	}
	t.nextID++
	t.sent = append(t.sent, p)
	return MessageRef{ChatID: chatID, MessageID: 100 + t.nextID}, nil
}

func (t *fakeTransport) Edit(_ context.Context, _ MessageRef, p Payload) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.edits = append(t.edits, p)
	return t.editErr
}

func (t *fakeTransport) Delete(_ context.Context, ref MessageRef) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deleted = append(t.deleted, ref)
	return t.deleteErr
}

func (t *fakeTransport) editCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.edits)
}

func (t *fakeTransport) lastEdit() Payload {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.edits) == 0 {
		return Payload{}
	}
	return t.edits[len(t.edits)-1]
}

// fakeClock fires timers synchronously from Advance
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	period  time.Duration
	f       func()
	stopped bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 20, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	return c.add(d, 0, f)
}

func (c *fakeClock) Every(d time.Duration, f func()) Timer {
	return c.add(d, d, f)
}

func (c *fakeClock) add(d, period time.Duration, f func()) *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), period: period, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

// Advance moves time forward, running due timers in order
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	for {
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}
		if next == nil {
			break
		}
		c.now = next.at
		if next.period > 0 {
			next.at = next.at.Add(next.period)
		} else {
			next.stopped = true
		}
		c.mu.Unlock()
		next.f()
		c.mu.Lock()
	}
	c.now = target
	c.mu.Unlock()
}

// live returns the number of timers that may still fire
func (c *fakeClock) live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

type journalEntry struct {
	Type      ledger.EventType
	ChatID    int64
	SessionID string
	Payload   map[string]any
}

type fakeJournal struct {
	mu      sync.Mutex
	entries []journalEntry
}

func (j *fakeJournal) Append(_ context.Context, t ledger.EventType, chatID int64, sessionID string, payload map[string]any) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, journalEntry{t, chatID, sessionID, payload})
	return nil
}

func (j *fakeJournal) ofType(t ledger.EventType) []journalEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []journalEntry
	for _, e := range j.entries {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func u8(v uint8) *uint8    { return &v }
func u16(v uint16) *uint16 { return &v }

// fixture wires a manager and dispatcher over fakes
type fixture struct {
	devices    *fakeDevices
	transport  *fakeTransport
	clock      *fakeClock
	journal    *fakeJournal
	registry   *rooms.Registry
	manager    *Manager
	dispatcher *Dispatcher
}

const testChat int64 = 4242

func newFixture(t *testing.T, defs ...rooms.Room) *fixture {
	t.Helper()
	if len(defs) == 0 {
		defs = []rooms.Room{{Name: "Kitchen", Lights: []int{1, 2}}}
	}
	registry, err := rooms.NewRegistry(defs)
	require.NoError(t, err)

	f := &fixture{
		devices:   newFakeDevices(),
		transport: &fakeTransport{},
		clock:     newFakeClock(),
		journal:   &fakeJournal{},
		registry:  registry,
	}
	for _, id := range registry.AllDevices() {
		f.devices.set(id, hue.LightState{Reachable: true})
	}

	f.manager = NewManager(NewRenderer(f.devices, registry), f.transport, Options{
		Clock:   f.clock,
		Journal: f.journal,
	})
	f.dispatcher = NewDispatcher(f.manager, f.devices, registry, f.journal)
	return f
}

func (f *fixture) open(t *testing.T) Snapshot {
	t.Helper()
	snap, err := f.manager.Open(context.Background(), testChat, 0)
	require.NoError(t, err)
	return snap
}

func (f *fixture) press(t *testing.T, data string) (string, error) {
	t.Helper()
	return f.dispatcher.Handle(context.Background(), Selection{ChatID: testChat, Data: data})
}
