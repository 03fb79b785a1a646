package eventbus

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_SameKeyIsSerialised(t *testing.T) {
	bus := NewWithConfig(4, 100)

	var (
		mu       sync.Mutex
		order    []int
		inFlight int32
		overlap  atomic.Bool
		wg       sync.WaitGroup
	)
	bus.Subscribe(EventTypeSelection, func(e Event) {
		defer wg.Done()
		if atomic.AddInt32(&inFlight, 1) > 1 {
			overlap.Store(true)
		}
		time.Sleep(time.Millisecond)
		mu.Lock()
		order = append(order, e.Data["n"].(int))
		mu.Unlock()
		atomic.AddInt32(&inFlight, -1)
	})

	for i := 0; i < 20; i++ {
		wg.Add(1)
		require.True(t, bus.Publish(Event{Type: EventTypeSelection, Key: 42, Data: map[string]any{"n": i}}))
	}
	wg.Wait()
	bus.Close(context.Background())

	assert.False(t, overlap.Load())
	expected := make([]int, 20)
	for i := range expected {
		expected[i] = i
	}
	assert.Equal(t, expected, order)
}

func TestBus_NegativeKeysRoute(t *testing.T) {
	bus := NewWithConfig(3, 10)
	defer bus.Close(context.Background())

	done := make(chan int64, 2)
	bus.Subscribe(EventTypeCommand, func(e Event) { done <- e.Key })

	// Telegram group chats have negative ids
	require.True(t, bus.Publish(Event{Type: EventTypeCommand, Key: -1001234567890}))
	require.True(t, bus.Publish(Event{Type: EventTypeCommand, Key: 5}))

	got := []int64{<-done, <-done}
	assert.ElementsMatch(t, []int64{-1001234567890, 5}, got)
}

func TestBus_RecoversPanics(t *testing.T) {
	bus := NewWithConfig(1, 10)
	defer bus.Close(context.Background())

	done := make(chan struct{})
	bus.Subscribe(EventTypeTask, func(e Event) {
		if e.Data["boom"] == true {
			panic("boom")
		}
		close(done)
	})

	bus.Publish(Event{Type: EventTypeTask, Data: map[string]any{"boom": true}})
	bus.Publish(Event{Type: EventTypeTask})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not survive handler panic")
	}
}

func TestBus_DropsWhenFullOrClosed(t *testing.T) {
	bus := NewWithConfig(1, 1)

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	bus.Subscribe(EventTypeTask, func(Event) {
		started <- struct{}{}
		<-release
	})

	assert.True(t, bus.Publish(Event{Type: EventTypeTask}))
	<-started
	assert.True(t, bus.Publish(Event{Type: EventTypeTask}))
	assert.False(t, bus.Publish(Event{Type: EventTypeTask}), "queue of one is full")

	assert.False(t, bus.Publish(Event{Type: EventTypeCommand}), "no subscribers")

	close(release)
	bus.Close(context.Background())
	assert.False(t, bus.Publish(Event{Type: EventTypeTask}))
}
