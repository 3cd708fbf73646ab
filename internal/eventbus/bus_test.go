package eventbus

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversInOrder(t *testing.T) {
	bus := New()
	var got []string
	bus.Subscribe(func(ev Event) { got = append(got, "a:"+ev.Name) })
	bus.Subscribe(func(ev Event) { got = append(got, "b:"+ev.Name) })

	bus.Publish(WindowOpened, map[string]interface{}{"windowId": "w1"})

	assert.Equal(t, []string{"a:window_opened", "b:window_opened"}, got)
}

func TestUnsubscribe(t *testing.T) {
	bus := New()
	calls := 0
	unsubscribe := bus.Subscribe(func(Event) { calls++ })

	bus.Publish(AutomationStarted, nil)
	unsubscribe()
	unsubscribe()
	bus.Publish(AutomationStarted, nil)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, bus.Len())
}

func TestPanickingSubscriberIsIsolated(t *testing.T) {
	bus := New()
	var delivered []Event
	bus.Subscribe(func(Event) { panic("observer exploded") })
	bus.Subscribe(func(ev Event) { delivered = append(delivered, ev) })

	require.NotPanics(t, func() {
		bus.Publish(AutomationCompleted, map[string]interface{}{"success": true})
	})
	require.Len(t, delivered, 1)
	assert.Equal(t, true, delivered[0].Payload["success"])
}

func TestNilPayloadBecomesEmptyMap(t *testing.T) {
	bus := New()
	var ev Event
	bus.Subscribe(func(e Event) { ev = e })
	bus.Publish(AllWindowsClosed, nil)

	assert.NotNil(t, ev.Payload)
	assert.False(t, ev.At.IsZero())
}

func TestConcurrentSubscribeAndPublish(t *testing.T) {
	bus := New()
	var mu sync.Mutex
	count := 0

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			bus.Subscribe(func(Event) {
				mu.Lock()
				count++
				mu.Unlock()
			})
		}()
		go func() {
			defer wg.Done()
			bus.Publish(MusicStarted, nil)
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, bus.Len())
}
