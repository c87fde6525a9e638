package eventlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemosyne-ai/mnemosyne/pkg/models"
)

func TestBusFanOut(t *testing.T) {
	bus := NewBus()
	sub1 := bus.Subscribe()
	sub2 := bus.Subscribe()
	defer sub1.Unsubscribe()
	defer sub2.Unsubscribe()

	assert.Equal(t, 2, bus.SubscriberCount())

	bus.Publish(models.Event{Kind: models.EventPhaseAdvanced})

	for _, sub := range []*Subscription{sub1, sub2} {
		select {
		case ev := <-sub.Events:
			assert.Equal(t, models.EventPhaseAdvanced, ev.Kind)
		case <-time.After(time.Second):
			t.Fatal("expected event on every subscriber")
		}
	}
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe()
	sub.Unsubscribe()

	_, ok := <-sub.Events
	assert.False(t, ok, "channel should be closed after unsubscribe")
	assert.Equal(t, 0, bus.SubscriberCount())
}

func TestBusDropsSlowSubscriber(t *testing.T) {
	origDropTimeout := dropTimeout
	dropTimeout = 10 * time.Millisecond
	t.Cleanup(func() { dropTimeout = origDropTimeout })

	bus := NewBus()
	sub := bus.Subscribe()

	for i := 0; i < subscriberBufferSize+2; i++ {
		bus.Publish(models.Event{Kind: models.EventAgentStarted})
	}

	require.Eventually(t, func() bool { return bus.SubscriberCount() == 0 }, time.Second, 5*time.Millisecond)

	// Events buffered before the drop are still delivered; the channel
	// reports closed once they are drained.
	for i := 0; i < subscriberBufferSize; i++ {
		<-sub.Events
	}
	_, ok := <-sub.Events
	assert.False(t, ok)
}


