package publisher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLateSubscriberDoesNotSeePastEvents(t *testing.T) {
	p := New[int]()
	p.Publish(1)
	p.Publish(2)

	_, ch := p.Subscribe()
	p.Publish(3)

	got := <-ch
	assert.Equal(t, 3, got)
	assert.Equal(t, 3, p.Current())
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	p := New[string]()
	id, ch := p.Subscribe()
	p.Unsubscribe(id)

	_, ok := <-ch
	assert.False(t, ok)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	p := New[string]()
	id, _ := p.Subscribe()
	p.Unsubscribe(id)
	assert.NotPanics(t, func() { p.Unsubscribe(id) })
}

func TestSlowSubscriberCoalescesWithoutReordering(t *testing.T) {
	p := New[int]()
	_, ch := p.Subscribe()

	for i := 0; i < subscriberBuffer+5; i++ {
		p.Publish(i)
	}

	var last = -1
	for {
		select {
		case v := <-ch:
			require.Greater(t, v, last, "transitions must never arrive out of order")
			last = v
		default:
			return
		}
	}
}

func TestMultipleSubscribersAllReceive(t *testing.T) {
	p := New[int]()
	_, chA := p.Subscribe()
	_, chB := p.Subscribe()

	p.Publish(42)

	assert.Equal(t, 42, <-chA)
	assert.Equal(t, 42, <-chB)
}
