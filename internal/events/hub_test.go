package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHubDeliversInOrder(t *testing.T) {
	h := NewHub[int]()
	var got []string

	h.Subscribe(func(v int) { got = append(got, "a") })
	h.Subscribe(func(v int) { got = append(got, "b") })
	h.Publish(1)

	assert.Equal(t, []string{"a", "b"}, got)
}

func TestHubUnsubscribe(t *testing.T) {
	h := NewHub[int]()
	calls := 0
	sub := h.Subscribe(func(int) { calls++ })

	h.Publish(1)
	sub.Unsubscribe()
	sub.Unsubscribe()
	h.Publish(2)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, h.Len())
}

func TestHubSelfUnsubscribeDuringPublish(t *testing.T) {
	h := NewHub[int]()
	calls := 0
	var sub *Subscription
	sub = h.Subscribe(func(int) {
		calls++
		sub.Unsubscribe()
	})

	h.Publish(1)
	h.Publish(2)
	assert.Equal(t, 1, calls)
}

func TestHubClose(t *testing.T) {
	h := NewHub[string]()
	calls := 0
	h.Subscribe(func(string) { calls++ })
	h.Close()

	h.Publish("x")
	sub := h.Subscribe(func(string) { calls++ })
	sub.Unsubscribe()
	h.Publish("y")

	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, h.Len())
}
