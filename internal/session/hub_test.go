package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_PublishDelivers(t *testing.T) {
	h := NewHub()
	id, ch := h.Subscribe()
	require.NotEmpty(t, id)
	assert.Equal(t, 1, h.Len())

	h.Publish(Snapshot{LineErrors: 7})
	got := <-ch
	assert.Equal(t, uint64(7), got.LineErrors)
}

func TestHub_PublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	h := NewHub()
	_, ch := h.Subscribe()

	h.Publish(Snapshot{LineErrors: 1})
	h.Publish(Snapshot{LineErrors: 2}) // dropped, buffer full

	assert.Equal(t, uint64(1), (<-ch).LineErrors)
	select {
	case <-ch:
		t.Fatal("expected second snapshot to be dropped")
	default:
	}
}

func TestHub_UnsubscribeClosesChannel(t *testing.T) {
	h := NewHub()
	id, ch := h.Subscribe()
	h.Unsubscribe(id)
	h.Unsubscribe(id)

	_, ok := <-ch
	assert.False(t, ok)
	assert.Zero(t, h.Len())
}

func TestHub_Close(t *testing.T) {
	h := NewHub()
	_, a := h.Subscribe()
	h.Close()

	_, ok := <-a
	assert.False(t, ok)

	_, b := h.Subscribe()
	_, ok = <-b
	assert.False(t, ok, "subscribing after Close returns a closed channel")
}
