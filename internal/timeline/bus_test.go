package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBus_PublishInOrder(t *testing.T) {
	b := NewBus()
	var got []int
	b.Subscribe(func(Notification) { got = append(got, 1) })
	b.Subscribe(func(Notification) { got = append(got, 2) })
	b.Subscribe(func(Notification) { got = append(got, 3) })

	b.Publish(Notification{Seq: 1})

	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestBus_SubscribeDuringPublishMissesCurrent(t *testing.T) {
	b := NewBus()
	late := 0
	b.Subscribe(func(Notification) {
		b.Subscribe(func(Notification) { late++ })
	})

	b.Publish(Notification{Seq: 1})
	assert.Equal(t, 0, late)
	assert.Equal(t, 2, b.Len())

	b.Publish(Notification{Seq: 2})
	assert.Equal(t, 1, late)
}

func TestBus_UnsubscribeDuringPublishSkipsRemoved(t *testing.T) {
	b := NewBus()
	second := 0
	var unsub func()
	b.Subscribe(func(Notification) { unsub() })
	unsub = b.Subscribe(func(Notification) { second++ })

	b.Publish(Notification{Seq: 1})

	assert.Equal(t, 0, second)
	assert.Equal(t, 1, b.Len())
}

func TestBus_UnsubscribeIdempotent(t *testing.T) {
	b := NewBus()
	unsubA := b.Subscribe(func(Notification) {})
	b.Subscribe(func(Notification) {})

	unsubA()
	unsubA()

	assert.Equal(t, 1, b.Len())
}

func TestBus_Clear(t *testing.T) {
	b := NewBus()
	count := 0
	unsub := b.Subscribe(func(Notification) { count++ })

	b.Clear()
	b.Publish(Notification{})
	unsub()

	assert.Equal(t, 0, count)
	assert.Equal(t, 0, b.Len())
}
