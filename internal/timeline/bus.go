package timeline

// Listener receives bus notifications.
type Listener func(Notification)

type subscription struct {
	fn      Listener
	removed bool
}

// Bus is a synchronous, ordered publish/subscribe channel.
//
// Publish runs every listener to completion, in subscription order, before
// it returns. Listeners added during a delivery do not see it; listeners
// removed during a delivery are skipped if they have not run yet.
type Bus struct {
	subs []*subscription
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe appends fn to the listener list. The returned func removes it
// and is safe to call more than once.
func (b *Bus) Subscribe(fn Listener) (unsubscribe func()) {
	sub := &subscription{fn: fn}
	b.subs = append(b.subs, sub)
	return func() {
		if sub.removed {
			return
		}
		sub.removed = true
		for i, s := range b.subs {
			if s == sub {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers n to every listener.
func (b *Bus) Publish(n Notification) {
	snapshot := b.subs
	for _, sub := range snapshot {
		if sub.removed {
			continue
		}
		sub.fn(n)
	}
}

// Len returns the number of listeners.
func (b *Bus) Len() int {
	return len(b.subs)
}

// Clear removes every listener.
func (b *Bus) Clear() {
	for _, s := range b.subs {
		s.removed = true
	}
	b.subs = nil
}
