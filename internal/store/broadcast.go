package store

import (
	"sync"

	"github.com/mkutlay/feedsync/internal/models"
)

// broadcaster fans a snapshot out to every subscriber after each
// committed mutation. Channels are buffered with depth one and a slow
// subscriber is coalesced to the latest snapshot, so publication never
// blocks the committing writer.
type broadcaster struct {
	mu   sync.Mutex
	subs map[int]chan []models.Item
	next int
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[int]chan []models.Item)}
}

// Subscribe registers a subscriber. The returned cancel func must be
// called to release the channel.
func (b *broadcaster) Subscribe() (<-chan []models.Item, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan []models.Item, 1)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Publish delivers the snapshot to all subscribers, replacing any
// undelivered previous snapshot.
func (b *broadcaster) Publish(snapshot []models.Item) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- snapshot:
		default:
			// Drop the stale snapshot, then deliver the latest.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snapshot:
			default:
			}
		}
	}
}
