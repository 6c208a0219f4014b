// Package events carries the append-only event log and its in-process
// fan-out. Persistence always wins: the log row is written first, live
// delivery is best effort, and replay fills whatever a slow subscriber
// dropped.
package events

import (
	"log"
	"sync"

	"github.com/delsur/comandero/internal/domain"
)

// SubscriberBuffer bounds each subscriber channel. A subscriber that falls
// this far behind starts losing live events and must rely on replay.
const SubscriberBuffer = 64

// Bus fans events out to attached subscribers. One dispatcher goroutine,
// bounded channels, drop on overflow.
type Bus struct {
	mu        sync.RWMutex
	clients   map[chan domain.Event]bool
	broadcast chan domain.Event
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

func NewBus() *Bus {
	return &Bus{
		clients:   make(map[chan domain.Event]bool),
		broadcast: make(chan domain.Event, 256),
		done:      make(chan struct{}),
	}
}

// Start launches the dispatcher goroutine.
func (b *Bus) Start() {
	b.startOnce.Do(func() {
		go b.dispatch()
	})
}

// Stop terminates the dispatcher and disconnects every subscriber by
// closing its channel. Pending broadcasts are dropped; the persistent log
// still has them.
func (b *Bus) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		b.mu.Lock()
		for ch := range b.clients {
			delete(b.clients, ch)
			close(ch)
		}
		b.mu.Unlock()
	})
}

func (b *Bus) dispatch() {
	for {
		select {
		case ev := <-b.broadcast:
			b.mu.RLock()
			for ch := range b.clients {
				select {
				case ch <- ev:
				default:
					// slow subscriber, drop
				}
			}
			b.mu.RUnlock()
		case <-b.done:
			return
		}
	}
}

// Subscribe attaches a new subscriber and returns its channel. The caller
// must Unsubscribe when done.
func (b *Bus) Subscribe() chan domain.Event {
	ch := make(chan domain.Event, SubscriberBuffer)
	b.mu.Lock()
	b.clients[ch] = true
	b.mu.Unlock()
	return ch
}

// Unsubscribe detaches and closes the channel.
func (b *Bus) Unsubscribe(ch chan domain.Event) {
	b.mu.Lock()
	if b.clients[ch] {
		delete(b.clients, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Subscribers reports the attached subscriber count.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Broadcast queues events for fan-out without blocking the caller. If the
// dispatcher queue itself is full the event is dropped from the live stream.
func (b *Bus) Broadcast(evs ...domain.Event) {
	for _, ev := range evs {
		select {
		case b.broadcast <- ev:
		default:
			log.Printf("[EventBus] broadcast queue full, dropping %s", ev.Type)
		}
	}
}
