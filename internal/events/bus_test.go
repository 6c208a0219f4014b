package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/delsur/comandero/internal/domain"
)

func waitEvent(t *testing.T, ch chan domain.Event) domain.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return domain.Event{}
	}
}

func TestBusFanOut(t *testing.T) {
	bus := NewBus()
	bus.Start()
	defer bus.Stop()

	a := bus.Subscribe()
	b := bus.Subscribe()
	defer bus.Unsubscribe(a)
	defer bus.Unsubscribe(b)

	bus.Broadcast(domain.Event{ID: "e1", Type: domain.EventNewEmail})

	if got := waitEvent(t, a); got.ID != "e1" {
		t.Errorf("subscriber a got %q", got.ID)
	}
	if got := waitEvent(t, b); got.ID != "e1" {
		t.Errorf("subscriber b got %q", got.ID)
	}
}

func TestBusSlowSubscriberDrops(t *testing.T) {
	bus := NewBus()
	bus.Start()
	defer bus.Stop()

	slow := bus.Subscribe()
	defer bus.Unsubscribe(slow)

	// Never read: the channel buffer fills, later events are dropped, and
	// Broadcast never blocks.
	done := make(chan struct{})
	go func() {
		for i := 0; i < SubscriberBuffer*3; i++ {
			bus.Broadcast(domain.Event{ID: "x", Type: domain.EventNewEmail})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked on a slow subscriber")
	}

	// Give the dispatcher a moment, then drain: no more than the buffer size
	// may have arrived.
	time.Sleep(50 * time.Millisecond)
	n := 0
	for {
		select {
		case <-slow:
			n++
			continue
		default:
		}
		break
	}
	if n > SubscriberBuffer {
		t.Errorf("slow subscriber received %d events, buffer is %d", n, SubscriberBuffer)
	}
	if n == 0 {
		t.Error("slow subscriber received nothing at all")
	}
}

func TestBusUnsubscribeIsIdempotent(t *testing.T) {
	bus := NewBus()
	bus.Start()
	defer bus.Stop()

	ch := bus.Subscribe()
	bus.Unsubscribe(ch)
	bus.Unsubscribe(ch) // second call must not panic on the closed channel

	if n := bus.Subscribers(); n != 0 {
		t.Errorf("subscribers = %d, want 0", n)
	}
}

func TestBusStopDisconnectsSubscribers(t *testing.T) {
	bus := NewBus()
	bus.Start()

	ch := bus.Subscribe()
	bus.Stop()

	select {
	case _, open := <-ch:
		if open {
			t.Error("received an event instead of a close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber channel still open after Stop")
	}

	if n := bus.Subscribers(); n != 0 {
		t.Errorf("subscribers = %d, want 0", n)
	}
	bus.Unsubscribe(ch) // late unsubscribe must not panic
	bus.Stop()          // and Stop stays idempotent
}

type memStore struct {
	mu   sync.Mutex
	evs  []domain.Event
	fail error
}

func (m *memStore) Append(ctx context.Context, ev *domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	ev.Seq = int64(len(m.evs) + 1)
	ev.TS = time.Now()
	m.evs = append(m.evs, *ev)
	return nil
}

func TestPublisherAppendsBeforeBroadcast(t *testing.T) {
	bus := NewBus()
	bus.Start()
	defer bus.Stop()

	store := &memStore{}
	pub := NewPublisher(store, bus)

	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	ev, err := pub.Publish(context.Background(), New(domain.EventShiftStarted, domain.EntityShift, "s1", nil))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if ev.ID == "" || ev.Seq == 0 {
		t.Errorf("publish did not fill id/seq: %+v", ev)
	}

	got := waitEvent(t, sub)
	if got.ID != ev.ID {
		t.Errorf("subscriber got %q, want %q", got.ID, ev.ID)
	}
	if len(store.evs) != 1 {
		t.Errorf("store rows = %d, want 1", len(store.evs))
	}
}

func TestPublisherStoreFailureSuppressesBroadcast(t *testing.T) {
	bus := NewBus()
	bus.Start()
	defer bus.Stop()

	store := &memStore{fail: errors.New("db down")}
	pub := NewPublisher(store, bus)

	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	if _, err := pub.Publish(context.Background(), New(domain.EventShiftStarted, domain.EntityShift, "s1", nil)); err == nil {
		t.Fatal("expected append error")
	}

	select {
	case ev := <-sub:
		t.Errorf("event %q broadcast despite failed append", ev.ID)
	case <-time.After(100 * time.Millisecond):
	}
}
