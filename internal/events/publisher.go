package events

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/delsur/comandero/internal/domain"
)

// Store persists event rows. Append fills the event's ID when empty and
// returns it with ts and seq assigned by the log.
type Store interface {
	Append(ctx context.Context, ev *domain.Event) error
}

// Publisher is the append-then-fan-out front of the event log for code that
// runs outside an enclosing transaction. Transactional services append
// through a tx-bound store themselves and hand the committed events to
// Bus.Broadcast afterwards.
type Publisher struct {
	store Store
	bus   *Bus
}

func NewPublisher(store Store, bus *Bus) *Publisher {
	return &Publisher{store: store, bus: bus}
}

// Publish appends one event and, on success, queues it for live fan-out.
// The append error is the caller's problem; fan-out never fails the call.
func (p *Publisher) Publish(ctx context.Context, ev domain.Event) (domain.Event, error) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if err := p.store.Append(ctx, &ev); err != nil {
		return ev, fmt.Errorf("append event %s: %w", ev.Type, err)
	}
	p.bus.Broadcast(ev)
	return ev, nil
}

// New builds an event value ready for appending.
func New(typ domain.EventType, entityType, entityID string, payload map[string]interface{}) domain.Event {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return domain.Event{
		ID:         uuid.New().String(),
		Type:       typ,
		EntityType: entityType,
		EntityID:   entityID,
		Payload:    payload,
	}
}

// WithActor attaches the optional actor attribution to an event value.
func WithActor(ev domain.Event, actorID string) domain.Event {
	if actorID != "" {
		ev.ActorUserID = &actorID
	}
	return ev
}
