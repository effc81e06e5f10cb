package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process StatusStore and OfferStore. A single mutex
// makes AcceptOffer a compare-and-swap, matching the Postgres row-lock semantics.
type MemoryStore struct {
	mu       sync.Mutex
	statuses map[EntityRef]Status
	offers   map[string]Offer
	clock    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		statuses: map[EntityRef]Status{},
		offers:   map[string]Offer{},
		clock:    func() time.Time { return time.Now().UTC() },
	}
}

// Put seeds an entity with a status.
func (m *MemoryStore) Put(t EntityType, id string, s Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[EntityRef{Type: t, ID: id}] = s
}

// Offers returns all offers of an order.
func (m *MemoryStore) Offers(orderID string) []Offer {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Offer
	for _, o := range m.offers {
		if o.OrderID == orderID {
			out = append(out, o)
		}
	}
	return out
}

func (m *MemoryStore) GetCurrentStatus(_ context.Context, t EntityType, id string) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.statuses[EntityRef{Type: t, ID: id}]
	if !ok {
		return "", fmt.Errorf("%w: %s %s", ErrNotFound, t, id)
	}
	return s, nil
}

func (m *MemoryStore) SetStatus(_ context.Context, t EntityType, id string, s Status) error {
	if _, err := tableFor(t); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := EntityRef{Type: t, ID: id}
	if _, ok := m.statuses[key]; !ok {
		return fmt.Errorf("%w: %s %s", ErrNotFound, t, id)
	}
	m.statuses[key] = s
	return nil
}

func (m *MemoryStore) SubmitOffer(_ context.Context, o Offer) (Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := EntityRef{Type: EntityOrder, ID: o.OrderID}
	status, ok := m.statuses[key]
	if !ok {
		return Offer{}, fmt.Errorf("%w: order %s", ErrNotFound, o.OrderID)
	}
	if !OfferOpen(status) {
		return Offer{}, fmt.Errorf("%w: order %s is %s", ErrOfferClosed, o.OrderID, status)
	}
	o.ID = uuid.NewString()
	o.Status = OfferSubmitted
	o.CreatedAt = m.clock()
	m.offers[o.ID] = o
	if status == OrderCreated {
		m.statuses[key] = OrderOfferPending
	}
	return o, nil
}

func (m *MemoryStore) AcceptOffer(_ context.Context, offerID, orderID, actorID string) (Acceptance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := EntityRef{Type: EntityOrder, ID: orderID}
	orderStatus, ok := m.statuses[key]
	if !ok {
		return Acceptance{}, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	o, ok := m.offers[offerID]
	if !ok || o.OrderID != orderID {
		return Acceptance{}, fmt.Errorf("%w: offer %s on order %s", ErrNotFound, offerID, orderID)
	}

	switch o.Status {
	case OfferAccepted:
		if o.AcceptedBy == actorID {
			return Acceptance{Offer: o, OrderStatus: orderStatus, AlreadyAccepted: true}, nil
		}
		return Acceptance{}, fmt.Errorf("%w: offer %s already accepted", ErrConflict, offerID)
	case OfferRejected:
		return Acceptance{}, fmt.Errorf("%w: offer %s was rejected", ErrOfferClosed, offerID)
	}
	if !OfferOpen(orderStatus) {
		return Acceptance{}, fmt.Errorf("%w: order %s is %s", ErrConflict, orderID, orderStatus)
	}
	for _, sibling := range m.offers {
		if sibling.OrderID == orderID && sibling.Status == OfferAccepted {
			return Acceptance{}, fmt.Errorf("%w: order %s already has an accepted offer", ErrConflict, orderID)
		}
	}

	now := m.clock()
	o.Status = OfferAccepted
	o.AcceptedBy = actorID
	o.AcceptedAt = &now
	m.offers[offerID] = o
	m.statuses[key] = OrderDealAccepted
	return Acceptance{Offer: o, OrderStatus: OrderDealAccepted}, nil
}
