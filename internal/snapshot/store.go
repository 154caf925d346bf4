package snapshot

import "github.com/copyfx/mirror/internal/domain"

// Store holds the last-observed shape of the venue: open positions and
// pending orders keyed by ticket. It is a cache of venue truth, rebuilt from
// the venue on startup, never persisted.
//
// Store is not goroutine-safe. The reconciliation engine is its only owner
// and serializes every access inside the pass lock.
type Store struct {
	positions map[int64]domain.Position
	pending   map[int64]domain.PendingOrder
}

func New() *Store {
	return &Store{
		positions: make(map[int64]domain.Position),
		pending:   make(map[int64]domain.PendingOrder),
	}
}

// Positions returns a copy of the stored position set.
func (s *Store) Positions() map[int64]domain.Position {
	out := make(map[int64]domain.Position, len(s.positions))
	for k, v := range s.positions {
		out[k] = v
	}
	return out
}

// PendingOrders returns a copy of the stored pending-order set.
func (s *Store) PendingOrders() map[int64]domain.PendingOrder {
	out := make(map[int64]domain.PendingOrder, len(s.pending))
	for k, v := range s.pending {
		out[k] = v
	}
	return out
}

// Position looks up a single stored position.
func (s *Store) Position(ticket int64) (domain.Position, bool) {
	p, ok := s.positions[ticket]
	return p, ok
}

// PendingOrder looks up a single stored pending order.
func (s *Store) PendingOrder(ticket int64) (domain.PendingOrder, bool) {
	o, ok := s.pending[ticket]
	return o, ok
}

// ReplacePositions swaps in a freshly observed position set.
func (s *Store) ReplacePositions(current map[int64]domain.Position) {
	next := make(map[int64]domain.Position, len(current))
	for k, v := range current {
		next[k] = v
	}
	s.positions = next
}

// ReplacePendingOrders swaps in a freshly observed pending-order set.
func (s *Store) ReplacePendingOrders(current map[int64]domain.PendingOrder) {
	next := make(map[int64]domain.PendingOrder, len(current))
	for k, v := range current {
		next[k] = v
	}
	s.pending = next
}
