package dedup

import (
	"sync"
	"time"
)

// DefaultRetention is the window during which a second detection of the same
// pending-order removal is suppressed.
const DefaultRetention = 3 * time.Second

// Ledger remembers which pending-order tickets have already been announced,
// so that the two detection paths (terminal notification and poll) never
// double-report the same transition.
//
//   - Open announcements are remembered for the life of the process: an
//     order is opened at most once.
//   - Close announcements are remembered for a fixed retention window,
//     measured from MarkClosed. Expired entries are evicted lazily on
//     lookup/insert; there is no sweep goroutine.
//
// Methods take an explicit now so callers control the clock.
type Ledger struct {
	mu        sync.Mutex
	retention time.Duration
	openSent  map[int64]struct{}
	closedAt  map[int64]time.Time
}

func NewLedger(retention time.Duration) *Ledger {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Ledger{
		retention: retention,
		openSent:  make(map[int64]struct{}),
		closedAt:  make(map[int64]time.Time),
	}
}

// WasOpenSent reports whether an open event was already emitted for ticket.
func (l *Ledger) WasOpenSent(ticket int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.openSent[ticket]
	return ok
}

// MarkOpenSent records that an open event was emitted for ticket.
func (l *Ledger) MarkOpenSent(ticket int64) {
	l.mu.Lock()
	l.openSent[ticket] = struct{}{}
	l.mu.Unlock()
}

// WasRecentlyClosed reports whether a close was announced for ticket within
// the retention window ending at now.
func (l *Ledger) WasRecentlyClosed(ticket int64, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	at, ok := l.closedAt[ticket]
	if !ok {
		return false
	}
	if now.Sub(at) >= l.retention {
		delete(l.closedAt, ticket)
		return false
	}
	return true
}

// MarkClosed records a close announcement for ticket at now, and takes the
// chance to evict entries already outside the window.
func (l *Ledger) MarkClosed(ticket int64, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for t, at := range l.closedAt {
		if now.Sub(at) >= l.retention {
			delete(l.closedAt, t)
		}
	}
	l.closedAt[ticket] = now
}

// Retention returns the configured close-suppression window.
func (l *Ledger) Retention() time.Duration {
	return l.retention
}
