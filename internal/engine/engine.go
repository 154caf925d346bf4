package engine

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/copyfx/mirror/internal/common"
	"github.com/copyfx/mirror/internal/dedup"
	"github.com/copyfx/mirror/internal/domain"
	"github.com/copyfx/mirror/internal/events"
	"github.com/copyfx/mirror/internal/metrics"
	"github.com/copyfx/mirror/internal/snapshot"
	"github.com/copyfx/mirror/pkg/logger"
	"github.com/copyfx/mirror/pkg/sigchan"
)

// volEps guards volume comparisons against float noise from decoded JSON.
const volEps = 1e-8

// Accessor reads live state from the source venue. Implementations must be
// safe for calls from the single reconciliation goroutine.
type Accessor interface {
	ListPositions(ctx context.Context, magic int) ([]domain.Position, error)
	ListPendingOrders(ctx context.Context, magic int) ([]domain.PendingOrder, error)
	// LookupPosition reads one position by ticket; ErrNotFound when absent.
	LookupPosition(ctx context.Context, ticket int64) (domain.Position, error)
	SymbolMeta(ctx context.Context, symbol string) (domain.SymbolMeta, error)
}

// Deliverer forwards one event to the remote bridge.
type Deliverer interface {
	Deliver(ctx context.Context, ev events.Event) error
}

// Recorder is an optional audit sink for emitted events.
type Recorder interface {
	Record(ev events.Event, deliverErr error)
}

// Config tunes the reconciliation loop.
type Config struct {
	// Magic filters positions/orders by grouping tag; 0 mirrors everything.
	Magic int
	// PollInterval is the fixed tick between reconciliation passes.
	PollInterval time.Duration
	// Retention is the dedup window for pending-order closes.
	Retention time.Duration
	// NotifyDebounce throttles notification-triggered passes; the next tick
	// still catches anything a throttled trigger would have found.
	NotifyDebounce time.Duration
	// DeliveryTimeout bounds a single delivery attempt.
	DeliveryTimeout time.Duration
	// SyncDelivery delivers inline instead of through the outbox goroutine.
	// Used by tests; production keeps delivery off the pass path.
	SyncDelivery bool
}

func (c *Config) defaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.NotifyDebounce <= 0 {
		c.NotifyDebounce = 100 * time.Millisecond
	}
	if c.DeliveryTimeout <= 0 {
		c.DeliveryTimeout = 10 * time.Second
	}
}

// Engine owns the snapshot store and dedup ledger, and is the only writer of
// both. A reconciliation pass runs to completion under passMu; the tick and
// the notification trigger share that one pass, so the two detection paths
// can never interleave.
type Engine struct {
	cfg    Config
	venue  Accessor
	out    Deliverer
	rec    Recorder
	store  *snapshot.Store
	ledger *dedup.Ledger

	passMu   sync.Mutex
	notify   *sigchan.Chan
	throttle *common.Debouncer
	outbox   chan events.Event
	now      func() time.Time
}

func New(cfg Config, venue Accessor, out Deliverer) *Engine {
	cfg.defaults()
	return &Engine{
		cfg:      cfg,
		venue:    venue,
		out:      out,
		store:    snapshot.New(),
		ledger:   dedup.NewLedger(cfg.Retention),
		notify:   sigchan.New(1),
		throttle: common.NewDebouncer(cfg.NotifyDebounce),
		outbox:   make(chan events.Event, 256),
		now:      time.Now,
	}
}

// SetRecorder attaches an audit sink. Must be called before Run.
func (e *Engine) SetRecorder(r Recorder) { e.rec = r }

// Prime rebuilds the snapshot from venue truth without emitting events.
// Called once on startup: everything already open at the venue is assumed
// known to the remote side, so only changes from here on are mirrored.
func (e *Engine) Prime(ctx context.Context) error {
	e.passMu.Lock()
	defer e.passMu.Unlock()

	positions, err := e.venue.ListPositions(ctx, e.cfg.Magic)
	if err != nil {
		return err
	}
	orders, err := e.venue.ListPendingOrders(ctx, e.cfg.Magic)
	if err != nil {
		return err
	}

	posSet := make(map[int64]domain.Position, len(positions))
	for _, p := range positions {
		posSet[p.Ticket] = p
	}
	ordSet := make(map[int64]domain.PendingOrder, len(orders))
	for _, o := range orders {
		ordSet[o.Ticket] = o
		e.ledger.MarkOpenSent(o.Ticket)
	}
	e.store.ReplacePositions(posSet)
	e.store.ReplacePendingOrders(ordSet)

	logger.Infof("snapshot primed: %d positions, %d pending orders", len(posSet), len(ordSet))
	return nil
}

// Run drives the loop: a fixed-interval tick and the notification trigger
// both feed the same mutually-exclusive pass. Blocks until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	if !e.cfg.SyncDelivery {
		go e.dispatchLoop(ctx)
	}

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	logger.Infof("reconciliation loop started (interval=%s, retention=%s, magic=%d)",
		e.cfg.PollInterval, e.ledger.Retention(), e.cfg.Magic)

	for {
		select {
		case <-ctx.Done():
			logger.Info("reconciliation loop stopped")
			return
		case <-ticker.C:
			e.ReconcileOnce(ctx)
		case <-e.notify.C():
			metrics.NotifyTriggers.Add(1)
			if ready, _ := e.throttle.Ready(e.now()); !ready {
				// Too soon after the last notify pass; the tick covers it.
				continue
			}
			e.throttle.Mark(e.now())
			e.ReconcileOnce(ctx)
		}
	}
}

// Notify schedules a reconciliation pass. Safe from any goroutine; pending
// triggers coalesce.
func (e *Engine) Notify() {
	e.notify.Emit()
}

// ReconcileOnce runs one full pass: positions, then pending orders.
func (e *Engine) ReconcileOnce(ctx context.Context) {
	e.passMu.Lock()
	defer e.passMu.Unlock()

	metrics.ReconcilePasses.Add(1)
	e.reconcilePositions(ctx)
	e.reconcilePendingOrders(ctx)
}

// reconcilePositions diffs the live position set against the snapshot.
// A read failure of the batch listing aborts only this half of the pass and
// keeps the previous snapshot, so nothing is spuriously reported closed.
func (e *Engine) reconcilePositions(ctx context.Context) {
	listed, err := e.venue.ListPositions(ctx, e.cfg.Magic)
	if err != nil {
		metrics.ReconcileErrors.Add(1)
		logger.Warnf("list positions failed, keeping previous snapshot: %v", err)
		return
	}

	current := make(map[int64]domain.Position, len(listed))
	for _, p := range listed {
		current[p.Ticket] = p
	}
	previous := e.store.Positions()

	for ticket, cur := range current {
		prev, known := previous[ticket]
		if !known {
			// New ticket: re-read by id so the emitted detail cannot be a
			// stale batch row, and attach symbol meta for the receiver.
			fresh, err := e.venue.LookupPosition(ctx, ticket)
			if err != nil {
				metrics.LookupSkips.Add(1)
				logger.Warnf("position %d lookup failed, deferring to next pass: %v", ticket, err)
				delete(current, ticket) // still unseen next pass
				continue
			}
			current[ticket] = fresh
			e.emit(ctx, events.PositionOpened{Position: fresh, Meta: e.symbolMeta(ctx, fresh.Symbol)})
			continue
		}

		// Both checks evaluate against the pre-pass stored record; they are
		// independent and may both fire in one pass.
		if cur.Volume < prev.Volume-volEps {
			e.emit(ctx, events.PositionVolumeReduced{
				TicketID:  ticket,
				Symbol:    prev.Symbol,
				Magic:     prev.Magic,
				Reduced:   sub(prev.Volume, cur.Volume),
				Remaining: cur.Volume,
			})
		}
		if levelChanged(prev.StopLoss, cur.StopLoss) || levelChanged(prev.TakeProfit, cur.TakeProfit) {
			e.emit(ctx, events.PositionModified{
				TicketID:   ticket,
				Symbol:     prev.Symbol,
				Magic:      prev.Magic,
				StopLoss:   cur.StopLoss,
				TakeProfit: cur.TakeProfit,
			})
		}
	}

	for ticket, prev := range previous {
		if _, still := current[ticket]; still {
			continue
		}
		// Gone from the venue: last stored state is authoritative.
		e.emit(ctx, events.PositionClosed{
			TicketID: ticket,
			Symbol:   prev.Symbol,
			Magic:    prev.Magic,
			Volume:   prev.Volume,
		})
	}

	e.store.ReplacePositions(current)
}

// reconcilePendingOrders is the poll half of pending-order detection; the
// dedup ledger keeps it consistent with the notification path.
func (e *Engine) reconcilePendingOrders(ctx context.Context) {
	listed, err := e.venue.ListPendingOrders(ctx, e.cfg.Magic)
	if err != nil {
		metrics.ReconcileErrors.Add(1)
		logger.Warnf("list pending orders failed, keeping previous snapshot: %v", err)
		return
	}

	current := make(map[int64]domain.PendingOrder, len(listed))
	for _, o := range listed {
		current[o.Ticket] = o
	}

	for ticket, ord := range current {
		if e.ledger.WasOpenSent(ticket) {
			continue
		}
		e.emit(ctx, events.PendingOrderOpened{Order: ord})
		e.ledger.MarkOpenSent(ticket)
	}

	now := e.now()
	for ticket, prev := range e.store.PendingOrders() {
		if _, still := current[ticket]; still {
			continue
		}
		if e.ledger.WasRecentlyClosed(ticket, now) {
			metrics.DedupSuppressed.Add(1)
			continue
		}
		// Removal may mean canceled, expired, or filled into a position;
		// the pending layer cannot tell them apart and closes in all cases.
		e.emit(ctx, events.PendingOrderClosed{
			TicketID: ticket,
			Symbol:   prev.Symbol,
			Magic:    prev.Magic,
		})
		e.ledger.MarkClosed(ticket, now)
	}

	e.store.ReplacePendingOrders(current)
}

// HandleOrderTerminal is the fast detection path, fed by the venue's event
// stream. Canceled/expired close immediately; a fill becomes a position and
// must not produce a pending close here. Every notification also schedules a
// pass so position state catches up promptly.
func (e *Engine) HandleOrderTerminal(ctx context.Context, note domain.OrderNotification) {
	if note.State.ClosesOrder() {
		e.passMu.Lock()
		now := e.now()
		if e.ledger.WasRecentlyClosed(note.Ticket, now) {
			metrics.DedupSuppressed.Add(1)
		} else {
			ev := events.PendingOrderClosed{
				TicketID: note.Ticket,
				Symbol:   note.Symbol,
				Magic:    note.Magic,
			}
			// Snapshot detail beats notification detail when we have it.
			if prev, ok := e.store.PendingOrder(note.Ticket); ok {
				ev.Symbol = prev.Symbol
				ev.Magic = prev.Magic
			}
			e.emit(ctx, ev)
			e.ledger.MarkClosed(note.Ticket, now)
		}
		e.passMu.Unlock()
	}
	e.Notify()
}

// emit hands an event to delivery. Delivery is fire-and-forget: failures are
// logged and counted, never retried, and never roll back the snapshot or
// ledger — the change has already truthfully happened at the venue.
func (e *Engine) emit(ctx context.Context, ev events.Event) {
	metrics.EventsEmitted.Add(string(ev.Type()), 1)
	logger.WithField("ticket", ev.Ticket()).Infof("emit %s", ev.Type())

	if e.cfg.SyncDelivery {
		e.deliver(ctx, ev)
		return
	}
	select {
	case e.outbox <- ev:
	default:
		metrics.DeliveryDropped.Add(1)
		logger.Errorf("outbox full, dropping %s for ticket %d", ev.Type(), ev.Ticket())
	}
}

// dispatchLoop drains the outbox on its own goroutine so a slow bridge never
// delays the next reconciliation tick. In-pass event order is preserved.
func (e *Engine) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-e.outbox:
			e.deliver(ctx, ev)
		}
	}
}

func (e *Engine) deliver(ctx context.Context, ev events.Event) {
	dctx, cancel := context.WithTimeout(ctx, e.cfg.DeliveryTimeout)
	err := e.out.Deliver(dctx, ev)
	cancel()
	if err != nil {
		metrics.DeliveryFailures.Add(1)
		logger.Errorf("deliver %s ticket=%d failed (dropped): %v", ev.Type(), ev.Ticket(), err)
	}
	if e.rec != nil {
		e.rec.Record(ev, err)
	}
}

// StateView copies the current snapshot under the pass lock, for the ops
// surface and diagnostics.
func (e *Engine) StateView() (map[int64]domain.Position, map[int64]domain.PendingOrder) {
	e.passMu.Lock()
	defer e.passMu.Unlock()
	return e.store.Positions(), e.store.PendingOrders()
}

// symbolMeta is best-effort; an open event without meta is still useful.
func (e *Engine) symbolMeta(ctx context.Context, symbol string) *domain.SymbolMeta {
	meta, err := e.venue.SymbolMeta(ctx, symbol)
	if err != nil {
		logger.Debugf("symbol meta for %s unavailable: %v", symbol, err)
		return nil
	}
	return &meta
}

func levelChanged(a, b float64) bool {
	return math.Abs(a-b) > volEps
}

// sub computes a-b without picking up float noise (1.0-0.4 is 0.6, not
// 0.6000000000000001 on the wire).
func sub(a, b float64) float64 {
	d := decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b))
	f, _ := d.Float64()
	return f
}
