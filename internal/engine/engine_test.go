package engine

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyfx/mirror/internal/domain"
	"github.com/copyfx/mirror/internal/events"
)

type fakeVenue struct {
	positions []domain.Position
	orders    []domain.PendingOrder

	listPosErr error
	listOrdErr error
	lookupErr  map[int64]error
	metaErr    error

	lookupCalls int
}

func (f *fakeVenue) ListPositions(_ context.Context, _ int) ([]domain.Position, error) {
	if f.listPosErr != nil {
		return nil, f.listPosErr
	}
	return f.positions, nil
}

func (f *fakeVenue) ListPendingOrders(_ context.Context, _ int) ([]domain.PendingOrder, error) {
	if f.listOrdErr != nil {
		return nil, f.listOrdErr
	}
	return f.orders, nil
}

func (f *fakeVenue) LookupPosition(_ context.Context, ticket int64) (domain.Position, error) {
	f.lookupCalls++
	if err := f.lookupErr[ticket]; err != nil {
		return domain.Position{}, err
	}
	for _, p := range f.positions {
		if p.Ticket == ticket {
			return p, nil
		}
	}
	return domain.Position{}, errors.New("not found")
}

func (f *fakeVenue) SymbolMeta(_ context.Context, symbol string) (domain.SymbolMeta, error) {
	if f.metaErr != nil {
		return domain.SymbolMeta{}, f.metaErr
	}
	return domain.SymbolMeta{Symbol: symbol, ContractSize: 100000, VolumeMin: 0.01, VolumeMax: 100, VolumeStep: 0.01}, nil
}

type collector struct {
	delivered []events.Event
	failWith  error
}

func (c *collector) Deliver(_ context.Context, ev events.Event) error {
	c.delivered = append(c.delivered, ev)
	return c.failWith
}

func newTestEngine(v *fakeVenue, out *collector) *Engine {
	e := New(Config{SyncDelivery: true, Retention: 3 * time.Second}, v, out)
	return e
}

func pos(ticket int64, symbol string, volume, sl, tp float64) domain.Position {
	return domain.Position{
		Ticket: ticket, Symbol: symbol, Side: domain.SideBuy,
		Volume: volume, OpenPrice: 1.1000, StopLoss: sl, TakeProfit: tp,
	}
}

func ord(ticket int64, symbol string) domain.PendingOrder {
	return domain.PendingOrder{
		Ticket: ticket, Symbol: symbol, Kind: domain.OrderKindLimit,
		Side: domain.SideBuy, Volume: 0.1, Price: 1.0950,
	}
}

func eventTypes(delivered []events.Event) []events.Type {
	out := make([]events.Type, 0, len(delivered))
	for _, ev := range delivered {
		out = append(out, ev.Type())
	}
	return out
}

func TestPrimeEmitsNothing(t *testing.T) {
	v := &fakeVenue{
		positions: []domain.Position{pos(1, "EURUSD", 1.0, 0, 0)},
		orders:    []domain.PendingOrder{ord(10, "GBPUSD")},
	}
	out := &collector{}
	e := newTestEngine(v, out)

	require.NoError(t, e.Prime(context.Background()))
	assert.Empty(t, out.delivered)

	// Primed state is not re-announced by the next pass.
	e.ReconcileOnce(context.Background())
	assert.Empty(t, out.delivered)
}

func TestNewPositionEmitsOpenOnce(t *testing.T) {
	v := &fakeVenue{positions: []domain.Position{pos(42, "EURUSD", 1.0, 1.09, 1.12)}}
	out := &collector{}
	e := newTestEngine(v, out)

	e.ReconcileOnce(context.Background())
	require.Len(t, out.delivered, 1)
	ev := out.delivered[0]
	assert.Equal(t, events.TypeOpen, ev.Type())
	assert.Equal(t, int64(42), ev.Ticket())

	payload := ev.Payload()
	assert.Equal(t, "EURUSD", payload["symbol"])
	assert.Equal(t, "1", payload["volume"])
	assert.Equal(t, "buy", payload["side"])
	assert.Equal(t, "100000", payload["contract_size"])

	// Second pass with no change: nothing new.
	e.ReconcileOnce(context.Background())
	assert.Len(t, out.delivered, 1)
}

func TestOpenLookupFailureDefersTicket(t *testing.T) {
	v := &fakeVenue{
		positions: []domain.Position{pos(7, "EURUSD", 0.5, 0, 0)},
		lookupErr: map[int64]error{7: errors.New("gateway busy")},
	}
	out := &collector{}
	e := newTestEngine(v, out)

	e.ReconcileOnce(context.Background())
	assert.Empty(t, out.delivered, "failed lookup must not emit")

	// Gateway recovers; the ticket is still treated as new.
	v.lookupErr = nil
	e.ReconcileOnce(context.Background())
	require.Len(t, out.delivered, 1)
	assert.Equal(t, events.TypeOpen, out.delivered[0].Type())
}

func TestVolumeReduceCarriesDelta(t *testing.T) {
	v := &fakeVenue{positions: []domain.Position{pos(5, "EURUSD", 1.0, 0, 0)}}
	out := &collector{}
	e := newTestEngine(v, out)
	e.ReconcileOnce(context.Background()) // open
	out.delivered = nil

	v.positions = []domain.Position{pos(5, "EURUSD", 0.4, 0, 0)}
	e.ReconcileOnce(context.Background())

	require.Len(t, out.delivered, 1)
	ev := out.delivered[0]
	assert.Equal(t, events.TypeClose, ev.Type())
	payload := ev.Payload()
	assert.Equal(t, "0.6", payload["volume"], "close volume is the reduced portion")
	assert.Equal(t, "0.4", payload["remaining"])

	// The position survives: no full close alongside the reduce.
	assert.Equal(t, []events.Type{events.TypeClose}, eventTypes(out.delivered))
}

func TestReduceAndModifySamePass(t *testing.T) {
	v := &fakeVenue{positions: []domain.Position{pos(5, "EURUSD", 1.0, 1.09, 1.12)}}
	out := &collector{}
	e := newTestEngine(v, out)
	e.ReconcileOnce(context.Background())
	out.delivered = nil

	v.positions = []domain.Position{pos(5, "EURUSD", 0.7, 1.095, 1.12)}
	e.ReconcileOnce(context.Background())

	require.Len(t, out.delivered, 2)
	assert.Equal(t, []events.Type{events.TypeClose, events.TypeModify}, eventTypes(out.delivered))
	assert.Equal(t, "0.3", out.delivered[0].Payload()["volume"])
	assert.Equal(t, "1.095", out.delivered[1].Payload()["sl"])
}

func TestCloseCarriesLastStoredVolume(t *testing.T) {
	v := &fakeVenue{positions: []domain.Position{pos(9, "GBPUSD", 1.0, 0, 0)}}
	out := &collector{}
	e := newTestEngine(v, out)
	e.ReconcileOnce(context.Background())

	// Reduce first so the stored volume is no longer the opening one.
	v.positions = []domain.Position{pos(9, "GBPUSD", 0.4, 0, 0)}
	e.ReconcileOnce(context.Background())
	out.delivered = nil

	v.positions = nil
	e.ReconcileOnce(context.Background())

	require.Len(t, out.delivered, 1)
	ev := out.delivered[0]
	assert.Equal(t, events.TypeClose, ev.Type())
	assert.Equal(t, "0.4", ev.Payload()["volume"], "full close reports the last stored volume")
	_, hasRemaining := ev.Payload()["remaining"]
	assert.False(t, hasRemaining)
}

func TestListFailureKeepsSnapshot(t *testing.T) {
	v := &fakeVenue{positions: []domain.Position{pos(3, "EURUSD", 1.0, 0, 0)}}
	out := &collector{}
	e := newTestEngine(v, out)
	e.ReconcileOnce(context.Background())
	out.delivered = nil

	v.listPosErr = errors.New("timeout")
	e.ReconcileOnce(context.Background())
	assert.Empty(t, out.delivered, "a failed listing must not fabricate closes")

	v.listPosErr = nil
	e.ReconcileOnce(context.Background())
	assert.Empty(t, out.delivered)
}

func TestPendingOpenOncePerLifetime(t *testing.T) {
	v := &fakeVenue{orders: []domain.PendingOrder{ord(42, "EURUSD")}}
	out := &collector{}
	e := newTestEngine(v, out)

	e.ReconcileOnce(context.Background())
	require.Len(t, out.delivered, 1)
	assert.Equal(t, events.TypePendingOpen, out.delivered[0].Type())
	out.delivered = nil

	// Order vanishes and the same ticket reappears much later: the open was
	// already announced once and stays announced.
	base := time.Now()
	e.now = func() time.Time { return base }
	v.orders = nil
	e.ReconcileOnce(context.Background())
	require.Equal(t, []events.Type{events.TypePendingClose}, eventTypes(out.delivered))
	out.delivered = nil

	e.now = func() time.Time { return base.Add(time.Minute) }
	v.orders = []domain.PendingOrder{ord(42, "EURUSD")}
	e.ReconcileOnce(context.Background())
	assert.Empty(t, out.delivered, "ticket 42 open already sent in this process lifetime")
}

func TestNotificationThenPollClosesOnce(t *testing.T) {
	v := &fakeVenue{orders: []domain.PendingOrder{ord(42, "EURUSD")}}
	out := &collector{}
	e := newTestEngine(v, out)
	e.ReconcileOnce(context.Background())
	out.delivered = nil

	base := time.Now()
	e.now = func() time.Time { return base }

	// Fast path reports the cancel first.
	e.HandleOrderTerminal(context.Background(), domain.OrderNotification{
		Ticket: 42, State: domain.TerminalCanceled,
	})
	require.Len(t, out.delivered, 1)
	assert.Equal(t, events.TypePendingClose, out.delivered[0].Type())
	assert.Equal(t, "EURUSD", out.delivered[0].Payload()["symbol"], "snapshot detail preferred over notification detail")

	// Poll sees the removal moments later, inside the window: suppressed.
	e.now = func() time.Time { return base.Add(time.Second) }
	v.orders = nil
	e.ReconcileOnce(context.Background())
	assert.Len(t, out.delivered, 1)
}

func TestPollThenNotificationClosesOnce(t *testing.T) {
	v := &fakeVenue{orders: []domain.PendingOrder{ord(42, "EURUSD")}}
	out := &collector{}
	e := newTestEngine(v, out)
	e.ReconcileOnce(context.Background())
	out.delivered = nil

	base := time.Now()
	e.now = func() time.Time { return base }

	v.orders = nil
	e.ReconcileOnce(context.Background())
	require.Len(t, out.delivered, 1)

	e.now = func() time.Time { return base.Add(2 * time.Second) }
	e.HandleOrderTerminal(context.Background(), domain.OrderNotification{
		Ticket: 42, State: domain.TerminalCanceled,
	})
	assert.Len(t, out.delivered, 1, "late notification inside the window is suppressed")
}

func TestFilledNotificationEmitsNoPendingClose(t *testing.T) {
	v := &fakeVenue{orders: []domain.PendingOrder{ord(42, "EURUSD")}}
	out := &collector{}
	e := newTestEngine(v, out)
	e.ReconcileOnce(context.Background())
	out.delivered = nil

	e.HandleOrderTerminal(context.Background(), domain.OrderNotification{
		Ticket: 42, State: domain.TerminalFilled,
	})
	assert.Empty(t, out.delivered, "a fill becomes a position, not a pending close")

	// The poll still announces the removal: the pending side of a fill must
	// close on the receiver even though the notification did not.
	base := time.Now()
	e.now = func() time.Time { return base }
	v.orders = nil
	v.positions = []domain.Position{pos(43, "EURUSD", 0.1, 0, 0)}
	e.ReconcileOnce(context.Background())
	assert.ElementsMatch(t, []events.Type{events.TypeOpen, events.TypePendingClose}, eventTypes(out.delivered))
}

func TestDeliveryFailureDoesNotRollBack(t *testing.T) {
	v := &fakeVenue{positions: []domain.Position{pos(8, "EURUSD", 1.0, 0, 0)}}
	out := &collector{failWith: errors.New("bridge down")}
	e := newTestEngine(v, out)

	e.ReconcileOnce(context.Background())
	require.Len(t, out.delivered, 1)

	// The snapshot moved forward despite the failure: no re-emit.
	e.ReconcileOnce(context.Background())
	assert.Len(t, out.delivered, 1)
}

func TestRecorderSeesDeliveryOutcome(t *testing.T) {
	v := &fakeVenue{positions: []domain.Position{pos(8, "EURUSD", 1.0, 0, 0)}}
	out := &collector{failWith: errors.New("bridge down")}
	e := newTestEngine(v, out)

	var recorded []error
	e.SetRecorder(recorderFunc(func(_ events.Event, err error) {
		recorded = append(recorded, err)
	}))

	e.ReconcileOnce(context.Background())
	require.Len(t, recorded, 1)
	assert.Error(t, recorded[0])
}

type recorderFunc func(events.Event, error)

func (f recorderFunc) Record(ev events.Event, err error) { f(ev, err) }

func TestMetaFailureStillOpens(t *testing.T) {
	v := &fakeVenue{
		positions: []domain.Position{pos(11, "EURUSD", 1.0, 0, 0)},
		metaErr:   errors.New("no such symbol"),
	}
	out := &collector{}
	e := newTestEngine(v, out)

	e.ReconcileOnce(context.Background())
	require.Len(t, out.delivered, 1)
	payload := out.delivered[0].Payload()
	assert.Equal(t, events.TypeOpen, out.delivered[0].Type())
	_, hasMeta := payload["contract_size"]
	assert.False(t, hasMeta)
}
