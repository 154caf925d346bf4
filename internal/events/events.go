package events

import (
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/copyfx/mirror/internal/domain"
)

// Type is the wire name of an event kind.
type Type string

const (
	TypeOpen         Type = "OPEN"
	TypeClose        Type = "CLOSE"
	TypeModify       Type = "MODIFY"
	TypePendingOpen  Type = "PENDING_OPEN"
	TypePendingClose Type = "PENDING_CLOSE"
)

// Event is a single observed change on the source venue. Events are
// immutable value objects; they hold no reference back to the snapshot.
type Event interface {
	Type() Type
	Ticket() int64
	// Payload renders the flat key-value wire form consumed by the bridge.
	Payload() map[string]string
}

// PositionOpened announces a position seen for the first time.
type PositionOpened struct {
	Position domain.Position
	Meta     *domain.SymbolMeta // nil when the meta lookup failed
}

func (e PositionOpened) Type() Type    { return TypeOpen }
func (e PositionOpened) Ticket() int64 { return e.Position.Ticket }

func (e PositionOpened) Payload() map[string]string {
	p := base(TypeOpen, e.Position.Ticket, e.Position.Symbol, e.Position.Magic)
	p["side"] = string(e.Position.Side)
	p["volume"] = num(e.Position.Volume)
	p["price"] = num(e.Position.OpenPrice)
	p["sl"] = num(e.Position.StopLoss)
	p["tp"] = num(e.Position.TakeProfit)
	if e.Meta != nil {
		p["contract_size"] = num(e.Meta.ContractSize)
		p["vol_min"] = num(e.Meta.VolumeMin)
		p["vol_max"] = num(e.Meta.VolumeMax)
		p["vol_step"] = num(e.Meta.VolumeStep)
	}
	return p
}

// PositionModified announces a stop-loss/take-profit change.
type PositionModified struct {
	TicketID   int64
	Symbol     string
	Magic      int
	StopLoss   float64
	TakeProfit float64
}

func (e PositionModified) Type() Type    { return TypeModify }
func (e PositionModified) Ticket() int64 { return e.TicketID }

func (e PositionModified) Payload() map[string]string {
	p := base(TypeModify, e.TicketID, e.Symbol, e.Magic)
	p["sl"] = num(e.StopLoss)
	p["tp"] = num(e.TakeProfit)
	return p
}

// PositionVolumeReduced announces a partial close. Volume carries the closed
// portion (the delta), which is the quantity the receiving side acts on for
// proportional closes; Remaining is informational.
type PositionVolumeReduced struct {
	TicketID  int64
	Symbol    string
	Magic     int
	Reduced   float64
	Remaining float64
}

func (e PositionVolumeReduced) Type() Type    { return TypeClose }
func (e PositionVolumeReduced) Ticket() int64 { return e.TicketID }

func (e PositionVolumeReduced) Payload() map[string]string {
	p := base(TypeClose, e.TicketID, e.Symbol, e.Magic)
	p["volume"] = num(e.Reduced)
	p["remaining"] = num(e.Remaining)
	return p
}

// PositionClosed announces a full close, carrying the last stored volume
// (the venue no longer has the record).
type PositionClosed struct {
	TicketID int64
	Symbol   string
	Magic    int
	Volume   float64
}

func (e PositionClosed) Type() Type    { return TypeClose }
func (e PositionClosed) Ticket() int64 { return e.TicketID }

func (e PositionClosed) Payload() map[string]string {
	p := base(TypeClose, e.TicketID, e.Symbol, e.Magic)
	p["volume"] = num(e.Volume)
	return p
}

// PendingOrderOpened announces a pending order seen for the first time.
type PendingOrderOpened struct {
	Order domain.PendingOrder
}

func (e PendingOrderOpened) Type() Type    { return TypePendingOpen }
func (e PendingOrderOpened) Ticket() int64 { return e.Order.Ticket }

func (e PendingOrderOpened) Payload() map[string]string {
	p := base(TypePendingOpen, e.Order.Ticket, e.Order.Symbol, e.Order.Magic)
	p["side"] = string(e.Order.Side)
	p["pending_type"] = string(e.Order.Kind)
	p["volume"] = num(e.Order.Volume)
	p["sl"] = num(e.Order.StopLoss)
	p["tp"] = num(e.Order.TakeProfit)
	switch e.Order.Kind {
	case domain.OrderKindStopLimit:
		p["limit_price"] = num(e.Order.Price)
		p["stop_price"] = num(e.Order.StopPrice)
	case domain.OrderKindStop:
		p["stop_price"] = num(e.Order.Price)
	default:
		p["limit_price"] = num(e.Order.Price)
	}
	if e.Order.Expiration != nil {
		p["expiration_ms"] = strconv.FormatInt(e.Order.Expiration.UnixMilli(), 10)
	}
	return p
}

// PendingOrderClosed announces a pending-order removal. Symbol and Magic are
// best known: empty/zero when the removal was seen only on the notification
// path without full order detail.
type PendingOrderClosed struct {
	TicketID int64
	Symbol   string
	Magic    int
}

func (e PendingOrderClosed) Type() Type    { return TypePendingClose }
func (e PendingOrderClosed) Ticket() int64 { return e.TicketID }

func (e PendingOrderClosed) Payload() map[string]string {
	return base(TypePendingClose, e.TicketID, e.Symbol, e.Magic)
}

func base(t Type, ticket int64, symbol string, magic int) map[string]string {
	p := map[string]string{
		"event_type": string(t),
		"ticket":     strconv.FormatInt(ticket, 10),
		"symbol":     symbol,
	}
	if magic != 0 {
		p["magic"] = strconv.Itoa(magic)
	}
	return p
}

// num renders a float without binary artifacts (0.6, never 0.5999999...).
func num(v float64) string {
	return decimal.NewFromFloat(v).String()
}
