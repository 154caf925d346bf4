package domain

import "time"

// OrderKind is the trigger type of a pending order.
type OrderKind string

const (
	OrderKindLimit     OrderKind = "limit"
	OrderKindStop      OrderKind = "stop"
	OrderKindStopLimit OrderKind = "stop_limit"
)

// PendingOrder is an order waiting for its trigger condition on the source
// venue. The engine only tracks creation and removal; in-place modification
// of pending orders is not mirrored.
type PendingOrder struct {
	Ticket     int64
	Symbol     string
	Kind       OrderKind
	Side       Side
	Volume     float64
	Price      float64 // limit price for limit/stop-limit, stop price for stop
	StopPrice  float64 // second trigger, stop-limit only
	StopLoss   float64
	TakeProfit float64
	Expiration *time.Time // nil = GTC
	Magic      int
}

// TerminalState is the final state of an order as reported by the venue's
// notification stream.
type TerminalState string

const (
	TerminalCanceled TerminalState = "canceled"
	TerminalExpired  TerminalState = "expired"
	TerminalFilled   TerminalState = "filled"
	TerminalRejected TerminalState = "rejected"
)

// ClosesOrder reports whether the terminal state should be announced as a
// pending-order close. A fill turns into a position and is announced through
// the position open path instead.
func (s TerminalState) ClosesOrder() bool {
	return s == TerminalCanceled || s == TerminalExpired
}

// OrderNotification is a terminal-state transition delivered by the venue's
// event stream. Detail fields are best-effort: the stream may omit them.
type OrderNotification struct {
	Ticket int64
	Kind   OrderKind
	State  TerminalState
	Symbol string
	Price  float64
	Volume float64
	Magic  int
}
