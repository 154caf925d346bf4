package domain

// Side is the direction of a position or order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Position is a live open trade on the source venue.
// Ticket is venue-assigned and stable for the life of the position.
type Position struct {
	Ticket     int64
	Symbol     string
	Side       Side
	Volume     float64 // lots
	OpenPrice  float64
	StopLoss   float64 // 0 = not set
	TakeProfit float64 // 0 = not set
	Magic      int     // grouping tag used for filtering; 0 = untagged
	Comment    string
}

// SymbolMeta is the venue's trade specification for a symbol.
// Attached to open events so the receiving side can size its own orders.
type SymbolMeta struct {
	Symbol       string
	ContractSize float64
	VolumeMin    float64
	VolumeMax    float64
	VolumeStep   float64
}
