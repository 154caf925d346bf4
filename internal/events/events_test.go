package events

import (
	"testing"
	"time"

	"github.com/copyfx/mirror/internal/domain"
)

func TestOpenPayload(t *testing.T) {
	ev := PositionOpened{
		Position: domain.Position{
			Ticket: 42, Symbol: "EURUSD", Side: domain.SideSell,
			Volume: 0.5, OpenPrice: 1.1, StopLoss: 1.12, TakeProfit: 1.05, Magic: 7,
		},
		Meta: &domain.SymbolMeta{ContractSize: 100000, VolumeMin: 0.01, VolumeMax: 100, VolumeStep: 0.01},
	}
	p := ev.Payload()

	want := map[string]string{
		"event_type":    "OPEN",
		"ticket":        "42",
		"symbol":        "EURUSD",
		"side":          "sell",
		"volume":        "0.5",
		"price":         "1.1",
		"sl":            "1.12",
		"tp":            "1.05",
		"magic":         "7",
		"contract_size": "100000",
		"vol_min":       "0.01",
		"vol_max":       "100",
		"vol_step":      "0.01",
	}
	for k, v := range want {
		if p[k] != v {
			t.Errorf("payload[%q] = %q, want %q", k, p[k], v)
		}
	}
}

func TestMagicOmittedWhenZero(t *testing.T) {
	ev := PositionClosed{TicketID: 1, Symbol: "EURUSD", Volume: 1}
	if _, ok := ev.Payload()["magic"]; ok {
		t.Fatal("zero magic must not appear on the wire")
	}
}

func TestVolumeReducedIsCloseWithDelta(t *testing.T) {
	ev := PositionVolumeReduced{TicketID: 5, Symbol: "EURUSD", Reduced: 0.6, Remaining: 0.4}
	if ev.Type() != TypeClose {
		t.Fatalf("type = %s, want CLOSE", ev.Type())
	}
	p := ev.Payload()
	if p["volume"] != "0.6" {
		t.Errorf("volume = %q, want the reduced portion", p["volume"])
	}
	if p["remaining"] != "0.4" {
		t.Errorf("remaining = %q, want 0.4", p["remaining"])
	}
}

func TestPendingOpenPriceMapping(t *testing.T) {
	limit := PendingOrderOpened{Order: domain.PendingOrder{
		Ticket: 1, Symbol: "EURUSD", Kind: domain.OrderKindLimit, Side: domain.SideBuy, Price: 1.09,
	}}
	p := limit.Payload()
	if p["limit_price"] != "1.09" {
		t.Errorf("limit order limit_price = %q", p["limit_price"])
	}
	if _, ok := p["stop_price"]; ok {
		t.Error("limit order must not carry stop_price")
	}

	stop := PendingOrderOpened{Order: domain.PendingOrder{
		Ticket: 2, Symbol: "EURUSD", Kind: domain.OrderKindStop, Side: domain.SideSell, Price: 1.08,
	}}
	p = stop.Payload()
	if p["stop_price"] != "1.08" {
		t.Errorf("stop order stop_price = %q", p["stop_price"])
	}
	if _, ok := p["limit_price"]; ok {
		t.Error("stop order must not carry limit_price")
	}

	stopLimit := PendingOrderOpened{Order: domain.PendingOrder{
		Ticket: 3, Symbol: "EURUSD", Kind: domain.OrderKindStopLimit, Side: domain.SideBuy,
		Price: 1.085, StopPrice: 1.09,
	}}
	p = stopLimit.Payload()
	if p["limit_price"] != "1.085" || p["stop_price"] != "1.09" {
		t.Errorf("stop-limit prices = %q/%q", p["limit_price"], p["stop_price"])
	}
}

func TestPendingOpenExpiration(t *testing.T) {
	exp := time.UnixMilli(1700000000000).UTC()
	ev := PendingOrderOpened{Order: domain.PendingOrder{
		Ticket: 1, Symbol: "EURUSD", Kind: domain.OrderKindLimit, Expiration: &exp,
	}}
	if got := ev.Payload()["expiration_ms"]; got != "1700000000000" {
		t.Errorf("expiration_ms = %q", got)
	}

	gtc := PendingOrderOpened{Order: domain.PendingOrder{
		Ticket: 2, Symbol: "EURUSD", Kind: domain.OrderKindLimit,
	}}
	if _, ok := gtc.Payload()["expiration_ms"]; ok {
		t.Error("good-till-cancel order must not carry expiration_ms")
	}
}

func TestFloatRendering(t *testing.T) {
	if got := num(0.6); got != "0.6" {
		t.Errorf("num(0.6) = %q", got)
	}
	if got := num(1.0); got != "1" {
		t.Errorf("num(1.0) = %q", got)
	}
	if got := num(0); got != "0" {
		t.Errorf("num(0) = %q", got)
	}
}
