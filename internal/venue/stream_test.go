package venue

import (
	"testing"

	"github.com/copyfx/mirror/internal/domain"
)

func TestDecodeNotification(t *testing.T) {
	raw := []byte(`{"kind":"order","ticket":42,"type":"limit","state":"CANCELED","symbol":"EURUSD","price":1.09,"volume":0.1,"magic":7}`)
	note, ok := decodeNotification(raw)
	if !ok {
		t.Fatal("valid notification rejected")
	}
	if note.Ticket != 42 || note.State != domain.TerminalCanceled || note.Symbol != "EURUSD" {
		t.Fatalf("decoded = %+v", note)
	}
	if note.Kind != domain.OrderKindLimit || note.Magic != 7 {
		t.Fatalf("decoded = %+v", note)
	}
}

func TestDecodeSkipsNonOrderMessages(t *testing.T) {
	for _, raw := range []string{
		`{"kind":"heartbeat"}`,
		`{"kind":"account","ticket":1,"state":"canceled"}`,
		`{"kind":"order","ticket":0,"state":"canceled"}`,
		`{"kind":"order","ticket":9,"state":"partial"}`,
		`not json`,
	} {
		if _, ok := decodeNotification([]byte(raw)); ok {
			t.Errorf("message accepted: %s", raw)
		}
	}
}

func TestDecodeAllTerminalStates(t *testing.T) {
	for raw, want := range map[string]domain.TerminalState{
		`{"kind":"order","ticket":1,"state":"canceled"}`: domain.TerminalCanceled,
		`{"kind":"order","ticket":1,"state":"expired"}`:  domain.TerminalExpired,
		`{"kind":"order","ticket":1,"state":"filled"}`:   domain.TerminalFilled,
		`{"kind":"order","ticket":1,"state":"rejected"}`: domain.TerminalRejected,
	} {
		note, ok := decodeNotification([]byte(raw))
		if !ok || note.State != want {
			t.Errorf("decode %s: ok=%v state=%s", raw, ok, note.State)
		}
	}
}

func TestClosesOrder(t *testing.T) {
	if !domain.TerminalCanceled.ClosesOrder() || !domain.TerminalExpired.ClosesOrder() {
		t.Error("canceled/expired must close the order")
	}
	if domain.TerminalFilled.ClosesOrder() || domain.TerminalRejected.ClosesOrder() {
		t.Error("filled/rejected must not close the order through the fast path")
	}
}
