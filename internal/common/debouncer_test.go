package common

import (
	"testing"
	"time"
)

func TestDebouncerReadyBeforeFirstMark(t *testing.T) {
	d := NewDebouncer(100 * time.Millisecond)
	if ready, _ := d.Ready(time.Now()); !ready {
		t.Fatal("fresh debouncer should be ready")
	}
}

func TestDebouncerGatesUntilInterval(t *testing.T) {
	d := NewDebouncer(100 * time.Millisecond)
	t0 := time.Now()
	d.Mark(t0)

	if ready, _ := d.Ready(t0.Add(50 * time.Millisecond)); ready {
		t.Fatal("ready inside the interval")
	}
	ready, since := d.Ready(t0.Add(100 * time.Millisecond))
	if !ready {
		t.Fatal("not ready at the interval boundary")
	}
	if since != 100*time.Millisecond {
		t.Fatalf("since = %v", since)
	}
}

func TestDebouncerReset(t *testing.T) {
	d := NewDebouncer(time.Hour)
	t0 := time.Now()
	d.Mark(t0)
	if ready, _ := d.Ready(t0.Add(time.Minute)); ready {
		t.Fatal("ready before reset")
	}
	d.Reset()
	if ready, _ := d.Ready(t0.Add(time.Minute)); !ready {
		t.Fatal("not ready after reset")
	}
}

func TestDebouncerZeroIntervalAlwaysReady(t *testing.T) {
	d := NewDebouncer(0)
	d.Mark(time.Now())
	if ready, _ := d.Ready(time.Now()); !ready {
		t.Fatal("zero interval must never gate")
	}
}
