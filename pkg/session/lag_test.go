package session

import "testing"

func TestLagExceedsAtThreshold(t *testing.T) {
	s := New(100)
	v, _ := newTestViewer(true, Capabilities{})
	v.lastSentTimestamp.Store(1000)
	v.lastReceivedTimestamp.Store(900)
	if !s.lagExceeds(v) {
		t.Fatal("expected lag exactly at threshold to count as exceeding")
	}
}

func TestLagExceedsBelowThreshold(t *testing.T) {
	s := New(100)
	v, _ := newTestViewer(true, Capabilities{})
	v.lastSentTimestamp.Store(1000)
	v.lastReceivedTimestamp.Store(950)
	if s.lagExceeds(v) {
		t.Fatal("expected lag below threshold not to count as exceeding")
	}
}

func TestMatchesLastSent(t *testing.T) {
	v, _ := newTestViewer(true, Capabilities{})
	v.lastSentTimestamp.Store(42)
	if !matchesLastSent(v, 42) {
		t.Fatal("expected matchesLastSent(42) to be true")
	}
	if matchesLastSent(v, 43) {
		t.Fatal("expected matchesLastSent(43) to be false")
	}
}
