package history

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mathiu1/aadhavmadhav-sub000/internal/call"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", zerolog.New(&bytes.Buffer{}))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndListRecent(t *testing.T) {
	s := newTestStore(t)

	base := time.Now().Add(-time.Hour)
	entries := []call.LogEntry{
		{CallID: "c1", PeerID: "u1", PeerName: "Ann", Direction: call.DirectionInbound, Outcome: call.OutcomeCompleted, StartedAt: base, DurationSecs: 90},
		{CallID: "c2", PeerID: "u2", PeerName: "Ben", Direction: call.DirectionOutbound, Outcome: call.OutcomeTimeout, StartedAt: base.Add(10 * time.Minute)},
		{CallID: "c3", PeerID: "u1", PeerName: "Ann", Direction: call.DirectionInbound, Outcome: call.OutcomeMissed, StartedAt: base.Add(20 * time.Minute)},
	}
	for _, e := range entries {
		if err := s.SaveCallLog(e); err != nil {
			t.Fatalf("save %s: %v", e.CallID, err)
		}
	}

	recent, err := s.RecentCalls(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(recent))
	}
	// Most recent first.
	if recent[0].CallID != "c3" || recent[2].CallID != "c1" {
		t.Errorf("unexpected order: %s .. %s", recent[0].CallID, recent[2].CallID)
	}
	if recent[2].DurationSecs != 90 || recent[2].Outcome != call.OutcomeCompleted {
		t.Errorf("completed entry lost fields: %+v", recent[2])
	}
}

func TestRecentCallsLimit(t *testing.T) {
	s := newTestStore(t)

	base := time.Now()
	for i := 0; i < 5; i++ {
		err := s.SaveCallLog(call.LogEntry{
			PeerID:    "u1",
			Direction: call.DirectionOutbound,
			Outcome:   call.OutcomeCancelled,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	recent, err := s.RecentCalls(2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("expected limit of 2, got %d", len(recent))
	}
}

func TestPurgeOlderThan(t *testing.T) {
	s := newTestStore(t)

	old := call.LogEntry{PeerID: "u1", Direction: call.DirectionInbound, Outcome: call.OutcomeMissed, StartedAt: time.Now().Add(-48 * time.Hour)}
	fresh := call.LogEntry{PeerID: "u2", Direction: call.DirectionInbound, Outcome: call.OutcomeMissed, StartedAt: time.Now()}
	s.SaveCallLog(old)
	s.SaveCallLog(fresh)

	removed, err := s.PurgeOlderThan(time.Now().Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 purged, got %d", removed)
	}

	recent, _ := s.RecentCalls(10)
	if len(recent) != 1 || recent[0].PeerID != "u2" {
		t.Errorf("expected only the fresh entry, got %v", recent)
	}
}
