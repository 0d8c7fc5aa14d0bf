package peer

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestManager() *Manager {
	m := NewManager(nil, zerolog.New(&bytes.Buffer{}))
	// Host candidates only; keeps gathering fast and offline-safe.
	m.iceServers = nil
	return m
}

func waitSignal(t *testing.T, h *Handle) []byte {
	t.Helper()
	select {
	case sig := <-h.LocalSignal():
		return sig
	case <-time.After(10 * time.Second):
		t.Fatal("local signal was not produced")
		return nil
	}
}

func TestOfferAnswerExchange(t *testing.T) {
	m := newTestManager()

	caller, err := m.Create(true, nil)
	if err != nil {
		t.Fatalf("create initiator: %v", err)
	}
	defer caller.Destroy()

	offer := waitSignal(t, caller)
	if len(offer) == 0 {
		t.Fatal("empty offer payload")
	}

	callee, err := m.Create(false, nil)
	if err != nil {
		t.Fatalf("create responder: %v", err)
	}
	defer callee.Destroy()

	if err := callee.ApplyRemoteSignal(offer); err != nil {
		t.Fatalf("apply offer: %v", err)
	}

	answer := waitSignal(t, callee)
	if len(answer) == 0 {
		t.Fatal("empty answer payload")
	}

	if err := caller.ApplyRemoteSignal(answer); err != nil {
		t.Fatalf("apply answer: %v", err)
	}
}

func TestSignalProducedOnce(t *testing.T) {
	m := newTestManager()

	h, err := m.Create(true, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer h.Destroy()

	waitSignal(t, h)

	select {
	case sig := <-h.LocalSignal():
		t.Errorf("unexpected second signal: %s", sig)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestApplyRemoteSignalGarbage(t *testing.T) {
	m := newTestManager()

	h, err := m.Create(false, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer h.Destroy()

	if err := h.ApplyRemoteSignal([]byte("not json")); err == nil {
		t.Error("expected error for malformed signal")
	}
}

func TestDestroyIdempotent(t *testing.T) {
	m := newTestManager()

	h, err := m.Create(true, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	h.Destroy()
	h.Destroy() // must not panic
}
