package presence

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

type fakeSignaler struct {
	handlers map[string][]func(json.RawMessage)
}

func newFakeSignaler() *fakeSignaler {
	return &fakeSignaler{handlers: make(map[string][]func(json.RawMessage))}
}

func (f *fakeSignaler) On(event string, fn func(json.RawMessage)) func() {
	f.handlers[event] = append(f.handlers[event], fn)
	return func() {}
}

func (f *fakeSignaler) fire(event, data string) {
	for _, fn := range f.handlers[event] {
		fn(json.RawMessage(data))
	}
}

func newTestTracker() (*Tracker, *fakeSignaler) {
	sig := newFakeSignaler()
	tr := NewTracker(sig, zerolog.New(&bytes.Buffer{}))
	tr.Start()
	return tr, sig
}

func TestOnlineSnapshotReplaces(t *testing.T) {
	tr, sig := newTestTracker()

	sig.fire("getOnlineUsers", `[{"id":"u1","name":"Ann"},{"id":"u2","name":"Ben"}]`)
	if len(tr.Online()) != 2 || !tr.IsOnline("u1") {
		t.Fatalf("expected 2 online users, got %v", tr.Online())
	}

	// A new push replaces the whole view, not merges into it.
	sig.fire("getOnlineUsers", `[{"id":"u3","name":"Cal"}]`)
	online := tr.Online()
	if len(online) != 1 || online[0].ID != "u3" {
		t.Errorf("expected snapshot replacement, got %v", online)
	}
	if tr.IsOnline("u1") {
		t.Error("u1 should be gone after replacement")
	}
}

func TestInCallChecksBothParties(t *testing.T) {
	tr, sig := newTestTracker()

	sig.fire("activeVoiceCalls", `[{"callId":"c1","caller":"u1","receiver":"u2"}]`)

	if !tr.InCall("u1") || !tr.InCall("u2") {
		t.Error("both call parties should report in-call")
	}
	if tr.InCall("u3") {
		t.Error("bystander should not report in-call")
	}

	sig.fire("activeVoiceCalls", `[]`)
	if tr.InCall("u1") {
		t.Error("roster cleared, nobody is in a call")
	}
}

func TestForcedLogoutCallback(t *testing.T) {
	tr, sig := newTestTracker()

	var got string
	tr.SetOnForcedLogout(func(userID string) { got = userID })

	sig.fire("forceLogout", `{"userId":"u9"}`)
	if got != "u9" {
		t.Errorf("expected forced logout for u9, got %q", got)
	}
}

func TestMalformedSnapshotIgnored(t *testing.T) {
	tr, sig := newTestTracker()

	sig.fire("getOnlineUsers", `[{"id":"u1","name":"Ann"}]`)
	sig.fire("getOnlineUsers", `{not json`)

	if len(tr.Online()) != 1 {
		t.Errorf("malformed push should keep the previous view, got %v", tr.Online())
	}
}
