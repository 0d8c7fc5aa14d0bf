package presence

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mathiu1/aadhavmadhav-sub000/internal/metrics"
	"github.com/mathiu1/aadhavmadhav-sub000/internal/types"
)

// Signaler is the slice of the signaling client the tracker needs.
type Signaler interface {
	On(event string, fn func(data json.RawMessage)) (off func())
}

// Tracker maintains the server-pushed presence views: the online user
// list and the active voice call roster. Both are full snapshots, each
// push replaces the previous view wholesale.
type Tracker struct {
	sig    Signaler
	logger zerolog.Logger

	mu     sync.RWMutex
	online []types.UserSummary
	calls  []types.ActiveVoiceCall

	offs        []func()
	onChange    func()
	onForcedOut func(userID string)
}

// NewTracker creates an empty tracker. Views stay empty until the
// server pushes its first snapshots.
func NewTracker(sig Signaler, logger zerolog.Logger) *Tracker {
	return &Tracker{
		sig:    sig,
		logger: logger.With().Str("component", "presence").Logger(),
	}
}

// SetOnChange registers the UI push callback, invoked after every
// snapshot replacement.
func (t *Tracker) SetOnChange(fn func()) { t.onChange = fn }

// SetOnForcedLogout registers the callback for server-initiated session
// termination of a specific user.
func (t *Tracker) SetOnForcedLogout(fn func(userID string)) { t.onForcedOut = fn }

// Start registers the signaling handlers. Stop removes them again.
func (t *Tracker) Start() {
	t.offs = append(t.offs,
		t.sig.On(types.EventOnlineUsers, t.handleOnlineUsers),
		t.sig.On(types.EventActiveCalls, t.handleActiveCalls),
		t.sig.On(types.EventForceLogout, t.handleForceLogout),
	)
}

func (t *Tracker) Stop() {
	for _, off := range t.offs {
		off()
	}
	t.offs = nil
}

// Online returns the current online user snapshot.
func (t *Tracker) Online() []types.UserSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]types.UserSummary, len(t.online))
	copy(out, t.online)
	return out
}

// ActiveCalls returns the current voice call roster.
func (t *Tracker) ActiveCalls() []types.ActiveVoiceCall {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]types.ActiveVoiceCall, len(t.calls))
	copy(out, t.calls)
	return out
}

// IsOnline reports whether the user appears in the online snapshot.
func (t *Tracker) IsOnline(userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, u := range t.online {
		if u.ID == userID {
			return true
		}
	}
	return false
}

// InCall reports whether the user is a party of any roster entry. This
// backs the line-busy predicate for call placement.
func (t *Tracker) InCall(userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, c := range t.calls {
		if c.Involves(userID) {
			return true
		}
	}
	return false
}

func (t *Tracker) handleOnlineUsers(data json.RawMessage) {
	var users []types.UserSummary
	if err := json.Unmarshal(data, &users); err != nil {
		t.logger.Warn().Err(err).Msg("malformed online users snapshot")
		return
	}

	t.mu.Lock()
	t.online = users
	t.mu.Unlock()

	t.logger.Debug().Int("count", len(users)).Msg("online users updated")
	t.notify()
}

func (t *Tracker) handleActiveCalls(data json.RawMessage) {
	var calls []types.ActiveVoiceCall
	if err := json.Unmarshal(data, &calls); err != nil {
		t.logger.Warn().Err(err).Msg("malformed voice call roster")
		return
	}

	t.mu.Lock()
	t.calls = calls
	t.mu.Unlock()

	metrics.Get().SetActiveCalls(len(calls))
	t.logger.Debug().Int("count", len(calls)).Msg("voice call roster updated")
	t.notify()
}

func (t *Tracker) handleForceLogout(data json.RawMessage) {
	var ev types.ForceLogoutEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		t.logger.Warn().Err(err).Msg("malformed forceLogout event")
		return
	}
	t.logger.Warn().Str("user_id", ev.UserID).Msg("forced logout received")
	if t.onForcedOut != nil {
		t.onForcedOut(ev.UserID)
	}
}

func (t *Tracker) notify() {
	if t.onChange != nil {
		t.onChange()
	}
}
