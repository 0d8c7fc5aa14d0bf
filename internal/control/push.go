package control

import (
	"encoding/json"

	"github.com/mathiu1/aadhavmadhav-sub000/internal/call"
	"github.com/mathiu1/aadhavmadhav-sub000/internal/types"
)

// Push frame types sent to UI clients over /ws.
const (
	PushCallState = "callState"
	PushNotice    = "notice"
	PushPresence  = "presence"
	PushChat      = "chat"
)

// PushFrame is the envelope of every UI push.
type PushFrame struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Pusher turns domain events into hub broadcasts. It satisfies the call
// session's Notifier interface.
type Pusher struct {
	hub *Hub
}

// NewPusher creates a Pusher on top of the hub.
func NewPusher(hub *Hub) *Pusher {
	return &Pusher{hub: hub}
}

// Notify broadcasts a call notice to all UI clients.
func (p *Pusher) Notify(n call.Notice) {
	p.push(PushFrame{Type: PushNotice, Data: n})
}

// CallState broadcasts a session snapshot.
func (p *Pusher) CallState(snap call.Snapshot) {
	p.push(PushFrame{Type: PushCallState, Data: snap})
}

// Presence broadcasts the current presence views.
func (p *Pusher) Presence(online []types.UserSummary, calls []types.ActiveVoiceCall) {
	p.push(PushFrame{Type: PushPresence, Data: map[string]any{
		"online":      online,
		"activeCalls": calls,
	}})
}

// ChatChanged signals UI clients to refresh their chat view.
func (p *Pusher) ChatChanged() {
	p.push(PushFrame{Type: PushChat})
}

func (p *Pusher) push(frame PushFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		p.hub.logger.Error().Err(err).Str("type", frame.Type).Msg("failed to marshal push frame")
		return
	}
	p.hub.Broadcast(data)
}
