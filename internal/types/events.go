package types

import "encoding/json"

// Signaling event vocabulary. Names are fixed by the signaling server
// protocol; keep values stable.
const (
	EventCallUser       = "callUser"
	EventAnswerCall     = "answerCall"
	EventCallAccepted   = "callAccepted"
	EventRejectCall     = "rejectCall"
	EventCallRejected   = "callRejected"
	EventEndCall        = "endCall"
	EventCallEnded      = "callEnded"
	EventCallFailed     = "callFailed"
	EventOnlineUsers    = "getOnlineUsers"
	EventActiveCalls    = "activeVoiceCalls"
	EventNewMessage     = "newMessage"
	EventMessageDeleted = "messageDeleted"
	EventMessagesRead   = "messagesRead"
	EventForceLogout    = "forceLogout"
)

// Envelope is the wire frame of the signaling channel.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// CallUserEmit is the payload sent when the local user initiates a call.
type CallUserEmit struct {
	UserToCall string          `json:"userToCall"`
	SignalData json.RawMessage `json:"signalData"`
	From       string          `json:"from"`
	Name       string          `json:"name"`
	IsAdmin    bool            `json:"isAdmin"`
}

// CallUserEvent is the inbound shape of the same event, relayed by the
// server with the callLogId it assigned to the attempt.
type CallUserEvent struct {
	From      string          `json:"from"`
	Name      string          `json:"name"`
	Signal    json.RawMessage `json:"signal"`
	CallLogID string          `json:"callLogId"`
	IsAdmin   bool            `json:"isAdmin"`
}

// AnswerCallEmit carries the responder's signal back to the caller.
type AnswerCallEmit struct {
	Signal    json.RawMessage `json:"signal"`
	To        string          `json:"to"`
	CallLogID string          `json:"callLogId"`
}

// RejectCallEmit tells the caller the call was declined.
type RejectCallEmit struct {
	To string `json:"to"`
}

// EndCallEmit tells the other party the call is over.
type EndCallEmit struct {
	To string `json:"to"`
}

// CallFailedEvent carries the server-reported failure reason verbatim.
type CallFailedEvent struct {
	Reason string `json:"reason"`
}

// MessageDeletedEvent arrives either as a bare string id or as an object.
type MessageDeletedEvent struct {
	ID       string `json:"id"`
	IsUnread bool   `json:"isUnread,omitempty"`
	Sender   string `json:"sender,omitempty"`
}

// UnmarshalJSON accepts both the object form and a bare id string.
func (e *MessageDeletedEvent) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		e.ID = id
		return nil
	}
	type alias MessageDeletedEvent
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*e = MessageDeletedEvent(a)
	return nil
}

// MessagesReadEvent notifies that a user has read the conversation.
type MessagesReadEvent struct {
	UserID string `json:"userId"`
}

// ForceLogoutEvent terminates the local session for the given user.
type ForceLogoutEvent struct {
	UserID string `json:"userId"`
}
