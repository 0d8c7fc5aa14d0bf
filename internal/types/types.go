package types

import "time"

// UserSummary is the minimal user identity carried in signaling payloads
// and presence snapshots.
type UserSummary struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	IsAdmin bool   `json:"isAdmin"`
}

// ChatMessage is a single message inside a conversation. Conversations are
// always keyed by the non-privileged (customer) participant, regardless of
// which side is viewing them.
type ChatMessage struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"senderId"`
	RecipientID string    `json:"recipientId,omitempty"`
	IsAdmin     bool      `json:"isAdmin"`
	Text        string    `json:"text"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ConversationKey returns the id of the customer side of the message.
// Messages sent by a support agent belong to the recipient's conversation.
func (m ChatMessage) ConversationKey() string {
	if m.IsAdmin {
		return m.RecipientID
	}
	return m.SenderID
}

// ActiveVoiceCall is one entry of the server-observed voice call roster.
// The roster is broadcast for monitoring and busy checks only; it is not
// authoritative for local call state.
type ActiveVoiceCall struct {
	CallID    string    `json:"callId"`
	Caller    string    `json:"caller"`
	Receiver  string    `json:"receiver"`
	StartTime time.Time `json:"startTime"`
}

// Involves reports whether userID is a party of the call.
func (c ActiveVoiceCall) Involves(userID string) bool {
	return c.Caller == userID || c.Receiver == userID
}
