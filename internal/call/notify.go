package call

// NoticeKind classifies user-facing call notifications.
type NoticeKind string

const (
	NoticeIncoming     NoticeKind = "incoming"      // call arrived while busy
	NoticeTimeout      NoticeKind = "timeout"       // no answer within the ring window
	NoticeRejected     NoticeKind = "rejected"      // remote declined
	NoticeEnded        NoticeKind = "ended"         // remote hung up
	NoticeFailed       NoticeKind = "failed"        // signaling reported a failure
	NoticeNoDevice     NoticeKind = "no_device"     // no microphone present
	NoticeNoPermission NoticeKind = "no_permission" // microphone access denied
	NoticeMediaError   NoticeKind = "media_error"   // other capture failure
)

// Notice is a single user-facing notification. Every failure path
// produces exactly one; duplicates for the same attempt are suppressed
// by the session.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
	PeerID  string     `json:"peerId,omitempty"`
	CallID  string     `json:"callId,omitempty"`
}

// Notifier surfaces notices to the UI layer.
type Notifier interface {
	Notify(n Notice)
}

// NopNotifier discards notices.
type NopNotifier struct{}

func (NopNotifier) Notify(Notice) {}
