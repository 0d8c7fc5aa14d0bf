package chat

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mathiu1/aadhavmadhav-sub000/internal/metrics"
	"github.com/mathiu1/aadhavmadhav-sub000/internal/types"
)

// API is the slice of the backend message API the session needs.
type API interface {
	Messages(ctx context.Context, userID string, limit, offset int) ([]types.ChatMessage, error)
	Send(ctx context.Context, recipientID, text string) (types.ChatMessage, error)
	MarkRead(ctx context.Context, userID string) error
	Delete(ctx context.Context, messageID string) error
	UnreadCounts(ctx context.Context) (map[string]int, error)
}

// Signaler is the slice of the signaling client the session needs.
type Signaler interface {
	On(event string, fn func(data json.RawMessage)) (off func())
}

// Session holds one open conversation plus the unread counters for the
// rest. Conversations are keyed by the customer-side user id; realtime
// events for other conversations only bump their unread count.
type Session struct {
	self     types.UserSummary
	api      API
	sig      Signaler
	pageSize int
	logger   zerolog.Logger

	mu       sync.Mutex
	peerID   string // open conversation, empty when none
	messages []types.ChatMessage
	hasMore  bool
	peerRead bool // the peer has read everything we sent
	unread   map[string]int

	offs     []func()
	onChange func()
}

// NewSession wires the chat session to its collaborators.
func NewSession(self types.UserSummary, api API, sig Signaler, pageSize int, logger zerolog.Logger) *Session {
	return &Session{
		self:     self,
		api:      api,
		sig:      sig,
		pageSize: pageSize,
		logger:   logger.With().Str("component", "chat").Logger(),
		unread:   make(map[string]int),
	}
}

// SetOnChange registers the UI push callback.
func (s *Session) SetOnChange(fn func()) { s.onChange = fn }

// Start registers the realtime handlers. Stop removes them again.
func (s *Session) Start() {
	s.offs = append(s.offs,
		s.sig.On(types.EventNewMessage, s.handleNewMessage),
		s.sig.On(types.EventMessageDeleted, s.handleMessageDeleted),
		s.sig.On(types.EventMessagesRead, s.handleMessagesRead),
	)
}

func (s *Session) Stop() {
	for _, off := range s.offs {
		off()
	}
	s.offs = nil
}

// Open loads the latest page of the conversation with peerID, replacing
// whatever was loaded before, and marks it read.
func (s *Session) Open(ctx context.Context, peerID string) error {
	page, err := s.api.Messages(ctx, peerID, s.pageSize, 0)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.peerID = peerID
	s.messages = page
	s.hasMore = len(page) == s.pageSize
	s.peerRead = false
	delete(s.unread, peerID)
	s.mu.Unlock()

	if err := s.api.MarkRead(ctx, peerID); err != nil {
		s.logger.Warn().Err(err).Str("peer_id", peerID).Msg("mark read failed")
	}
	s.logger.Info().Str("peer_id", peerID).Int("messages", len(page)).Msg("conversation opened")
	s.notify()
	return nil
}

// Close drops the open conversation.
func (s *Session) Close() {
	s.mu.Lock()
	s.peerID = ""
	s.messages = nil
	s.hasMore = false
	s.mu.Unlock()
	s.notify()
}

// LoadMore fetches the next older page and prepends it. It is a no-op
// when the backend already reported the history exhausted.
func (s *Session) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	peerID := s.peerID
	offset := len(s.messages)
	more := s.hasMore
	s.mu.Unlock()
	if peerID == "" || !more {
		return nil
	}

	page, err := s.api.Messages(ctx, peerID, s.pageSize, offset)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.peerID == peerID {
		s.messages = append(page, s.messages...)
		s.hasMore = len(page) == s.pageSize
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// SendMessage posts text to the open conversation and appends the
// resolved message, unless the realtime echo beat the response back.
func (s *Session) SendMessage(ctx context.Context, text string) (types.ChatMessage, error) {
	s.mu.Lock()
	peerID := s.peerID
	s.mu.Unlock()
	if peerID == "" {
		return types.ChatMessage{}, ErrNoConversation
	}

	msg, err := s.api.Send(ctx, peerID, text)
	if err != nil {
		return types.ChatMessage{}, err
	}

	s.mu.Lock()
	if s.peerID == peerID && !s.containsLocked(msg.ID) {
		s.messages = append(s.messages, msg)
	}
	s.peerRead = false
	s.mu.Unlock()

	metrics.Get().RecordChatMessageSent()
	s.notify()
	return msg, nil
}

// DeleteMessage removes a message on the backend and locally. Deleting a
// message that is already gone is not an error.
func (s *Session) DeleteMessage(ctx context.Context, messageID string) error {
	if err := s.api.Delete(ctx, messageID); err != nil {
		return err
	}
	s.removeMessage(messageID)
	metrics.Get().RecordChatMessageDeleted()
	return nil
}

// MarkRead marks the conversation with userID read on the backend and
// clears its unread counter.
func (s *Session) MarkRead(ctx context.Context, userID string) error {
	if err := s.api.MarkRead(ctx, userID); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.unread, userID)
	s.mu.Unlock()
	s.notify()
	return nil
}

// RefreshUnread reloads the unread counters from the backend.
func (s *Session) RefreshUnread(ctx context.Context) error {
	counts, err := s.api.UnreadCounts(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.unread = counts
	if s.unread == nil {
		s.unread = make(map[string]int)
	}
	delete(s.unread, s.peerID)
	s.mu.Unlock()
	s.notify()
	return nil
}

// Messages returns the loaded conversation, oldest first.
func (s *Session) Messages() []types.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// Conversation returns the open conversation's peer id, empty when none.
func (s *Session) Conversation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerID
}

// HasMore reports whether an older page may exist.
func (s *Session) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMore
}

// PeerRead reports whether the peer has read the conversation.
func (s *Session) PeerRead() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerRead
}

// Unread returns the unread counters for conversations other than the
// open one.
func (s *Session) Unread() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.unread))
	for k, v := range s.unread {
		out[k] = v
	}
	return out
}

// --- realtime handlers --------------------------------------------------

// handleNewMessage appends a pushed message when it belongs to the open
// conversation; otherwise its conversation's unread count is bumped.
// Duplicates of already-present ids are ignored.
func (s *Session) handleNewMessage(data json.RawMessage) {
	var msg types.ChatMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Warn().Err(err).Msg("malformed newMessage event")
		return
	}
	key := msg.ConversationKey()

	s.mu.Lock()
	if key == s.peerID && s.peerID != "" {
		if !s.containsLocked(msg.ID) {
			s.messages = append(s.messages, msg)
		}
	} else if key != "" {
		s.unread[key]++
	}
	s.mu.Unlock()

	metrics.Get().RecordChatMessageReceived()
	s.logger.Debug().Str("conversation", key).Msg("message received")
	s.notify()
}

func (s *Session) handleMessageDeleted(data json.RawMessage) {
	var ev types.MessageDeletedEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		s.logger.Warn().Err(err).Msg("malformed messageDeleted event")
		return
	}
	s.removeMessage(ev.ID)
}

func (s *Session) handleMessagesRead(data json.RawMessage) {
	var ev types.MessagesReadEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		s.logger.Warn().Err(err).Msg("malformed messagesRead event")
		return
	}

	s.mu.Lock()
	match := ev.UserID != "" && ev.UserID == s.peerID
	if match {
		s.peerRead = true
	}
	s.mu.Unlock()
	if match {
		s.notify()
	}
}

// removeMessage drops a message by id. Removing an id that is not loaded
// is a no-op, which makes local delete and the realtime echo idempotent.
func (s *Session) removeMessage(messageID string) {
	s.mu.Lock()
	removed := false
	for i, m := range s.messages {
		if m.ID == messageID {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			removed = true
			break
		}
	}
	s.mu.Unlock()
	if removed {
		s.notify()
	}
}

func (s *Session) containsLocked(id string) bool {
	for _, m := range s.messages {
		if m.ID == id {
			return true
		}
	}
	return false
}

func (s *Session) notify() {
	if s.onChange != nil {
		s.onChange()
	}
}
