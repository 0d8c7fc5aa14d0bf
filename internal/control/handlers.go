package control

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/mathiu1/aadhavmadhav-sub000/internal/auth"
	"github.com/mathiu1/aadhavmadhav-sub000/internal/call"
	"github.com/mathiu1/aadhavmadhav-sub000/internal/chat"
	"github.com/mathiu1/aadhavmadhav-sub000/internal/types"
)

// CallController is the slice of the call session the API drives.
type CallController interface {
	State() call.Snapshot
	Busy() bool
	InitiateCall(as types.UserSummary, peerID, displayName string) error
	AnswerCall(callID string) error
	RejectCall(callID string) error
	LeaveCall()
}

// PresenceView exposes the server-pushed presence snapshots.
type PresenceView interface {
	Online() []types.UserSummary
	ActiveCalls() []types.ActiveVoiceCall
}

// ChatController is the slice of the chat session the API drives.
type ChatController interface {
	Open(ctx context.Context, peerID string) error
	LoadMore(ctx context.Context) error
	SendMessage(ctx context.Context, text string) (types.ChatMessage, error)
	DeleteMessage(ctx context.Context, messageID string) error
	MarkRead(ctx context.Context, userID string) error
	RefreshUnread(ctx context.Context) error
	Messages() []types.ChatMessage
	Conversation() string
	HasMore() bool
	Unread() map[string]int
}

// HistoryView lists the persisted call log.
type HistoryView interface {
	RecentCalls(limit int) ([]call.LogEntry, error)
}

// SignalingStats exposes the signaling client's health counters.
type SignalingStats interface {
	Connected() bool
	Stats() (received, emitted, reconnects int64)
}

// Handlers serves the local control API for the browser UI.
type Handlers struct {
	calls    CallController
	presence PresenceView
	chat     ChatController
	history  HistoryView
	sig      SignalingStats
	hub      *Hub
	logger   zerolog.Logger
}

// NewHandlers wires the control API to its collaborators. history and
// sig may be nil; their endpoints then report empty data.
func NewHandlers(calls CallController, presence PresenceView, chat ChatController, history HistoryView, sig SignalingStats, hub *Hub, logger zerolog.Logger) *Handlers {
	return &Handlers{
		calls:    calls,
		presence: presence,
		chat:     chat,
		history:  history,
		sig:      sig,
		hub:      hub,
		logger:   logger.With().Str("component", "control").Logger(),
	}
}

type startCallRequest struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

type callIDRequest struct {
	CallID string `json:"callId"`
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

// HandleStartCall handles POST /call/start
func (h *Handlers) HandleStartCall(w http.ResponseWriter, r *http.Request) {
	var req startCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	// Line-busy guard: refuse before touching the session when either
	// the local state or the server roster says we are on a call.
	if h.calls.Busy() {
		writeError(w, http.StatusConflict, "line busy")
		return
	}
	// The authenticated request identity becomes the caller on the
	// emitted call event; the session falls back to its own otherwise.
	var as types.UserSummary
	if claims, ok := auth.GetUserFromContext(r.Context()); ok {
		as = types.UserSummary{ID: claims.UserID, Name: claims.Name, IsAdmin: claims.IsAdmin}
	}
	if err := h.calls.InitiateCall(as, req.UserID, req.Name); err != nil {
		h.writeCallError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, h.calls.State())
}

// HandleAnswerCall handles POST /call/answer
func (h *Handlers) HandleAnswerCall(w http.ResponseWriter, r *http.Request) {
	var req callIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CallID == "" {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	if h.calls.Busy() {
		writeError(w, http.StatusConflict, "line busy")
		return
	}
	if err := h.calls.AnswerCall(req.CallID); err != nil {
		h.writeCallError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, h.calls.State())
}

// HandleRejectCall handles POST /call/reject
func (h *Handlers) HandleRejectCall(w http.ResponseWriter, r *http.Request) {
	var req callIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CallID == "" {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	if err := h.calls.RejectCall(req.CallID); err != nil {
		h.writeCallError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.calls.State())
}

// HandleHangup handles POST /call/hangup
func (h *Handlers) HandleHangup(w http.ResponseWriter, r *http.Request) {
	h.calls.LeaveCall()
	writeJSON(w, http.StatusOK, h.calls.State())
}

// HandleCallState handles GET /call/state
func (h *Handlers) HandleCallState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.calls.State())
}

// HandleCallQueue handles GET /call/queue
func (h *Handlers) HandleCallQueue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.calls.State().Queue)
}

// HandleRoster handles GET /call/roster
func (h *Handlers) HandleRoster(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.presence.ActiveCalls())
}

// HandleOnline handles GET /presence/online
func (h *Handlers) HandleOnline(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.presence.Online())
}

// HandleRecentCalls handles GET /history/recent
func (h *Handlers) HandleRecentCalls(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeJSON(w, http.StatusOK, []call.LogEntry{})
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	entries, err := h.history.RecentCalls(limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list call history")
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	if entries == nil {
		entries = []call.LogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleStats handles GET /stats
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]any{
		"uiClients": h.hub.ClientCount(),
	}
	if h.sig != nil {
		received, emitted, reconnects := h.sig.Stats()
		stats["signaling"] = map[string]any{
			"connected":  h.sig.Connected(),
			"received":   received,
			"emitted":    emitted,
			"reconnects": reconnects,
		}
	}
	writeJSON(w, http.StatusOK, stats)
}

// HandleChatMessages handles GET /chat/{userId}/messages. Opening a new
// conversation replaces the loaded one; a positive offset loads the next
// older page of the open conversation.
func (h *Handlers) HandleChatMessages(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid offset", http.StatusBadRequest)
			return
		}
		offset = n
	}

	var err error
	if h.chat.Conversation() != userID || offset == 0 {
		err = h.chat.Open(r.Context(), userID)
	} else {
		err = h.chat.LoadMore(r.Context())
	}
	if err != nil {
		h.logger.Error().Err(err).Str("peer_id", userID).Msg("failed to load conversation")
		writeError(w, http.StatusBadGateway, "backend unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"messages": h.chat.Messages(),
		"hasMore":  h.chat.HasMore(),
	})
}

// HandleSendMessage handles POST /chat/messages
func (h *Handlers) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	msg, err := h.chat.SendMessage(r.Context(), req.Text)
	if err != nil {
		if errors.Is(err, chat.ErrNoConversation) {
			writeError(w, http.StatusConflict, "no open conversation")
			return
		}
		h.logger.Error().Err(err).Msg("failed to send message")
		writeError(w, http.StatusBadGateway, "backend unavailable")
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// HandleDeleteMessage handles DELETE /chat/messages/{id}
func (h *Handlers) HandleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "id")
	if err := h.chat.DeleteMessage(r.Context(), messageID); err != nil {
		h.logger.Error().Err(err).Str("message_id", messageID).Msg("failed to delete message")
		writeError(w, http.StatusBadGateway, "backend unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleMarkRead handles PUT /chat/{userId}/read
func (h *Handlers) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if err := h.chat.MarkRead(r.Context(), userID); err != nil {
		h.logger.Error().Err(err).Str("peer_id", userID).Msg("failed to mark read")
		writeError(w, http.StatusBadGateway, "backend unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleUnread handles GET /chat/unread
func (h *Handlers) HandleUnread(w http.ResponseWriter, r *http.Request) {
	if err := h.chat.RefreshUnread(r.Context()); err != nil {
		h.logger.Error().Err(err).Msg("failed to refresh unread counts")
		writeError(w, http.StatusBadGateway, "backend unavailable")
		return
	}
	writeJSON(w, http.StatusOK, h.chat.Unread())
}

// writeCallError maps session errors onto API status codes.
func (h *Handlers) writeCallError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, call.ErrLineBusy):
		writeError(w, http.StatusConflict, "line busy")
	case errors.Is(err, call.ErrNoSuchCall):
		writeError(w, http.StatusNotFound, "no such call")
	default:
		h.logger.Error().Err(err).Msg("call operation failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
