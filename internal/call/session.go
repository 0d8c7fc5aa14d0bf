package call

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mathiu1/aadhavmadhav-sub000/internal/media"
	"github.com/mathiu1/aadhavmadhav-sub000/internal/metrics"
	"github.com/mathiu1/aadhavmadhav-sub000/internal/types"
)

var (
	// ErrLineBusy is returned when a call attempt would claim the active
	// call slot while it is occupied. Callers are expected to consult
	// Busy() before answering; the session still refuses rather than
	// silently overwrite its state.
	ErrLineBusy = errors.New("call: line busy")

	// ErrNoSuchCall is returned when answering or rejecting a call id
	// that is not (or no longer) queued.
	ErrNoSuchCall = errors.New("call: no such queued call")
)

// endingClearDelay is how long the transient ending status lingers
// before the session returns to idle.
const endingClearDelay = time.Second

// PeerHandle is one peer connection for one call attempt.
type PeerHandle interface {
	LocalSignal() <-chan []byte
	RemoteReady() <-chan struct{}
	ApplyRemoteSignal(payload []byte) error
	Destroy()
}

// PeerFactory builds peer handles. The session creates exactly one per
// attempt and destroys it on every terminal path.
type PeerFactory interface {
	Create(initiator bool, stream media.Stream) (PeerHandle, error)
}

// Signaler is the slice of the signaling client the session needs.
type Signaler interface {
	Emit(event string, payload any) error
	On(event string, fn func(data json.RawMessage)) (off func())
}

// RosterView exposes the server-observed active voice call roster for
// the line-busy predicate.
type RosterView interface {
	InCall(userID string) bool
}

// Snapshot is the session state as rendered by the UI surface.
type Snapshot struct {
	Status      Status       `json:"status"`
	Focus       *CallRecord  `json:"focus,omitempty"`
	ElapsedSecs int          `json:"elapsedSecs"`
	Queue       []CallRecord `json:"queue"`
	Busy        bool         `json:"busy"`
}

// Session owns the call lifecycle: the status, the focus call, the
// incoming queue and the two timer classes. All transitions run under
// one lock so they are atomic with respect to each other; asynchronous
// completions (media, signal production) carry an attempt generation
// and are discarded when the state has moved on.
type Session struct {
	self        types.UserSummary
	ringTimeout time.Duration
	tick        time.Duration

	sig      Signaler
	peers    PeerFactory
	mic      media.Source
	roster   RosterView
	notifier Notifier
	recorder Recorder
	logger   zerolog.Logger

	mu           sync.Mutex
	status       Status
	focus        *CallRecord
	queue        *Queue
	elapsed      int
	attempt      int
	notifiedFail bool
	connectedAt  time.Time
	handle       PeerHandle
	stream       media.Stream

	ringTimer  Timer
	durTimer   Timer
	clearTimer Timer

	offs     []func()
	onChange func(Snapshot)
}

// NewSession wires the state machine to its collaborators. notifier may
// be NopNotifier; roster may be nil when no roster feed is available.
func NewSession(self types.UserSummary, ringTimeout time.Duration, sig Signaler, peers PeerFactory, mic media.Source, roster RosterView, notifier Notifier, logger zerolog.Logger) *Session {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Session{
		self:        self,
		ringTimeout: ringTimeout,
		tick:        time.Second,
		sig:         sig,
		peers:       peers,
		mic:         mic,
		roster:      roster,
		notifier:    notifier,
		logger:      logger.With().Str("component", "call").Logger(),
		status:      StatusIdle,
		queue:       NewQueue(ringTimeout),
	}
}

// SetRecorder sets the persistence hook for terminal call outcomes.
func (s *Session) SetRecorder(r Recorder) { s.recorder = r }

// SetOnChange registers the UI push callback. It is invoked outside the
// session lock after every observable transition.
func (s *Session) SetOnChange(fn func(Snapshot)) { s.onChange = fn }

// Start registers the signaling handlers. Stop removes them again; the
// pairs are matched so no handler survives a session.
func (s *Session) Start() {
	s.offs = append(s.offs,
		s.sig.On(types.EventCallUser, s.handleCallUser),
		s.sig.On(types.EventCallAccepted, s.handleCallAccepted),
		s.sig.On(types.EventCallRejected, s.handleCallRejected),
		s.sig.On(types.EventCallEnded, s.handleCallEnded),
		s.sig.On(types.EventCallFailed, s.handleCallFailed),
	)
}

// Stop unregisters handlers and unwinds any live call, releasing media
// and timers.
func (s *Session) Stop() {
	for _, off := range s.offs {
		off()
	}
	s.offs = nil
	s.LeaveCall()
	s.clearTimer.Cancel()
}

// State returns the current snapshot.
func (s *Session) State() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Busy reports the line-busy predicate: the local status claims the
// line, or the server-observed roster lists us as a call party.
func (s *Session) Busy() bool {
	s.mu.Lock()
	busy := s.status == StatusCalling || s.status == StatusConnected
	s.mu.Unlock()
	if busy {
		return true
	}
	return s.roster != nil && s.roster.InCall(s.self.ID)
}

// InitiateCall places an outbound call as the given identity: acquire
// the microphone, create an initiator peer connection and emit callUser
// once the local signal is produced. A zero identity falls back to the
// session's own. The ring timer starts immediately.
func (s *Session) InitiateCall(as types.UserSummary, peerID, displayName string) error {
	if as.ID == "" {
		as = s.self
	}
	s.mu.Lock()
	if s.status != StatusIdle {
		s.mu.Unlock()
		return ErrLineBusy
	}
	s.attempt++
	att := s.attempt
	rec := &CallRecord{
		PeerID:      peerID,
		DisplayName: displayName,
		ReceivedAt:  time.Now(),
	}
	s.focus = rec
	s.status = StatusCalling
	s.notifiedFail = false
	s.ringTimer.Arm(s.ringTimeout, func() { s.onRingTimeout(att) })
	s.mu.Unlock()

	metrics.Get().RecordCallPlaced()
	s.logger.Info().Str("peer_id", peerID).Msg("initiating call")
	s.notifyChange()
	go s.dialOut(att, rec, as)
	return nil
}

// AnswerCall answers a queued inbound call. Callers must check Busy()
// first; the session additionally refuses while the active call slot is
// occupied so state is never overwritten.
func (s *Session) AnswerCall(callID string) error {
	s.mu.Lock()
	if s.status == StatusCalling || s.status == StatusConnected {
		s.mu.Unlock()
		return ErrLineBusy
	}
	rec, ok := s.queue.Remove(callID)
	if !ok {
		s.mu.Unlock()
		return ErrNoSuchCall
	}
	s.attempt++
	att := s.attempt
	s.focus = rec
	s.status = StatusReceiving
	s.notifiedFail = false
	s.ringTimer.Arm(s.ringTimeout, func() { s.onRingTimeout(att) })
	s.mu.Unlock()

	metrics.Get().RecordCallAnswered()
	s.logger.Info().Str("call_id", callID).Str("peer_id", rec.PeerID).Msg("answering call")
	s.notifyChange()
	go s.answerAsync(att, rec)
	return nil
}

// RejectCall declines a queued inbound call and emits rejectCall to the
// caller. The record leaves the queue exactly once.
func (s *Session) RejectCall(callID string) error {
	s.mu.Lock()
	rec, ok := s.queue.Remove(callID)
	if !ok {
		s.mu.Unlock()
		return ErrNoSuchCall
	}
	wasFocus := s.focus != nil && s.focus.CallID == callID
	if wasFocus {
		s.focus = nil
		if s.status == StatusReceiving {
			s.status = StatusIdle
		}
		s.ringTimer.Cancel()
	}
	s.mu.Unlock()

	if err := s.sig.Emit(types.EventRejectCall, types.RejectCallEmit{To: rec.PeerID}); err != nil {
		s.logger.Warn().Err(err).Str("call_id", callID).Msg("rejectCall emit failed")
	}
	s.record(LogEntry{
		CallID:    rec.CallID,
		PeerID:    rec.PeerID,
		PeerName:  rec.DisplayName,
		Direction: DirectionInbound,
		Outcome:   OutcomeDeclined,
		StartedAt: rec.ReceivedAt,
	})
	metrics.Get().RecordCallRejected()
	s.logger.Info().Str("call_id", callID).Msg("call rejected")
	s.notifyChange()
	return nil
}

// LeaveCall hangs up. It is the one cancellation primitive: effective
// from calling, receiving-with-focus and connected, and always releases
// local media and timers. A leave while already idle is a no-op.
func (s *Session) LeaveCall() {
	s.mu.Lock()
	if s.status == StatusIdle || s.status == StatusEnding {
		s.mu.Unlock()
		return
	}
	prev := s.status
	rec := s.focus
	entry := s.terminalEntryLocked(prev, rec)
	s.cleanupLocked()
	// An unanswered inbound focus goes back to pending; it was never
	// answered or rejected here.
	if prev == StatusReceiving {
		s.status = StatusIdle
		s.focus = nil
	} else {
		s.status = StatusEnding
		s.clearTimer.Arm(endingClearDelay, s.clearEnding)
	}
	s.mu.Unlock()

	// endCall is only owed to a peer that is ringing or connected.
	if rec != nil && (prev == StatusCalling || prev == StatusConnected) {
		if err := s.sig.Emit(types.EventEndCall, types.EndCallEmit{To: rec.PeerID}); err != nil {
			s.logger.Warn().Err(err).Msg("endCall emit failed")
		}
		s.record(entry)
	}
	if prev == StatusConnected {
		metrics.Get().RecordCallCompleted()
	}
	s.logger.Info().Str("prev_status", string(prev)).Msg("left call")
	s.notifyChange()
}

// --- signaling handlers -------------------------------------------------

// handleCallUser enqueues an inbound call. Duplicate call ids are
// no-ops. The call takes focus only when the session is idle and
// nothing else is pending; otherwise a non-blocking notice is surfaced.
func (s *Session) handleCallUser(data json.RawMessage) {
	var ev types.CallUserEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		s.logger.Warn().Err(err).Msg("malformed callUser event")
		return
	}

	rec := &CallRecord{
		CallID:           ev.CallLogID,
		PeerID:           ev.From,
		DisplayName:      ev.Name,
		IsPeerPrivileged: ev.IsAdmin,
		SignalPayload:    ev.Signal,
		ReceivedAt:       time.Now(),
	}

	s.mu.Lock()
	if s.focus != nil && s.focus.CallID == rec.CallID {
		s.mu.Unlock()
		return
	}
	wasEmpty := s.queue.Len() == 0
	if !s.queue.Enqueue(rec) {
		s.mu.Unlock()
		s.logger.Debug().Str("call_id", rec.CallID).Msg("duplicate callUser ignored")
		return
	}
	takesFocus := s.status == StatusIdle && wasEmpty
	if takesFocus {
		s.attempt++
		att := s.attempt
		s.focus = rec
		s.status = StatusReceiving
		s.notifiedFail = false
		s.ringTimer.Arm(s.ringTimeout, func() { s.onRingTimeout(att) })
	}
	s.mu.Unlock()

	s.logger.Info().
		Str("call_id", rec.CallID).
		Str("peer_id", rec.PeerID).
		Bool("focus", takesFocus).
		Msg("inbound call")
	if !takesFocus {
		s.notifier.Notify(Notice{
			Kind:    NoticeIncoming,
			Message: rec.DisplayName + " is calling",
			PeerID:  rec.PeerID,
			CallID:  rec.CallID,
		})
	}
	s.notifyChange()
}

// handleCallAccepted applies the remote answer and connects.
func (s *Session) handleCallAccepted(data json.RawMessage) {
	s.mu.Lock()
	if s.status != StatusCalling || s.handle == nil {
		s.mu.Unlock()
		return
	}
	att := s.attempt
	handle := s.handle
	s.mu.Unlock()

	if err := handle.ApplyRemoteSignal(data); err != nil {
		s.failAttempt(att, Notice{Kind: NoticeFailed, Message: "call setup failed"}, OutcomeFailed)
		return
	}

	s.mu.Lock()
	if s.attempt != att || s.status != StatusCalling {
		s.mu.Unlock()
		return
	}
	s.connectLocked(att)
	s.mu.Unlock()

	s.logger.Info().Msg("call accepted")
	s.notifyChange()
}

func (s *Session) handleCallRejected(json.RawMessage) {
	s.mu.Lock()
	if s.status != StatusCalling {
		s.mu.Unlock()
		return
	}
	att := s.attempt
	s.mu.Unlock()
	s.failAttempt(att, Notice{Kind: NoticeRejected, Message: "call was declined"}, OutcomeRejected)
}

func (s *Session) handleCallEnded(json.RawMessage) {
	s.mu.Lock()
	if s.status != StatusCalling && s.status != StatusConnected {
		s.mu.Unlock()
		return
	}
	att := s.attempt
	s.mu.Unlock()
	// Empty outcome: completed when the call was connected, cancelled
	// when the peer ended it before answering.
	s.failAttempt(att, Notice{Kind: NoticeEnded, Message: "call ended by the other party"}, "")
}

func (s *Session) handleCallFailed(data json.RawMessage) {
	var ev types.CallFailedEvent
	if err := json.Unmarshal(data, &ev); err != nil || ev.Reason == "" {
		ev.Reason = "call failed"
	}
	s.mu.Lock()
	if s.status != StatusCalling {
		s.mu.Unlock()
		return
	}
	att := s.attempt
	s.mu.Unlock()
	s.failAttempt(att, Notice{Kind: NoticeFailed, Message: ev.Reason}, OutcomeFailed)
}

// --- async attempt work -------------------------------------------------

// dialOut runs the suspending half of InitiateCall. Every resumption
// re-checks the attempt generation so a leave that happened meanwhile
// discards the result instead of building a stale connection.
func (s *Session) dialOut(att int, rec *CallRecord, as types.UserSummary) {
	stream, err := s.mic.Acquire(context.Background())
	if err != nil {
		s.failAttempt(att, mediaNotice(err), OutcomeFailed)
		return
	}

	s.mu.Lock()
	if s.attempt != att || s.status != StatusCalling {
		s.mu.Unlock()
		stream.Close()
		return
	}
	s.stream = stream
	s.mu.Unlock()

	handle, err := s.peers.Create(true, stream)
	if err != nil {
		s.failAttempt(att, Notice{Kind: NoticeFailed, Message: "could not create connection"}, OutcomeFailed)
		return
	}

	s.mu.Lock()
	if s.attempt != att {
		s.mu.Unlock()
		handle.Destroy()
		return
	}
	s.handle = handle
	s.mu.Unlock()

	select {
	case signal := <-handle.LocalSignal():
		s.mu.Lock()
		if s.attempt != att || s.status != StatusCalling {
			s.mu.Unlock()
			return
		}
		// Emitting under the lock keeps callUser ordered before any
		// endCall a concurrent leave would send.
		err := s.sig.Emit(types.EventCallUser, types.CallUserEmit{
			UserToCall: rec.PeerID,
			SignalData: signal,
			From:       as.ID,
			Name:       as.Name,
			IsAdmin:    as.IsAdmin,
		})
		s.mu.Unlock()
		if err != nil {
			s.failAttempt(att, Notice{Kind: NoticeFailed, Message: "signaling unavailable"}, OutcomeFailed)
		}
	case <-time.After(s.ringTimeout):
		// The ring timer has already unwound the attempt.
	}
}

// answerAsync runs the suspending half of AnswerCall: microphone, a
// responder peer connection fed with the stored offer, then answerCall
// with the produced local signal.
func (s *Session) answerAsync(att int, rec *CallRecord) {
	stream, err := s.mic.Acquire(context.Background())
	if err != nil {
		s.failAttempt(att, mediaNotice(err), OutcomeFailed)
		return
	}

	s.mu.Lock()
	if s.attempt != att || s.status != StatusReceiving {
		s.mu.Unlock()
		stream.Close()
		return
	}
	s.stream = stream
	s.mu.Unlock()

	handle, err := s.peers.Create(false, stream)
	if err != nil {
		s.failAttempt(att, Notice{Kind: NoticeFailed, Message: "could not create connection"}, OutcomeFailed)
		return
	}

	s.mu.Lock()
	if s.attempt != att {
		s.mu.Unlock()
		handle.Destroy()
		return
	}
	s.handle = handle
	s.mu.Unlock()

	if err := handle.ApplyRemoteSignal(rec.SignalPayload); err != nil {
		s.failAttempt(att, Notice{Kind: NoticeFailed, Message: "call setup failed"}, OutcomeFailed)
		return
	}

	select {
	case signal := <-handle.LocalSignal():
		s.mu.Lock()
		if s.attempt != att || s.status != StatusReceiving {
			s.mu.Unlock()
			return
		}
		err := s.sig.Emit(types.EventAnswerCall, types.AnswerCallEmit{
			Signal:    signal,
			To:        rec.PeerID,
			CallLogID: rec.CallID,
		})
		if err != nil {
			s.mu.Unlock()
			s.failAttempt(att, Notice{Kind: NoticeFailed, Message: "signaling unavailable"}, OutcomeFailed)
			return
		}
		s.connectLocked(att)
		s.mu.Unlock()
		s.notifyChange()
	case <-time.After(s.ringTimeout):
	}
}

// --- timers and cleanup -------------------------------------------------

// onRingTimeout abandons an unanswered attempt. No endCall is emitted:
// the peer was never connected and runs its own timeout.
func (s *Session) onRingTimeout(att int) {
	s.mu.Lock()
	if s.attempt != att || (s.status != StatusCalling && s.status != StatusReceiving) {
		s.mu.Unlock()
		return
	}
	prev := s.status
	rec := s.focus
	entry := LogEntry{}
	if rec != nil {
		outcome := OutcomeTimeout
		direction := DirectionOutbound
		if prev == StatusReceiving {
			outcome = OutcomeMissed
			direction = DirectionInbound
			s.queue.Remove(rec.CallID)
		}
		entry = LogEntry{
			CallID:    rec.CallID,
			PeerID:    rec.PeerID,
			PeerName:  rec.DisplayName,
			Direction: direction,
			Outcome:   outcome,
			StartedAt: rec.ReceivedAt,
		}
	}
	notified := s.notifiedFail
	s.notifiedFail = true
	s.cleanupLocked()
	s.status = StatusIdle
	s.focus = nil
	s.mu.Unlock()

	if !notified {
		s.notifier.Notify(Notice{
			Kind:    NoticeTimeout,
			Message: "no answer",
			PeerID:  entry.PeerID,
			CallID:  entry.CallID,
		})
	}
	if entry.PeerID != "" {
		s.record(entry)
	}
	metrics.Get().RecordCallTimedOut()
	s.logger.Info().Str("prev_status", string(prev)).Msg("ring timeout")
	s.notifyChange()
}

// failAttempt unwinds one attempt to idle with exactly one notice.
// Stale generations are ignored. An empty outcome keeps the one derived
// from the status the call ended in.
func (s *Session) failAttempt(att int, notice Notice, outcome string) {
	s.mu.Lock()
	if s.attempt != att {
		s.mu.Unlock()
		return
	}
	rec := s.focus
	prev := s.status
	entry := s.terminalEntryLocked(prev, rec)
	if outcome != "" {
		entry.Outcome = outcome
	}
	notified := s.notifiedFail
	s.notifiedFail = true
	s.cleanupLocked()
	s.status = StatusIdle
	s.focus = nil
	s.mu.Unlock()

	if !notified {
		if rec != nil {
			notice.PeerID = rec.PeerID
			notice.CallID = rec.CallID
		}
		s.notifier.Notify(notice)
	}
	if rec != nil {
		s.record(entry)
	}
	s.logger.Info().Str("outcome", entry.Outcome).Str("prev_status", string(prev)).Msg("call attempt ended")
	s.notifyChange()
}

// connectLocked flips the focus call to connected and starts the 1 Hz
// duration counter at zero.
func (s *Session) connectLocked(att int) {
	s.status = StatusConnected
	s.connectedAt = time.Now()
	s.elapsed = 0
	s.ringTimer.Cancel()
	s.durTimer.Arm(s.tick, func() { s.onDurationTick(att) })
}

func (s *Session) onDurationTick(att int) {
	s.mu.Lock()
	if s.attempt != att || s.status != StatusConnected {
		s.mu.Unlock()
		return
	}
	s.elapsed++
	s.durTimer.Arm(s.tick, func() { s.onDurationTick(att) })
	s.mu.Unlock()
	s.notifyChange()
}

func (s *Session) clearEnding() {
	s.mu.Lock()
	if s.status != StatusEnding {
		s.mu.Unlock()
		return
	}
	s.status = StatusIdle
	s.focus = nil
	s.mu.Unlock()
	s.notifyChange()
}

// cleanupLocked releases every per-attempt resource: local media, the
// peer connection and both timer classes. Media must never stay open
// once the session returns to idle.
func (s *Session) cleanupLocked() {
	s.attempt++ // invalidate in-flight async work
	if s.stream != nil {
		s.stream.Close()
		s.stream = nil
	}
	if s.handle != nil {
		s.handle.Destroy()
		s.handle = nil
	}
	s.ringTimer.Cancel()
	s.durTimer.Cancel()
	s.elapsed = 0
}

// terminalEntryLocked builds the history entry for the focus call as it
// ends in status prev.
func (s *Session) terminalEntryLocked(prev Status, rec *CallRecord) LogEntry {
	if rec == nil {
		return LogEntry{}
	}
	entry := LogEntry{
		CallID:    rec.CallID,
		PeerID:    rec.PeerID,
		PeerName:  rec.DisplayName,
		Direction: DirectionOutbound,
		StartedAt: rec.ReceivedAt,
	}
	if rec.SignalPayload != nil {
		entry.Direction = DirectionInbound
	}
	switch prev {
	case StatusConnected:
		entry.Outcome = OutcomeCompleted
		entry.DurationSecs = s.elapsed
		entry.StartedAt = s.connectedAt
	case StatusCalling:
		entry.Outcome = OutcomeCancelled
	default:
		entry.Outcome = OutcomeMissed
	}
	return entry
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		Status:      s.status,
		ElapsedSecs: s.elapsed,
		Queue:       s.queue.All(),
		Busy:        s.status == StatusCalling || s.status == StatusConnected,
	}
	if s.focus != nil {
		rec := *s.focus
		snap.Focus = &rec
	}
	return snap
}

func (s *Session) notifyChange() {
	if s.onChange == nil {
		return
	}
	s.mu.Lock()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.onChange(snap)
}

func (s *Session) record(entry LogEntry) {
	if s.recorder == nil || entry.PeerID == "" {
		return
	}
	go func() {
		if err := s.recorder.SaveCallLog(entry); err != nil {
			s.logger.Error().Err(err).Str("call_id", entry.CallID).Msg("failed to save call log")
		}
	}()
}

// mediaNotice maps acquisition failures onto their distinct notices.
func mediaNotice(err error) Notice {
	switch {
	case errors.Is(err, media.ErrNoDevice):
		return Notice{Kind: NoticeNoDevice, Message: "no microphone detected"}
	case errors.Is(err, media.ErrPermissionDenied):
		return Notice{Kind: NoticeNoPermission, Message: "microphone access denied"}
	default:
		return Notice{Kind: NoticeMediaError, Message: "could not start audio"}
	}
}
