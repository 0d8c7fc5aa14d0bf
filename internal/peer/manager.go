package peer

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/mathiu1/aadhavmadhav-sub000/internal/media"
)

// Populator registers codec parameters on a media engine. The device
// source implements it so captured tracks match the negotiated codecs.
type Populator interface {
	Populate(engine *webrtc.MediaEngine)
}

// Manager builds one peer connection handle per call attempt. Calls are
// audio-only and use non-trickle ICE: a single complete description is
// produced per side and exchanged as an opaque blob over signaling.
type Manager struct {
	populator  Populator
	iceServers []webrtc.ICEServer
	logger     zerolog.Logger
}

// NewManager creates a Manager. populator may be nil, in which case the
// default codecs are registered (used when no local capture is wired).
func NewManager(populator Populator, logger zerolog.Logger) *Manager {
	return &Manager{
		populator: populator,
		iceServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
		logger: logger.With().Str("component", "peer").Logger(),
	}
}

// Create builds a handle for one call attempt. For the initiator the
// local signal is produced immediately; for the responder it is produced
// after ApplyRemoteSignal feeds in the remote offer.
func (m *Manager) Create(initiator bool, stream media.Stream) (*Handle, error) {
	engine := &webrtc.MediaEngine{}
	if m.populator != nil {
		m.populator.Populate(engine)
	} else if err := engine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(engine, registry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(engine),
		webrtc.WithInterceptorRegistry(registry),
	)

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: m.iceServers})
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	h := &Handle{
		pc:          pc,
		initiator:   initiator,
		localSignal: make(chan []byte, 1),
		remoteReady: make(chan struct{}),
		logger:      m.logger,
	}

	added := false
	if stream != nil {
		for _, track := range stream.AudioTracks() {
			if _, err := pc.AddTrack(track); err != nil {
				h.Destroy()
				return nil, fmt.Errorf("add track: %w", err)
			}
			added = true
		}
	}
	if !added {
		// Without a local track the offer still needs an audio m-line
		// with ICE credentials.
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			h.Destroy()
			return nil, fmt.Errorf("add transceiver: %w", err)
		}
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		m.logger.Debug().Str("codec", track.Codec().MimeType).Msg("remote track arrived")
		h.remoteOnce.Do(func() { close(h.remoteReady) })
	})

	if initiator {
		go h.produceLocalSignal()
	}

	return h, nil
}

// Handle wraps a single peer connection for one call attempt.
type Handle struct {
	pc        *webrtc.PeerConnection
	initiator bool
	logger    zerolog.Logger

	localSignal chan []byte
	remoteReady chan struct{}

	remoteOnce  sync.Once
	destroyOnce sync.Once
	answerOnce  sync.Once
}

// LocalSignal delivers the complete local description exactly once per
// attempt, ready to send over the signaling channel.
func (h *Handle) LocalSignal() <-chan []byte {
	return h.localSignal
}

// RemoteReady is closed when the first remote audio track arrives.
func (h *Handle) RemoteReady() <-chan struct{} {
	return h.remoteReady
}

// ApplyRemoteSignal feeds the remote description into the connection:
// the offer for the responder, the answer for the initiator. For the
// responder this also starts local signal production.
func (h *Handle) ApplyRemoteSignal(payload []byte) error {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(payload, &desc); err != nil {
		return fmt.Errorf("decode remote signal: %w", err)
	}
	if err := h.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	if !h.initiator {
		h.answerOnce.Do(func() { go h.produceLocalSignal() })
	}
	return nil
}

// produceLocalSignal creates the local description, waits for ICE
// gathering to complete and publishes the result.
func (h *Handle) produceLocalSignal() {
	var desc webrtc.SessionDescription
	var err error
	if h.initiator {
		desc, err = h.pc.CreateOffer(nil)
	} else {
		desc, err = h.pc.CreateAnswer(nil)
	}
	if err != nil {
		h.logger.Error().Err(err).Bool("initiator", h.initiator).Msg("create description failed")
		return
	}

	gathered := webrtc.GatheringCompletePromise(h.pc)
	if err := h.pc.SetLocalDescription(desc); err != nil {
		h.logger.Error().Err(err).Msg("set local description failed")
		return
	}
	<-gathered

	local := h.pc.LocalDescription()
	if local == nil {
		return
	}
	payload, err := json.Marshal(local)
	if err != nil {
		h.logger.Error().Err(err).Msg("marshal local description failed")
		return
	}

	select {
	case h.localSignal <- payload:
	default:
		// Already produced once for this attempt.
	}
}

// Destroy tears down the connection. Safe to call repeatedly and on a
// handle that never finished establishing.
func (h *Handle) Destroy() {
	h.destroyOnce.Do(func() {
		if err := h.pc.Close(); err != nil {
			h.logger.Debug().Err(err).Msg("peer connection close")
		}
	})
}
