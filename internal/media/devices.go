package media

import (
	"context"
	"fmt"
	"strings"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// DeviceSource captures microphone audio via pion/mediadevices, encoded
// as Opus. It also populates the webrtc media engine with the matching
// codec parameters so captured tracks can be added to a peer connection.
type DeviceSource struct {
	selector *mediadevices.CodecSelector
	logger   zerolog.Logger
}

// NewDeviceSource builds an Opus-only codec selector and the source.
func NewDeviceSource(logger zerolog.Logger) (*DeviceSource, error) {
	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("opus params: %w", err)
	}

	selector := mediadevices.NewCodecSelector(
		mediadevices.WithAudioEncoders(&opusParams),
	)

	return &DeviceSource{
		selector: selector,
		logger:   logger.With().Str("component", "media").Logger(),
	}, nil
}

// Populate registers the source's codecs on a webrtc media engine.
func (s *DeviceSource) Populate(engine *webrtc.MediaEngine) {
	s.selector.Populate(engine)
}

// Acquire opens the microphone. The ctx only guards the caller's interest:
// if it is already cancelled when capture completes, the stream is closed
// and ctx.Err returned so no device is left open for an abandoned attempt.
func (s *DeviceSource) Acquire(ctx context.Context) (Stream, error) {
	devices := mediadevices.EnumerateDevices()
	hasAudio := false
	for _, d := range devices {
		if d.Kind == mediadevices.AudioInput {
			hasAudio = true
		}
	}
	if !hasAudio {
		return nil, ErrNoDevice
	}

	ms, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Audio: func(c *mediadevices.MediaTrackConstraints) {},
		Codec: s.selector,
	})
	if err != nil {
		return nil, classify(err)
	}

	stream := &deviceStream{ms: ms}
	if err := ctx.Err(); err != nil {
		stream.Close()
		return nil, err
	}

	s.logger.Debug().Int("tracks", len(ms.GetAudioTracks())).Msg("microphone acquired")
	return stream, nil
}

// classify maps driver errors onto the package sentinels. Driver error
// strings are the only signal mediadevices gives us here.
func classify(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "failed to find"), strings.Contains(msg, "not found"):
		return fmt.Errorf("%w: %v", ErrNoDevice, err)
	case strings.Contains(msg, "permission"), strings.Contains(msg, "access denied"):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	default:
		return err
	}
}

type deviceStream struct {
	ms mediadevices.MediaStream
}

func (s *deviceStream) AudioTracks() []webrtc.TrackLocal {
	tracks := s.ms.GetAudioTracks()
	out := make([]webrtc.TrackLocal, 0, len(tracks))
	for _, tr := range tracks {
		out = append(out, tr)
	}
	return out
}

func (s *deviceStream) Close() {
	for _, tr := range s.ms.GetTracks() {
		tr.Close()
	}
}
