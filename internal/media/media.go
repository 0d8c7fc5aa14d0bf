package media

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v4"
)

// Acquisition failures must stay distinguishable so the UI can tell the
// user "plug in a microphone" apart from "grant permission".
var (
	ErrNoDevice         = errors.New("media: no capture device present")
	ErrPermissionDenied = errors.New("media: capture permission denied")
)

// Stream is a set of live local audio tracks. Close stops the underlying
// capture so the device is released.
type Stream interface {
	AudioTracks() []webrtc.TrackLocal
	Close()
}

// Source acquires local audio. Acquisition is the only suspending step
// before a peer connection exists, so cancellation via ctx matters: a
// caller that has since moved on discards the result and closes it.
type Source interface {
	Acquire(ctx context.Context) (Stream, error)
}
