package rtc

import (
	"fmt"

	pion "github.com/pion/webrtc/v4"
)

// TrackSource adapts a local pion track to the domain.VideoSource the session
// core passes around by reference.
type TrackSource struct {
	track pion.TrackLocal
}

// NewSampleSource builds a source backed by a sample track the capture layer
// writes encoded H264 samples into.
func NewSampleSource(id, streamID string) (*TrackSource, *pion.TrackLocalStaticSample, error) {
	track, err := pion.NewTrackLocalStaticSample(
		pion.RTPCodecCapability{MimeType: pion.MimeTypeH264},
		id, streamID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create local track: %w", err)
	}
	return &TrackSource{track: track}, track, nil
}

// NewTrackSource wraps an existing local track.
func NewTrackSource(track pion.TrackLocal) *TrackSource {
	return &TrackSource{track: track}
}

// Ready reports whether the source can be attached.
func (s *TrackSource) Ready() bool {
	return s != nil && s.track != nil
}
