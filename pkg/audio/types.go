package audio

import "time"

// Direction identifies which leg of a call an [AudioFrame] belongs to.
type Direction int

const (
	// Inbound frames flow from the carrier toward the realtime model.
	Inbound Direction = iota
	// Outbound frames flow from the realtime model toward the carrier.
	Outbound
)

// AudioFrame represents a single frame of audio data flowing through the
// bridge. Frames are the atomic unit of audio transport: decoded from the
// carrier's μ-law media WS, resampled, and forwarded to the realtime session
// (and symmetrically in reverse).
type AudioFrame struct {
	// PCM audio data, little-endian int16 samples unless otherwise noted.
	Data []byte

	// SampleRate in Hz (8000 on the carrier leg, 24000 on the realtime leg).
	SampleRate int

	// Channels is always 1 (mono) for this system's audio paths.
	Channels int

	// Direction marks which leg this frame belongs to.
	Direction Direction

	// Timestamp marks when this frame was captured, relative to call start.
	Timestamp time.Duration
}
