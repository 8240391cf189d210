package audio

import "github.com/zaf/g711"

// FrameBytes is the fixed outbound carrier frame size: 160 bytes of μ-law at
// 8 kHz is exactly 20 ms of audio (§3 AudioFrame, §4.2).
const FrameBytes = 160

// DecodeUlaw converts μ-law-encoded bytes (one byte per sample) to
// little-endian int16 PCM.
func DecodeUlaw(mulaw []byte) []byte {
	return g711.DecodeUlaw(mulaw)
}

// EncodeUlaw converts little-endian int16 PCM to μ-law bytes (one byte per
// sample).
func EncodeUlaw(pcm []byte) []byte {
	return g711.EncodeUlaw(pcm)
}

// SilenceUlaw is the μ-law encoding of digital silence (0xFF, per ITU-T
// G.711 companding of a zero sample). Nothing in this package pads with it:
// [Framer] carries a short trailing frame forward as a remainder instead.
const SilenceUlaw = 0xFF
