// Package bridge implements the per-call media bridge (C2, §4.2): it
// shuttles audio between the carrier's μ-law 8kHz WebSocket and the
// realtime session's PCM16 24kHz interface, resampling and re-framing in
// both directions, pacing outbound carrier frames at a fixed 20ms cadence,
// and clearing queued audio on barge-in.
package bridge

import (
	"context"
	"log/slog"

	"github.com/relaycall/voicegateway/pkg/audio"
	"github.com/relaycall/voicegateway/pkg/realtime"
)

// carrierSampleRate and modelSampleRate are the fixed sample rates on each
// side of the bridge (§4.2).
const (
	carrierSampleRate = 8000
	modelSampleRate   = 24000
)

// CarrierConn abstracts one call's carrier media WebSocket, implemented by
// internal/carrier. Its shape mirrors [realtime.SessionHandle]: channel-based
// reads, an explicit write method, and a terminal error.
type CarrierConn interface {
	// Inbound yields raw μ-law payloads decoded from "media" events. Closed
	// when the carrier sends "stop" or the connection drops.
	Inbound() <-chan []byte

	// DTMF yields digits decoded from "dtmf" events.
	DTMF() <-chan string

	// WriteMedia sends one 160-byte μ-law frame to the carrier as a "media"
	// event.
	WriteMedia(frame []byte) error

	// Err returns the error that closed Inbound, or nil on a clean close.
	Err() error
}

// DTMFHandler is invoked for each digit the caller presses (§4.2: "the
// bridge exposes a handleDTMF(digit) entry").
type DTMFHandler func(ctx context.Context, digit string)

// Bridge owns exactly one Call's audio path between a [CarrierConn] and a
// [realtime.SessionHandle]. One Bridge instance per Call; not reused.
type Bridge struct {
	carrier CarrierConn
	session realtime.SessionHandle
	onDTMF  DTMFHandler

	pacer  *audio.Pacer
	framer audio.Framer
}

// New creates a Bridge wiring carrier and session together. Call Run to
// start pumping audio; it blocks until either side closes or ctx is
// cancelled.
func New(carrier CarrierConn, session realtime.SessionHandle, onDTMF DTMFHandler) *Bridge {
	b := &Bridge{
		carrier: carrier,
		session: session,
		onDTMF:  onDTMF,
	}
	b.pacer = audio.NewPacer(b.emitToCarrier, audio.DefaultPacingCapacity)
	return b
}

// Run starts the inbound, outbound, barge-in, and DTMF pumps and blocks
// until one of them exits, then cancels and waits for the rest (§5
// concurrency model). The bridge ends the moment any single pump returns,
// clean or not: once the carrier stops sending media or the session closes,
// the remaining pumps have nothing left to shuttle. Returns that first
// pump's error, or nil if it exited because ctx was cancelled or its peer
// closed cleanly.
func (b *Bridge) Run(ctx context.Context) error {
	defer b.pacer.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pumps := []func(context.Context) error{b.pumpInbound, b.pumpOutbound, b.pumpBargeIn, b.pumpDTMF}
	results := make(chan error, len(pumps))
	for _, pump := range pumps {
		go func(p func(context.Context) error) { results <- p(ctx) }(pump)
	}

	first := <-results
	cancel()
	for i := 1; i < len(pumps); i++ {
		<-results
	}

	if first == context.Canceled {
		return nil
	}
	return first
}

// pumpInbound implements the carrier→model path: μ-law-decode, resample to
// 24kHz, forward to the realtime session (§4.2 "Inbound").
func (b *Bridge) pumpInbound(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-b.carrier.Inbound():
			if !ok {
				return b.carrier.Err()
			}

			pcm8k := audio.DecodeUlaw(frame)
			pcm24k := audio.ResampleMono16(pcm8k, carrierSampleRate, modelSampleRate)

			if err := b.session.SendAudio(pcm24k); err != nil {
				slog.Warn("bridge: failed to forward audio to realtime session", "err", err)
			}
		}
	}
}

// pumpOutbound implements the model→carrier path: resample to 8kHz,
// μ-law-encode, re-frame to 160 bytes carrying the remainder forward, and
// enqueue onto the pacer (§4.2 "Outbound"). The resample and μ-law calls
// return no error, so no chunk is skipped for a codec failure.
func (b *Bridge) pumpOutbound(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case chunk, ok := <-b.session.Audio():
			if !ok {
				return b.session.Err()
			}

			pcm8k := audio.ResampleMono16(chunk, modelSampleRate, carrierSampleRate)
			ulaw := audio.EncodeUlaw(pcm8k)

			for _, frame := range b.framer.Push(ulaw) {
				b.pacer.Enqueue(frame)
			}
		}
	}
}

// pumpBargeIn discards queued outbound audio and the framer's remainder the
// instant the model detects the caller has started speaking, so no stale
// audio plays after an interruption (§4.2 "Barge-in", §8 property 3).
func (b *Bridge) pumpBargeIn(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-b.session.SpeechStarted():
			if !ok {
				return nil
			}
			b.pacer.Clear()
			b.framer.Reset()
		}
	}
}

// pumpDTMF relays carrier DTMF digits to the configured handler (§4.2
// "DTMF intake").
func (b *Bridge) pumpDTMF(ctx context.Context) error {
	if b.onDTMF == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case digit, ok := <-b.carrier.DTMF():
			if !ok {
				return nil
			}
			b.onDTMF(ctx, digit)
		}
	}
}

// emitToCarrier is the pacer's output callback: one 160-byte μ-law frame
// per call, at the pacer's fixed 20ms cadence.
func (b *Bridge) emitToCarrier(frame []byte) error {
	return b.carrier.WriteMedia(frame)
}
