// Package realtime defines the Provider interface for speech-to-speech (S2S)
// realtime backends (C3, §4.3).
//
// A realtime provider wraps a cloud voice AI service that accepts raw PCM16
// audio input and returns synthesised PCM16 audio output over a single,
// stateful, bidirectional session — bypassing a separate STT → LLM → TTS
// pipeline. The central abstraction is [SessionHandle]: a multiplexed
// channel that carries audio, transcripts, and tool calls concurrently.
//
// All implementations must be safe for concurrent use.
package realtime

import "context"

// ToolCallHandler is invoked by the session whenever the model requests a
// tool call. It receives the tool name and a JSON-encoded arguments string
// and must return either a JSON result string or an error. The handler may
// run on the session's internal receive goroutine; implementors must not
// call blocking session methods from within it, to avoid deadlocks. Callers
// that need longer than the per-turn wall clock bound (§4.3) must still
// return within that bound — a timeout is the caller's responsibility.
type ToolCallHandler func(ctx context.Context, name string, args string) (string, error)

// ContextItem is a text message injected into the session's context
// mid-conversation without resending the full history.
type ContextItem struct {
	// Role is one of "system", "user", "assistant".
	Role string
	// Content is the text content of the context item.
	Content string
}

// ToolDefinition describes a tool offered to the model for function calling.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// TurnDetectionConfig configures server-side voice-activity detection
// (§4.3): threshold ~0.3, ~100ms prefix padding, ~1s trailing silence,
// automatic response creation, interruption enabled.
type TurnDetectionConfig struct {
	Threshold         float64
	PrefixPaddingMs   int
	SilenceDurationMs int
	CreateResponse    bool
	InterruptResponse bool
}

// DefaultTurnDetection returns the turn-detection values named in §4.3.
func DefaultTurnDetection() TurnDetectionConfig {
	return TurnDetectionConfig{
		Threshold:         0.3,
		PrefixPaddingMs:   100,
		SilenceDurationMs: 1000,
		CreateResponse:    true,
		InterruptResponse: true,
	}
}

// SessionConfig is the initial configuration for a new realtime session.
type SessionConfig struct {
	// Instructions is the system prompt for this call, resolved by C6 for
	// the call's business (falling back to a generic default).
	Instructions string

	// VoiceID selects the synthesised voice, fixed per business or a global
	// default.
	VoiceID string

	// Tools is the tool catalogue offered to the model. Tool choice is
	// always "auto".
	Tools []ToolDefinition

	// TurnDetection configures server-side VAD.
	TurnDetection TurnDetectionConfig

	// Temperature is the sampling temperature (~0.8 per §4.3).
	Temperature float64
}

// Capabilities describes static provider properties, constant for the
// provider instance's lifetime.
type Capabilities struct {
	MaxSessionDurationMs int
	SupportsResumption   bool
}

// TranscriptDelta is one piece of a user or assistant transcript as it is
// produced by the model. An assistant delta with a non-empty ResponseID and
// Done false marks the start of a new response (the provider's response.id),
// before any audio or text has arrived for it; callers use it to populate
// Session.ActiveResponseID so IsResponding never outlives a known handle.
type TranscriptDelta struct {
	Role       Role
	Text       string
	Done       bool
	ResponseID string
}

// Role identifies the speaker of a transcript event.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// SessionHandle represents an open realtime session. Every method must
// return quickly — audio I/O is channel-based so callers never block the
// bridge's pump goroutines. All methods are safe for concurrent use.
// Callers must call Close when the session is no longer needed.
type SessionHandle interface {
	// SendAudio delivers a PCM16 24kHz chunk (base64-encoded per the wire
	// protocol internally) to the model.
	SendAudio(chunk []byte) error

	// CommitAudio flushes the input audio buffer, used after a block of
	// frames when the caller manages turn boundaries manually. Most callers
	// rely on server-side VAD and never need this.
	CommitAudio() error

	// Audio emits PCM16 24kHz chunks as the model synthesises its reply.
	// Closed when the session ends; call [SessionHandle.Err] afterward.
	Audio() <-chan []byte

	// SpeechStarted emits a value every time the model detects the caller
	// has begun talking (barge-in signal, §4.3).
	SpeechStarted() <-chan struct{}

	// Transcripts emits transcript deltas for both caller speech and model
	// replies.
	Transcripts() <-chan TranscriptDelta

	// Err returns the error that closed the session prematurely, or nil on
	// a clean close.
	Err() error

	// OnToolCall registers the handler invoked when the model requests a
	// tool call. Passing nil clears it. Only one handler is active.
	OnToolCall(handler ToolCallHandler)

	// TriggerOpeningTurn inserts a synthetic "[SESSION_START]" user item and
	// requests a response, so the model's system prompt drives the greeting
	// (§4.3).
	TriggerOpeningTurn() error

	// Interrupt cancels the in-flight response, if any. Cancelling an
	// already-completed response is a no-op, not an error (§4.3, §8).
	Interrupt() error

	// Close terminates the session and releases all resources. Safe to call
	// more than once.
	Close() error
}

// Provider is the abstraction over any realtime S2S backend.
type Provider interface {
	// Connect establishes a new session. The returned handle is ready to
	// accept audio immediately.
	Connect(ctx context.Context, cfg SessionConfig) (SessionHandle, error)

	// Capabilities returns static provider metadata.
	Capabilities() Capabilities
}
