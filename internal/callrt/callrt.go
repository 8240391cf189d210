// Package callrt binds an upstream [realtime.SessionHandle] to a Call's
// [callsession.Session] and tool catalogue (C3, §4.3). It is the "upstream
// event handler" named in the concurrency model: a single goroutine per
// call that demultiplexes transcript, speech, and audio events, applies the
// barge-in and audio-suppression rules, appends conversation history, runs
// the fallback name/email extractor, and dispatches tool calls under a
// bounded wall clock. [ManagedSession] itself satisfies
// [realtime.SessionHandle] so it can be handed directly to
// internal/bridge in place of the raw provider session.
package callrt

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/relaycall/voicegateway/internal/callsession"
	"github.com/relaycall/voicegateway/internal/convo"
	"github.com/relaycall/voicegateway/internal/tools"
	"github.com/relaycall/voicegateway/pkg/realtime"
)

// ToolTimeout bounds a single tool-call handler's wall clock (§4.3).
// Exceeding it returns a tool-failure result to the model rather than
// hanging the call. A var, not a const, so tests can shorten it.
var ToolTimeout = 30 * time.Second

// ManagedSession wraps a raw realtime session for exactly one call. Not
// safe for concurrent use beyond the channel-based [realtime.SessionHandle]
// contract it implements: session-state mutation happens only on its
// internal loop goroutine, including tool dispatch, which the model-facing
// event stream guarantees runs one function call at a time.
type ManagedSession struct {
	raw     realtime.SessionHandle
	session *callsession.Session
	tools   map[string]tools.Tool

	audio  chan []byte
	speech chan struct{}

	responding bool // mirrors assistant-response lifecycle locally; see loop.
}

// Connect opens an upstream session through provider, wires it to sess and
// the given tool catalogue, and starts its event loop. The returned
// ManagedSession is ready to pass to [bridge.New] in place of the raw
// session.
func Connect(ctx context.Context, provider realtime.Provider, cfg realtime.SessionConfig, sess *callsession.Session, catalogue []tools.Tool) (*ManagedSession, error) {
	raw, err := provider.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]tools.Tool, len(catalogue))
	for _, t := range catalogue {
		byName[t.Definition.Name] = t
	}

	m := &ManagedSession{
		raw:     raw,
		session: sess,
		tools:   byName,
		audio:   make(chan []byte, 64),
		speech:  make(chan struct{}, 4),
	}
	raw.OnToolCall(m.dispatchTool)
	go m.loop(ctx)
	return m, nil
}

// loop is the call's single upstream event handler (§5 concurrency model,
// task 4). It owns every mutation of m.session for the realtime path.
func (m *ManagedSession) loop(ctx context.Context) {
	defer close(m.audio)
	defer close(m.speech)

	transcripts := m.raw.Transcripts()
	speechStarted := m.raw.SpeechStarted()
	rawAudio := m.raw.Audio()

	for {
		select {
		case <-ctx.Done():
			return

		case _, ok := <-speechStarted:
			if !ok {
				return
			}
			m.handleSpeechStarted()

		case delta, ok := <-transcripts:
			if !ok {
				return
			}
			m.handleTranscript(delta)

		case chunk, ok := <-rawAudio:
			if !ok {
				return
			}
			m.handleAudioDelta(chunk)
		}
	}
}

// handleSpeechStarted implements the "speech started" row of §4.3: cancel
// an in-flight response, suppress its residual audio, and signal the
// bridge (via m.speech) to clear its pacing queue.
func (m *ManagedSession) handleSpeechStarted() {
	if m.session.IsResponding {
		if err := m.raw.Interrupt(); err != nil {
			slog.Warn("callrt: failed to interrupt in-flight response", "call_id", m.session.CallID, "err", err)
		}
	}
	m.session.SuppressAudio = true
	m.session.ActiveResponseID = ""

	select {
	case m.speech <- struct{}{}:
	default:
	}
}

// handleTranscript implements the "user transcription completed" and the
// assistant-transcript rows of §4.3. A response-start delta (ResponseID set,
// Done false, no text) sets Session.ActiveResponseID so IsResponding never
// goes true without a corresponding handle; it also clears suppressAudio so
// the response's audio is no longer dropped. The matching Done delta clears
// both IsResponding and ActiveResponseID, with or without trailing text.
func (m *ManagedSession) handleTranscript(delta realtime.TranscriptDelta) {
	switch delta.Role {
	case realtime.RoleUser:
		if !delta.Done || delta.Text == "" {
			return
		}
		m.session.AppendHistory(callsession.RoleUser, delta.Text)
		convo.ApplyFallbackExtraction(m.session, delta.Text)

	case realtime.RoleAssistant:
		if delta.ResponseID != "" && !delta.Done {
			m.session.ActiveResponseID = delta.ResponseID
			m.session.IsResponding = true
			m.session.SuppressAudio = false
		}
		if delta.Done {
			if delta.Text != "" {
				m.session.AppendHistory(callsession.RoleAssistant, delta.Text)
			}
			m.session.IsResponding = false
			m.session.ActiveResponseID = ""
		}
	}
}

// handleAudioDelta implements the "response audio delta" row of §4.3.
// IsResponding is normally already true by the time audio arrives (set by
// the response-start transcript delta in handleTranscript, which also sets
// ActiveResponseID); this assignment only matters as a fallback for a
// provider whose wire protocol has no distinct response-start event.
func (m *ManagedSession) handleAudioDelta(chunk []byte) {
	if m.session.SuppressAudio {
		return
	}
	m.session.IsResponding = true
	m.audio <- chunk
}

// dispatchTool runs the named tool under [ToolTimeout] and translates a
// timeout into the apology-and-handoff result §4.3 calls for, rather than
// a raw tool error.
func (m *ManagedSession) dispatchTool(ctx context.Context, name, args string) (string, error) {
	t, ok := m.tools[name]
	if !ok {
		return `{"success":false,"message":"That action isn't available right now."}`, nil
	}

	toolCtx, cancel := context.WithTimeout(ctx, ToolTimeout)
	defer cancel()

	result, err := t.Handler(toolCtx, args)
	if errors.Is(err, context.DeadlineExceeded) {
		return `{"success":false,"message":"Sorry, that is taking longer than expected. Let me connect you with someone who can help."}`, nil
	}
	if err != nil {
		return "", err
	}
	return result, nil
}

// The following methods satisfy [realtime.SessionHandle] so a
// *ManagedSession can be passed directly to bridge.New.

func (m *ManagedSession) SendAudio(chunk []byte) error                 { return m.raw.SendAudio(chunk) }
func (m *ManagedSession) CommitAudio() error                           { return m.raw.CommitAudio() }
func (m *ManagedSession) Audio() <-chan []byte                         { return m.audio }
func (m *ManagedSession) SpeechStarted() <-chan struct{}               { return m.speech }
func (m *ManagedSession) Transcripts() <-chan realtime.TranscriptDelta { return m.raw.Transcripts() }
func (m *ManagedSession) Err() error                                   { return m.raw.Err() }
func (m *ManagedSession) OnToolCall(handler realtime.ToolCallHandler)  { m.raw.OnToolCall(handler) }
func (m *ManagedSession) TriggerOpeningTurn() error                    { return m.raw.TriggerOpeningTurn() }
func (m *ManagedSession) Interrupt() error                             { return m.raw.Interrupt() }
func (m *ManagedSession) Close() error                                 { return m.raw.Close() }

var _ realtime.SessionHandle = (*ManagedSession)(nil)
