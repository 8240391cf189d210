// Package openai implements [realtime.Provider] against OpenAI's realtime
// speech-to-speech WebSocket API.
package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/relaycall/voicegateway/pkg/realtime"
)

const defaultBaseURL = "wss://api.openai.com/v1/realtime"

// Provider connects to the OpenAI realtime API.
type Provider struct {
	apiKey  string
	baseURL string
	model   string
}

// Option configures a [Provider].
type Option func(*Provider)

// WithBaseURL overrides the default realtime endpoint, useful in tests.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// New creates a realtime [Provider] authenticated with apiKey, targeting
// model (e.g. "gpt-4o-realtime-preview").
func New(apiKey, model string, opts ...Option) *Provider {
	p := &Provider{apiKey: apiKey, baseURL: defaultBaseURL, model: model}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Capabilities returns static metadata about the OpenAI realtime model.
func (p *Provider) Capabilities() realtime.Capabilities {
	return realtime.Capabilities{
		MaxSessionDurationMs: 30 * 60 * 1000,
		SupportsResumption:   false,
	}
}

// Connect dials the realtime WebSocket, sends the initial session.update,
// and triggers the opening greeting turn (§4.3).
func (p *Provider) Connect(ctx context.Context, cfg realtime.SessionConfig) (realtime.SessionHandle, error) {
	url := fmt.Sprintf("%s?model=%s", p.baseURL, p.model)
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": {"Bearer " + p.apiKey},
			"OpenAI-Beta":   {"realtime=v1"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("realtime/openai: dial: %w", err)
	}

	sessCtx, cancel := context.WithCancel(context.Background())
	s := &session{
		conn:        conn,
		ctx:         sessCtx,
		cancel:      cancel,
		audio:       make(chan []byte, 64),
		speech:      make(chan struct{}, 4),
		transcripts: make(chan realtime.TranscriptDelta, 64),
	}

	if err := s.sendSessionUpdate(cfg); err != nil {
		s.Close()
		return nil, fmt.Errorf("realtime/openai: session.update: %w", err)
	}

	go s.readLoop()

	if err := s.TriggerOpeningTurn(); err != nil {
		s.Close()
		return nil, fmt.Errorf("realtime/openai: trigger opening turn: %w", err)
	}

	return s, nil
}

// session implements [realtime.SessionHandle].
type session struct {
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc

	audio       chan []byte
	speech      chan struct{}
	transcripts chan realtime.TranscriptDelta

	mu           sync.Mutex
	toolHandler  realtime.ToolCallHandler
	isResponding bool
	activeRespID string
	closed       bool
	err          error
}

// clientEvent mirrors the subset of the OpenAI realtime wire protocol this
// gateway drives (§6). Fields are sent sparsely; omitempty keeps unrelated
// zero values out of the JSON payload.
type clientEvent struct {
	Type  string `json:"type"`
	Audio string `json:"audio,omitempty"`

	Session *sessionUpdatePayload `json:"session,omitempty"`
	Item    *conversationItem     `json:"item,omitempty"`
	Response *responseCreate      `json:"response,omitempty"`
}

type sessionUpdatePayload struct {
	Modalities              []string         `json:"modalities"`
	Instructions            string           `json:"instructions"`
	Voice                   string           `json:"voice,omitempty"`
	InputAudioFormat        string           `json:"input_audio_format"`
	OutputAudioFormat       string           `json:"output_audio_format"`
	Tools                   []toolSchema     `json:"tools,omitempty"`
	ToolChoice              string           `json:"tool_choice,omitempty"`
	Temperature             float64          `json:"temperature,omitempty"`
	TurnDetection           *turnDetection   `json:"turn_detection,omitempty"`
}

type turnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms"`
	SilenceDurationMs int     `json:"silence_duration_ms"`
	CreateResponse    bool    `json:"create_response"`
	InterruptResponse bool    `json:"interrupt_response"`
}

type toolSchema struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type conversationItem struct {
	Type    string            `json:"type"`
	Role    string            `json:"role,omitempty"`
	CallID  string            `json:"call_id,omitempty"`
	Output  string            `json:"output,omitempty"`
	Content []conversationPart `json:"content,omitempty"`
}

type conversationPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type responseCreate struct{}

// serverEvent is decoded generically first (by Type), then re-decoded into
// the specific shape.
type serverEvent struct {
	Type         string          `json:"type"`
	Response     *responseObject `json:"response,omitempty"`
	Delta        string          `json:"delta,omitempty"`
	Transcript   string          `json:"transcript,omitempty"`
	CallID       string          `json:"call_id,omitempty"`
	Name         string          `json:"name,omitempty"`
	Arguments    string          `json:"arguments,omitempty"`
	Error        *apiError       `json:"error,omitempty"`
}

type responseObject struct {
	ID string `json:"id"`
}

type apiError struct {
	Message string `json:"message"`
}

func (s *session) sendSessionUpdate(cfg realtime.SessionConfig) error {
	tools := make([]toolSchema, 0, len(cfg.Tools))
	for _, t := range cfg.Tools {
		tools = append(tools, toolSchema{Type: "function", Name: t.Name, Description: t.Description, Parameters: t.Parameters})
	}

	td := cfg.TurnDetection
	payload := sessionUpdatePayload{
		Modalities:        []string{"audio", "text"},
		Instructions:      cfg.Instructions,
		Voice:             cfg.VoiceID,
		InputAudioFormat:  "pcm16",
		OutputAudioFormat: "pcm16",
		Tools:             tools,
		ToolChoice:        "auto",
		Temperature:       cfg.Temperature,
		TurnDetection: &turnDetection{
			Type:              "server_vad",
			Threshold:         td.Threshold,
			PrefixPaddingMs:   td.PrefixPaddingMs,
			SilenceDurationMs: td.SilenceDurationMs,
			CreateResponse:    td.CreateResponse,
			InterruptResponse: td.InterruptResponse,
		},
	}
	return s.send(clientEvent{Type: "session.update", Session: &payload})
}

// TriggerOpeningTurn inserts the synthetic "[SESSION_START]" user item and
// requests a response (§4.3).
func (s *session) TriggerOpeningTurn() error {
	item := conversationItem{
		Type: "message",
		Role: "user",
		Content: []conversationPart{
			{Type: "input_text", Text: "[SESSION_START]"},
		},
	}
	if err := s.send(clientEvent{Type: "conversation.item.create", Item: &item}); err != nil {
		return err
	}
	return s.send(clientEvent{Type: "response.create", Response: &responseCreate{}})
}

func (s *session) SendAudio(chunk []byte) error {
	return s.send(clientEvent{Type: "input_audio_buffer.append", Audio: base64.StdEncoding.EncodeToString(chunk)})
}

func (s *session) CommitAudio() error {
	return s.send(clientEvent{Type: "input_audio_buffer.commit"})
}

func (s *session) Audio() <-chan []byte                       { return s.audio }
func (s *session) SpeechStarted() <-chan struct{}              { return s.speech }
func (s *session) Transcripts() <-chan realtime.TranscriptDelta { return s.transcripts }

func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *session) OnToolCall(handler realtime.ToolCallHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toolHandler = handler
}

// Interrupt cancels the in-flight response. Once a response has completed,
// isResponding is false, so this is silently a no-op —
// matching the "cancel on a finished response" contract (§4.3, §8).
func (s *session) Interrupt() error {
	s.mu.Lock()
	responding := s.isResponding
	s.mu.Unlock()
	if !responding {
		return nil
	}
	return s.send(clientEvent{Type: "response.cancel"})
}

func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	err := s.conn.Close(websocket.StatusNormalClosure, "session closed")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (s *session) send(ev clientEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("realtime/openai: marshal %s: %w", ev.Type, err)
	}
	return s.conn.Write(s.ctx, websocket.MessageText, data)
}

// readLoop demultiplexes server events per the table in §4.3, updating
// Session-adjacent state (isResponding/activeRespID/suppression handled one
// layer up in internal/callrt, which owns the Session) and fanning audio,
// transcript, and tool-call events out to their channels.
func (s *session) readLoop() {
	defer close(s.audio)
	defer close(s.speech)
	defer close(s.transcripts)

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			s.mu.Lock()
			if !s.closed {
				s.err = err
			}
			s.mu.Unlock()
			return
		}

		var ev serverEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			slog.Warn("realtime/openai: malformed server event", "err", err)
			continue
		}

		switch ev.Type {
		case "input_audio_buffer.speech_started":
			select {
			case s.speech <- struct{}{}:
			default:
			}

		case "input_audio_buffer.speech_stopped":
			// No dedicated channel; downstream observers can key off the
			// next transcript/audio event.

		case "conversation.item.input_audio_transcription.completed":
			s.transcripts <- realtime.TranscriptDelta{Role: realtime.RoleUser, Text: ev.Transcript, Done: true}

		case "response.audio.delta":
			chunk, err := base64.StdEncoding.DecodeString(ev.Delta)
			if err != nil {
				slog.Warn("realtime/openai: bad audio delta base64", "err", err)
				continue
			}
			s.mu.Lock()
			s.isResponding = true
			s.mu.Unlock()
			s.audio <- chunk

		case "response.audio_transcript.delta":
			s.transcripts <- realtime.TranscriptDelta{Role: realtime.RoleAssistant, Text: ev.Delta}

		case "response.audio_transcript.done":
			s.transcripts <- realtime.TranscriptDelta{Role: realtime.RoleAssistant, Text: ev.Transcript, Done: true}

		case "response.function_call_arguments.done":
			s.handleToolCall(ev)

		case "response.created":
			if ev.Response != nil {
				s.mu.Lock()
				s.activeRespID = ev.Response.ID
				s.mu.Unlock()
				s.transcripts <- realtime.TranscriptDelta{Role: realtime.RoleAssistant, ResponseID: ev.Response.ID}
			}

		case "response.done":
			s.mu.Lock()
			s.isResponding = false
			s.activeRespID = ""
			s.mu.Unlock()
			s.transcripts <- realtime.TranscriptDelta{Role: realtime.RoleAssistant, Done: true}

		case "error":
			msg := "unknown error"
			if ev.Error != nil {
				msg = ev.Error.Message
			}
			slog.Warn("realtime/openai: upstream error event", "message", msg)

		case "session.created", "session.updated":
			// Acknowledged, nothing to do.
		}
	}
}

// handleToolCall runs the registered tool handler and feeds its result back
// as a function_call_output item, then requests a follow-up response so the
// model speaks the result (§4.3).
func (s *session) handleToolCall(ev serverEvent) {
	s.mu.Lock()
	handler := s.toolHandler
	s.mu.Unlock()
	if handler == nil {
		slog.Warn("realtime/openai: function call with no registered handler", "name", ev.Name)
		return
	}

	result, err := handler(s.ctx, ev.Name, ev.Arguments)
	if err != nil {
		result = fmt.Sprintf(`{"success":false,"error":%q}`, err.Error())
	}

	item := conversationItem{
		Type:   "function_call_output",
		CallID: ev.CallID,
		Output: result,
	}
	if sendErr := s.send(clientEvent{Type: "conversation.item.create", Item: &item}); sendErr != nil {
		slog.Warn("realtime/openai: failed to send tool result", "err", sendErr)
		return
	}
	if sendErr := s.send(clientEvent{Type: "response.create", Response: &responseCreate{}}); sendErr != nil {
		slog.Warn("realtime/openai: failed to request follow-up response", "err", sendErr)
	}
}
