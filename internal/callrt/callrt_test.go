package callrt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/relaycall/voicegateway/internal/callsession"
	"github.com/relaycall/voicegateway/internal/tools"
	"github.com/relaycall/voicegateway/pkg/realtime"
)

// fakeRaw is a minimal realtime.SessionHandle double driven directly by
// tests, standing in for a provider connection.
type fakeRaw struct {
	audio       chan []byte
	speech      chan struct{}
	transcripts chan realtime.TranscriptDelta

	mu          sync.Mutex
	toolHandler realtime.ToolCallHandler
	interrupts  int
	closed      bool
}

func newFakeRaw() *fakeRaw {
	return &fakeRaw{
		audio:       make(chan []byte, 8),
		speech:      make(chan struct{}, 8),
		transcripts: make(chan realtime.TranscriptDelta, 8),
	}
}

func (f *fakeRaw) SendAudio(chunk []byte) error                 { return nil }
func (f *fakeRaw) CommitAudio() error                           { return nil }
func (f *fakeRaw) Audio() <-chan []byte                         { return f.audio }
func (f *fakeRaw) SpeechStarted() <-chan struct{}               { return f.speech }
func (f *fakeRaw) Transcripts() <-chan realtime.TranscriptDelta { return f.transcripts }
func (f *fakeRaw) Err() error                                   { return nil }
func (f *fakeRaw) TriggerOpeningTurn() error                    { return nil }
func (f *fakeRaw) Close() error                                 { f.closed = true; return nil }

func (f *fakeRaw) OnToolCall(handler realtime.ToolCallHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toolHandler = handler
}

func (f *fakeRaw) Interrupt() error {
	f.mu.Lock()
	f.interrupts++
	f.mu.Unlock()
	return nil
}

func (f *fakeRaw) interruptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.interrupts
}

func (f *fakeRaw) callTool(ctx context.Context, name, args string) (string, error) {
	f.mu.Lock()
	h := f.toolHandler
	f.mu.Unlock()
	return h(ctx, name, args)
}

var _ realtime.SessionHandle = (*fakeRaw)(nil)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestHandleTranscript_UserDoneAppendsHistoryAndExtracts(t *testing.T) {
	raw := newFakeRaw()
	sess := callsession.NewSession("call-1", "biz-1")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m, err := Connect(ctx, fakeProvider{raw: raw}, realtime.SessionConfig{}, sess, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	raw.transcripts <- realtime.TranscriptDelta{
		Role: realtime.RoleUser,
		Text: "My name is Jordan Lee and my email is jordan@example.com",
		Done: true,
	}

	waitFor(t, func() bool { return len(sess.History) > 0 })

	if sess.History[0].Role != callsession.RoleUser || sess.History[0].Text == "" {
		t.Fatalf("history entry = %+v, want appended user turn", sess.History[0])
	}
	waitFor(t, func() bool { return sess.UserInfo.Name != "" && sess.UserInfo.Email != "" })
	_ = m
}

func TestHandleSpeechStarted_InterruptsAndSuppressesAudio(t *testing.T) {
	raw := newFakeRaw()
	sess := callsession.NewSession("call-1", "biz-1")
	sess.IsResponding = true
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m, err := Connect(ctx, fakeProvider{raw: raw}, realtime.SessionConfig{}, sess, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	raw.speech <- struct{}{}

	waitFor(t, func() bool { return raw.interruptCount() == 1 })
	waitFor(t, func() bool { return sess.SuppressAudio })

	select {
	case <-m.SpeechStarted():
	case <-time.After(time.Second):
		t.Fatal("ManagedSession did not forward speech-started to its own channel")
	}
}

func TestHandleAudioDelta_DroppedWhileSuppressed(t *testing.T) {
	raw := newFakeRaw()
	sess := callsession.NewSession("call-1", "biz-1")
	sess.SuppressAudio = true
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m, err := Connect(ctx, fakeProvider{raw: raw}, realtime.SessionConfig{}, sess, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	raw.audio <- []byte{1, 2, 3}

	select {
	case <-m.Audio():
		t.Fatal("audio delta should have been dropped while suppressed")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHandleAudioDelta_ForwardedWhenNotSuppressed(t *testing.T) {
	raw := newFakeRaw()
	sess := callsession.NewSession("call-1", "biz-1")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m, err := Connect(ctx, fakeProvider{raw: raw}, realtime.SessionConfig{}, sess, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	raw.audio <- []byte{1, 2, 3}

	select {
	case chunk := <-m.Audio():
		if len(chunk) != 3 {
			t.Errorf("chunk = %v, want 3 bytes", chunk)
		}
	case <-time.After(time.Second):
		t.Fatal("audio delta was not forwarded")
	}
	waitFor(t, func() bool { return sess.IsResponding })
}

func TestHandleTranscript_ResponseStartSetsActiveResponseID(t *testing.T) {
	raw := newFakeRaw()
	sess := callsession.NewSession("call-1", "biz-1")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m, err := Connect(ctx, fakeProvider{raw: raw}, realtime.SessionConfig{}, sess, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	_ = m

	raw.transcripts <- realtime.TranscriptDelta{Role: realtime.RoleAssistant, ResponseID: "resp-1"}

	waitFor(t, func() bool { return sess.IsResponding })
	if sess.ActiveResponseID != "resp-1" {
		t.Fatalf("ActiveResponseID = %q, want resp-1", sess.ActiveResponseID)
	}

	raw.transcripts <- realtime.TranscriptDelta{Role: realtime.RoleAssistant, Text: "hello there", Done: true}

	waitFor(t, func() bool { return !sess.IsResponding })
	if sess.ActiveResponseID != "" {
		t.Fatalf("ActiveResponseID = %q, want empty after response done", sess.ActiveResponseID)
	}
}

func TestDispatchTool_UnknownToolReturnsGracefulResult(t *testing.T) {
	raw := newFakeRaw()
	sess := callsession.NewSession("call-1", "biz-1")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := Connect(ctx, fakeProvider{raw: raw}, realtime.SessionConfig{}, sess, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	out, err := raw.callTool(ctx, "does_not_exist", "{}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var res struct {
		Success bool `json:"success"`
	}
	if jerr := json.Unmarshal([]byte(out), &res); jerr != nil {
		t.Fatalf("invalid JSON result: %v", jerr)
	}
	if res.Success {
		t.Error("expected success=false for an unknown tool")
	}
}

func TestDispatchTool_TimeoutReturnsApologyNotError(t *testing.T) {
	raw := newFakeRaw()
	sess := callsession.NewSession("call-1", "biz-1")

	slowTool := tools.Tool{
		Definition: realtime.ToolDefinition{Name: "slow_tool"},
		Handler: func(ctx context.Context, args string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}

	orig := ToolTimeout
	ToolTimeout = 5 * time.Millisecond
	defer func() { ToolTimeout = orig }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := Connect(ctx, fakeProvider{raw: raw}, realtime.SessionConfig{}, sess, []tools.Tool{slowTool})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	out, err := raw.callTool(ctx, "slow_tool", "{}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out == "" {
		t.Fatal("expected an apology result, got empty string")
	}
	var res struct {
		Success bool `json:"success"`
	}
	if jerr := json.Unmarshal([]byte(out), &res); jerr != nil {
		t.Fatalf("invalid JSON result: %v", jerr)
	}
	if res.Success {
		t.Error("expected success=false on timeout")
	}
}

func TestDispatchTool_PropagatesNonTimeoutError(t *testing.T) {
	raw := newFakeRaw()
	sess := callsession.NewSession("call-1", "biz-1")
	wantErr := errors.New("boom")

	failingTool := tools.Tool{
		Definition: realtime.ToolDefinition{Name: "failing_tool"},
		Handler: func(ctx context.Context, args string) (string, error) {
			return "", wantErr
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := Connect(ctx, fakeProvider{raw: raw}, realtime.SessionConfig{}, sess, []tools.Tool{failingTool})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	_, err = raw.callTool(ctx, "failing_tool", "{}")
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
}

// fakeProvider adapts a pre-built fakeRaw to realtime.Provider so Connect
// can be exercised without a real upstream dial.
type fakeProvider struct {
	raw *fakeRaw
}

func (p fakeProvider) Connect(ctx context.Context, cfg realtime.SessionConfig) (realtime.SessionHandle, error) {
	return p.raw, nil
}

func (p fakeProvider) Capabilities() realtime.Capabilities { return realtime.Capabilities{} }

var _ realtime.Provider = fakeProvider{}
