package app_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/relaycall/voicegateway/internal/app"
	"github.com/relaycall/voicegateway/internal/carrier"
	"github.com/relaycall/voicegateway/internal/config"
	"github.com/relaycall/voicegateway/internal/notify"
	"github.com/relaycall/voicegateway/internal/tenant"
	emailmock "github.com/relaycall/voicegateway/pkg/email/mock"
	llmmock "github.com/relaycall/voicegateway/pkg/llm/mock"
	"github.com/relaycall/voicegateway/pkg/realtime"
	smsmock "github.com/relaycall/voicegateway/pkg/sms/mock"
)

// fakeHandle is a minimal realtime.SessionHandle double. Its Audio,
// SpeechStarted, and Transcripts channels are pre-closed, so a bridge built
// on top of it ends the instant Run starts rather than waiting on synthetic
// model audio — exactly what these tests need, since they only assert on
// what HandleCall does before and after the bridge runs.
type fakeHandle struct {
	audio       chan []byte
	speech      chan struct{}
	transcripts chan realtime.TranscriptDelta

	mu     sync.Mutex
	opened bool
	closed bool
}

func newFakeHandle() *fakeHandle {
	h := &fakeHandle{
		audio:       make(chan []byte),
		speech:      make(chan struct{}),
		transcripts: make(chan realtime.TranscriptDelta),
	}
	close(h.audio)
	close(h.speech)
	close(h.transcripts)
	return h
}

func (h *fakeHandle) SendAudio(chunk []byte) error                 { return nil }
func (h *fakeHandle) CommitAudio() error                           { return nil }
func (h *fakeHandle) Audio() <-chan []byte                         { return h.audio }
func (h *fakeHandle) SpeechStarted() <-chan struct{}               { return h.speech }
func (h *fakeHandle) Transcripts() <-chan realtime.TranscriptDelta { return h.transcripts }
func (h *fakeHandle) Err() error                                   { return nil }
func (h *fakeHandle) Interrupt() error                             { return nil }
func (h *fakeHandle) OnToolCall(handler realtime.ToolCallHandler)  {}

func (h *fakeHandle) TriggerOpeningTurn() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opened = true
	return nil
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

func (h *fakeHandle) wasOpened() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.opened
}

func (h *fakeHandle) wasClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

var _ realtime.SessionHandle = (*fakeHandle)(nil)

// fakeProvider hands out a single fakeHandle per Connect call.
type fakeProvider struct {
	mu      sync.Mutex
	handles []*fakeHandle
}

func (p *fakeProvider) Connect(ctx context.Context, cfg realtime.SessionConfig) (realtime.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h := newFakeHandle()
	p.handles = append(p.handles, h)
	return h, nil
}

func (p *fakeProvider) Capabilities() realtime.Capabilities { return realtime.Capabilities{} }

func (p *fakeProvider) connectCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}

func (p *fakeProvider) firstHandle() *fakeHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.handles) == 0 {
		return nil
	}
	return p.handles[0]
}

var _ realtime.Provider = (*fakeProvider)(nil)

func newTestRegistry(t *testing.T, businessID string) *tenant.Registry {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.yaml")
	content := `
businesses:
  - business_id: ` + businessID + `
    display_name: Acme Dental
    incoming_numbers:
      - "+15559990000"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write registry fixture: %v", err)
	}
	reg := tenant.NewRegistry()
	if err := reg.Load(path); err != nil {
		t.Fatalf("load registry fixture: %v", err)
	}
	return reg
}

// newTestGateway wires an App behind a real carrier.Server/httptest.Server
// pair, the same way production wires carrier.NewServer(..., gw.HandleCall).
func newTestGateway(t *testing.T, provider *fakeProvider, notifier *notify.Notifier) string {
	t.Helper()
	registry := newTestRegistry(t, "acme-dental")
	cfg := &config.Config{}

	gw, err := app.New(cfg, registry, &app.Providers{Realtime: provider}, app.WithNotifier(notifier))
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}

	srv := carrier.NewServer(registry, nil, gw.HandleCall, carrier.WithStreamURL("wss://gateway.example.com/media"))
	httpSrv := httptest.NewServer(srv)
	t.Cleanup(httpSrv.Close)
	return "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/media"
}

// dialAndAwaitClose sends a "start" event with the given custom parameters
// and reads until the server closes the connection (i.e. until HandleCall
// has returned).
func dialAndAwaitClose(t *testing.T, wsURL string, customParams map[string]string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial media websocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	start, err := json.Marshal(map[string]any{
		"event": "start",
		"start": map[string]any{
			"streamSid":        "MZ1",
			"callSid":          "CA1",
			"customParameters": customParams,
		},
	})
	if err != nil {
		t.Fatalf("marshal start frame: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, start); err != nil {
		t.Fatalf("write start frame: %v", err)
	}

	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

func TestHandleCall_RunsEndToEndAndNotifies(t *testing.T) {
	provider := &fakeProvider{}
	email := &emailmock.Sender{}
	sms := &smsmock.Sender{}
	notifier := &notify.Notifier{LLM: &llmmock.Provider{}, Email: email, SMS: sms}

	wsURL := newTestGateway(t, provider, notifier)
	dialAndAwaitClose(t, wsURL, map[string]string{
		"businessId": "acme-dental",
		"from":       "+15551234567",
		"to":         "+15559990000",
	})

	if provider.connectCount() != 1 {
		t.Fatalf("Connect called %d times, want 1", provider.connectCount())
	}
	handle := provider.firstHandle()
	if !handle.wasOpened() {
		t.Error("expected TriggerOpeningTurn to have been invoked")
	}
	if !handle.wasClosed() {
		t.Error("expected the realtime session to be closed once the call ended")
	}

	// Notify runs in its own goroutine (fire-and-forget); poll briefly
	// instead of asserting immediately after the call ends. The caller's
	// phone number was collected (meta.From), so the SMS channel fires even
	// with no admin numbers configured, while email has no recipient and
	// stays silent.
	deadline := time.Now().Add(2 * time.Second)
	for len(sms.Calls) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if len(sms.Calls) != 1 {
		t.Fatalf("sms.Calls = %d, want 1", len(sms.Calls))
	}
	if sms.Calls[0].To != "+15551234567" {
		t.Errorf("sms recipient = %q, want the caller's number", sms.Calls[0].To)
	}
	if len(email.Calls) != 0 {
		t.Errorf("email.Calls = %d, want 0 (no recipient configured)", len(email.Calls))
	}
}

func TestHandleCall_UnknownBusinessIsDropped(t *testing.T) {
	provider := &fakeProvider{}
	notifier := &notify.Notifier{}
	wsURL := newTestGateway(t, provider, notifier)

	dialAndAwaitClose(t, wsURL, map[string]string{"businessId": "no-such-business"})

	if provider.connectCount() != 0 {
		t.Error("expected no realtime session to be opened for an unknown business")
	}
}
