package carrier

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/relaycall/voicegateway/internal/bridge"
)

// startTimeout bounds how long the media endpoint waits for the carrier's
// "start" event before giving up on an otherwise-open WebSocket.
const startTimeout = 10 * time.Second

var errNoStart = errors.New("carrier: no start event before timeout")

// wireEvent is the common envelope for every carrier media WebSocket
// message (§6): "start" carries a stream identifier and call parameters,
// "media" carries one μ-law frame, "dtmf" carries one digit, "stop" ends the
// stream.
type wireEvent struct {
	Event string          `json:"event"`
	Start *wireStart      `json:"start,omitempty"`
	Media *wireMedia      `json:"media,omitempty"`
	DTMF  *wireDTMF       `json:"dtmf,omitempty"`
	Stop  json.RawMessage `json:"stop,omitempty"`
}

type wireStart struct {
	StreamSID        string            `json:"streamSid"`
	CallSID          string            `json:"callSid"`
	CustomParameters map[string]string `json:"customParameters"`
}

type wireMedia struct {
	Payload string `json:"payload"`
}

type wireDTMF struct {
	Digit string `json:"digit"`
}

// outboundMediaEvent is the frame shape written back to the carrier.
type outboundMediaEvent struct {
	Event    string          `json:"event"`
	StreamID string          `json:"streamSid"`
	Media    outboundPayload `json:"media"`
}

type outboundPayload struct {
	Payload string `json:"payload"`
}

// MediaConn adapts one carrier media WebSocket connection to
// [bridge.CarrierConn]. Reads are demultiplexed by a single internal
// goroutine started after the "start" event is consumed; writes go directly
// to the underlying connection, which the coder/websocket client allows
// concurrently with reads.
type MediaConn struct {
	conn     *websocket.Conn
	ctx      context.Context
	streamID string

	inbound chan []byte
	dtmf    chan string

	mu      sync.Mutex
	err     error
	closed  bool
}

var _ bridge.CarrierConn = (*MediaConn)(nil)

func newMediaConn(ctx context.Context, conn *websocket.Conn) *MediaConn {
	return &MediaConn{
		conn:    conn,
		ctx:     ctx,
		inbound: make(chan []byte, 64),
		dtmf:    make(chan string, 8),
	}
}

// awaitStart blocks until the carrier's "start" event arrives (or
// startTimeout elapses) and returns the resolved call metadata. businessID,
// from, and to come from the custom parameters echoed back from the
// streaming directive (§4.1, §6).
func (mc *MediaConn) awaitStart(parentCtx context.Context) (CallMeta, error) {
	ctx, cancel := context.WithTimeout(parentCtx, startTimeout)
	defer cancel()

	for {
		_, data, err := mc.conn.Read(ctx)
		if err != nil {
			return CallMeta{}, fmt.Errorf("%w: %v", errNoStart, err)
		}

		var ev wireEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			slog.Warn("carrier: malformed frame while awaiting start", "err", err)
			continue
		}
		if ev.Event != "start" || ev.Start == nil {
			continue
		}

		mc.streamID = ev.Start.StreamSID
		return CallMeta{
			CallID:     ev.Start.CallSID,
			StreamID:   ev.Start.StreamSID,
			BusinessID: ev.Start.CustomParameters["businessId"],
			From:       ev.Start.CustomParameters["from"],
			To:         ev.Start.CustomParameters["to"],
		}, nil
	}
}

// readLoop demultiplexes "media", "dtmf", and "stop" events for the
// remainder of the call. It must run in its own goroutine, started after
// awaitStart returns.
func (mc *MediaConn) readLoop() {
	defer close(mc.inbound)
	defer close(mc.dtmf)

	for {
		_, data, err := mc.conn.Read(mc.ctx)
		if err != nil {
			mc.setErr(classifyCloseErr(err))
			return
		}

		var ev wireEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			slog.Warn("carrier: malformed media-stream frame, skipping", "err", err)
			continue
		}

		switch ev.Event {
		case "media":
			if ev.Media == nil {
				continue
			}
			payload, err := base64.StdEncoding.DecodeString(ev.Media.Payload)
			if err != nil {
				slog.Warn("carrier: malformed media payload, skipping frame", "err", err)
				continue
			}
			select {
			case mc.inbound <- payload:
			case <-mc.ctx.Done():
				return
			}

		case "dtmf":
			if ev.DTMF == nil || ev.DTMF.Digit == "" {
				continue
			}
			select {
			case mc.dtmf <- ev.DTMF.Digit:
			case <-mc.ctx.Done():
				return
			}

		case "stop":
			mc.setErr(nil)
			return
		}
	}
}

// classifyCloseErr maps a WebSocket close frame from the peer, whatever its
// status code, to a nil error (clean shutdown), preserving anything else
// as-is.
func classifyCloseErr(err error) error {
	if websocket.CloseStatus(err) != -1 {
		return nil
	}
	return err
}

func (mc *MediaConn) setErr(err error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if !mc.closed {
		mc.err = err
		mc.closed = true
	}
}

// Inbound implements bridge.CarrierConn.
func (mc *MediaConn) Inbound() <-chan []byte { return mc.inbound }

// DTMF implements bridge.CarrierConn.
func (mc *MediaConn) DTMF() <-chan string { return mc.dtmf }

// Err implements bridge.CarrierConn.
func (mc *MediaConn) Err() error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.err
}

// WriteMedia implements bridge.CarrierConn, sending one 160-byte μ-law frame
// as a "media" event tagged with this stream's identifier.
func (mc *MediaConn) WriteMedia(frame []byte) error {
	data, err := json.Marshal(outboundMediaEvent{
		Event:    "media",
		StreamID: mc.streamID,
		Media:    outboundPayload{Payload: base64.StdEncoding.EncodeToString(frame)},
	})
	if err != nil {
		return fmt.Errorf("carrier: encode outbound media event: %w", err)
	}
	return mc.conn.Write(mc.ctx, websocket.MessageText, data)
}

// Close terminates the underlying WebSocket connection.
func (mc *MediaConn) Close() error {
	return mc.conn.Close(websocket.StatusNormalClosure, "call ended")
}
