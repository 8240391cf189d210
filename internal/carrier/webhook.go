package carrier

import (
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/relaycall/voicegateway/internal/tenant"
)

// unavailableMessage is spoken when the process cannot resolve or accept a
// call; per §4.1 this must never surface as an error status that would make
// the carrier retry.
const unavailableMessage = "We're sorry, this service is temporarily unavailable. Please try again later."

// noBusinessMessage is spoken when the dialed number has no bound business.
const noBusinessMessage = "We're sorry, this number isn't currently in service."

// streamParam is one <Parameter> element nested inside <Stream>.
type streamParam struct {
	XMLName xml.Name `xml:"Parameter"`
	Name    string   `xml:"name,attr"`
	Value   string   `xml:"value,attr"`
}

// streamVerb is the <Stream> element naming the media WebSocket endpoint and
// its opaque call parameters (§4.1, §6).
type streamVerb struct {
	XMLName xml.Name      `xml:"Stream"`
	URL     string        `xml:"url,attr"`
	Params  []streamParam `xml:"Parameter"`
}

type connectVerb struct {
	XMLName xml.Name `xml:"Connect"`
	Stream  streamVerb
}

type sayVerb struct {
	XMLName xml.Name `xml:"Say"`
	Text    string   `xml:",chardata"`
}

type hangupVerb struct {
	XMLName xml.Name `xml:"Hangup"`
}

// streamingDirective is the root element of a call-setup response that
// connects the call to C2's media WebSocket.
type streamingDirective struct {
	XMLName xml.Name `xml:"Response"`
	Connect connectVerb
}

// rejectionDirective is the root element of a call-setup response that
// speaks a message and ends the call without streaming.
type rejectionDirective struct {
	XMLName xml.Name `xml:"Response"`
	Say     sayVerb
	Hangup  hangupVerb
}

// Webhook handles the carrier's call-setup HTTP request (C1, §4.1, §6).
type Webhook struct {
	Registry        *tenant.Registry
	SignatureSecret string

	// StreamURL is the carrier-reachable wss:// base URL for the media
	// endpoint, e.g. "wss://gateway.example.com/media".
	StreamURL string

	// HeaderName is the request header carrying the signature, e.g.
	// "X-Twilio-Signature". Ignored when SignatureSecret is empty.
	HeaderName string
}

// ServeHTTP implements http.Handler for the call-setup webhook.
func (h *Webhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Warn("carrier: malformed call-setup request", "err", err)
		h.writeRejection(w, unavailableMessage)
		return
	}

	if h.HeaderName != "" {
		fullURL := requestURL(r)
		if !verifySignature(h.SignatureSecret, fullURL, r.PostForm, r.Header.Get(h.HeaderName)) {
			slog.Warn("carrier: call-setup signature mismatch", "url", fullURL)
			h.writeRejection(w, unavailableMessage)
			return
		}
	}

	callID := firstNonEmpty(r.PostForm.Get("CallSid"), r.PostForm.Get("CallId"))
	from := r.PostForm.Get("From")
	to := r.PostForm.Get("To")

	if h.Registry == nil || !h.Registry.IsInitialized() {
		slog.Error("carrier: tenant registry not ready, rejecting call", "call_id", callID)
		h.writeRejection(w, unavailableMessage)
		return
	}

	businessID, err := h.Registry.BusinessIDFromPhone(to)
	if err != nil {
		slog.Info("carrier: no business bound to dialed number", "to", to, "call_id", callID)
		h.writeRejection(w, noBusinessMessage)
		return
	}

	directive := streamingDirective{
		Connect: connectVerb{
			Stream: streamVerb{
				URL: h.StreamURL,
				Params: []streamParam{
					{Name: "businessId", Value: businessID},
					{Name: "from", Value: from},
					{Name: "to", Value: to},
				},
			},
		},
	}
	h.writeXML(w, directive)
}

func (h *Webhook) writeRejection(w http.ResponseWriter, message string) {
	h.writeXML(w, rejectionDirective{
		Say:    sayVerb{Text: message},
		Hangup: hangupVerb{},
	})
}

func (h *Webhook) writeXML(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, xml.Header)
	if err := xml.NewEncoder(w).Encode(v); err != nil {
		slog.Error("carrier: failed to encode streaming directive", "err", err)
	}
}

func requestURL(r *http.Request) string {
	scheme := "https"
	if r.TLS == nil {
		scheme = "http"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
