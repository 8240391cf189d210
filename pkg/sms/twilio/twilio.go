// Package twilio implements [sms.Sender] against the Twilio Messages REST
// API. No repo in the reference pack imports an SMS SDK, so this driver
// speaks the REST API directly with net/http, the same no-SDK idiom used by
// pkg/calendar/microsoft for Graph.
package twilio

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/relaycall/voicegateway/pkg/sms"
)

const apiBaseURL = "https://api.twilio.com/2010-04-01"

var _ sms.Sender = (*Provider)(nil)

// Provider implements sms.Sender using the Twilio REST API.
type Provider struct {
	accountSID           string
	authToken            string
	fromNumber           string
	messagingServiceSID  string
	httpClient           *http.Client
}

// New constructs a Provider. Exactly one of fromNumber or
// messagingServiceSID should be non-empty; messagingServiceSID takes
// precedence when both are set.
func New(accountSID, authToken, fromNumber, messagingServiceSID string) *Provider {
	return &Provider{
		accountSID:          accountSID,
		authToken:           authToken,
		fromNumber:          fromNumber,
		messagingServiceSID: messagingServiceSID,
		httpClient:          &http.Client{Timeout: 15 * time.Second},
	}
}

type messageResponse struct {
	SID          string `json:"sid"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
}

// Send implements sms.Sender.
func (p *Provider) Send(ctx context.Context, to, body string) (string, error) {
	form := url.Values{}
	form.Set("To", to)
	form.Set("Body", body)
	if p.messagingServiceSID != "" {
		form.Set("MessagingServiceSid", p.messagingServiceSID)
	} else {
		form.Set("From", p.fromNumber)
	}

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", apiBaseURL, p.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("sms/twilio: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(p.accountSID, p.authToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sms/twilio: send: %w", err)
	}
	defer resp.Body.Close()

	var out messageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("sms/twilio: decode response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("sms/twilio: status %d: %s", resp.StatusCode, out.ErrorMessage)
	}
	return out.SID, nil
}
