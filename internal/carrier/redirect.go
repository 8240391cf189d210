package carrier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// callsAPIBaseURL is a var, not a const, so tests can point it at a local
// server.
var callsAPIBaseURL = "https://api.twilio.com/2010-04-01"

// TwilioRedirector implements [tools.RedirectFunc] against the Twilio REST
// API's live-call redirect endpoint, the same no-SDK REST idiom used by
// pkg/sms/twilio. It transfers an in-progress call to a new number by
// updating it with inline TwiML, terminating the current media stream as a
// side effect (§4.5: emergency transfer).
type TwilioRedirector struct {
	accountSID string
	authToken  string
	httpClient *http.Client
}

// NewTwilioRedirector constructs a redirect hook authenticated with the
// given Twilio account credentials.
func NewTwilioRedirector(accountSID, authToken string) *TwilioRedirector {
	return &TwilioRedirector{
		accountSID: accountSID,
		authToken:  authToken,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type callUpdateResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
}

// Redirect updates the live call identified by callID with TwiML that
// forwards it to targetNumber.
func (t *TwilioRedirector) Redirect(ctx context.Context, callID, targetNumber string) error {
	twiml := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?><Response><Dial>%s</Dial></Response>`, targetNumber)

	form := url.Values{}
	form.Set("Twiml", twiml)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls/%s.json", callsAPIBaseURL, t.accountSID, callID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("carrier: build redirect request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(t.accountSID, t.authToken)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("carrier: redirect call: %w", err)
	}
	defer resp.Body.Close()

	var out callUpdateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("carrier: decode redirect response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("carrier: redirect status %d: %s", resp.StatusCode, out.ErrorMessage)
	}
	return nil
}
