package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/relaycall/voicegateway/internal/callsession"
	"github.com/relaycall/voicegateway/pkg/realtime"
)

// emailPattern validates a simple local@domain.tld shape (§4.5) — not a
// full RFC 5322 validator, just enough to reject obvious typos before
// storing the address.
var emailPattern = regexp.MustCompile(`^[\w.+\-]+@[\w\-]+\.[a-zA-Z]{2,}$`)

// updateUserInfoArgs is the JSON-decoded input for the "update_user_info"
// tool. Every field is optional; only non-empty fields are applied.
type updateUserInfoArgs struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Urgency string `json:"urgency,omitempty"`
}

type updateUserInfoResult struct {
	Success   bool   `json:"success"`
	Collected bool   `json:"collected"`
	Message   string `json:"message,omitempty"`
}

// userInfoTool builds the "update_user_info" tool: validates the email with
// a simple local@domain.tld regex, updates session.UserInfo, recomputes the
// Collected flag, moves the phase from CollectingIdentity to Conversational
// once the info becomes collected, and returns an active appointment
// sub-flow parked at CollectName/CollectEmail to Review when the matching
// value arrives (§4.5).
func userInfoTool(sess *callsession.Session) Tool {
	handler := func(ctx context.Context, args string) (string, error) {
		var a updateUserInfoArgs
		if err := json.Unmarshal([]byte(args), &a); err != nil {
			return "", fmt.Errorf("update_user_info: failed to parse arguments: %w", err)
		}

		if a.Email != "" {
			if !emailPattern.MatchString(a.Email) {
				res, _ := json.Marshal(updateUserInfoResult{
					Success:   false,
					Collected: sess.UserInfo.Collected,
					Message:   "That doesn't look like a valid email address — could you repeat it?",
				})
				return string(res), nil
			}
			sess.UserInfo.Email = a.Email
		}
		if a.Name != "" {
			sess.UserInfo.Name = a.Name
		}
		if a.Phone != "" {
			sess.UserInfo.Phone = a.Phone
		}
		if a.Reason != "" {
			sess.UserInfo.Reason = a.Reason
		}
		if a.Urgency != "" {
			sess.UserInfo.Urgency = a.Urgency
		}

		wasCollected := sess.UserInfo.Collected
		sess.RecomputeCollected()
		if sess.UserInfo.Collected && !wasCollected && sess.Phase == callsession.PhaseCollectingIdentity {
			sess.Phase = callsession.PhaseConversational
		}

		// An edit jump to CollectName/CollectEmail parks the appointment
		// sub-flow waiting for a corrected value; once it arrives here via
		// update_user_info, return to Review (§4.4 edit jumps).
		if sess.Appointment.Active {
			switch {
			case sess.Appointment.Step == callsession.StepCollectName && a.Name != "":
				sess.Appointment.Step = callsession.StepReview
			case sess.Appointment.Step == callsession.StepCollectEmail && a.Email != "":
				sess.Appointment.Step = callsession.StepReview
			}
		}

		res, err := json.Marshal(updateUserInfoResult{Success: true, Collected: sess.UserInfo.Collected})
		if err != nil {
			return "", fmt.Errorf("update_user_info: failed to encode result: %w", err)
		}
		return string(res), nil
	}

	return Tool{
		Definition: realtime.ToolDefinition{
			Name:        "update_user_info",
			Description: "Record or update the caller's name, email, phone, reason for calling, and urgency as they're provided during the conversation.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":    map[string]any{"type": "string", "description": "Caller's full name."},
					"email":   map[string]any{"type": "string", "description": "Caller's email address."},
					"phone":   map[string]any{"type": "string", "description": "Caller's callback phone number."},
					"reason":  map[string]any{"type": "string", "description": "The caller's reason for calling."},
					"urgency": map[string]any{"type": "string", "description": "How urgent the caller's need is."},
				},
				"required": []string{},
			},
		},
		Handler: handler,
	}
}
