package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/relaycall/voicegateway/internal/tenant"
	"github.com/relaycall/voicegateway/pkg/realtime"
)

// transferEmergencyArgs is the JSON-decoded input for the
// "transfer_emergency" tool. The model is never asked for a target number —
// it is resolved from BusinessConfig.Emergency, not caller-supplied, so the
// only input is an acknowledgement that the caller asked for one.
type transferEmergencyArgs struct {
	Reason string `json:"reason,omitempty"`
}

type transferEmergencyResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// emergencyTool builds the emergency-transfer tool, so the model can trigger
// a transfer when the caller asks verbally. A pressed DTMF digit does not go
// through this tool: internal/app calls [HandleEmergencyDTMF] directly
// (§4.2, §6), bypassing the model entirely.
func emergencyTool(redirect RedirectFunc, callID string, cfg tenant.EmergencyConfig) Tool {
	handler := func(ctx context.Context, args string) (string, error) {
		var a transferEmergencyArgs
		if len(args) > 0 {
			_ = json.Unmarshal([]byte(args), &a)
		}
		slog.Info("transfer_emergency: redirecting call", "call_id", callID, "reason", a.Reason)

		if err := redirect(ctx, callID, cfg.TransferNumber); err != nil {
			return "", fmt.Errorf("transfer_emergency: redirect call: %w", err)
		}

		res, _ := json.Marshal(transferEmergencyResult{
			Success: true,
			Message: "Connecting you now, please hold.",
		})
		return string(res), nil
	}

	return Tool{
		Definition: realtime.ToolDefinition{
			Name:        "transfer_emergency",
			Description: "Transfer the caller to a human immediately. Use this when the caller indicates an urgent situation that requires immediate attention.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"reason": map[string]any{
						"type":        "string",
						"description": "Brief reason for the transfer, for logging.",
					},
				},
				"required": []string{},
			},
		},
		Handler: handler,
	}
}

// HandleEmergencyDTMF invokes the redirect hook directly for the DTMF path
// (§4.2: "the bridge exposes a handleDTMF(digit) entry"), bypassing the
// model and the tool-call machinery entirely. Returns true if digit matched
// the business's configured emergency digit and a transfer was attempted.
func HandleEmergencyDTMF(ctx context.Context, redirect RedirectFunc, callID, digit string, business tenant.BusinessConfig) (bool, error) {
	if !business.Features.EmergencyEnabled || business.Emergency.Digit == "" {
		return false, nil
	}
	if digit != business.Emergency.Digit {
		return false, nil
	}
	return true, redirect(ctx, callID, business.Emergency.TransferNumber)
}
