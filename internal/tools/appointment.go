package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/relaycall/voicegateway/internal/callsession"
	"github.com/relaycall/voicegateway/internal/convo"
	"github.com/relaycall/voicegateway/pkg/realtime"
)

// scheduleAppointmentArgs is the JSON-decoded input for the
// "schedule_appointment" tool (§6): action plus whichever fields that
// action needs.
type scheduleAppointmentArgs struct {
	Action       string `json:"action"`
	CalendarType string `json:"calendar_type,omitempty"`
	Service      string `json:"service,omitempty"`
	Date         string `json:"date,omitempty"`
	Time         string `json:"time,omitempty"`
}

// scheduleAppointmentResult is the JSON-encoded output of the
// "schedule_appointment" tool.
type scheduleAppointmentResult struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Guidance string `json:"guidance,omitempty"`
}

// actionToEngineAction maps the wire-level action names (§6) to
// internal/convo's action constants.
var actionToEngineAction = map[string]string{
	"set_calendar": convo.ActionSetCalendar,
	"set_service":  convo.ActionSetService,
	"set_date":     convo.ActionSetDate,
	"set_time":     convo.ActionSetTime,
	"confirm":      convo.ActionConfirm,
}

// appointmentTool builds the "schedule_appointment" tool: a thin dispatch
// into the appointment sub-flow engine, enforcing the step-action matrix
// regardless of what the model was told to do (§4.5, §4.4).
func appointmentTool(engine *convo.AppointmentEngine, sess *callsession.Session) Tool {
	handler := func(ctx context.Context, args string) (string, error) {
		var a scheduleAppointmentArgs
		if err := json.Unmarshal([]byte(args), &a); err != nil {
			return "", fmt.Errorf("schedule_appointment: failed to parse arguments: %w", err)
		}

		if a.Action == "start" {
			msg := engine.Start(sess)
			res, _ := json.Marshal(scheduleAppointmentResult{Success: true, Message: msg})
			return string(res), nil
		}

		engineAction, ok := actionToEngineAction[a.Action]
		if !ok {
			return "", fmt.Errorf("schedule_appointment: unknown action %q", a.Action)
		}

		msg, err := engine.HandleAction(ctx, sess, engineAction, map[string]string{
			"calendar_type": a.CalendarType,
			"title":         a.Service,
			"date":          a.Date,
			"time":          a.Time,
		})
		if err != nil {
			var violation *convo.ErrStepViolation
			if errors.As(err, &violation) {
				res, _ := json.Marshal(scheduleAppointmentResult{
					Success:  false,
					Message:  "That step isn't available yet.",
					Guidance: violation.Guidance,
				})
				return string(res), nil
			}
			return "", fmt.Errorf("schedule_appointment: %w", err)
		}

		res, err := json.Marshal(scheduleAppointmentResult{Success: true, Message: msg})
		if err != nil {
			return "", fmt.Errorf("schedule_appointment: failed to encode result: %w", err)
		}
		return string(res), nil
	}

	return Tool{
		Definition: realtime.ToolDefinition{
			Name:        "schedule_appointment",
			Description: "Drive the appointment-booking sub-flow. Call with action=start to begin, then set_calendar, set_service, set_date, set_time, and confirm in that order as the caller answers each prompt.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"action": map[string]any{
						"type":        "string",
						"description": "The sub-flow step to perform.",
						"enum":        []string{"start", "set_calendar", "set_service", "set_date", "set_time", "confirm"},
					},
					"calendar_type": map[string]any{
						"type":        "string",
						"description": "Required for set_calendar: google or microsoft.",
					},
					"service": map[string]any{
						"type":        "string",
						"description": "Required for set_service: the appointment title/purpose.",
					},
					"date": map[string]any{
						"type":        "string",
						"description": "Required for set_date: the caller's requested date, in whatever natural form they gave it.",
					},
					"time": map[string]any{
						"type":        "string",
						"description": "Required for set_time: the caller's requested time, in whatever natural form they gave it.",
					},
				},
				"required": []string{"action"},
			},
		},
		Handler: handler,
	}
}
