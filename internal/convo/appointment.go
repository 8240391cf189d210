// Package convo implements the conversation state machine (C4): phase
// transitions, the appointment booking sub-flow, and the intent classifier
// backing the legacy text path. The realtime-audio path drives most
// transitions from tool calls (internal/tools) rather than from Classify.
package convo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/relaycall/voicegateway/internal/callsession"
	"github.com/relaycall/voicegateway/pkg/calendar"
)

// Appointment actions, passed as the schedule_appointment tool's "action"
// argument (§4.5). Edit jumps are only valid from Review/Confirm.
const (
	ActionSetCalendar = "set_calendar"
	ActionSetService  = "set_service"
	ActionSetDate     = "set_date"
	ActionSetTime     = "set_time"
	ActionConfirm     = "confirm"
	ActionEditDate    = "edit_date"
	ActionEditTime    = "edit_time"
	ActionEditTitle   = "edit_title"
	ActionEditName    = "edit_name"
	ActionEditEmail   = "edit_email"
)

// SlotMinutes is the granularity of bookable appointment slots (§4.4).
const SlotMinutes = 30

// MaxForwardDays bounds the forward search for the next available day when
// a requested date has no openings (§4.4).
const MaxForwardDays = 14

// ErrBadDateFormat is returned by [ParseDate] when the input matches none of
// the accepted date shapes.
var ErrBadDateFormat = errors.New("convo: unrecognised date format")

// ErrStepViolation is returned when an action is not permitted in the
// session's current appointment step. The message carries the step-specific
// guidance text from the §4.4 table, already safe to speak back to the
// caller.
type ErrStepViolation struct {
	Step     callsession.AppointmentStep
	Action   string
	Guidance string
}

func (e *ErrStepViolation) Error() string {
	return fmt.Sprintf("convo: action %q not allowed in step %s: %s", e.Action, e.Step, e.Guidance)
}

// stepGuidance gives the violation message for each step, per the §4.4 table.
var stepGuidance = map[callsession.AppointmentStep]string{
	callsession.StepSelectCalendar: "Say Google or Microsoft.",
	callsession.StepCollectTitle:   "Describe the session type.",
	callsession.StepCollectDate:    "Provide the date as 'Month D, YYYY' or 'D Month YYYY'.",
	callsession.StepCollectTime:    "Choose from the listed slots.",
	callsession.StepReview:         "Say 'sounds good' to confirm, or name what to change.",
	callsession.StepConfirm:        "Say 'sounds good' to confirm, or name what to change.",
}

// AppointmentEngine drives the ordered appointment sub-flow for a single
// business. One instance is shared across every call routed to that
// business; all state lives in the per-call [callsession.Session] passed to
// each method, so the engine itself holds no call-specific data.
type AppointmentEngine struct {
	// Calendars maps the business's supported calendar types to their
	// driver instance. Most businesses configure exactly one.
	Calendars map[callsession.CalendarType]calendar.Provider

	// Location anchors every date/time operation to the business's
	// timezone (§4.4, default America/Denver).
	Location *time.Location
}

// NewAppointmentEngine constructs an engine for a single calendar backend,
// the common case (tenant.BusinessConfig configures exactly one provider).
func NewAppointmentEngine(calType callsession.CalendarType, provider calendar.Provider, loc *time.Location) *AppointmentEngine {
	if loc == nil {
		loc = time.UTC
	}
	return &AppointmentEngine{
		Calendars: map[callsession.CalendarType]calendar.Provider{calType: provider},
		Location:  loc,
	}
}

// Start activates the appointment sub-flow, resetting it to SelectCalendar.
// Called when the model issues schedule_appointment(action="start").
func (e *AppointmentEngine) Start(sess *callsession.Session) string {
	sess.Appointment = callsession.AppointmentFlow{
		Active: true,
		Step:   callsession.StepSelectCalendar,
	}
	return "Which calendar would you like to use — Google or Microsoft?"
}

// HandleAction dispatches one appointment-flow action, enforcing the
// step-action matrix regardless of what the model was instructed to do
// (§4.4: "MUST be enforced by the tool handler"). args carries the action's
// free-form parameters (e.g. "calendar_type", "title", "date", "time").
func (e *AppointmentEngine) HandleAction(ctx context.Context, sess *callsession.Session, action string, args map[string]string) (string, error) {
	flow := &sess.Appointment
	if !flow.Active {
		return "", errors.New("convo: appointment flow is not active")
	}

	switch action {
	case ActionSetCalendar:
		return e.setCalendar(flow, args)
	case ActionSetService:
		return e.setService(flow, args)
	case ActionSetDate:
		return e.setDate(ctx, flow, args)
	case ActionSetTime:
		return e.setTime(flow, args)
	case ActionConfirm:
		return e.confirm(ctx, sess)
	case ActionEditDate, ActionEditTime, ActionEditTitle, ActionEditName, ActionEditEmail:
		return e.editJump(flow, action)
	default:
		return "", fmt.Errorf("convo: unknown appointment action %q", action)
	}
}

func (e *AppointmentEngine) setCalendar(flow *callsession.AppointmentFlow, args map[string]string) (string, error) {
	if flow.Step != callsession.StepSelectCalendar {
		return "", e.violation(flow.Step, ActionSetCalendar)
	}
	calType := callsession.CalendarType(strings.ToLower(strings.TrimSpace(args["calendar_type"])))
	if _, ok := e.Calendars[calType]; !ok {
		return "We currently only support Google or Microsoft calendars for this business.", nil
	}
	flow.CalendarType = calType
	flow.Step = callsession.StepCollectTitle
	return "What type of session would you like to book?", nil
}

func (e *AppointmentEngine) setService(flow *callsession.AppointmentFlow, args map[string]string) (string, error) {
	if flow.Step != callsession.StepCollectTitle {
		return "", e.violation(flow.Step, ActionSetService)
	}
	title := strings.TrimSpace(args["title"])
	if title == "" {
		return "Could you describe the session you'd like to book?", nil
	}
	flow.Details.Title = title
	flow.Step = callsession.StepCollectDate
	return "What date works for you?", nil
}

func (e *AppointmentEngine) setDate(ctx context.Context, flow *callsession.AppointmentFlow, args map[string]string) (string, error) {
	if flow.Step != callsession.StepCollectDate {
		return "", e.violation(flow.Step, ActionSetDate)
	}
	t, err := ParseDate(args["date"], e.Location)
	if err != nil {
		return stepGuidance[callsession.StepCollectDate], nil
	}

	// Changing the date always clears a previously selected time and its
	// slot list (§4.4 invariant: Time may only be set alongside Date and
	// AvailableSlots from the same lookup).
	flow.Details.Date = FormatDateISO(t)
	flow.Details.Time = ""
	flow.Details.TimeDisplay = ""
	flow.Details.AvailableSlots = nil

	provider := e.Calendars[flow.CalendarType]
	windowStart := t
	windowEnd := t.AddDate(0, 0, 1)
	slots, err := provider.FindAvailableSlots(ctx, windowStart, windowEnd, SlotMinutes)
	if err != nil {
		return "", fmt.Errorf("convo: find available slots: %w", err)
	}

	if len(slots) == 0 {
		next, err := provider.FindNextAvailableSlot(ctx, t, MaxForwardDays, SlotMinutes)
		if err != nil {
			return "", fmt.Errorf("convo: find next available slot: %w", err)
		}
		if next == nil {
			flow.Step = callsession.StepCollectDate
			return "I don't see any openings in the next two weeks. Could you try a different date range?", nil
		}
		flow.Details.Date = FormatDateISO(next.Start)
		nextDayStart := dayStart(next.Start)
		slots, err = provider.FindAvailableSlots(ctx, nextDayStart, nextDayStart.AddDate(0, 0, 1), SlotMinutes)
		if err != nil {
			return "", fmt.Errorf("convo: find available slots for next day: %w", err)
		}
	}

	flow.Details.AvailableSlots = toSessionSlots(slots)
	flow.Step = callsession.StepCollectTime
	return formatSlotPrompt(flow.Details.Date, flow.Details.AvailableSlots), nil
}

func (e *AppointmentEngine) setTime(flow *callsession.AppointmentFlow, args map[string]string) (string, error) {
	if flow.Step != callsession.StepCollectTime {
		return "", e.violation(flow.Step, ActionSetTime)
	}
	requested := strings.TrimSpace(args["time"])
	slot := matchSlot(flow.Details.AvailableSlots, requested)
	if slot == nil {
		return stepGuidance[callsession.StepCollectTime], nil
	}
	flow.Details.Time = slot.Start
	flow.Details.TimeDisplay = slot.Display
	flow.Step = callsession.StepReview
	return "Reviewing appointment details, say 'sounds good' to confirm or tell me what to change.", nil
}

func (e *AppointmentEngine) confirm(ctx context.Context, sess *callsession.Session) (string, error) {
	flow := &sess.Appointment
	if flow.Step == callsession.StepCollectTime {
		// A date and its slots are in place but no time yet: the booking is
		// incomplete rather than out of order.
		return "I still need a bit more information before I can book this — let's finish up the details first.", nil
	}
	if flow.Step != callsession.StepReview && flow.Step != callsession.StepConfirm {
		return "", e.violation(flow.Step, ActionConfirm)
	}
	if !flow.ReadyToConfirm(sess.UserInfo) {
		return "I still need a bit more information before I can book this — let's finish up the details first.", nil
	}

	provider, ok := e.Calendars[flow.CalendarType]
	if !ok {
		return "", fmt.Errorf("convo: no calendar configured for type %q", flow.CalendarType)
	}

	start, err := time.ParseInLocation("2006-01-02 15:04", flow.Details.Date+" "+flow.Details.Time, e.Location)
	if err != nil {
		return "", fmt.Errorf("convo: parse confirmed date/time: %w", err)
	}
	end := start.Add(SlotMinutes * time.Minute)

	created, err := provider.CreateAppointment(ctx, calendar.Appointment{
		Title: flow.Details.Title,
		Start: start,
		End:   end,
	})
	if err != nil {
		return "", fmt.Errorf("convo: create appointment: %w", err)
	}

	sess.LastAppointment = &callsession.LastAppointment{
		EventID:   created.EventID,
		EventLink: created.Link,
		Title:     flow.Details.Title,
		Date:      flow.Details.Date,
		Time:      flow.Details.Time,
	}
	flow.Active = false
	flow.Step = callsession.StepConfirm

	return fmt.Sprintf("You're all set — %s is booked for %s at %s.", flow.Details.Title, flow.Details.Date, flow.Details.TimeDisplay), nil
}

// editJump handles a Review-time edit request, returning to the named step
// while preserving fields collected before it (§4.4 edit jumps).
func (e *AppointmentEngine) editJump(flow *callsession.AppointmentFlow, action string) (string, error) {
	if flow.Step != callsession.StepReview && flow.Step != callsession.StepConfirm {
		return "", e.violation(flow.Step, action)
	}

	switch action {
	case ActionEditDate:
		flow.Details.Date = ""
		flow.Details.Time = ""
		flow.Details.TimeDisplay = ""
		flow.Details.AvailableSlots = nil
		flow.Step = callsession.StepCollectDate
		return "What date would you like instead?", nil
	case ActionEditTime:
		flow.Details.Time = ""
		flow.Details.TimeDisplay = ""
		flow.Step = callsession.StepCollectTime
		return formatSlotPrompt(flow.Details.Date, flow.Details.AvailableSlots), nil
	case ActionEditTitle:
		flow.Step = callsession.StepCollectTitle
		return "What would you like the session title to be?", nil
	case ActionEditName:
		flow.Step = callsession.StepCollectName
		return "What name should I put on the appointment?", nil
	case ActionEditEmail:
		flow.Step = callsession.StepCollectEmail
		return "What email should I send the confirmation to?", nil
	default:
		return "", fmt.Errorf("convo: unknown edit action %q", action)
	}
}

func (e *AppointmentEngine) violation(step callsession.AppointmentStep, action string) error {
	return &ErrStepViolation{Step: step, Action: action, Guidance: stepGuidance[step]}
}

func toSessionSlots(slots []calendar.Slot) []callsession.TimeSlot {
	out := make([]callsession.TimeSlot, len(slots))
	for i, s := range slots {
		out[i] = callsession.TimeSlot{
			Start:   s.Start.Format("15:04"),
			End:     s.End.Format("15:04"),
			Display: s.Display,
		}
	}
	return out
}

func matchSlot(slots []callsession.TimeSlot, requested string) *callsession.TimeSlot {
	trimmed := strings.ToLower(strings.TrimSpace(requested))
	if trimmed == "" {
		return nil
	}
	for i := range slots {
		if strings.ToLower(slots[i].Start) == trimmed || strings.ToLower(slots[i].Display) == trimmed {
			return &slots[i]
		}
	}
	if normalized, ok := normalizeSpokenTime(requested); ok {
		for i := range slots {
			if slots[i].Start == normalized {
				return &slots[i]
			}
		}
	}
	return nil
}

// spokenTime matches a 12h clock time as a caller is likely to say or
// transcribe it: "2 PM", "2:00pm", "2:00 PM".
var spokenTime = regexp.MustCompile(`(?i)^(\d{1,2})(?::(\d{2}))?\s*([AP])\.?M\.?$`)

// normalizeSpokenTime converts a 12h spoken time into the 24h "HH:MM" form
// used by TimeSlot.Start, since callers say "2 PM" but slots are keyed by
// 24h time.
func normalizeSpokenTime(s string) (string, bool) {
	m := spokenTime.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return "", false
	}
	hour, err := strconv.Atoi(m[1])
	if err != nil || hour < 1 || hour > 12 {
		return "", false
	}
	minute := 0
	if m[2] != "" {
		minute, err = strconv.Atoi(m[2])
		if err != nil || minute < 0 || minute > 59 {
			return "", false
		}
	}
	if strings.EqualFold(m[3], "P") && hour != 12 {
		hour += 12
	} else if strings.EqualFold(m[3], "A") && hour == 12 {
		hour = 0
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), true
}

func formatSlotPrompt(date string, slots []callsession.TimeSlot) string {
	if len(slots) == 0 {
		return "I don't have any openings for that date. Could you try another?"
	}
	displays := make([]string, len(slots))
	for i, s := range slots {
		displays[i] = s.Display
	}
	return fmt.Sprintf("For %s, I have these times available: %s. Which works for you?", date, strings.Join(displays, ", "))
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
