package convo

import (
	"regexp"
	"strings"

	"github.com/relaycall/voicegateway/internal/callsession"
)

// Engine drives phase transitions for a [callsession.Session] (§4.4) on the
// legacy text path, where [Engine.ProcessTurn] runs every transition for
// one caller utterance. The realtime-audio path does not use Engine: C3/C5
// mutate the session directly from tool calls. No HTTP handler in this
// module calls ProcessTurn.
type Engine struct {
	Appointments *AppointmentEngine
}

// NewEngine constructs an Engine for one business's appointment backend.
// appointments may be nil for businesses with appointment booking disabled.
func NewEngine(appointments *AppointmentEngine) *Engine {
	return &Engine{Appointments: appointments}
}

// ProcessTurn runs the legacy text path's full cycle for one caller
// utterance: classify intent, advance the phase, and produce the assistant's
// reply. It shares the same [callsession.Session] store as the realtime
// path (§4.4).
func (e *Engine) ProcessTurn(sess *callsession.Session, userText string) (assistantText string, sideEffects []string) {
	sess.AppendHistory(callsession.RoleUser, userText)

	cls := Classify(userText, sess.AwaitingFollowUp)
	sess.AwaitingFollowUp = false

	switch {
	case cls.Intent == IntentGoodbye:
		sess.Phase = callsession.PhaseGoodbye
		assistantText = "Thanks for calling — have a great day!"

	case sess.Phase == callsession.PhaseGreeting || sess.Phase == callsession.PhaseCollectingIdentity:
		sess.Phase = callsession.PhaseCollectingIdentity
		if ApplyFallbackExtraction(sess, userText) {
			sideEffects = append(sideEffects, "update_user_info")
		}
		if sess.UserInfo.Collected {
			sess.Phase = callsession.PhaseConversational
			assistantText = "Thanks! How can I help you today?"
		} else {
			assistantText = "Could I get your name and email to get started?"
		}

	case cls.Intent == IntentAppointment && e.Appointments != nil:
		if sess.Appointment.Active {
			assistantText = "We're already working on your appointment — " + stepGuidance[sess.Appointment.Step]
		} else {
			assistantText = e.Appointments.Start(sess)
			sideEffects = append(sideEffects, "schedule_appointment:start")
		}

	default:
		ApplyFallbackExtraction(sess, userText)
		sess.AwaitingFollowUp = true
		assistantText = "I can help with that — could you tell me a bit more?"
	}

	sess.AppendHistory(callsession.RoleAssistant, assistantText)
	return assistantText, sideEffects
}

// nameExtract matches a small set of self-introduction phrases, with a
// stop-list so generic fillers aren't mistaken for a name (§4.5 fallback
// extractor).
var nameExtract = regexp.MustCompile(`(?i)\b(?:my name is|i'?m|call me|this is)\s+([A-Z][a-zA-Z'\-]+(?:\s+[A-Z][a-zA-Z'\-]+)?)`)
var emailExtract = regexp.MustCompile(`(?i)[\w.+\-]+@[\w\-]+\.[a-z]{2,}`)

var nameStopList = map[string]bool{
	"calling": true, "here": true, "sorry": true, "fine": true, "good": true,
	"not": true, "just": true, "still": true, "also": true,
}

// ApplyFallbackExtraction scans text for a name and/or email the model's
// update_user_info tool call may have missed, updating sess in place.
// Reports whether anything was extracted. Shared by the legacy text path
// (above) and the realtime path's fallback extractor (internal/tools),
// which runs it on every finalized user transcription (§4.5).
func ApplyFallbackExtraction(sess *callsession.Session, text string) bool {
	changed := false

	if sess.UserInfo.Name == "" {
		if m := nameExtract.FindStringSubmatch(text); m != nil {
			candidate := strings.TrimSpace(m[1])
			if !nameStopList[strings.ToLower(candidate)] {
				sess.UserInfo.Name = candidate
				changed = true
			}
		}
	}

	if sess.UserInfo.Email == "" {
		if email := emailExtract.FindString(text); email != "" {
			sess.UserInfo.Email = email
			changed = true
		}
	}

	if changed {
		sess.RecomputeCollected()
	}
	return changed
}
