// Package callsession defines the Call and Session data model shared by every
// component of the voice gateway: the carrier endpoint creates a Call, the
// realtime session and tool handlers mutate its Session, and the post-call
// notifier consumes a read-only snapshot after the call ends.
package callsession

import "time"

// Phase enumerates the conversational phases a [Session] moves through.
type Phase int

const (
	// PhaseGreeting is the initial phase: the model has not yet asked for
	// caller identity.
	PhaseGreeting Phase = iota

	// PhaseCollectingIdentity remains active until UserInfo.Collected is true.
	PhaseCollectingIdentity

	// PhaseConversational handles Q&A and appointment booking.
	PhaseConversational

	// PhaseGoodbye is entered once the caller signals they have no more
	// questions; it leads to graceful call teardown.
	PhaseGoodbye
)

// String returns the human-readable name of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseGreeting:
		return "greeting"
	case PhaseCollectingIdentity:
		return "collecting_identity"
	case PhaseConversational:
		return "conversational"
	case PhaseGoodbye:
		return "goodbye"
	default:
		return "unknown"
	}
}

// Call is the top-level record for one carrier-originated phone call.
// Exactly one Call owns exactly one [Session].
type Call struct {
	// ID is the carrier-assigned call identifier.
	ID string

	// BusinessID is the tenant this call was routed to by the carrier
	// media endpoint.
	BusinessID string

	// From is the caller's E.164 number.
	From string

	// To is the called (business) E.164 number.
	To string

	// CreatedAt is when C1 accepted the carrier's signalling request.
	CreatedAt time.Time
}

// Role identifies the speaker of a [HistoryEntry].
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// HistoryEntry is one append-only turn in a Session's conversation history.
// History is never rewritten once appended — see [Session.AppendHistory].
type HistoryEntry struct {
	Role      Role
	Text      string
	Timestamp time.Time
}

// UserInfo holds caller-identifying details gathered during the
// CollectingIdentity phase (and possibly refined later).
type UserInfo struct {
	Name    string
	Email   string
	Phone   string
	Reason  string
	Urgency string

	// Collected is true iff Name and Email are present, or a business-specific
	// completion variant is satisfied (see [Session.RecomputeCollected]).
	Collected bool
}

// CalendarType identifies which calendar provider an appointment is booked
// through.
type CalendarType string

const (
	CalendarGoogle    CalendarType = "google"
	CalendarMicrosoft CalendarType = "microsoft"
)

// AppointmentStep enumerates the ordered steps of the appointment sub-flow.
// The strict ordering is enforced by internal/convo, not by the model.
type AppointmentStep int

const (
	StepSelectCalendar AppointmentStep = iota
	StepCollectTitle
	StepCollectDate
	StepCollectTime
	StepReview
	StepConfirm
	StepCollectName
	StepCollectEmail
)

// String returns the human-readable name of the appointment step.
func (s AppointmentStep) String() string {
	switch s {
	case StepSelectCalendar:
		return "select_calendar"
	case StepCollectTitle:
		return "collect_title"
	case StepCollectDate:
		return "collect_date"
	case StepCollectTime:
		return "collect_time"
	case StepReview:
		return "review"
	case StepConfirm:
		return "confirm"
	case StepCollectName:
		return "collect_name"
	case StepCollectEmail:
		return "collect_email"
	default:
		return "unknown"
	}
}

// TimeSlot is one bookable half-hour window on a given day.
type TimeSlot struct {
	Start   string // "HH:MM" 24h
	End     string // "HH:MM" 24h
	Display string // e.g. "2:00 PM"
}

// AppointmentDetails accumulates the fields collected by the appointment
// sub-flow. Time may only be set once Date and AvailableSlots are set (see
// [AppointmentFlow] invariant).
type AppointmentDetails struct {
	Title           string
	Date            string // "YYYY-MM-DD"
	Time            string // "HH:MM" 24h
	TimeDisplay     string
	AvailableSlots  []TimeSlot
}

// AppointmentFlow is the strict, ordered micro-state machine described in
// §4.4: SelectCalendar → CollectTitle → CollectDate → CollectTime → Review →
// (Confirm | edit jump).
type AppointmentFlow struct {
	Active       bool
	Step         AppointmentStep
	CalendarType CalendarType
	Details      AppointmentDetails
}

// ReadyToConfirm reports whether every field required to create a calendar
// event is present: title, date, time, calendar type, and caller name/email.
// Review can be reached without the caller's name or email; confirm creates
// the event only when this holds.
func (f *AppointmentFlow) ReadyToConfirm(info UserInfo) bool {
	return f.Details.Title != "" &&
		f.Details.Date != "" &&
		f.Details.Time != "" &&
		(f.CalendarType == CalendarGoogle || f.CalendarType == CalendarMicrosoft) &&
		info.Name != "" &&
		info.Email != ""
}

// LastAppointment records the most recently created calendar event, consumed
// by the post-call notifier.
type LastAppointment struct {
	EventID   string
	EventLink string
	Title     string
	Date      string
	Time      string
}

// Session holds all conversational state bound to a [Call]. Every mutation
// must happen while holding the lock obtained from the owning call manager
// (see internal/app); Session itself does not embed a mutex so it can be
// snapshotted cheaply for the post-call notifier.
type Session struct {
	CallID     string
	BusinessID string

	Phase Phase

	UserInfo UserInfo

	History []HistoryEntry

	Appointment     AppointmentFlow
	LastAppointment *LastAppointment

	// IsResponding is true between a model "response started" and
	// "response done"/cancel. Invariant: IsResponding implies
	// ActiveResponseID != "".
	IsResponding bool

	// ActiveResponseID is the model-provided response handle used for
	// cancellation.
	ActiveResponseID string

	// SuppressAudio is true when post-interruption residual audio deltas
	// must be dropped. Cleared when the next response starts, before the
	// first audio delta of that response arrives.
	SuppressAudio bool

	// AwaitingFollowUp biases next-utterance intent classification after an
	// informational answer (legacy text path only).
	AwaitingFollowUp bool

	CreatedAt time.Time
}

// NewSession creates a Session in the Greeting phase for the given call.
func NewSession(callID, businessID string) *Session {
	return &Session{
		CallID:     callID,
		BusinessID: businessID,
		Phase:      PhaseGreeting,
		CreatedAt:  time.Now(),
	}
}

// AppendHistory appends an entry to the session history. History is
// append-only: no code path may remove or rewrite a prior entry.
func (s *Session) AppendHistory(role Role, text string) {
	s.History = append(s.History, HistoryEntry{
		Role:      role,
		Text:      text,
		Timestamp: time.Now(),
	})
}

// RecomputeCollected updates UserInfo.Collected from the current fields.
// The default completion criterion is Name and Email both present.
func (s *Session) RecomputeCollected() {
	s.UserInfo.Collected = s.UserInfo.Name != "" && s.UserInfo.Email != ""
}

// Snapshot returns a deep-enough copy of the session suitable for handing to
// the post-call notifier after the call has closed. The notifier never holds
// a live reference into the call's mutable state.
func (s *Session) Snapshot() Session {
	cp := *s
	cp.History = append([]HistoryEntry(nil), s.History...)
	cp.Appointment.Details.AvailableSlots = append([]TimeSlot(nil), s.Appointment.Details.AvailableSlots...)
	if s.LastAppointment != nil {
		la := *s.LastAppointment
		cp.LastAppointment = &la
	}
	return cp
}
