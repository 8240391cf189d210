package resilience

import (
	"context"
	"time"

	"github.com/relaycall/voicegateway/pkg/calendar"
)

// CalendarFallback implements [calendar.Provider] with automatic failover,
// used when a business configures more than one calendar backend (§4.4,
// §6). Most businesses configure exactly one backend, in which case this
// wraps it with no effective fallback.
type CalendarFallback struct {
	group *FallbackGroup[calendar.Provider]
}

var _ calendar.Provider = (*CalendarFallback)(nil)

// NewCalendarFallback creates a [CalendarFallback] with primary as the
// preferred backend.
func NewCalendarFallback(primary calendar.Provider, primaryName string, cfg FallbackConfig) *CalendarFallback {
	return &CalendarFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional calendar provider as a fallback.
func (f *CalendarFallback) AddFallback(name string, provider calendar.Provider) {
	f.group.AddFallback(name, provider)
}

func (f *CalendarFallback) FindAvailableSlots(ctx context.Context, windowStart, windowEnd time.Time, slotMinutes int) ([]calendar.Slot, error) {
	return ExecuteWithResult(f.group, func(p calendar.Provider) ([]calendar.Slot, error) {
		return p.FindAvailableSlots(ctx, windowStart, windowEnd, slotMinutes)
	})
}

func (f *CalendarFallback) FindNextAvailableSlot(ctx context.Context, from time.Time, maxDays int, slotMinutes int) (*calendar.Slot, error) {
	return ExecuteWithResult(f.group, func(p calendar.Provider) (*calendar.Slot, error) {
		return p.FindNextAvailableSlot(ctx, from, maxDays, slotMinutes)
	})
}

func (f *CalendarFallback) CreateAppointment(ctx context.Context, appt calendar.Appointment) (*calendar.CreatedEvent, error) {
	return ExecuteWithResult(f.group, func(p calendar.Provider) (*calendar.CreatedEvent, error) {
		return p.CreateAppointment(ctx, appt)
	})
}
