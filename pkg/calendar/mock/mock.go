// Package mock provides a test double for the calendar.Provider interface.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/relaycall/voicegateway/pkg/calendar"
)

// Provider is a mock implementation of calendar.Provider.
type Provider struct {
	mu sync.Mutex

	// AvailableSlots is returned by FindAvailableSlots.
	AvailableSlots []calendar.Slot
	// FindErr, if non-nil, is returned as the error from FindAvailableSlots.
	FindErr error

	// NextSlot is returned by FindNextAvailableSlot.
	NextSlot *calendar.Slot
	// NextSlotErr, if non-nil, is returned as the error from FindNextAvailableSlot.
	NextSlotErr error

	// CreatedEvent is returned by CreateAppointment.
	CreatedEvent *calendar.CreatedEvent
	// CreateErr, if non-nil, is returned as the error from CreateAppointment.
	CreateErr error

	// CreateCalls records every appointment passed to CreateAppointment.
	CreateCalls []calendar.Appointment
}

func (p *Provider) FindAvailableSlots(ctx context.Context, windowStart, windowEnd time.Time, slotMinutes int) ([]calendar.Slot, error) {
	if p.FindErr != nil {
		return nil, p.FindErr
	}
	return p.AvailableSlots, nil
}

func (p *Provider) FindNextAvailableSlot(ctx context.Context, from time.Time, maxDays int, slotMinutes int) (*calendar.Slot, error) {
	if p.NextSlotErr != nil {
		return nil, p.NextSlotErr
	}
	return p.NextSlot, nil
}

func (p *Provider) CreateAppointment(ctx context.Context, appt calendar.Appointment) (*calendar.CreatedEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CreateCalls = append(p.CreateCalls, appt)
	if p.CreateErr != nil {
		return nil, p.CreateErr
	}
	return p.CreatedEvent, nil
}

var _ calendar.Provider = (*Provider)(nil)
