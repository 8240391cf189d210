package resilience

import (
	"context"

	"github.com/relaycall/voicegateway/pkg/email"
)

// EmailFallback implements [email.Sender] with automatic failover from the
// primary sender to the fallbacks registered with AddFallback, in order.
type EmailFallback struct {
	group *FallbackGroup[email.Sender]
}

var _ email.Sender = (*EmailFallback)(nil)

// NewEmailFallback creates an [EmailFallback] with primary as the preferred
// sender.
func NewEmailFallback(primary email.Sender, primaryName string, cfg FallbackConfig) *EmailFallback {
	return &EmailFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional sender as a fallback.
func (f *EmailFallback) AddFallback(name string, sender email.Sender) {
	f.group.AddFallback(name, sender)
}

// Send sends via the first healthy sender in the chain.
func (f *EmailFallback) Send(ctx context.Context, to []string, subject, body string) (string, error) {
	return ExecuteWithResult(f.group, func(s email.Sender) (string, error) {
		return s.Send(ctx, to, subject, body)
	})
}
