package resilience

import (
	"context"

	"github.com/relaycall/voicegateway/pkg/sms"
)

// SMSFallback implements [sms.Sender] with automatic failover from the
// primary sender to the fallbacks registered with AddFallback, in order.
type SMSFallback struct {
	group *FallbackGroup[sms.Sender]
}

var _ sms.Sender = (*SMSFallback)(nil)

// NewSMSFallback creates an [SMSFallback] with primary as the preferred sender.
func NewSMSFallback(primary sms.Sender, primaryName string, cfg FallbackConfig) *SMSFallback {
	return &SMSFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional sender as a fallback.
func (f *SMSFallback) AddFallback(name string, sender sms.Sender) {
	f.group.AddFallback(name, sender)
}

// Send sends via the first healthy sender in the chain.
func (f *SMSFallback) Send(ctx context.Context, to, body string) (string, error) {
	return ExecuteWithResult(f.group, func(s sms.Sender) (string, error) {
		return s.Send(ctx, to, body)
	})
}
