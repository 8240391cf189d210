// Package mock provides a test double for the sms.Sender interface.
package mock

import (
	"context"
	"sync"

	"github.com/relaycall/voicegateway/pkg/sms"
)

// SendCall records a single invocation of Send.
type SendCall struct {
	To   string
	Body string
}

// Sender is a mock implementation of sms.Sender.
type Sender struct {
	mu sync.Mutex

	// SID is returned by Send on success.
	SID string
	// Err, if non-nil, is returned as the error from Send.
	Err error

	// Calls records every invocation of Send, in order.
	Calls []SendCall
}

func (s *Sender) Send(ctx context.Context, to, body string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, SendCall{To: to, Body: body})
	if s.Err != nil {
		return "", s.Err
	}
	return s.SID, nil
}

var _ sms.Sender = (*Sender)(nil)
