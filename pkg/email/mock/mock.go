// Package mock provides a test double for the email.Sender interface.
package mock

import (
	"context"
	"sync"

	"github.com/relaycall/voicegateway/pkg/email"
)

// SendCall records a single invocation of Send.
type SendCall struct {
	To      []string
	Subject string
	Body    string
}

// Sender is a mock implementation of email.Sender.
type Sender struct {
	mu sync.Mutex

	// MessageID is returned by Send on success.
	MessageID string
	// Err, if non-nil, is returned as the error from Send.
	Err error

	// Calls records every invocation of Send, in order.
	Calls []SendCall
}

func (s *Sender) Send(ctx context.Context, to []string, subject, body string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, SendCall{To: to, Subject: subject, Body: body})
	if s.Err != nil {
		return "", s.Err
	}
	return s.MessageID, nil
}

var _ email.Sender = (*Sender)(nil)
