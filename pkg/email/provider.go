package email

import "context"

// Sender is the abstraction over any outbound email transport, letting C7
// fall back across a business's configured provider chain (§4.7, §6).
// Implementations must be safe for concurrent use.
type Sender interface {
	// Send composes and delivers a message, returning the provider's
	// message ID on success.
	Send(ctx context.Context, to []string, subject, body string) (messageID string, err error)
}

var _ Sender = (*Provider)(nil)
