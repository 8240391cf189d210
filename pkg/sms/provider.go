// Package sms defines the Sender interface for the SMS notification driver
// used by C7 (§4.7, §6).
package sms

import "context"

// Sender is the abstraction over any SMS transport. Implementations must be
// safe for concurrent use.
type Sender interface {
	// Send delivers body to the recipient, returning the provider's
	// message SID on success.
	Send(ctx context.Context, to, body string) (sid string, err error)
}
