// Package notify implements the post-call notifier (C7, §4.7): one summary
// generation followed by a fire-and-forget email and SMS fan-out, invoked
// once per call on close.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/relaycall/voicegateway/internal/callsession"
	"github.com/relaycall/voicegateway/internal/tenant"
	"github.com/relaycall/voicegateway/pkg/email"
	"github.com/relaycall/voicegateway/pkg/llm"
	"github.com/relaycall/voicegateway/pkg/sms"
)

// Notifier sends the post-call summary. LLM, Email, and SMS are typically
// internal/resilience fallback wrappers, but any implementation of the
// respective interface works; a nil Email or SMS simply skips that
// channel.
type Notifier struct {
	LLM   llm.Provider
	Email email.Sender
	SMS   sms.Sender
}

// Notify runs the full post-call sequence for one finished call: generate a
// summary, then send it by email and SMS. It does not return an error —
// email and SMS failures are logged and otherwise have no effect on the
// call, which has already ended by the time Notify runs (§4.7). Callers
// that don't want call teardown to wait on slow sends should invoke Notify
// in its own goroutine.
func (n *Notifier) Notify(ctx context.Context, business tenant.BusinessConfig, sess callsession.Session) {
	if !shouldNotify(business, sess.UserInfo) {
		return
	}

	summary := GenerateSummary(ctx, n.LLM, sess.History)

	n.sendEmail(ctx, business, sess, summary)
	n.sendSMS(ctx, business, sess, summary)
}

// shouldNotify implements §4.7's skip rule: nothing was collected from the
// caller AND the business has no fixed admin recipient.
func shouldNotify(business tenant.BusinessConfig, info callsession.UserInfo) bool {
	collectedSomething := info.Name != "" || info.Email != "" || info.Phone != ""
	hasAdminRecipient := len(business.Email.AdminAddresses) > 0 || len(business.SMS.AdminNumbers) > 0
	return collectedSomething || hasAdminRecipient
}

func (n *Notifier) sendEmail(ctx context.Context, business tenant.BusinessConfig, sess callsession.Session, summary *Summary) {
	if n.Email == nil {
		return
	}
	recipients := make([]string, 0, len(business.Email.AdminAddresses)+1)
	if sess.UserInfo.Email != "" {
		recipients = append(recipients, sess.UserInfo.Email)
	}
	recipients = append(recipients, business.Email.AdminAddresses...)
	if len(recipients) == 0 {
		return
	}

	subject := fmt.Sprintf("Call summary: %s", business.DisplayName)
	if _, err := n.Email.Send(ctx, recipients, subject, emailBody(business, sess, summary)); err != nil {
		slog.Warn("notify: failed to send call summary email", "call_id", sess.CallID, "err", err)
	}
}

func (n *Notifier) sendSMS(ctx context.Context, business tenant.BusinessConfig, sess callsession.Session, summary *Summary) {
	if n.SMS == nil {
		return
	}
	recipients := make([]string, 0, len(business.SMS.AdminNumbers)+1)
	if sess.UserInfo.Phone != "" {
		recipients = append(recipients, sess.UserInfo.Phone)
	}
	recipients = append(recipients, business.SMS.AdminNumbers...)
	if len(recipients) == 0 {
		return
	}

	body := smsBody(business, sess, summary)
	for _, to := range recipients {
		if _, err := n.SMS.Send(ctx, to, body); err != nil {
			slog.Warn("notify: failed to send call summary SMS", "call_id", sess.CallID, "to", to, "err", err)
		}
	}
}

// emailBody renders the markdown body passed to email.Sender; the sender
// implementation (pkg/email) handles the HTML+text MIME rendering.
func emailBody(business tenant.BusinessConfig, sess callsession.Session, summary *Summary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Call summary for %s\n\n", business.DisplayName)
	fmt.Fprintf(&sb, "%s\n\n", summary.Summary)

	if sess.UserInfo.Name != "" || sess.UserInfo.Email != "" || sess.UserInfo.Phone != "" {
		sb.WriteString("## Caller\n\n")
		if sess.UserInfo.Name != "" {
			fmt.Fprintf(&sb, "- Name: %s\n", sess.UserInfo.Name)
		}
		if sess.UserInfo.Email != "" {
			fmt.Fprintf(&sb, "- Email: %s\n", sess.UserInfo.Email)
		}
		if sess.UserInfo.Phone != "" {
			fmt.Fprintf(&sb, "- Phone: %s\n", sess.UserInfo.Phone)
		}
		sb.WriteString("\n")
	}

	if len(summary.KeyPoints) > 0 {
		sb.WriteString("## Key points\n\n")
		for _, p := range summary.KeyPoints {
			fmt.Fprintf(&sb, "- %s\n", p)
		}
		sb.WriteString("\n")
	}

	if len(summary.Topics) > 0 {
		fmt.Fprintf(&sb, "**Topics:** %s\n\n", strings.Join(summary.Topics, ", "))
	}

	if summary.CustomerNeeds != "" {
		fmt.Fprintf(&sb, "**Customer needs:** %s\n\n", summary.CustomerNeeds)
	}

	if len(summary.NextSteps) > 0 {
		sb.WriteString("## Next steps\n\n")
		for _, s := range summary.NextSteps {
			fmt.Fprintf(&sb, "- %s\n", s)
		}
		sb.WriteString("\n")
	}

	if sess.LastAppointment != nil {
		la := sess.LastAppointment
		fmt.Fprintf(&sb, "## Appointment booked\n\n%s on %s at %s ([link](%s))\n", la.Title, la.Date, la.Time, la.EventLink)
	}

	return sb.String()
}

// smsBody renders a short plain-text summary, since SMS has no rich
// formatting and a strict length budget in practice.
func smsBody(business tenant.BusinessConfig, sess callsession.Session, summary *Summary) string {
	text := fmt.Sprintf("%s call summary: %s", business.DisplayName, summary.Summary)
	if sess.UserInfo.Name != "" {
		text = fmt.Sprintf("%s call summary for %s: %s", business.DisplayName, sess.UserInfo.Name, summary.Summary)
	}
	const maxLen = 480
	if len(text) > maxLen {
		text = text[:maxLen-1] + "…"
	}
	return text
}
