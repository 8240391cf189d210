package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"time"
)

const smtpDialTimeout = 30 * time.Second

// SMTPConfig holds connection settings for a single SMTP relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	StartTLS bool
}

// Provider implements [Sender] over raw SMTP.
// No pack repo imports a transactional-email SDK, so this driver speaks
// SMTP directly, the way the reference email package does.
type Provider struct {
	cfg  SMTPConfig
	from string
}

// New constructs a Provider bound to cfg, sending mail as from.
func New(cfg SMTPConfig, from string) *Provider {
	return &Provider{cfg: cfg, from: from}
}

// Send composes and delivers a message to recipients.
func (p *Provider) Send(ctx context.Context, to []string, subject, body string) (string, error) {
	msg, err := ComposeMessage(ComposeOptions{From: p.from, To: to, Subject: subject, Body: body})
	if err != nil {
		return "", err
	}
	if err := sendMail(ctx, p.cfg, extractAddress(p.from), to, msg); err != nil {
		return "", err
	}
	return messageIDFromHeader(msg), nil
}

// sendMail connects to the SMTP server, authenticates, and delivers msg.
// Each call opens and closes its own connection.
func sendMail(ctx context.Context, cfg SMTPConfig, from string, recipients []string, msg []byte) error {
	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))

	dialTimeout := smtpDialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < dialTimeout {
			dialTimeout = remaining
		}
	}
	dialer := &net.Dialer{Timeout: dialTimeout}

	var client *smtp.Client
	var err error

	if !cfg.StartTLS {
		tlsCfg := &tls.Config{ServerName: cfg.Host}
		conn, dialErr := tls.DialWithDialer(dialer, "tcp", addr, tlsCfg)
		if dialErr != nil {
			return fmt.Errorf("email/smtp: dial smtps %s: %w", addr, dialErr)
		}
		client, err = smtp.NewClient(conn, cfg.Host)
		if err != nil {
			conn.Close()
			return fmt.Errorf("email/smtp: create client on %s: %w", addr, err)
		}
	} else {
		conn, dialErr := dialer.DialContext(ctx, "tcp", addr)
		if dialErr != nil {
			return fmt.Errorf("email/smtp: dial smtp %s: %w", addr, dialErr)
		}
		client, err = smtp.NewClient(conn, cfg.Host)
		if err != nil {
			conn.Close()
			return fmt.Errorf("email/smtp: create client on %s: %w", addr, err)
		}
	}
	defer client.Close()

	if err := client.Hello("localhost"); err != nil {
		return fmt.Errorf("email/smtp: ehlo: %w", err)
	}

	if cfg.StartTLS {
		tlsCfg := &tls.Config{ServerName: cfg.Host}
		if err := client.StartTLS(tlsCfg); err != nil {
			return fmt.Errorf("email/smtp: starttls: %w", err)
		}
	}

	if cfg.Username != "" && cfg.Password != "" {
		auth := smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("email/smtp: auth: %w", err)
		}
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("email/smtp: mail from: %w", err)
	}
	for _, rcpt := range recipients {
		if err := client.Rcpt(extractAddress(rcpt)); err != nil {
			return fmt.Errorf("email/smtp: rcpt to %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("email/smtp: data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("email/smtp: write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("email/smtp: close data: %w", err)
	}

	return client.Quit()
}

func extractAddress(s string) string {
	if idx := len(s) - 1; idx > 0 && s[idx] == '>' {
		if start := lastIndexByte(s, '<'); start >= 0 {
			return s[start+1 : idx]
		}
	}
	return s
}

func lastIndexByte(s string, c byte) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == c {
			return i
		}
	}
	return -1
}

func messageIDFromHeader(msg []byte) string {
	const prefix = "Message-Id: "
	for i := 0; i+len(prefix) <= len(msg); i++ {
		if string(msg[i:i+len(prefix)]) == prefix {
			j := i + len(prefix)
			end := j
			for end < len(msg) && msg[end] != '\r' && msg[end] != '\n' {
				end++
			}
			return string(msg[j:end])
		}
	}
	return ""
}
