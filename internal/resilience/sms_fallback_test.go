package resilience

import (
	"context"
	"errors"
	"testing"

	smsmock "github.com/relaycall/voicegateway/pkg/sms/mock"
)

func TestSMSFallback_Send_PrimarySuccess(t *testing.T) {
	primary := &smsmock.Sender{SID: "SM-primary"}
	secondary := &smsmock.Sender{SID: "SM-secondary"}

	fb := NewSMSFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	sid, err := fb.Send(context.Background(), "+15551234567", "your appointment is confirmed")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sid != "SM-primary" {
		t.Fatalf("sid = %q, want SM-primary", sid)
	}
	if len(primary.Calls) != 1 {
		t.Fatalf("primary called %d times, want 1", len(primary.Calls))
	}
	if len(secondary.Calls) != 0 {
		t.Fatalf("secondary called %d times, want 0", len(secondary.Calls))
	}
}

func TestSMSFallback_Send_Failover(t *testing.T) {
	primary := &smsmock.Sender{Err: errors.New("twilio down")}
	secondary := &smsmock.Sender{SID: "SM-secondary"}

	fb := NewSMSFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	sid, err := fb.Send(context.Background(), "+15551234567", "your appointment is confirmed")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sid != "SM-secondary" {
		t.Fatalf("sid = %q, want SM-secondary", sid)
	}
}

func TestSMSFallback_Send_AllFail(t *testing.T) {
	primary := &smsmock.Sender{Err: errors.New("twilio down")}
	secondary := &smsmock.Sender{Err: errors.New("backup down")}

	fb := NewSMSFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	_, err := fb.Send(context.Background(), "+15551234567", "your appointment is confirmed")
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
