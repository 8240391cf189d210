package convo

import (
	"testing"

	"github.com/relaycall/voicegateway/internal/callsession"
	calmock "github.com/relaycall/voicegateway/pkg/calendar/mock"
)

func TestEngine_ProcessTurn_CollectsIdentityBeforeConversational(t *testing.T) {
	e := NewEngine(nil)
	sess := callsession.NewSession("call-1", "biz-1")

	reply, _ := e.ProcessTurn(sess, "Hi there")
	if sess.Phase != callsession.PhaseCollectingIdentity {
		t.Fatalf("phase = %v, want PhaseCollectingIdentity", sess.Phase)
	}
	if reply == "" {
		t.Fatal("expected a non-empty prompt for identity")
	}

	reply, effects := e.ProcessTurn(sess, "My name is Dana Smith, my email is dana@example.com")
	if !sess.UserInfo.Collected {
		t.Fatal("expected UserInfo.Collected=true")
	}
	if sess.Phase != callsession.PhaseConversational {
		t.Fatalf("phase = %v, want PhaseConversational", sess.Phase)
	}
	if len(effects) == 0 {
		t.Error("expected update_user_info side effect")
	}
	if reply == "" {
		t.Fatal("expected a non-empty reply")
	}
}

func TestEngine_ProcessTurn_Goodbye(t *testing.T) {
	e := NewEngine(nil)
	sess := callsession.NewSession("call-1", "biz-1")
	sess.Phase = callsession.PhaseConversational
	sess.UserInfo.Collected = true

	e.ProcessTurn(sess, "That's all, goodbye")
	if sess.Phase != callsession.PhaseGoodbye {
		t.Fatalf("phase = %v, want PhaseGoodbye", sess.Phase)
	}
}

func TestEngine_ProcessTurn_StartsAppointmentFlow(t *testing.T) {
	mock := &calmock.Provider{}
	appt := NewAppointmentEngine(callsession.CalendarGoogle, mock, nil)
	e := NewEngine(appt)
	sess := callsession.NewSession("call-1", "biz-1")
	sess.Phase = callsession.PhaseConversational
	sess.UserInfo.Collected = true

	_, effects := e.ProcessTurn(sess, "I'd like to book a demo")
	if !sess.Appointment.Active {
		t.Fatal("expected appointment flow to be activated")
	}
	if len(effects) == 0 {
		t.Error("expected schedule_appointment side effect")
	}
}

func TestEngine_ProcessTurn_HistoryIsAppendOnly(t *testing.T) {
	e := NewEngine(nil)
	sess := callsession.NewSession("call-1", "biz-1")
	e.ProcessTurn(sess, "hello")
	e.ProcessTurn(sess, "world")
	if len(sess.History) != 4 {
		t.Fatalf("history length = %d, want 4 (2 user + 2 assistant)", len(sess.History))
	}
}
