// Package tools implements the built-in tool catalogue the realtime session
// offers to the model (C5, §4.5): knowledge-base search, the appointment
// sub-flow dispatcher, user-info updates, and the DTMF emergency transfer.
//
// Each tool pairs an [realtime.ToolDefinition] (the model-facing schema)
// with a handler matching [realtime.ToolCallHandler]'s signature. Handlers
// close over the call's live [callsession.Session] and business-scoped
// dependencies rather than receiving them as arguments, since the realtime
// session only passes a tool name and a JSON argument string.
package tools

import (
	"context"

	"github.com/relaycall/voicegateway/internal/callsession"
	"github.com/relaycall/voicegateway/internal/convo"
	"github.com/relaycall/voicegateway/internal/tenant"
	"github.com/relaycall/voicegateway/pkg/embeddings"
	"github.com/relaycall/voicegateway/pkg/realtime"
	"github.com/relaycall/voicegateway/pkg/retrieval"
)

// Tool represents one built-in tool ready for inclusion in a realtime
// session's [realtime.SessionConfig.Tools] catalogue and dispatch table.
type Tool struct {
	// Definition is the tool's model-facing schema.
	Definition realtime.ToolDefinition

	// Handler executes the tool. Implementations must be safe for
	// concurrent use only insofar as the session guarantees at most one
	// in-flight tool call at a time (§4.3); they must still respect ctx
	// cancellation for the 30s per-tool wall-clock bound enforced by
	// internal/callrt.
	Handler func(ctx context.Context, args string) (string, error)
}

// RedirectFunc invokes the carrier's call-redirect hook (§6), transferring
// the live call to a different number and tearing down the media bridge.
type RedirectFunc func(ctx context.Context, callID, targetNumber string) error

// Deps bundles the business-scoped and call-scoped dependencies a tool
// catalogue is built from.
type Deps struct {
	// Session is the live, mutable session for this call. Handlers mutate
	// it directly; no separate store lookup is needed per call.
	Session *callsession.Session

	// Business is the tenant configuration this call was routed to.
	Business tenant.BusinessConfig

	// Embeddings and Retrieval back search_knowledge_base. Both may be nil
	// when Business.Features.RAGEnabled is false.
	Embeddings embeddings.Provider
	Retrieval  retrieval.Provider

	// Appointments backs schedule_appointment. Nil when
	// Business.Features.AppointmentBookingEnabled is false.
	Appointments *convo.AppointmentEngine

	// Redirect backs the emergency-transfer tool. Nil when
	// Business.Features.EmergencyEnabled is false.
	Redirect RedirectFunc

	// CallID identifies the call for the redirect hook.
	CallID string
}

// Build assembles the tool catalogue for one call, honoring the business's
// feature flags and optional tool allowlist (§4.5: "Per-business tool
// catalogues may be reduced — e.g., businesses without appointment booking
// expose only update_user_info").
func Build(d Deps) []Tool {
	var all []Tool

	all = append(all, userInfoTool(d.Session))

	if d.Business.Features.RAGEnabled && d.Embeddings != nil && d.Retrieval != nil {
		all = append(all, knowledgeBaseTool(d.Embeddings, d.Retrieval, d.Business.BusinessID))
	}

	if d.Business.Features.AppointmentBookingEnabled && d.Appointments != nil {
		all = append(all, appointmentTool(d.Appointments, d.Session))
	}

	if d.Business.Features.EmergencyEnabled && d.Redirect != nil {
		all = append(all, emergencyTool(d.Redirect, d.CallID, d.Business.Emergency))
	}

	if len(d.Business.Tools) == 0 {
		return all
	}

	allowed := make(map[string]bool, len(d.Business.Tools))
	for _, name := range d.Business.Tools {
		allowed[name] = true
	}

	filtered := all[:0]
	for _, t := range all {
		if allowed[t.Definition.Name] {
			filtered = append(filtered, t)
		}
	}
	return filtered
}
