package notify

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/relaycall/voicegateway/internal/callsession"
	"github.com/relaycall/voicegateway/pkg/llm"
)

// summaryPrompt instructs the model to produce the structured post-call
// summary §4.7 requires, as a single JSON object and nothing else.
const summaryPrompt = `Summarise the following phone call transcript between an AI receptionist and a caller.
Respond with a single JSON object and nothing else, matching exactly this shape:
{"summary": "one paragraph overview", "keyPoints": ["..."], "topics": ["..."], "customerNeeds": "one sentence", "nextSteps": ["..."]}`

const summaryMaxTokens = 500

// Summary is the structured post-call summary §4.7 specifies.
type Summary struct {
	Summary       string   `json:"summary"`
	KeyPoints     []string `json:"keyPoints"`
	Topics        []string `json:"topics"`
	CustomerNeeds string   `json:"customerNeeds"`
	NextSteps     []string `json:"nextSteps"`
}

// fallbackSummary is returned when the model call fails outright or its
// response cannot be parsed as the expected JSON object (§4.7: "On parse
// failure, a neutral fallback object is used").
func fallbackSummary() *Summary {
	return &Summary{Summary: "Call completed. No structured summary could be generated."}
}

// GenerateSummary produces a [Summary] from history via provider, one-shot
// and bounded. It never returns an error: any failure to call the model or
// to parse its response yields [fallbackSummary] instead, since a summary
// is best-effort supporting material for the notification, never something
// worth failing the notification over.
func GenerateSummary(ctx context.Context, provider llm.Provider, history []callsession.HistoryEntry) *Summary {
	if provider == nil || len(history) == 0 {
		return fallbackSummary()
	}

	resp, err := provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: summaryPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: formatTranscript(history)},
		},
		Temperature: 0.2,
		MaxTokens:   summaryMaxTokens,
	})
	if err != nil || resp == nil {
		return fallbackSummary()
	}

	var s Summary
	if err := json.Unmarshal([]byte(extractJSONObject(resp.Content)), &s); err != nil || s.Summary == "" {
		return fallbackSummary()
	}
	return &s
}

// formatTranscript renders history as a plain-text transcript for the
// summarisation prompt.
func formatTranscript(history []callsession.HistoryEntry) string {
	var sb strings.Builder
	for _, h := range history {
		sb.WriteString(string(h.Role))
		sb.WriteString(": ")
		sb.WriteString(h.Text)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// extractJSONObject strips a markdown code fence around a JSON object, if
// the model wrapped its response in one, and trims surrounding whitespace.
func extractJSONObject(raw string) string {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
