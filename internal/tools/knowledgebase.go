package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/relaycall/voicegateway/pkg/embeddings"
	"github.com/relaycall/voicegateway/pkg/realtime"
	"github.com/relaycall/voicegateway/pkg/retrieval"
)

// topK is the number of knowledge-base passages retrieved per query (§4.5).
const topK = 5

// maxContextChars bounds the total length of the textual context returned
// to the model, so one verbose knowledge-base entry can't blow the model's
// context budget.
const maxContextChars = 4000

// searchKnowledgeBaseArgs is the JSON-decoded input for the
// "search_knowledge_base" tool.
type searchKnowledgeBaseArgs struct {
	Query string `json:"query"`
}

// searchKnowledgeBaseResult is the JSON-encoded output of the
// "search_knowledge_base" tool.
type searchKnowledgeBaseResult struct {
	Success bool     `json:"success"`
	Context string   `json:"context,omitempty"`
	Sources []string `json:"sources,omitempty"`
	Message string   `json:"message,omitempty"`
}

// knowledgeBaseTool builds the "search_knowledge_base" tool: it embeds the
// caller's query, searches the business's knowledge base (top-k=5), and
// formats the retrieved passages as bounded textual context grouped by
// category (§4.5).
func knowledgeBaseTool(embed embeddings.Provider, store retrieval.Provider, businessID string) Tool {
	handler := func(ctx context.Context, args string) (string, error) {
		var a searchKnowledgeBaseArgs
		if err := json.Unmarshal([]byte(args), &a); err != nil {
			return "", fmt.Errorf("search_knowledge_base: failed to parse arguments: %w", err)
		}
		if strings.TrimSpace(a.Query) == "" {
			return "", fmt.Errorf("search_knowledge_base: query must not be empty")
		}

		vec, err := embed.Embed(ctx, a.Query)
		if err != nil {
			return "", fmt.Errorf("search_knowledge_base: embed query: %w", err)
		}

		results, err := store.Search(ctx, vec, topK, retrieval.Filter{BusinessID: businessID})
		if err != nil {
			return "", fmt.Errorf("search_knowledge_base: %w", err)
		}

		if len(results) == 0 {
			res, _ := json.Marshal(searchKnowledgeBaseResult{
				Success: true,
				Message: "I don't have specific information on that, but I'd be happy to set up a quick demo so our team can walk you through it directly.",
			})
			return string(res), nil
		}

		passageText, sources := formatContext(results)

		res, err := json.Marshal(searchKnowledgeBaseResult{
			Success: true,
			Context: passageText,
			Sources: sources,
		})
		if err != nil {
			return "", fmt.Errorf("search_knowledge_base: failed to encode result: %w", err)
		}
		return string(res), nil
	}

	return Tool{
		Definition: realtime.ToolDefinition{
			Name:        "search_knowledge_base",
			Description: "Search this business's knowledge base for information relevant to the caller's question. Returns grouped textual context and the matching content titles.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "The caller's question or the domain keywords extracted from it.",
					},
				},
				"required": []string{"query"},
			},
		},
		Handler: handler,
	}
}

// formatContext groups retrieval results by category into a single bounded
// textual block, and returns the distinct content titles as sources.
func formatContext(results []retrieval.Result) (passageText string, sources []string) {
	byCategory := make(map[string][]retrieval.Result)
	var order []string
	seenTitle := make(map[string]bool)

	for _, r := range results {
		cat := r.Content.Category
		if _, ok := byCategory[cat]; !ok {
			order = append(order, cat)
		}
		byCategory[cat] = append(byCategory[cat], r)

		if !seenTitle[r.Content.Title] {
			seenTitle[r.Content.Title] = true
			sources = append(sources, r.Content.Title)
		}
	}

	var b strings.Builder
	for _, cat := range order {
		if cat != "" {
			b.WriteString("## " + cat + "\n")
		}
		for _, r := range byCategory[cat] {
			if b.Len()+len(r.Content.Content) > maxContextChars {
				continue
			}
			b.WriteString(r.Content.Content)
			b.WriteString("\n\n")
		}
	}

	out := b.String()
	if len(out) > maxContextChars {
		out = out[:maxContextChars]
	}
	return out, sources
}
