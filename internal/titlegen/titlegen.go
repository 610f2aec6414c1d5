// Package titlegen provides the reference council.TitleGenerator
// implementation: a single blocking completion asking a model to summarize
// the user's opening message into a short title, per spec.md §4.4/§4.8.
package titlegen

import (
	"context"
	"strings"
	"time"

	"github.com/councilml/council/internal/council"
	"github.com/councilml/council/internal/llm"
)

const systemPrompt = "Summarize the user's message into a title of five words or fewer. Respond with the title only, no punctuation, no quotes."

// Blocker is the subset of llm.Client the title generator depends on.
type Blocker interface {
	CompleteBlocking(ctx context.Context, model string, messages []llm.Message, maxTokens int, timeout time.Duration) (*llm.BlockingResult, error)
}

// New returns a council.TitleGenerator that asks model for a short title via
// a single completeBlocking call, per spec.md §4.1.
func New(client Blocker, model string, maxTokens int, timeout time.Duration) council.TitleGenerator {
	return func(ctx context.Context, userMessage string) (string, error) {
		messages := []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleUser, Content: userMessage},
		}
		result, err := client.CompleteBlocking(ctx, model, messages, maxTokens, timeout)
		if err != nil {
			return "", err
		}
		title := strings.TrimSpace(result.Content)
		title = strings.Trim(title, "\"'")
		return title, nil
	}
}
