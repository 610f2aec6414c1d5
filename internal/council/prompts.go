package council

import (
	"fmt"
	"strings"
)

const systemPrompt = "You are one of several independent assistants answering the same question. Answer directly and completely; do not mention that other assistants exist."

func buildStage1Messages(history []historyTurn, userContent string) []chatMessage {
	msgs := make([]chatMessage, 0, len(history)+2)
	msgs = append(msgs, chatMessage{Role: "system", Content: systemPrompt})
	for _, h := range history {
		msgs = append(msgs, chatMessage{Role: h.Role, Content: h.Content})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: userContent})
	return msgs
}

// buildRankingPrompt embeds each anonymized stage 1 answer and instructs the
// evaluator to conclude with the FINAL RANKING sentinel, per spec.md §4.4.
func buildRankingPrompt(answers []labeledAnswer) string {
	var b strings.Builder
	b.WriteString("Below are anonymized responses to the same question from several assistants. Rank them from best to worst.\n\n")
	for _, a := range answers {
		fmt.Fprintf(&b, "%s:\n%s\n\n", a.Label, a.Content)
	}
	b.WriteString("Conclude your evaluation with a line reading exactly \"FINAL RANKING:\" followed by a numbered list from best to worst, one entry per line, in the form:\n")
	b.WriteString("1. Response X\n2. Response Y\n...\n")
	return b.String()
}

// buildChairmanPrompt embeds the anonymized stage 1 answers and the stage 2
// evaluator texts, instructing direct synthesis in the user's language.
func buildChairmanPrompt(userContent string, answers []labeledAnswer, evaluators []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A user asked: %s\n\n", userContent)
	b.WriteString("Several assistants answered independently, and evaluators ranked the answers. Synthesize a single authoritative answer that combines their best elements, responding directly to the user in the same language as their question. Do not mention the assistants, evaluators, or this process.\n\n")
	for _, a := range answers {
		fmt.Fprintf(&b, "%s:\n%s\n\n", a.Label, a.Content)
	}
	for i, e := range evaluators {
		fmt.Fprintf(&b, "Evaluator %d:\n%s\n\n", i+1, e)
	}
	return b.String()
}

type labeledAnswer struct {
	Label   string
	Model   string
	Content string
}

type chatMessage struct {
	Role    string
	Content string
}

type historyTurn struct {
	Role    string
	Content string
}
