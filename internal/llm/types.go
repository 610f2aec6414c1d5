// Package llm implements the Upstream Client: a thin wrapper around a single
// remote LLM gateway that speaks an OpenAI-compatible chat-completions API,
// used to reach any model identifier the gateway exposes.
package llm

// Role identifies the sender of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn in a chat-completion request.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Usage carries token accounting reported by the gateway, when available.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	ReasoningTokens  int `json:"reasoning_tokens,omitempty"`
}

// BlockingResult is the outcome of a non-streaming completion call.
type BlockingResult struct {
	Content string
	Ms      int64
	Usage   *Usage
}

// StreamChunk is one item of a streaming completion's sequence. Exactly one
// of Delta/Reasoning is set on intermediate chunks; Done is set on the
// terminal chunk, which carries no Delta/Reasoning. Err is set instead of
// Done when a transport-level failure aborts the sequence early; any prior
// chunks on the channel remain valid.
type StreamChunk struct {
	Delta     string
	Reasoning string
	Done      bool
	Ms        int64
	Usage     *Usage
	Err       error
}
