package council

import "time"

// EventType enumerates the tagged union of spec.md §3's Event.
type EventType string

const (
	EventStage1Start         EventType = "stage1_start"
	EventStage1Chunk         EventType = "stage1_chunk"
	EventStage1ModelComplete EventType = "stage1_model_complete"
	EventStage1Response      EventType = "stage1_response"
	EventStage1Complete      EventType = "stage1_complete"

	EventStage2Start         EventType = "stage2_start"
	EventStage2Chunk         EventType = "stage2_chunk"
	EventStage2ModelComplete EventType = "stage2_model_complete"
	EventStage2Response      EventType = "stage2_response"
	EventStage2Complete      EventType = "stage2_complete"

	EventStage3Start          EventType = "stage3_start"
	EventStage3ReasoningChunk EventType = "stage3_reasoning_chunk"
	EventStage3Chunk          EventType = "stage3_chunk"
	EventStage3Response       EventType = "stage3_response"

	EventTitleComplete EventType = "title_complete"
	EventHeartbeat     EventType = "heartbeat"
	EventComplete      EventType = "complete"
	EventError         EventType = "error"
	EventReconnected   EventType = "reconnected"
)

// Event is the single JSON-serializable shape broadcast to subscribers and
// accumulated by the registry. Only the fields relevant to Type are set.
type Event struct {
	Type EventType `json:"type"`

	Model string `json:"model,omitempty"`
	Delta string `json:"delta,omitempty"`

	PromptTokens     *int `json:"promptTokens,omitempty"`
	CompletionTokens *int `json:"completionTokens,omitempty"`

	Stage1Answer *Stage1Answer `json:"stage1Answer,omitempty"`
	Stage2Review *Stage2Review `json:"stage2Review,omitempty"`

	LabelToModel map[string]string       `json:"labelToModel,omitempty"`
	Aggregate    []AggregateRankingEntry `json:"aggregate,omitempty"`

	Stage3Synthesis *Stage3Synthesis `json:"stage3Synthesis,omitempty"`

	Title string `json:"title,omitempty"`

	Timestamp time.Time `json:"timestamp,omitempty"`

	Message string `json:"message,omitempty"`

	// Reconnected marker fields.
	Stage       string `json:"stage,omitempty"`
	UserMessage string `json:"userMessage,omitempty"`
}
