// Package council implements the Stage Orchestrator: the three-stage
// deliberation protocol (individual answers, peer ranking, chairman
// synthesis) described in spec.md §4.4, plus the domain entities of §3.
package council

import "time"

// Mode selects the participant and chairman model sets for a job.
type Mode string

const (
	ModeLite  Mode = "lite"
	ModeUltra Mode = "ultra"
)

// ModelSet configures the participants and chairman for one Mode.
type ModelSet struct {
	Participants []string
	Chairman     string
}

// UserMessage is the user's turn, per spec.md §3.
type UserMessage struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Stage1Answer is one model's individual answer. ResponseMs of 0 encodes
// "unknown due to cancellation".
type Stage1Answer struct {
	Model            string `json:"model"`
	Response         string `json:"response"`
	ResponseMs       int64  `json:"responseMs"`
	PromptTokens     *int   `json:"promptTokens,omitempty"`
	CompletionTokens *int   `json:"completionTokens,omitempty"`
}

// Stage2Review is one model's peer ranking of the anonymized stage 1
// answers. ParsedOrder is the extraction of RankingText at record time.
type Stage2Review struct {
	Model       string   `json:"model"`
	RankingText string   `json:"rankingText"`
	ParsedOrder []string `json:"parsedOrder"`
	ResponseMs  int64    `json:"responseMs"`
	Tokens      *int     `json:"tokens,omitempty"`
}

// Stage3Synthesis is the chairman's final synthesized answer.
type Stage3Synthesis struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Reasoning       string `json:"reasoning,omitempty"`
	ResponseMs      int64  `json:"responseMs"`
	Tokens          *int   `json:"tokens,omitempty"`
	ReasoningTokens *int   `json:"reasoningTokens,omitempty"`
}

// AssistantMessage is the single message persisted at the end of a job,
// whether it completed normally or was aborted mid-flight. Invariants per
// spec.md §3: Stage1 is non-empty iff the message is persisted at all;
// Stage2 nil implies cancellation before stage 2 started; Stage3 nil
// implies cancellation before stage 3 completed; WasAborted is true iff
// cancellation occurred.
type AssistantMessage struct {
	Stage1      []Stage1Answer          `json:"stage1"`
	Stage2      []Stage2Review          `json:"stage2,omitempty"`
	Stage3      *Stage3Synthesis        `json:"stage3,omitempty"`
	Mode        Mode                    `json:"mode"`
	WasAborted  bool                    `json:"wasAborted,omitempty"`
	Timestamp   time.Time               `json:"timestamp"`
	AggregateRk []AggregateRankingEntry `json:"aggregateRankings,omitempty"`
}

// AggregateRankingEntry mirrors ranking.AggregateEntry at the domain layer
// so that internal/council does not need to import internal/ranking's
// exported type name in persisted documents.
type AggregateRankingEntry struct {
	Model           string  `json:"model"`
	AveragePosition float64 `json:"averagePosition"`
	Count           int     `json:"count"`
}

// Session is the persisted conversation, keyed (UserID, SessionID).
type Session struct {
	UserID    string             `json:"userId"`
	SessionID string             `json:"sessionId"`
	Title     string             `json:"title"`
	Messages  []SessionMessage   `json:"messages"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// SessionMessage pairs one user turn with the assistant turn it produced.
// The assistant message is absent only for the in-memory copy the
// orchestrator builds before persistence completes.
type SessionMessage struct {
	User      UserMessage       `json:"user"`
	Assistant *AssistantMessage `json:"assistant,omitempty"`
}
