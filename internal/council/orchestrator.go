package council

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/councilml/council/internal/fanout"
	"github.com/councilml/council/internal/llm"
	"github.com/councilml/council/internal/ranking"
)

// Config holds the environment-driven knobs the orchestrator needs, per
// spec.md §6.
type Config struct {
	Models               map[Mode]ModelSet
	Stage1Timeout        time.Duration
	Stage2Timeout        time.Duration
	Stage3Timeout        time.Duration
	ParticipantMaxTokens int
	ChairmanMaxTokens    int
	// RecentMessagesLimit is "the configured limit"; the history window
	// passed to stage 1 is twice this, per spec.md §4.4.
	RecentMessagesLimit int
	TitleTimeout        time.Duration
}

// Orchestrator drives the three-stage protocol for one job at a time; a
// single instance is shared across concurrent jobs since it holds no
// per-job mutable state.
type Orchestrator struct {
	streamer fanout.Streamer
	store    SessionStore
	cfg      Config
	titleGen TitleGenerator
}

// New returns an Orchestrator. titleGen may be nil, in which case no title
// job is ever spawned.
func New(streamer fanout.Streamer, store SessionStore, cfg Config, titleGen TitleGenerator) *Orchestrator {
	return &Orchestrator{streamer: streamer, store: store, cfg: cfg, titleGen: titleGen}
}

// Process runs processCouncilMessage (spec.md §4.4) and returns the event
// channel. ctx is the job's cancellation handle: cancelling it triggers the
// cancellation policy. The channel is closed once the job terminates, by
// whichever of complete/error/cancellation happens first.
func (o *Orchestrator) Process(ctx context.Context, userID, sessionID, userContent string, mode Mode) <-chan Event {
	out := make(chan Event, 16)
	go o.run(ctx, out, userID, sessionID, userContent, mode)
	return out
}

func (o *Orchestrator) run(ctx context.Context, out chan<- Event, userID, sessionID, userContent string, mode Mode) {
	var titleWG sync.WaitGroup
	defer func() {
		titleWG.Wait()
		close(out)
	}()

	session, ok, err := o.store.Get(ctx, userID, sessionID)
	if err != nil {
		send(ctx, out, Event{Type: EventError, Message: "Session not found"})
		return
	}
	if !ok {
		send(ctx, out, Event{Type: EventError, Message: "Session not found"})
		return
	}

	isFirstMessage := len(session.Messages) == 0
	history := buildHistory(session.Messages, o.cfg.RecentMessagesLimit)

	if isFirstMessage && o.titleGen != nil {
		titleWG.Add(1)
		go o.runTitleJob(&titleWG, out, userID, sessionID, userContent)
	}

	modelSet := o.cfg.Models[mode]
	job := newJobState()
	job.chairman = modelSet.Chairman

	// ---------------- Stage 1 ----------------
	if !send(ctx, out, Event{Type: EventStage1Start}) {
		return
	}
	job.currentStage = "stage1"

	stage1Messages := toLLMMessages(buildStage1Messages(history, userContent))
	stage1Chunks := fanout.Stream(ctx, o.streamer, modelSet.Participants, stage1Messages, o.cfg.ParticipantMaxTokens, o.cfg.Stage1Timeout, false)

	if !o.drainStage1(ctx, out, job, stage1Chunks) {
		o.persistAborted(job, userID, sessionID, userContent, mode)
		return
	}
	if ctx.Err() != nil {
		o.persistAborted(job, userID, sessionID, userContent, mode)
		return
	}

	job.finalizeStage1(modelSet.Participants)
	for _, ans := range job.stage1Results {
		a := ans
		if !send(ctx, out, Event{Type: EventStage1Response, Stage1Answer: &a}) {
			o.persistAborted(job, userID, sessionID, userContent, mode)
			return
		}
	}
	if len(job.stage1Results) == 0 {
		send(ctx, out, Event{Type: EventError, Message: "All models failed to respond. Please try again."})
		return
	}
	if !send(ctx, out, Event{Type: EventStage1Complete}) {
		o.persistAborted(job, userID, sessionID, userContent, mode)
		return
	}

	// ---------------- Stage 2 ----------------
	job.assignLabels()
	if !send(ctx, out, Event{Type: EventStage2Start}) {
		o.persistAborted(job, userID, sessionID, userContent, mode)
		return
	}
	job.currentStage = "stage2"

	rankingPrompt := buildRankingPrompt(job.labeledAnswers())
	stage2Messages := []llm.Message{{Role: llm.RoleUser, Content: rankingPrompt}}
	stage2Chunks := fanout.Stream(ctx, o.streamer, modelSet.Participants, stage2Messages, o.cfg.ParticipantMaxTokens, o.cfg.Stage2Timeout, false)

	if !o.drainStage2(ctx, out, job, stage2Chunks) {
		o.persistAborted(job, userID, sessionID, userContent, mode)
		return
	}
	if ctx.Err() != nil {
		o.persistAborted(job, userID, sessionID, userContent, mode)
		return
	}

	job.finalizeStage2(modelSet.Participants)
	for _, rev := range job.stage2Results {
		r := rev
		if !send(ctx, out, Event{Type: EventStage2Response, Stage2Review: &r}) {
			o.persistAborted(job, userID, sessionID, userContent, mode)
			return
		}
	}
	job.aggregate = ranking.Aggregate(job.stage2ParsedOrders(), job.labelToModel)
	if !send(ctx, out, Event{Type: EventStage2Complete, LabelToModel: job.labelToModel, Aggregate: toDomainAggregate(job.aggregate)}) {
		o.persistAborted(job, userID, sessionID, userContent, mode)
		return
	}

	// ---------------- Stage 3 ----------------
	if !send(ctx, out, Event{Type: EventStage3Start}) {
		o.persistAborted(job, userID, sessionID, userContent, mode)
		return
	}
	job.currentStage = "stage3"

	chairmanPrompt := buildChairmanPrompt(userContent, job.labeledAnswers(), job.stage2EvaluatorTexts())
	chairmanMessages := []llm.Message{{Role: llm.RoleUser, Content: chairmanPrompt}}

	chairmanStream, err := o.streamer.CompleteStreaming(ctx, modelSet.Chairman, chairmanMessages, o.cfg.ChairmanMaxTokens, o.cfg.Stage3Timeout, true)
	if err != nil {
		if ctx.Err() != nil {
			o.persistAborted(job, userID, sessionID, userContent, mode)
			return
		}
		send(ctx, out, Event{Type: EventError, Message: "Chairman failed to synthesize response."})
		return
	}

	start := time.Now()
	completed := false
	var finalUsage *llm.Usage
	var finalMs int64
drainStage3:
	for {
		select {
		case <-ctx.Done():
			o.persistAborted(job, userID, sessionID, userContent, mode)
			return
		case chunk, ok := <-chairmanStream:
			if !ok {
				break drainStage3
			}
			if chunk.Err != nil {
				send(ctx, out, Event{Type: EventError, Message: "Chairman failed to synthesize response."})
				return
			}
			if chunk.Delta != "" {
				job.stage3Content += chunk.Delta
				if !send(ctx, out, Event{Type: EventStage3Chunk, Delta: chunk.Delta}) {
					o.persistAborted(job, userID, sessionID, userContent, mode)
					return
				}
			}
			if chunk.Reasoning != "" {
				job.stage3Reasoning += chunk.Reasoning
				if !send(ctx, out, Event{Type: EventStage3ReasoningChunk, Delta: chunk.Reasoning}) {
					o.persistAborted(job, userID, sessionID, userContent, mode)
					return
				}
			}
			if chunk.Done {
				completed = true
				finalUsage = chunk.Usage
				finalMs = chunk.Ms
				break drainStage3
			}
		}
	}
	if ctx.Err() != nil {
		o.persistAborted(job, userID, sessionID, userContent, mode)
		return
	}
	if !completed || job.stage3Content == "" {
		send(ctx, out, Event{Type: EventError, Message: "Chairman failed to synthesize response."})
		return
	}
	ms := finalMs
	if ms == 0 {
		ms = time.Since(start).Milliseconds()
	}
	synth := Stage3Synthesis{
		Model:      modelSet.Chairman,
		Response:   job.stage3Content,
		Reasoning:  job.stage3Reasoning,
		ResponseMs: ms,
	}
	if finalUsage != nil {
		ct := finalUsage.CompletionTokens
		synth.Tokens = &ct
		if finalUsage.ReasoningTokens > 0 {
			rt := finalUsage.ReasoningTokens
			synth.ReasoningTokens = &rt
		}
	}
	if !send(ctx, out, Event{Type: EventStage3Response, Stage3Synthesis: &synth}) {
		o.persistAborted(job, userID, sessionID, userContent, mode)
		return
	}

	assistant := AssistantMessage{
		Stage1:      job.stage1Results,
		Stage2:      job.stage2Results,
		Stage3:      &synth,
		Mode:        mode,
		Timestamp:   time.Now(),
		AggregateRk: toDomainAggregate(job.aggregate),
	}
	if err := o.store.AppendAssistant(context.Background(), userID, sessionID, UserMessage{Content: userContent, Timestamp: time.Now()}, assistant); err != nil {
		send(ctx, out, Event{Type: EventError, Message: err.Error()})
		return
	}
	send(ctx, out, Event{Type: EventComplete})
}

func (o *Orchestrator) runTitleJob(wg *sync.WaitGroup, out chan<- Event, userID, sessionID, userContent string) {
	defer wg.Done()
	timeout := o.cfg.TitleTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	title, err := o.titleGen(ctx, userContent)
	if err != nil {
		log.Printf("council: title generation failed for session %s: %v", sessionID, err)
		return
	}
	if err := o.store.SetTitle(context.Background(), userID, sessionID, title); err != nil {
		log.Printf("council: persisting title failed for session %s: %v", sessionID, err)
		return
	}
	select {
	case out <- Event{Type: EventTitleComplete, Title: title}:
	default:
	}
}

// persistAborted implements the cancellation policy of spec.md §4.4: build
// partial results from the job's local accumulators and persist them iff
// stage 1 produced any answer.
func (o *Orchestrator) persistAborted(job *jobState, userID, sessionID, userContent string, mode Mode) {
	job.finalizeStage1Partial()
	if len(job.stage1Results) == 0 {
		return
	}
	assistant := AssistantMessage{
		Stage1:     job.stage1Results,
		Mode:       mode,
		WasAborted: true,
		Timestamp:  time.Now(),
	}
	if job.currentStage == "stage2" || job.currentStage == "stage3" {
		job.finalizeStage2Partial()
		assistant.Stage2 = job.stage2Results
	}
	if job.currentStage == "stage3" && job.stage3Content != "" {
		assistant.Stage3 = &Stage3Synthesis{
			Model:      job.chairman,
			Response:   job.stage3Content,
			Reasoning:  job.stage3Reasoning,
			ResponseMs: 0,
		}
	}
	if err := o.store.AppendAssistant(context.Background(), userID, sessionID, UserMessage{Content: userContent, Timestamp: time.Now()}, assistant); err != nil {
		log.Printf("council: failed to persist aborted message for session %s: %v", sessionID, err)
	}
}

// drainStage1 forwards stage1 fan-out chunks as events and records them into
// job, returning false if the caller should stop (cancellation or a failed
// send due to a closed consumer).
func (o *Orchestrator) drainStage1(ctx context.Context, out chan<- Event, job *jobState, chunks <-chan fanout.Chunk) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case chunk, ok := <-chunks:
			if !ok {
				return true
			}
			if chunk.Delta != "" {
				job.stage1Streaming[chunk.Model] += chunk.Delta
				if !send(ctx, out, Event{Type: EventStage1Chunk, Model: chunk.Model, Delta: chunk.Delta}) {
					return false
				}
			}
			if chunk.Done {
				job.stage1Terminal[chunk.Model] = chunk
				var pt, ct *int
				if chunk.Usage != nil {
					p := chunk.Usage.PromptTokens
					c := chunk.Usage.CompletionTokens
					pt, ct = &p, &c
				}
				if !send(ctx, out, Event{Type: EventStage1ModelComplete, Model: chunk.Model, PromptTokens: pt, CompletionTokens: ct}) {
					return false
				}
			}
		}
	}
}

func (o *Orchestrator) drainStage2(ctx context.Context, out chan<- Event, job *jobState, chunks <-chan fanout.Chunk) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case chunk, ok := <-chunks:
			if !ok {
				return true
			}
			if chunk.Delta != "" {
				job.stage2Streaming[chunk.Model] += chunk.Delta
				if !send(ctx, out, Event{Type: EventStage2Chunk, Model: chunk.Model, Delta: chunk.Delta}) {
					return false
				}
			}
			if chunk.Done {
				job.stage2Terminal[chunk.Model] = chunk
				var ct *int
				if chunk.Usage != nil {
					c := chunk.Usage.CompletionTokens
					ct = &c
				}
				if !send(ctx, out, Event{Type: EventStage2ModelComplete, Model: chunk.Model, CompletionTokens: ct}) {
					return false
				}
			}
		}
	}
}

// send delivers ev unless ctx is already cancelled, in which case it does
// not send and returns false. This implements the "check cancellation at
// every yield boundary" rule of spec.md §4.4/§5 without blocking forever on
// a full buffer past cancellation.
func send(ctx context.Context, out chan<- Event, ev Event) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case out <- ev:
		return ctx.Err() == nil
	case <-ctx.Done():
		return false
	}
}

func toLLMMessages(in []chatMessage) []llm.Message {
	out := make([]llm.Message, len(in))
	for i, m := range in {
		out[i] = llm.Message{Role: llm.Role(m.Role), Content: m.Content}
	}
	return out
}

func toDomainAggregate(in []ranking.AggregateEntry) []AggregateRankingEntry {
	out := make([]AggregateRankingEntry, len(in))
	for i, e := range in {
		out[i] = AggregateRankingEntry{Model: e.Model, AveragePosition: e.AveragePosition, Count: e.Count}
	}
	return out
}

// buildHistory returns the most recent user turns and the stage3 responses
// of prior assistant turns, bounded to 2*limit entries, per spec.md §4.4.
// A limit <= 0 means no history is included.
func buildHistory(messages []SessionMessage, limit int) []historyTurn {
	if limit <= 0 {
		return nil
	}
	var flat []historyTurn
	for _, m := range messages {
		flat = append(flat, historyTurn{Role: "user", Content: m.User.Content})
		if m.Assistant != nil && m.Assistant.Stage3 != nil {
			flat = append(flat, historyTurn{Role: "assistant", Content: m.Assistant.Stage3.Response})
		}
	}
	window := limit * 2
	if len(flat) <= window {
		return flat
	}
	return flat[len(flat)-window:]
}

// jobState accumulates the orchestrator's local, per-job copy of events so
// that partial results can be built on cancellation without consulting the
// registry, per spec.md §9.
type jobState struct {
	currentStage string

	stage1Streaming map[string]string
	stage1Terminal  map[string]fanout.Chunk
	stage1Results   []Stage1Answer

	labelToModel map[string]string
	modelToLabel map[string]string

	stage2Streaming map[string]string
	stage2Terminal  map[string]fanout.Chunk
	stage2Results   []Stage2Review

	aggregate []ranking.AggregateEntry

	stage3Content   string
	stage3Reasoning string
	chairman        string
}

func newJobState() *jobState {
	return &jobState{
		stage1Streaming: map[string]string{},
		stage1Terminal:  map[string]fanout.Chunk{},
		stage2Streaming: map[string]string{},
		stage2Terminal:  map[string]fanout.Chunk{},
	}
}

// finalizeStage1 synthesizes Stage1Answer for every model (in configured
// participant order, for determinism) that produced any content, clearing
// stage1Streaming entries as it consumes them.
func (j *jobState) finalizeStage1(participants []string) {
	j.stage1Results = nil
	for _, model := range participants {
		content := j.stage1Streaming[model]
		if content == "" {
			continue
		}
		ans := Stage1Answer{Model: model, Response: content}
		if term, ok := j.stage1Terminal[model]; ok {
			ans.ResponseMs = term.Ms
			if term.Usage != nil {
				pt, ct := term.Usage.PromptTokens, term.Usage.CompletionTokens
				ans.PromptTokens, ans.CompletionTokens = &pt, &ct
			}
		}
		j.stage1Results = append(j.stage1Results, ans)
		delete(j.stage1Streaming, model)
	}
}

// finalizeStage1Partial builds Stage1Answer entries from whatever is left in
// stage1Streaming (models that never reached a terminal), per the
// cancellation policy. Safe to call after finalizeStage1 already ran (no-op
// since entries were deleted), or instead of it (cancellation before
// exhaustion).
func (j *jobState) finalizeStage1Partial() {
	if j.stage1Results == nil {
		j.stage1Results = []Stage1Answer{}
	}
	// Preserve deterministic ordering: append any still-streaming models in
	// the order they first appeared in stage1Terminal/Streaming maps is
	// non-deterministic in Go; sort by model name for a stable partial
	// persistence order.
	remaining := make([]string, 0, len(j.stage1Streaming))
	for model := range j.stage1Streaming {
		remaining = append(remaining, model)
	}
	sort.Strings(remaining)
	for _, model := range remaining {
		content := j.stage1Streaming[model]
		if content == "" {
			continue
		}
		j.stage1Results = append(j.stage1Results, Stage1Answer{Model: model, Response: content, ResponseMs: 0})
	}
	j.stage1Streaming = map[string]string{}
}

func (j *jobState) finalizeStage2(participants []string) {
	j.stage2Results = nil
	for _, model := range participants {
		content, ok := j.stage2Streaming[model]
		if !ok || content == "" {
			continue
		}
		rev := Stage2Review{Model: model, RankingText: content, ParsedOrder: ranking.ParseOrder(content)}
		if term, ok := j.stage2Terminal[model]; ok {
			rev.ResponseMs = term.Ms
			if term.Usage != nil {
				ct := term.Usage.CompletionTokens
				rev.Tokens = &ct
			}
		}
		j.stage2Results = append(j.stage2Results, rev)
		delete(j.stage2Streaming, model)
	}
}

func (j *jobState) finalizeStage2Partial() {
	if j.stage2Results == nil {
		j.stage2Results = []Stage2Review{}
	}
	remaining := make([]string, 0, len(j.stage2Streaming))
	for model := range j.stage2Streaming {
		remaining = append(remaining, model)
	}
	sort.Strings(remaining)
	for _, model := range remaining {
		content := j.stage2Streaming[model]
		if content == "" {
			continue
		}
		j.stage2Results = append(j.stage2Results, Stage2Review{
			Model:       model,
			RankingText: content,
			ParsedOrder: ranking.ParseOrder(content),
			ResponseMs:  0,
		})
	}
	j.stage2Streaming = map[string]string{}
}

// assignLabels assigns anonymous labels A, B, C... in the iteration order
// stage1_response was emitted, per spec.md §4.4.
func (j *jobState) assignLabels() {
	j.labelToModel = map[string]string{}
	j.modelToLabel = map[string]string{}
	for i, ans := range j.stage1Results {
		label := "Response " + string(rune('A'+i))
		j.labelToModel[label] = ans.Model
		j.modelToLabel[ans.Model] = label
	}
}

func (j *jobState) labeledAnswers() []labeledAnswer {
	out := make([]labeledAnswer, 0, len(j.stage1Results))
	for _, ans := range j.stage1Results {
		out = append(out, labeledAnswer{Label: j.modelToLabel[ans.Model], Model: ans.Model, Content: ans.Response})
	}
	return out
}

func (j *jobState) stage2ParsedOrders() [][]string {
	out := make([][]string, 0, len(j.stage2Results))
	for _, r := range j.stage2Results {
		out = append(out, r.ParsedOrder)
	}
	return out
}

func (j *jobState) stage2EvaluatorTexts() []string {
	out := make([]string, 0, len(j.stage2Results))
	for _, r := range j.stage2Results {
		out = append(out, r.RankingText)
	}
	return out
}
