package council

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/councilml/council/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedStreamer returns a canned StreamChunk sequence per model. A nil
// entry for a model means CompleteStreaming itself fails for that model.
type scriptedStreamer struct {
	mu       sync.Mutex
	chunks   map[string][]llm.StreamChunk
	startErr map[string]error
	calls    []string
}

func (s *scriptedStreamer) CompleteStreaming(ctx context.Context, model string, messages []llm.Message, maxTokens int, timeout time.Duration, reasoning bool) (<-chan llm.StreamChunk, error) {
	s.mu.Lock()
	s.calls = append(s.calls, model)
	s.mu.Unlock()

	if err, ok := s.startErr[model]; ok {
		return nil, err
	}
	seq := s.chunks[model]
	out := make(chan llm.StreamChunk, len(seq))
	for _, c := range seq {
		out <- c
	}
	close(out)
	return out, nil
}

type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	appended []AssistantMessage
	titles   []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: map[string]*Session{}}
}

func (f *fakeStore) seed(userID, sessionID string, s *Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[userID+"/"+sessionID] = s
}

func (f *fakeStore) Get(ctx context.Context, userID, sessionID string) (*Session, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[userID+"/"+sessionID]
	if !ok {
		return nil, false, nil
	}
	return s, true, nil
}

func (f *fakeStore) AppendAssistant(ctx context.Context, userID, sessionID string, user UserMessage, assistant AssistantMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, assistant)
	key := userID + "/" + sessionID
	s := f.sessions[key]
	s.Messages = append(s.Messages, SessionMessage{User: user, Assistant: &assistant})
	return nil
}

func (f *fakeStore) SetTitle(ctx context.Context, userID, sessionID, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titles = append(f.titles, title)
	return nil
}

func baseConfig() Config {
	return Config{
		Models: map[Mode]ModelSet{
			ModeLite: {Participants: []string{"alpha", "beta"}, Chairman: "chairman-model"},
		},
		Stage1Timeout:        time.Second,
		Stage2Timeout:        time.Second,
		Stage3Timeout:        time.Second,
		ParticipantMaxTokens: 100,
		ChairmanMaxTokens:    200,
		RecentMessagesLimit:  10,
	}
}

func collect(ch <-chan Event) []Event {
	var out []Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func eventTypes(evs []Event) []EventType {
	out := make([]EventType, len(evs))
	for i, e := range evs {
		out[i] = e.Type
	}
	return out
}

func TestProcess_HappyPathTwoModels(t *testing.T) {
	store := newFakeStore()
	store.seed("u1", "s1", &Session{UserID: "u1", SessionID: "s1"})

	// alpha/beta's scripted chunks are replayed verbatim on both the stage1
	// and stage2 fan-out calls, since scriptedStreamer ignores call count.
	streamer := &scriptedStreamer{
		chunks: map[string][]llm.StreamChunk{
			"alpha":          {{Delta: "alpha answer"}, {Done: true, Ms: 10, Usage: &llm.Usage{PromptTokens: 5, CompletionTokens: 3}}},
			"beta":           {{Delta: "beta answer"}, {Done: true, Ms: 12}},
			"chairman-model": {{Reasoning: "thinking"}, {Delta: "final synthesis"}, {Done: true, Ms: 20}},
		},
	}
	orch := New(streamer, store, baseConfig(), nil)

	ctx := context.Background()
	events := collect(orch.Process(ctx, "u1", "s1", "hello council", ModeLite))

	types := eventTypes(events)
	assert.Contains(t, types, EventStage1Start)
	assert.Contains(t, types, EventStage1Complete)
	assert.Contains(t, types, EventStage2Start)
	assert.Contains(t, types, EventStage2Complete)
	assert.Contains(t, types, EventStage3Start)
	assert.Contains(t, types, EventStage3Response)
	assert.Equal(t, EventComplete, events[len(events)-1].Type)

	require.Len(t, store.appended, 1)
	assistant := store.appended[0]
	assert.False(t, assistant.WasAborted)
	assert.Len(t, assistant.Stage1, 2)
	require.NotNil(t, assistant.Stage3)
	assert.Equal(t, "final synthesis", assistant.Stage3.Response)
}

func TestProcess_OneModelFailsStage1_OtherSucceeds(t *testing.T) {
	store := newFakeStore()
	store.seed("u1", "s1", &Session{UserID: "u1", SessionID: "s1"})

	streamer := &scriptedStreamer{
		startErr: map[string]error{"alpha": errors.New("boom")},
		chunks: map[string][]llm.StreamChunk{
			"beta":           {{Delta: "beta answer"}, {Done: true, Ms: 12}},
			"chairman-model": {{Delta: "synthesis"}, {Done: true, Ms: 5}},
		},
	}
	orch := New(streamer, store, baseConfig(), nil)

	events := collect(orch.Process(context.Background(), "u1", "s1", "hi", ModeLite))
	types := eventTypes(events)
	assert.Contains(t, types, EventStage1Complete)
	assert.Equal(t, EventComplete, events[len(events)-1].Type)

	require.Len(t, store.appended, 1)
	assert.Len(t, store.appended[0].Stage1, 1)
	assert.Equal(t, "beta", store.appended[0].Stage1[0].Model)
}

func TestProcess_AllModelsFailStage1_EmitsError(t *testing.T) {
	store := newFakeStore()
	store.seed("u1", "s1", &Session{UserID: "u1", SessionID: "s1"})

	streamer := &scriptedStreamer{
		startErr: map[string]error{"alpha": errors.New("boom"), "beta": errors.New("boom")},
	}
	orch := New(streamer, store, baseConfig(), nil)

	events := collect(orch.Process(context.Background(), "u1", "s1", "hi", ModeLite))
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, EventError, last.Type)
	assert.Empty(t, store.appended)
}

func TestProcess_SessionNotFound_EmitsError(t *testing.T) {
	store := newFakeStore()
	streamer := &scriptedStreamer{}
	orch := New(streamer, store, baseConfig(), nil)

	events := collect(orch.Process(context.Background(), "u1", "missing", "hi", ModeLite))
	require.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].Type)
}

func TestProcess_CancelledMidStage2_PersistsAbortedWithStage1Only(t *testing.T) {
	store := newFakeStore()
	store.seed("u1", "s1", &Session{UserID: "u1", SessionID: "s1"})

	streamer := &blockingOnStage2Streamer{
		stage1: map[string][]llm.StreamChunk{
			"alpha": {{Delta: "alpha answer"}, {Done: true, Ms: 10}},
			"beta":  {{Delta: "beta answer"}, {Done: true, Ms: 11}},
		},
	}
	orch := New(streamer, store, baseConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	events := orch.Process(ctx, "u1", "s1", "hi", ModeLite)

	// Drain stage1 events then cancel once stage2 fan-out has started.
	var gotStage2Start bool
	for ev := range events {
		if ev.Type == EventStage2Start {
			gotStage2Start = true
			cancel()
		}
	}
	assert.True(t, gotStage2Start)

	require.Len(t, store.appended, 1)
	assistant := store.appended[0]
	assert.True(t, assistant.WasAborted)
	assert.Len(t, assistant.Stage1, 2)
	assert.Nil(t, assistant.Stage3)
}

// blockingOnStage2Streamer serves stage1 scripted chunks normally, then
// blocks forever on any subsequent call (simulating stage2 in flight when
// cancellation lands) until the context is cancelled.
type blockingOnStage2Streamer struct {
	mu     sync.Mutex
	stage1 map[string][]llm.StreamChunk
	calls  map[string]int
}

func (s *blockingOnStage2Streamer) CompleteStreaming(ctx context.Context, model string, messages []llm.Message, maxTokens int, timeout time.Duration, reasoning bool) (<-chan llm.StreamChunk, error) {
	s.mu.Lock()
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[model]++
	n := s.calls[model]
	s.mu.Unlock()

	if n == 1 {
		seq := s.stage1[model]
		out := make(chan llm.StreamChunk, len(seq))
		for _, c := range seq {
			out <- c
		}
		close(out)
		return out, nil
	}

	out := make(chan llm.StreamChunk)
	go func() {
		<-ctx.Done()
		close(out)
	}()
	return out, nil
}

func TestProcess_TitleGeneratedForFirstMessage(t *testing.T) {
	store := newFakeStore()
	store.seed("u1", "s1", &Session{UserID: "u1", SessionID: "s1"})

	streamer := &scriptedStreamer{
		chunks: map[string][]llm.StreamChunk{
			"alpha":          {{Delta: "a"}, {Done: true}},
			"beta":           {{Delta: "b"}, {Done: true}},
			"chairman-model": {{Delta: "c"}, {Done: true}},
		},
	}
	titleGen := func(ctx context.Context, userMessage string) (string, error) {
		return "A Short Title", nil
	}
	orch := New(streamer, store, baseConfig(), titleGen)

	events := collect(orch.Process(context.Background(), "u1", "s1", "hello", ModeLite))
	var sawTitle bool
	for _, e := range events {
		if e.Type == EventTitleComplete {
			sawTitle = true
			assert.Equal(t, "A Short Title", e.Title)
		}
	}
	assert.True(t, sawTitle)
	require.Len(t, store.titles, 1)
	assert.Equal(t, "A Short Title", store.titles[0])
}
