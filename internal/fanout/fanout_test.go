package fanout

import (
	"context"
	"testing"
	"time"

	"github.com/councilml/council/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStreamer struct {
	scripts map[string][]llm.StreamChunk
	delay   time.Duration
}

func (f *fakeStreamer) CompleteStreaming(ctx context.Context, model string, messages []llm.Message, maxTokens int, timeout time.Duration, reasoning bool) (<-chan llm.StreamChunk, error) {
	script, ok := f.scripts[model]
	if !ok {
		return nil, &llm.UpstreamError{Kind: llm.KindPermanent, Model: model, Msg: "no script"}
	}
	out := make(chan llm.StreamChunk, len(script))
	go func() {
		defer close(out)
		for _, c := range script {
			if f.delay > 0 {
				time.Sleep(f.delay)
			}
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func TestStream_PerModelOrderingAndTerminal(t *testing.T) {
	f := &fakeStreamer{scripts: map[string][]llm.StreamChunk{
		"M1": {{Delta: "He"}, {Delta: "llo"}, {Done: true, Ms: 10}},
		"M2": {{Delta: "Hola"}, {Done: true, Ms: 5}},
	}}

	out := Stream(context.Background(), f, []string{"M1", "M2"}, nil, 100, time.Second, false)

	byModel := map[string][]Chunk{}
	for c := range out {
		byModel[c.Model] = append(byModel[c.Model], c)
	}

	require.Len(t, byModel["M1"], 3) // first delta flushed at once, rest flushed before terminal, terminal
	require.Len(t, byModel["M2"], 2)

	m1Content := ""
	for _, c := range byModel["M1"] {
		if !c.Done {
			m1Content += c.Delta
		}
	}
	assert.Equal(t, "Hello", m1Content)
	assert.True(t, byModel["M1"][len(byModel["M1"])-1].Done)
	assert.True(t, byModel["M2"][len(byModel["M2"])-1].Done)
}

func TestStream_OneModelErrorsOtherContinues(t *testing.T) {
	f := &fakeStreamer{scripts: map[string][]llm.StreamChunk{
		"M1": {{Delta: "partial"}, {Err: &llm.UpstreamError{Kind: llm.KindTransient, Model: "M1"}}},
		"M2": {{Delta: "ok"}, {Done: true}},
	}}

	out := Stream(context.Background(), f, []string{"M1", "M2"}, nil, 100, time.Second, false)

	var m1HasTerminal, m2HasTerminal bool
	var m1Delta string
	for c := range out {
		if c.Model == "M1" {
			if c.Done {
				m1HasTerminal = true
			} else if c.Delta != "" {
				m1Delta += c.Delta
			}
		}
		if c.Model == "M2" && c.Done {
			m2HasTerminal = true
		}
	}
	assert.False(t, m1HasTerminal)
	assert.Equal(t, "partial", m1Delta)
	assert.True(t, m2HasTerminal)
}

func TestStream_NoModels(t *testing.T) {
	out := Stream(context.Background(), &fakeStreamer{}, nil, nil, 0, time.Second, false)
	_, ok := <-out
	assert.False(t, ok)
}

func TestStream_CancellationStopsPromptly(t *testing.T) {
	f := &fakeStreamer{delay: 20 * time.Millisecond, scripts: map[string][]llm.StreamChunk{
		"M1": {{Delta: "a"}, {Delta: "b"}, {Delta: "c"}, {Done: true}},
	}}
	ctx, cancel := context.WithCancel(context.Background())
	out := Stream(ctx, f, []string{"M1"}, nil, 100, time.Second, false)

	<-out // first coalesced flush
	cancel()

	deadline := time.After(500 * time.Millisecond)
	for {
		select {
		case _, ok := <-out:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("fan-out did not close promptly after cancellation")
		}
	}
}
