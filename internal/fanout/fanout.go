// Package fanout implements the Parallel Streaming Fan-Out: concurrently
// consuming N upstream streams and merging them into one tagged, lazily
// produced sequence, per spec.md §4.2.
package fanout

import (
	"context"
	"time"

	"github.com/councilml/council/internal/llm"
)

// coalesceInterval is the wall-clock cadence at which contiguous deltas from
// one model are batched before being flushed.
const coalesceInterval = 50 * time.Millisecond

// Chunk is one item of the merged sequence: either a coalesced delta, a
// reasoning delta, or a per-model terminal. Stream never sets Err: when a
// model's upstream fails to start or fails mid-stream, its buffered deltas
// are flushed and no terminal is emitted for that model.
type Chunk struct {
	Model     string
	Delta     string
	Reasoning string
	Done      bool
	Ms        int64
	Usage     *llm.Usage
	Err       error
}

// Streamer is the subset of llm.Client the fan-out depends on, so tests can
// substitute a fake upstream.
type Streamer interface {
	CompleteStreaming(ctx context.Context, model string, messages []llm.Message, maxTokens int, timeout time.Duration, reasoning bool) (<-chan llm.StreamChunk, error)
}

// Stream concurrently drives one upstream stream per model and merges their
// output onto a single channel. The returned channel is closed once every
// model has either produced a terminal, errored, or the context was
// cancelled. Callers should keep draining the channel until closed to avoid
// leaking the per-model goroutines.
func Stream(ctx context.Context, streamer Streamer, models []string, messages []llm.Message, maxTokens int, timeout time.Duration, reasoning bool) <-chan Chunk {
	out := make(chan Chunk)
	if len(models) == 0 {
		close(out)
		return out
	}

	done := make(chan struct{})
	remaining := len(models)
	finished := make(chan struct{}, len(models))

	for _, model := range models {
		go runOne(ctx, streamer, model, messages, maxTokens, timeout, reasoning, out, finished)
	}

	go func() {
		defer close(done)
		for i := 0; i < remaining; i++ {
			<-finished
		}
	}()

	go func() {
		<-done
		close(out)
	}()

	return out
}

func runOne(ctx context.Context, streamer Streamer, model string, messages []llm.Message, maxTokens int, timeout time.Duration, reasoning bool, out chan<- Chunk, finished chan<- struct{}) {
	defer func() { finished <- struct{}{} }()

	src, err := streamer.CompleteStreaming(ctx, model, messages, maxTokens, timeout, reasoning)
	if err != nil {
		// Individual upstream failed to even start: no deltas, no terminal.
		return
	}

	var buf string
	var reasonBuf string
	ticker := time.NewTicker(coalesceInterval)
	defer ticker.Stop()
	firstFlushed := false

	flush := func() {
		if buf != "" {
			select {
			case out <- Chunk{Model: model, Delta: buf}:
			case <-ctx.Done():
			}
			buf = ""
		}
		if reasonBuf != "" {
			select {
			case out <- Chunk{Model: model, Reasoning: reasonBuf}:
			case <-ctx.Done():
			}
			reasonBuf = ""
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case chunk, ok := <-src:
			if !ok {
				flush()
				return
			}
			if chunk.Err != nil {
				// Transport failure mid-stream: partial deltas already flushed
				// remain valid; no terminal event for this model.
				flush()
				return
			}
			if chunk.Done {
				flush()
				select {
				case out <- Chunk{Model: model, Done: true, Ms: chunk.Ms, Usage: chunk.Usage}:
				case <-ctx.Done():
				}
				return
			}
			if chunk.Delta != "" {
				buf += chunk.Delta
			}
			if chunk.Reasoning != "" {
				reasonBuf += chunk.Reasoning
			}
			if !firstFlushed {
				flush()
				firstFlushed = true
				continue
			}
		case <-ticker.C:
			flush()
		}
	}
}
