package transport

import (
	"context"
	"testing"
	"time"

	"github.com/councilml/council/internal/council"
	"github.com/councilml/council/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFlusher struct {
	events []council.Event
}

func (f *fakeFlusher) WriteHeaders() {}

func (f *fakeFlusher) WriteEvent(e council.Event) error {
	f.events = append(f.events, e)
	return nil
}

func typesOf(events []council.Event) []council.EventType {
	out := make([]council.EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func TestServeNewJob_StreamsInOrderAndCompletes(t *testing.T) {
	reg := registry.New(registry.Config{SweepInterval: time.Hour})
	defer reg.Shutdown()
	h := New(reg, Config{HeartbeatInterval: time.Hour})

	events := make(chan council.Event, 8)
	events <- council.Event{Type: council.EventStage1Start}
	events <- council.Event{Type: council.EventStage1Response, Stage1Answer: &council.Stage1Answer{Model: "m1", Response: "hi"}}
	events <- council.Event{Type: council.EventComplete}
	close(events)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	abort := registry.NewJobHandle(cancel)
	_, ok := reg.Register("u1", "s1", "hello", abort)
	require.True(t, ok)
	flusher := &fakeFlusher{}

	done := make(chan struct{})
	go func() {
		h.ServeNewJob(ctx, flusher, "u1", "s1", events, abort)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ServeNewJob did not return after producer closed")
	}

	require.Len(t, flusher.events, 3)
	assert.Equal(t, []council.EventType{
		council.EventStage1Start,
		council.EventStage1Response,
		council.EventComplete,
	}, typesOf(flusher.events))

	_, ok = reg.Get("u1", "s1")
	assert.False(t, ok, "record should be removed after complete")
}

func TestServeReconnect_NoRecord(t *testing.T) {
	reg := registry.New(registry.Config{SweepInterval: time.Hour})
	defer reg.Shutdown()
	h := New(reg, Config{})

	ok := h.ServeReconnect(context.Background(), &fakeFlusher{}, "u1", "s1")
	assert.False(t, ok)
}

func TestServeReconnect_ReplaysStage1InProgress(t *testing.T) {
	reg := registry.New(registry.Config{SweepInterval: time.Hour})
	defer reg.Shutdown()

	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	reg.Register("u1", "s1", "hello", registry.NewJobHandle(cancel))
	reg.RecordEvent("u1", "s1", council.Event{Type: council.EventStage1Start})
	reg.RecordEvent("u1", "s1", council.Event{Type: council.EventStage1Chunk, Model: "m1", Delta: "partial"})

	h := New(reg, Config{HeartbeatInterval: time.Hour})
	ctx, cancelReq := context.WithCancel(context.Background())
	flusher := &fakeFlusher{}

	go func() {
		h.ServeReconnect(ctx, flusher, "u1", "s1")
	}()

	time.Sleep(20 * time.Millisecond)
	cancelReq()
	time.Sleep(20 * time.Millisecond)

	require.GreaterOrEqual(t, len(flusher.events), 3)
	assert.Equal(t, council.EventStage1Start, flusher.events[0].Type)
	assert.Equal(t, council.EventStage1Chunk, flusher.events[1].Type)
	assert.Equal(t, "partial", flusher.events[1].Delta)
	assert.Equal(t, council.EventReconnected, flusher.events[2].Type)
}

func TestServeReconnect_ReplaysPastStagesWithCompleteMarkers(t *testing.T) {
	reg := registry.New(registry.Config{SweepInterval: time.Hour})
	defer reg.Shutdown()

	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	reg.Register("u1", "s1", "hello", registry.NewJobHandle(cancel))
	reg.RecordEvent("u1", "s1", council.Event{Type: council.EventStage1Start})
	reg.RecordEvent("u1", "s1", council.Event{Type: council.EventStage1Response, Stage1Answer: &council.Stage1Answer{Model: "m1", Response: "a"}})
	reg.RecordEvent("u1", "s1", council.Event{Type: council.EventStage1Complete})
	reg.RecordEvent("u1", "s1", council.Event{Type: council.EventStage2Start})

	h := New(reg, Config{HeartbeatInterval: time.Hour})
	ctx, cancelReq := context.WithCancel(context.Background())
	flusher := &fakeFlusher{}
	go func() { h.ServeReconnect(ctx, flusher, "u1", "s1") }()

	time.Sleep(20 * time.Millisecond)
	cancelReq()
	time.Sleep(20 * time.Millisecond)

	types := typesOf(flusher.events)
	assert.Contains(t, types, council.EventStage1Complete)
	assert.Contains(t, types, council.EventStage2Start)
	assert.NotContains(t, types, council.EventStage2Complete, "stage2_complete must not replay without a non-empty labelToModel")
}

func TestRecordEvent_HeartbeatNeverRecorded(t *testing.T) {
	reg := registry.New(registry.Config{SweepInterval: time.Hour})
	defer reg.Shutdown()
	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	reg.Register("u1", "s1", "hello", registry.NewJobHandle(cancel))

	reg.RecordEvent("u1", "s1", council.Event{Type: council.EventHeartbeat})
	snap, ok := reg.Snapshot("u1", "s1")
	require.True(t, ok)
	assert.Empty(t, snap.CurrentStage)
}
