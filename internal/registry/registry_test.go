package registry

import (
	"context"
	"testing"
	"time"

	"github.com/councilml/council/internal/council"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHandle() *JobHandle {
	_, cancel := context.WithCancel(context.Background())
	return NewJobHandle(cancel)
}

func TestRegister_SupersedesAndAbortsPrior(t *testing.T) {
	r := New(Config{SweepInterval: time.Hour})
	defer r.Shutdown()

	firstCtx, firstCancel := context.WithCancel(context.Background())
	defer firstCancel()
	first, ok := r.Register("u1", "s1", "hi", NewJobHandle(firstCancel))
	require.True(t, ok)
	sub := NewSubscriber()
	r.AddClient("u1", "s1", sub)

	second, ok := r.Register("u1", "s1", "hi again", newHandle())
	require.True(t, ok)

	assert.NotSame(t, first, second)
	assert.Equal(t, 1, r.ActiveCount())

	select {
	case <-firstCtx.Done():
	case <-time.After(time.Second):
		t.Fatal("superseded job's context was never cancelled")
	}

	// The prior subscriber's channel is never closed (the registry never
	// closes a Subscriber; only its owning transport goroutine would), but
	// it is no longer reachable: it belonged to the superseded record, so a
	// broadcast against the new one must not reach it.
	r.Broadcast("u1", "s1", council.Event{Type: council.EventHeartbeat})
	select {
	case <-sub:
		t.Fatal("superseded subscriber should not receive events broadcast to the replacement job")
	default:
	}
}

func TestActiveCount_AndCapacity(t *testing.T) {
	r := New(Config{MaxConcurrent: 1, SweepInterval: time.Hour})
	defer r.Shutdown()

	assert.False(t, r.IsAtCapacity())
	r.Register("u1", "s1", "hi", newHandle())
	assert.Equal(t, 1, r.ActiveCount())
	assert.True(t, r.IsAtCapacity())
}

func TestBroadcast_SubscriberSeesPrefix(t *testing.T) {
	r := New(Config{SweepInterval: time.Hour})
	defer r.Shutdown()

	r.Register("u1", "s1", "hi", newHandle())
	sub := NewSubscriber()
	require.True(t, r.AddClient("u1", "s1", sub))

	events := []council.Event{
		{Type: council.EventStage1Start},
		{Type: council.EventStage1Response, Stage1Answer: &council.Stage1Answer{Model: "m1", Response: "a"}},
		{Type: council.EventStage1Complete},
	}
	for _, e := range events {
		r.RecordEvent("u1", "s1", e)
		r.Broadcast("u1", "s1", e)
	}

	for _, want := range events {
		got := <-sub
		assert.Equal(t, want.Type, got.Type)
	}
}

func TestRemoveClient_GraceExpiryAbortsRecord(t *testing.T) {
	r := New(Config{GracePeriod: 30 * time.Millisecond, SweepInterval: time.Hour})
	defer r.Shutdown()

	aborted := make(chan struct{})
	_, cancel := context.WithCancel(context.Background())
	handle := NewJobHandle(func() {
		cancel()
		close(aborted)
	})
	r.Register("u1", "s1", "hi", handle)
	sub := NewSubscriber()
	r.AddClient("u1", "s1", sub)
	r.RemoveClient("u1", "s1", sub)

	select {
	case <-aborted:
	case <-time.After(time.Second):
		t.Fatal("grace period did not expire and abort the record")
	}
	_, ok := r.Get("u1", "s1")
	assert.False(t, ok)
}

func TestRemoveClient_ReconnectBeforeGraceExpiryCancelsAbort(t *testing.T) {
	r := New(Config{GracePeriod: 60 * time.Millisecond, SweepInterval: time.Hour})
	defer r.Shutdown()

	aborted := make(chan struct{})
	handle := NewJobHandle(func() { close(aborted) })
	r.Register("u1", "s1", "hi", handle)
	sub := NewSubscriber()
	r.AddClient("u1", "s1", sub)
	r.RemoveClient("u1", "s1", sub)

	time.Sleep(10 * time.Millisecond)
	sub2 := NewSubscriber()
	require.True(t, r.AddClient("u1", "s1", sub2))

	select {
	case <-aborted:
		t.Fatal("record was aborted despite reconnecting within the grace period")
	case <-time.After(100 * time.Millisecond):
	}
	_, ok := r.Get("u1", "s1")
	assert.True(t, ok)
}

func TestComplete_FenceRejectsStaleHandle(t *testing.T) {
	r := New(Config{SweepInterval: time.Hour})
	defer r.Shutdown()

	r.Register("u1", "s1", "hi", newHandle())
	staleHandle := newHandle()

	r.Complete("u1", "s1", staleHandle)
	_, ok := r.Get("u1", "s1")
	assert.True(t, ok, "a fenced Complete with a mismatched handle must be a no-op")
}

func TestIsAtCapacity_RejectionDoesNotMutateRegistry(t *testing.T) {
	r := New(Config{MaxConcurrent: 1, SweepInterval: time.Hour})
	defer r.Shutdown()

	r.Register("u1", "s1", "hi", newHandle())
	before := r.ActiveCount()
	assert.True(t, r.IsAtCapacity())
	assert.Equal(t, before, r.ActiveCount())
}

func TestRegister_AtCapacityRejectsNewKeyWithoutInstalling(t *testing.T) {
	r := New(Config{MaxConcurrent: 1, SweepInterval: time.Hour})
	defer r.Shutdown()

	_, ok := r.Register("u1", "s1", "hi", newHandle())
	require.True(t, ok)

	rec, ok := r.Register("u2", "s2", "hi", newHandle())
	assert.False(t, ok)
	assert.Nil(t, rec)
	assert.Equal(t, 1, r.ActiveCount())
	_, exists := r.Get("u2", "s2")
	assert.False(t, exists, "a rejected Register must not leave a partial record behind")
}

func TestRegister_SupersedeIsNeverCapacityRejected(t *testing.T) {
	r := New(Config{MaxConcurrent: 1, SweepInterval: time.Hour})
	defer r.Shutdown()

	_, ok := r.Register("u1", "s1", "hi", newHandle())
	require.True(t, ok)

	_, ok = r.Register("u1", "s1", "hi again", newHandle())
	assert.True(t, ok, "superseding the same key must not be rejected on capacity")
	assert.Equal(t, 1, r.ActiveCount())
}

func TestBroadcast_SlowSubscriberDroppedWithoutBlockingOthers(t *testing.T) {
	r := New(Config{SweepInterval: time.Hour})
	defer r.Shutdown()

	r.Register("u1", "s1", "hi", newHandle())
	slow := make(Subscriber, 1)
	fast := NewSubscriber()
	r.AddClient("u1", "s1", slow)
	r.AddClient("u1", "s1", fast)

	for i := 0; i < subscriberBuffer+2; i++ {
		r.Broadcast("u1", "s1", council.Event{Type: council.EventStage1Chunk, Delta: "x"})
	}

	// slow's single slot absorbed exactly one event; every later broadcast
	// was dropped rather than blocking, and slow's channel stays open (the
	// registry never closes a Subscriber).
	<-slow
	select {
	case <-slow:
		t.Fatal("slow subscriber should only have received its single buffered event")
	default:
	}

	select {
	case _, ok := <-fast:
		assert.True(t, ok)
	default:
		t.Fatal("fast subscriber received nothing")
	}
}
