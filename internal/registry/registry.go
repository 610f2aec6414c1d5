// Package registry implements the Processing Registry: process-wide,
// in-memory state that owns live council jobs, their accumulated event
// state, their connected subscribers, grace-period reconnection lifecycle,
// capacity control and stale sweeping, per spec.md §4.5.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/councilml/council/internal/council"
)

// Key identifies one job's owning conversation.
type Key struct {
	UserID    string
	SessionID string
}

// Subscriber is a bounded per-connection event sink; identity (not value) is
// what addClient/removeClient operate on, so a Subscriber is a channel
// rather than a struct wrapping one.
type Subscriber chan council.Event

// subscriberBuffer bounds per-subscriber backlog so that a slow client
// cannot stall broadcast to the others, per spec.md §5.
const subscriberBuffer = 64

// NewSubscriber returns a bounded channel ready to pass to AddClient.
func NewSubscriber() Subscriber {
	return make(Subscriber, subscriberBuffer)
}

// JobHandle is the abort-handle identity used to fence stale completions
// against a superseding job for the same key; equality is by pointer
// identity, never by value.
type JobHandle struct {
	cancel context.CancelFunc
}

// NewJobHandle wraps a cancel func as a comparable abort handle.
func NewJobHandle(cancel context.CancelFunc) *JobHandle {
	return &JobHandle{cancel: cancel}
}

func (h *JobHandle) abort() {
	if h != nil && h.cancel != nil {
		h.cancel()
	}
}

// Record is the per-(user,session) live-job state the registry owns. The
// orchestrator's consume loop (in internal/transport) is the sole writer via
// RecordEvent; reads (Status, reconnection replay) happen through Registry
// accessors so that a consistent snapshot is always taken under lock.
type Record struct {
	Key         Key
	UserMessage string
	AbortHandle *JobHandle
	StartedAt   time.Time
	LastEventAt time.Time

	// CurrentStage is "", "stage1", "stage2" or "stage3".
	CurrentStage string

	Stage1Results   []council.Stage1Answer
	Stage1Streaming map[string]string

	Stage2Results   []council.Stage2Review
	Stage2Streaming map[string]string
	LabelToModel    map[string]string
	Aggregate       []council.AggregateRankingEntry

	Stage3Content   string
	Stage3Reasoning string

	subscribers map[Subscriber]struct{}
	graceTimer  *time.Timer
}

// snapshotSubscribers returns the current subscriber set as a slice, for use
// outside the registry's lock.
func (rec *Record) snapshotSubscribers() []Subscriber {
	out := make([]Subscriber, 0, len(rec.subscribers))
	for s := range rec.subscribers {
		out = append(out, s)
	}
	return out
}

// Config holds the registry's environment-driven knobs, per spec.md §6.
type Config struct {
	MaxConcurrent  int
	GracePeriod    time.Duration
	StaleThreshold time.Duration
	SweepInterval  time.Duration
}

// Registry is process-wide state; one instance lives for the process
// lifetime, constructed in cmd/council's wiring and torn down via Shutdown.
type Registry struct {
	cfg Config

	mu      sync.Mutex
	records map[Key]*Record

	sweepStop chan struct{}
	sweepDone chan struct{}
}

// New constructs a Registry and starts its background sweeper.
func New(cfg Config) *Registry {
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = 30 * time.Second
	}
	if cfg.StaleThreshold <= 0 {
		cfg.StaleThreshold = 10 * time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Minute
	}
	r := &Registry{
		cfg:       cfg,
		records:   map[Key]*Record{},
		sweepStop: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	go r.sweepLoop()
	return r
}

func (r *Registry) sweepLoop() {
	defer close(r.sweepDone)
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.sweepStop:
			return
		case <-ticker.C:
			r.sweepStale()
		}
	}
}

func (r *Registry) sweepStale() {
	cutoff := time.Now().Add(-r.cfg.StaleThreshold)
	var toAbort []Key
	r.mu.Lock()
	for key, rec := range r.records {
		if rec.LastEventAt.Before(cutoff) {
			toAbort = append(toAbort, key)
		}
	}
	r.mu.Unlock()

	for _, key := range toAbort {
		r.Abort(key.UserID, key.SessionID)
	}
}

// IsProcessing reports whether a record exists for (u,s).
func (r *Registry) IsProcessing(u, s string) bool {
	_, ok := r.Get(u, s)
	return ok
}

// Get returns the record for (u,s), if any. The returned pointer must only
// be read through Registry methods or while the caller knows no concurrent
// mutation can occur (e.g. during reconnection replay, callers should use
// Snapshot instead to avoid racing the producer).
func (r *Registry) Get(u, s string) (*Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[Key{u, s}]
	return rec, ok
}

// RecordSnapshot is an immutable copy of a Record's accumulated state,
// safe to read without holding the registry's lock.
type RecordSnapshot struct {
	UserMessage     string
	StartedAt       time.Time
	CurrentStage    string
	Stage1Results   []council.Stage1Answer
	Stage1Streaming map[string]string
	Stage2Results   []council.Stage2Review
	Stage2Streaming map[string]string
	LabelToModel    map[string]string
	Aggregate       []council.AggregateRankingEntry
	Stage3Content   string
	Stage3Reasoning string
}

// Snapshot returns a consistent copy of the record's accumulated state for
// use by Status and reconnection replay.
func (r *Registry) Snapshot(u, s string) (RecordSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[Key{u, s}]
	if !ok {
		return RecordSnapshot{}, false
	}
	return RecordSnapshot{
		UserMessage:     rec.UserMessage,
		StartedAt:       rec.StartedAt,
		CurrentStage:    rec.CurrentStage,
		Stage1Results:   append([]council.Stage1Answer{}, rec.Stage1Results...),
		Stage1Streaming: cloneStrMap(rec.Stage1Streaming),
		Stage2Results:   append([]council.Stage2Review{}, rec.Stage2Results...),
		Stage2Streaming: cloneStrMap(rec.Stage2Streaming),
		LabelToModel:    cloneStrMap(rec.LabelToModel),
		Aggregate:       append([]council.AggregateRankingEntry{}, rec.Aggregate...),
		Stage3Content:   rec.Stage3Content,
		Stage3Reasoning: rec.Stage3Reasoning,
	}, true
}

func cloneStrMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// ActiveCount returns the number of live records.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// IsAtCapacity reports whether a new job would exceed the configured
// concurrency bound.
func (r *Registry) IsAtCapacity() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg.MaxConcurrent > 0 && len(r.records) >= r.cfg.MaxConcurrent
}

// Register installs a new record for (u,s), superseding and aborting any
// existing record for the same key first so that a stale completion from the
// prior job cannot clobber the replacement, per spec.md §4.5/§5. Capacity
// admission happens in this same locked section: a brand-new key is rejected
// (ok=false, no record installed) if the registry is already at
// cfg.MaxConcurrent, which keeps the check-and-admit atomic and rules out the
// TOCTOU window a separate IsAtCapacity pre-check would leave open, per
// spec.md §8's "activeCount never exceeds the configured max" invariant. A
// supersede of an existing key is never rejected on capacity: it replaces a
// record rather than growing the active count.
func (r *Registry) Register(u, s, userMessage string, abort *JobHandle) (*Record, bool) {
	key := Key{u, s}
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.records[key]; ok {
		prev.AbortHandle.abort()
		r.completeLocked(key, nil)
	} else if r.cfg.MaxConcurrent > 0 && len(r.records) >= r.cfg.MaxConcurrent {
		return nil, false
	}
	rec := &Record{
		Key:             key,
		UserMessage:     userMessage,
		AbortHandle:     abort,
		StartedAt:       time.Now(),
		LastEventAt:     time.Now(),
		Stage1Streaming: map[string]string{},
		Stage2Streaming: map[string]string{},
		subscribers:     map[Subscriber]struct{}{},
	}
	r.records[key] = rec
	return rec, true
}

// AddClient attaches a subscriber to the record for (u,s), cancelling any
// pending grace-period timer. Returns false, a no-op, if no record exists.
func (r *Registry) AddClient(u, s string, sub Subscriber) bool {
	key := Key{u, s}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[key]
	if !ok {
		return false
	}
	r.cancelGraceLocked(rec)
	rec.subscribers[sub] = struct{}{}
	return true
}

// RemoveClient detaches a subscriber. If the record's subscriber set becomes
// empty, a grace-period timer starts; on expiry, if the record is still
// unsubscribed, it is aborted and removed.
func (r *Registry) RemoveClient(u, s string, sub Subscriber) {
	key := Key{u, s}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[key]
	if !ok {
		return
	}
	delete(rec.subscribers, sub)
	if len(rec.subscribers) > 0 {
		return
	}
	r.cancelGraceLocked(rec)
	rec.graceTimer = time.AfterFunc(r.cfg.GracePeriod, func() {
		r.graceExpired(key)
	})
}

func (r *Registry) graceExpired(key Key) {
	r.mu.Lock()
	rec, ok := r.records[key]
	if !ok || len(rec.subscribers) > 0 {
		r.mu.Unlock()
		return
	}
	fence := rec.AbortHandle
	r.mu.Unlock()
	r.Abort(key.UserID, key.SessionID)
	_ = fence
}

func (r *Registry) cancelGraceLocked(rec *Record) {
	if rec.graceTimer != nil {
		rec.graceTimer.Stop()
		rec.graceTimer = nil
	}
}

// RecordEvent updates the record's accumulated state from one orchestrator
// event, per the bookkeeping rules of spec.md §4.5. heartbeat events are
// never recorded.
func (r *Registry) RecordEvent(u, s string, e council.Event) {
	if e.Type == council.EventHeartbeat {
		return
	}
	key := Key{u, s}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[key]
	if !ok {
		return
	}
	rec.LastEventAt = time.Now()

	switch e.Type {
	case council.EventStage1Start:
		rec.CurrentStage = "stage1"
	case council.EventStage2Start:
		rec.CurrentStage = "stage2"
	case council.EventStage3Start:
		rec.CurrentStage = "stage3"
	case council.EventStage1Chunk:
		rec.Stage1Streaming[e.Model] += e.Delta
	case council.EventStage2Chunk:
		rec.Stage2Streaming[e.Model] += e.Delta
	case council.EventStage1Response:
		if e.Stage1Answer != nil {
			rec.Stage1Results = append(rec.Stage1Results, *e.Stage1Answer)
			delete(rec.Stage1Streaming, e.Stage1Answer.Model)
		}
	case council.EventStage2Response:
		if e.Stage2Review != nil {
			rec.Stage2Results = append(rec.Stage2Results, *e.Stage2Review)
			delete(rec.Stage2Streaming, e.Stage2Review.Model)
		}
	case council.EventStage2Complete:
		rec.LabelToModel = e.LabelToModel
		rec.Aggregate = e.Aggregate
	case council.EventStage3Chunk:
		rec.Stage3Content += e.Delta
	case council.EventStage3ReasoningChunk:
		rec.Stage3Reasoning += e.Delta
	}
}

// Broadcast writes e to every subscriber of (u,s) whose channel accepts it
// without blocking, outside the registry's lock. A subscriber whose buffer
// is full simply misses e, exactly as the stream publisher this is modelled
// on drops into a full subscriber: per spec.md §5, "a write failure to one
// subscriber must not affect others", so a slow reader is never evicted or
// closed from here. No code path in this package or transport.Handler ever
// closes a Subscriber channel, which is what keeps this send race-free: a
// snapshot taken here can safely outlive the subscriber's removal from
// rec.subscribers, since the channel itself is never closed underneath it.
func (r *Registry) Broadcast(u, s string, e council.Event) {
	key := Key{u, s}
	r.mu.Lock()
	rec, ok := r.records[key]
	var subs []Subscriber
	if ok {
		subs = rec.snapshotSubscribers()
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	for _, sub := range subs {
		select {
		case sub <- e:
		default:
		}
	}
}

// Complete removes the record for (u,s) and cancels its grace timer. If
// fence is non-nil and does not match the record's current abort handle, the
// call is a no-op: it guards against a stale completion from a superseded
// job. Subscriber channels are left untouched: the registry never closes
// them (see Broadcast), so subscribers learn of completion from the
// complete/error event's content, delivered moments earlier by Broadcast,
// not from channel closure.
func (r *Registry) Complete(u, s string, fence *JobHandle) {
	key := Key{u, s}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completeLocked(key, fence)
}

func (r *Registry) completeLocked(key Key, fence *JobHandle) {
	rec, ok := r.records[key]
	if !ok {
		return
	}
	if fence != nil && fence != rec.AbortHandle {
		return
	}
	r.cancelGraceLocked(rec)
	delete(r.records, key)
}

// Abort fires the record's abort handle, then completes it with that handle
// as the fence.
func (r *Registry) Abort(u, s string) {
	key := Key{u, s}
	r.mu.Lock()
	rec, ok := r.records[key]
	if !ok {
		r.mu.Unlock()
		return
	}
	handle := rec.AbortHandle
	r.mu.Unlock()

	handle.abort()
	r.Complete(u, s, handle)
}

// Shutdown stops the sweeper and aborts and removes every record, cancelling
// each one's grace timer. Intended for process teardown.
func (r *Registry) Shutdown() {
	close(r.sweepStop)
	<-r.sweepDone

	r.mu.Lock()
	keys := make([]Key, 0, len(r.records))
	for k := range r.records {
		keys = append(keys, k)
	}
	r.mu.Unlock()

	for _, k := range keys {
		r.Abort(k.UserID, k.SessionID)
	}
}
