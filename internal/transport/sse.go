// Package transport implements the Stream Transport: wiring a new or
// reconnecting HTTP client to the Processing Registry over a one-way
// server-sent-event stream, per spec.md §4.6.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/councilml/council/internal/council"
	"github.com/councilml/council/internal/registry"
)

// defaultHeartbeatInterval is the default keep-alive cadence; callers may override
// via Config.
const defaultHeartbeatInterval = 15 * time.Second

// Config holds the transport's environment-driven knob.
type Config struct {
	HeartbeatInterval time.Duration
}

// Flusher is the subset of http.ResponseWriter the transport writes
// through; kept narrow so tests can substitute a fake sink.
type Flusher interface {
	WriteHeaders()
	WriteEvent(council.Event) error
}

// httpFlusher adapts an http.ResponseWriter to Flusher, flushing after every
// write so frames reach the client immediately.
type httpFlusher struct {
	w http.ResponseWriter
	f http.Flusher
}

// NewHTTPFlusher wraps w; SSE headers are written only when WriteHeaders is
// called. Panics if w does
// not support http.Flusher, matching the teacher's assumption that the
// server always runs behind a flushing transport.
func NewHTTPFlusher(w http.ResponseWriter) Flusher {
	f, ok := w.(http.Flusher)
	if !ok {
		panic("transport: response writer does not support flushing")
	}
	return &httpFlusher{w: w, f: f}
}

func (h *httpFlusher) WriteHeaders() {
	header := h.w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	h.w.WriteHeader(http.StatusOK)
	h.f.Flush()
}

func (h *httpFlusher) WriteEvent(e council.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(h.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	h.f.Flush()
	return nil
}

// Handler wires the registry to HTTP handlers.
type Handler struct {
	reg *registry.Registry
	cfg Config
}

// New returns a Handler bound to reg.
func New(reg *registry.Registry, cfg Config) *Handler {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	return &Handler{reg: reg, cfg: cfg}
}

// ServeNewJob wires a brand-new job's event sequence to flusher: it attaches
// a subscriber, starts the keep-alive ticker, and drains events until the
// producer closes or the client disconnects. The caller must have already
// admitted the job via registry.Registry.Register (capacity admission has to
// happen before any response bytes are written, so it cannot live inside
// this call); events is the orchestrator's channel for that job, already
// associated with cancel, and abort must cancel that same job.
func (h *Handler) ServeNewJob(reqCtx context.Context, flusher Flusher, userID, sessionID string, events <-chan council.Event, abort *registry.JobHandle) {
	flusher.WriteHeaders()

	sub := registry.NewSubscriber()
	h.reg.AddClient(userID, sessionID, sub)

	h.consume(reqCtx, flusher, userID, sessionID, sub, events, abort)
}

// ServeReconnect replays a live job's accumulated state to flusher in stage
// order, then streams future live events. Returns false if no active record
// exists for (userID, sessionID), in which case the caller should respond
// 404 and flusher.WriteHeaders must not have been called yet.
func (h *Handler) ServeReconnect(reqCtx context.Context, flusher Flusher, userID, sessionID string) bool {
	snap, ok := h.reg.Snapshot(userID, sessionID)
	if !ok {
		return false
	}

	flusher.WriteHeaders()
	replay(flusher, snap)
	_ = flusher.WriteEvent(council.Event{Type: council.EventReconnected, Stage: snap.CurrentStage, UserMessage: snap.UserMessage})

	sub := registry.NewSubscriber()
	if !h.reg.AddClient(userID, sessionID, sub) {
		// record vanished between Snapshot and AddClient (raced by
		// completion); nothing further to stream.
		return true
	}
	h.consume(reqCtx, flusher, userID, sessionID, sub, nil, nil)
	return true
}

// replay emits the accumulated state of snap in stage order, per spec.md
// §4.6.
func replay(flusher Flusher, snap registry.RecordSnapshot) {
	stagePast := func(stage string) bool {
		order := map[string]int{"": 0, "stage1": 1, "stage2": 2, "stage3": 3}
		return order[snap.CurrentStage] > order[stage]
	}

	hasStage1 := len(snap.Stage1Results) > 0 || len(snap.Stage1Streaming) > 0 || snap.CurrentStage == "stage1"
	if hasStage1 {
		_ = flusher.WriteEvent(council.Event{Type: council.EventStage1Start})
		for _, ans := range snap.Stage1Results {
			a := ans
			_ = flusher.WriteEvent(council.Event{Type: council.EventStage1Response, Stage1Answer: &a})
		}
		if snap.CurrentStage == "stage1" {
			for model, content := range snap.Stage1Streaming {
				_ = flusher.WriteEvent(council.Event{Type: council.EventStage1Chunk, Model: model, Delta: content})
			}
		}
		if stagePast("stage1") {
			_ = flusher.WriteEvent(council.Event{Type: council.EventStage1Complete})
		}
	}

	hasStage2 := len(snap.Stage2Results) > 0 || len(snap.Stage2Streaming) > 0 || snap.CurrentStage == "stage2"
	if hasStage2 {
		_ = flusher.WriteEvent(council.Event{Type: council.EventStage2Start})
		for _, rev := range snap.Stage2Results {
			r := rev
			_ = flusher.WriteEvent(council.Event{Type: council.EventStage2Response, Stage2Review: &r})
		}
		if snap.CurrentStage == "stage2" {
			for model, content := range snap.Stage2Streaming {
				_ = flusher.WriteEvent(council.Event{Type: council.EventStage2Chunk, Model: model, Delta: content})
			}
		}
		if stagePast("stage2") && len(snap.LabelToModel) > 0 {
			_ = flusher.WriteEvent(council.Event{Type: council.EventStage2Complete, LabelToModel: snap.LabelToModel, Aggregate: snap.Aggregate})
		}
	}

	hasStage3 := snap.Stage3Content != "" || snap.Stage3Reasoning != "" || snap.CurrentStage == "stage3"
	if hasStage3 {
		_ = flusher.WriteEvent(council.Event{Type: council.EventStage3Start})
		if snap.Stage3Reasoning != "" {
			_ = flusher.WriteEvent(council.Event{Type: council.EventStage3ReasoningChunk, Delta: snap.Stage3Reasoning})
		}
		if snap.Stage3Content != "" {
			_ = flusher.WriteEvent(council.Event{Type: council.EventStage3Chunk, Delta: snap.Stage3Content})
		}
	}
}

// consume drains events from either the freshly-produced orchestrator
// channel (new job: events non-nil) or purely from the subscriber channel
// (reconnection: events nil), recording and broadcasting each one, ticking a
// heartbeat, and unwinding cleanly on client disconnect.
//
// The owning connection of a new job is itself registered as a subscriber
// (sub), so that its own disconnect participates in the registry's grace
// policy like any other subscriber. Forwarded events therefore reach this
// connection's flusher via the same sub round-trip as every other
// subscriber, which keeps per-subscriber delivery order intact. sub is never
// closed, by this call or by the registry (see registry.Registry.Broadcast):
// a Broadcast from another goroutine may still hold a stale reference to
// sub after this call returns and RemoveClient has dropped it from the
// record, and closing it here could race that send into a panic. Leaving it
// open costs nothing; it becomes unreferenced and collectible once this
// function returns.
func (h *Handler) consume(reqCtx context.Context, flusher Flusher, userID, sessionID string, sub registry.Subscriber, events <-chan council.Event, abort *registry.JobHandle) {
	heartbeat := time.NewTicker(h.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	defer h.reg.RemoveClient(userID, sessionID, sub)

	for {
		select {
		case <-reqCtx.Done():
			return

		case <-heartbeat.C:
			h.reg.Broadcast(userID, sessionID, council.Event{Type: council.EventHeartbeat, Timestamp: time.Now()})

		case ev, ok := <-events:
			if !ok {
				return
			}
			h.reg.RecordEvent(userID, sessionID, ev)
			h.reg.Broadcast(userID, sessionID, ev)
			if ev.Type == council.EventComplete || ev.Type == council.EventError {
				h.reg.Complete(userID, sessionID, abort)
				h.drainRemaining(userID, sessionID, flusher, sub)
				return
			}

		case ev, ok := <-sub:
			if !ok {
				return
			}
			if err := flusher.WriteEvent(ev); err != nil {
				log.Printf("council: write to subscriber failed for %s/%s: %v", userID, sessionID, err)
				return
			}
			// A reconnect-only connection (events == nil) has no other way
			// to learn the job finished: the owning connection's copy is
			// handled by the events case above instead.
			if events == nil && (ev.Type == council.EventComplete || ev.Type == council.EventError) {
				return
			}
		}
	}
}

// drainRemaining writes every event still buffered in sub, in order. It
// runs right after Complete() has removed the record from the registry, so
// no further Broadcast for this key can reach sub; draining non-blockingly
// here flushes the final complete/error frame (and anything still queued
// ahead of it) without waiting on a close that never comes.
func (h *Handler) drainRemaining(userID, sessionID string, flusher Flusher, sub registry.Subscriber) {
	for {
		select {
		case ev := <-sub:
			if err := flusher.WriteEvent(ev); err != nil {
				log.Printf("council: write to subscriber failed for %s/%s: %v", userID, sessionID, err)
				return
			}
		default:
			return
		}
	}
}
