package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/councilml/council/internal/council"
	"github.com/councilml/council/internal/llm"
	"github.com/councilml/council/internal/registry"
	"github.com/councilml/council/internal/sessionstore/memstore"
	"github.com/councilml/council/internal/transport"
)

type fakeStreamer struct{}

func (f *fakeStreamer) CompleteStreaming(ctx context.Context, model string, messages []llm.Message, maxTokens int, timeout time.Duration, reasoning bool) (<-chan llm.StreamChunk, error) {
	out := make(chan llm.StreamChunk, 1)
	close(out)
	return out, nil
}

func newTestServer(t *testing.T) (*Server, *memstore.Store) {
	store := memstore.New(0)
	reg := registry.New(registry.Config{SweepInterval: time.Hour})
	t.Cleanup(reg.Shutdown)
	orch := council.New(&fakeStreamer{}, store, council.Config{
		Models: map[council.Mode]council.ModelSet{
			council.ModeLite: {Participants: []string{"m1"}, Chairman: "m1"},
		},
	}, nil)
	streamHandler := transport.New(reg, transport.Config{HeartbeatInterval: time.Hour})
	srv := New(store, store, reg, orch, streamHandler, Config{
		DefaultMode:   council.ModeLite,
		ValidModes:    map[council.Mode]bool{council.ModeLite: true},
		MaxContentLen: 4000,
	})
	return srv, store
}

func TestCreateSession_RequiresUser(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateSession_Success(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", nil)
	req.Header.Set("X-User-Id", "u1")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp apiResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "OK", resp.Status)
}

func TestSendMessage_ValidatesContentLength(t *testing.T) {
	srv, store := newTestServer(t)
	sess, err := store.Create(context.Background(), "u1")
	require.NoError(t, err)

	body := strings.NewReader(`{"content":"","mode":"lite"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/"+sess.SessionID+"/messages", body)
	req.Header.Set("X-User-Id", "u1")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendMessage_RejectsInvalidSessionID(t *testing.T) {
	srv, _ := newTestServer(t)
	body := strings.NewReader(`{"content":"hi","mode":"lite"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/not-a-uuid/messages", body)
	req.Header.Set("X-User-Id", "u1")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendMessage_404WhenSessionMissing(t *testing.T) {
	srv, _ := newTestServer(t)
	body := strings.NewReader(`{"content":"hi","mode":"lite"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/"+uuid.NewString()+"/messages", body)
	req.Header.Set("X-User-Id", "u1")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSendMessage_AtCapacityRejectsWithoutLeakingASlot(t *testing.T) {
	store := memstore.New(0)
	reg := registry.New(registry.Config{MaxConcurrent: 1, SweepInterval: time.Hour})
	t.Cleanup(reg.Shutdown)
	orch := council.New(&fakeStreamer{}, store, council.Config{
		Models: map[council.Mode]council.ModelSet{
			council.ModeLite: {Participants: []string{"m1"}, Chairman: "m1"},
		},
	}, nil)
	streamHandler := transport.New(reg, transport.Config{HeartbeatInterval: time.Hour})
	srv := New(store, store, reg, orch, streamHandler, Config{
		DefaultMode:   council.ModeLite,
		ValidModes:    map[council.Mode]bool{council.ModeLite: true},
		MaxContentLen: 4000,
	})

	_, ok := reg.Register("other-user", "other-session", "occupying the slot", registry.NewJobHandle(func() {}))
	require.True(t, ok)

	sess, err := store.Create(context.Background(), "u1")
	require.NoError(t, err)

	body := strings.NewReader(`{"content":"hi","mode":"lite"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/"+sess.SessionID+"/messages", body)
	req.Header.Set("X-User-Id", "u1")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, 1, reg.ActiveCount(), "a rejected admission must not register a second record")
	assert.False(t, reg.IsProcessing("u1", sess.SessionID))
}

func TestStatus_NotProcessing(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/"+uuid.NewString()+"/status", nil)
	req.Header.Set("X-User-Id", "u1")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data statusResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.False(t, resp.Data.IsProcessing)
}

func TestAbort_404WhenNotProcessing(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/"+uuid.NewString()+"/abort", nil)
	req.Header.Set("X-User-Id", "u1")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReconnect_404WhenNotProcessing(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/"+uuid.NewString()+"/stream", nil)
	req.Header.Set("X-User-Id", "u1")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
