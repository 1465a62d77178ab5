package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkolbe/ontograph-go/internal/auth"
	"github.com/pkolbe/ontograph-go/internal/batch"
	"github.com/pkolbe/ontograph-go/internal/metrics"
	"github.com/pkolbe/ontograph-go/internal/models"
	"github.com/pkolbe/ontograph-go/internal/ontology"
)

// fakeExtractor returns a single entity per item.
type fakeExtractor struct{}

func (fakeExtractor) Extract(_ context.Context, text string, _ models.RunConfig) (models.KnowledgeGraph, error) {
	return models.KnowledgeGraph{
		Entities: []models.Entity{{Class: "Person", Name: text}},
	}, nil
}

type testEnv struct {
	server *httptest.Server
	store  *batch.MemoryStore
	engine *batch.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	registry := ontology.NewRegistry()
	require.NoError(t, registry.Register(&ontology.Vocabulary{
		OntologyID: "org",
		Version:    "1",
		Classes:    []ontology.Class{{Name: "Person"}},
		Predicates: []ontology.Predicate{{Name: "knows"}},
	}))

	store := batch.NewMemoryStore()
	engine := batch.NewEngine(store, fakeExtractor{}, registry, batch.NewBroadcaster(), nil, 1)
	authority := auth.NewAuthority(auth.NewMemoryStore(), 60*time.Second)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv := New(":0", authority, engine, registry, metrics.NewCollector(), logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{server: ts, store: store, engine: engine}
}

func (e *testEnv) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	resp, err := http.Post(e.server.URL+path, "application/json", &buf)
	require.NoError(t, err)
	return resp
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(e.server.URL + path)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestIssueTicket(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/tickets", map[string]string{"ontology_id": "org"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	grant := decode[map[string]any](t, resp)
	assert.NotEmpty(t, grant["ticket"])
	assert.EqualValues(t, 60, grant["ttl_seconds"])
	assert.Greater(t, grant["expires_at"].(float64), float64(time.Now().UnixMilli()))
}

func TestIssueTicketUnknownOntology(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/tickets", map[string]string{"ontology_id": "nope"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestIssueTicketMissingOntology(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/tickets", map[string]string{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBatchLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/batches", map[string]any{
		"ontology_id": "org",
		"items":       []string{"a", "b"},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	submitted := decode[map[string]string](t, resp)
	batchID := submitted["batch_id"]
	require.NotEmpty(t, batchID)

	require.Eventually(t, func() bool {
		resp := env.get(t, "/batches/"+batchID)
		status := decode[map[string]any](t, resp)
		state, _ := status["state"].(map[string]any)
		return status["_tag"] == "Active" && state != nil && state["pending"] == float64(0)
	}, 5*time.Second, 20*time.Millisecond)
}

func TestBatchStatusNotFound(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/batches/missing")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	status := decode[map[string]any](t, resp)
	assert.Equal(t, "NotFound", status["_tag"])
	assert.Equal(t, "missing", status["batchId"])
}

func TestSubmitBatchValidation(t *testing.T) {
	env := newTestEnv(t)

	t.Run("empty items", func(t *testing.T) {
		resp := env.post(t, "/batches", map[string]any{"ontology_id": "org", "items": []string{}})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown ontology", func(t *testing.T) {
		resp := env.post(t, "/batches", map[string]any{"ontology_id": "nope", "items": []string{"a"}})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestSuspendResumeEndpoints(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Suspended record created directly in the store.
	cause := "operator pause"
	require.NoError(t, env.store.CreateBatch(ctx, "b1", models.BatchRecord{
		OntologyID:        "org",
		VocabularyVersion: "1",
		Phase:             models.BatchPhaseSuspended,
		Items:             []string{"a"},
		Cause:             &cause,
		CanResume:         true,
	}))

	resp := env.post(t, "/batches/b1/resume", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	t.Run("resume missing batch", func(t *testing.T) {
		resp := env.post(t, "/batches/nope/resume", nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("resume rejected", func(t *testing.T) {
		require.NoError(t, env.store.CreateBatch(ctx, "b2", models.BatchRecord{
			OntologyID:        "org",
			VocabularyVersion: "1",
			Phase:             models.BatchPhaseSuspended,
			Items:             []string{"a"},
			CanResume:         false,
		}))
		resp := env.post(t, "/batches/b2/resume", nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("suspend missing batch", func(t *testing.T) {
		resp := env.post(t, "/batches/nope/suspend", nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	health := decode[map[string]string](t, resp)
	assert.Equal(t, "ok", health["status"])

	resp = env.get(t, "/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap := decode[map[string]any](t, resp)
	assert.Contains(t, snap, "uptime_seconds")
}

func TestStreamRequiresValidTicket(t *testing.T) {
	env := newTestEnv(t)
	wsURL := strings.Replace(env.server.URL, "http://", "ws://", 1)

	t.Run("missing ticket", func(t *testing.T) {
		resp := env.get(t, "/stream")
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("unknown ticket", func(t *testing.T) {
		//nolint:bodyclose // Dial returns a closed response on failure
		_, resp, err := websocket.DefaultDialer.Dial(wsURL+"/stream?ticket=bogus", nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("valid ticket is single use", func(t *testing.T) {
		grant := decode[map[string]any](t, env.post(t, "/tickets", map[string]string{"ontology_id": "org"}))
		ticket := grant["ticket"].(string)

		conn, _, err := websocket.DefaultDialer.Dial(wsURL+"/stream?ticket="+ticket, nil)
		require.NoError(t, err)
		conn.Close()

		// Validation consumed the ticket: a second connect is rejected.
		_, resp, err := websocket.DefaultDialer.Dial(wsURL+"/stream?ticket="+ticket, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestStreamDeliversBatchEvents(t *testing.T) {
	env := newTestEnv(t)
	wsURL := strings.Replace(env.server.URL, "http://", "ws://", 1)

	grant := decode[map[string]any](t, env.post(t, "/tickets", map[string]string{"ontology_id": "org"}))
	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"/stream?ticket="+grant["ticket"].(string), nil)
	require.NoError(t, err)
	defer conn.Close()

	resp := env.post(t, "/batches", map[string]any{"ontology_id": "org", "items": []string{"a"}})
	submitted := decode[map[string]string](t, resp)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev struct {
		BatchID string `json:"batch_id"`
		Type    string `json:"type"`
	}
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, submitted["batch_id"], ev.BatchID)
	assert.Equal(t, "item_processed", ev.Type)
}
