package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allionai/allion/internal/models"
)

type stubResponder struct {
	answer *models.Answer
	err    error
}

func (s *stubResponder) Process(ctx context.Context, query string) (*models.Answer, error) {
	return s.answer, s.err
}

type stubStore struct {
	count int
	docs  []models.Document
}

func (s *stubStore) Store(ctx context.Context, docs []models.ProcessedDocument) error { return nil }
func (s *stubStore) Query(ctx context.Context, embedding []float32, limit int) ([]models.Document, error) {
	return s.docs, nil
}
func (s *stubStore) Count(ctx context.Context) (int, error) { return s.count, nil }
func (s *stubStore) Reset(ctx context.Context) error        { return nil }
func (s *stubStore) Close()                                 {}

type stubEmbedder struct{}

func (s *stubEmbedder) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	return [][]float32{{1, 0}}, nil
}

type stubChat struct {
	reply  string
	chunks []string
}

func (s *stubChat) Chat(ctx context.Context, query string, docs []models.Document) (string, error) {
	return s.reply, nil
}

func (s *stubChat) ChatStream(ctx context.Context, query string, docs []models.Document) (<-chan string, error) {
	ch := make(chan string, len(s.chunks))
	for _, c := range s.chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

type stubIngester struct {
	count int
	force bool
	err   error
}

func (s *stubIngester) Reingest(ctx context.Context, force bool) (int, error) {
	s.force = force
	return s.count, s.err
}

func newTestServer(responder *stubResponder, store *stubStore, chat *stubChat) *Server {
	return New(Config{Streaming: true}, responder, store, &stubEmbedder{}, chat)
}

func TestHandleQuery(t *testing.T) {
	responder := &stubResponder{answer: &models.Answer{
		Text:       "Replace the coil.",
		SourceType: "docs",
		Confidence: 0.7,
	}}
	srv := newTestServer(responder, &stubStore{count: 3}, &stubChat{})

	body := bytes.NewBufferString(`{"query":"P0301 misfire"}`)
	req := httptest.NewRequest(http.MethodPost, "/query", body)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var answer models.Answer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &answer))
	assert.Equal(t, "Replace the coil.", answer.Text)
	assert.Equal(t, "docs", answer.SourceType)
	assert.Equal(t, 0.7, answer.Confidence)
}

func TestHandleQuery_BadRequests(t *testing.T) {
	srv := newTestServer(&stubResponder{}, &stubStore{}, &stubChat{})

	req := httptest.NewRequest(http.MethodGet, "/query", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"query":"  "}`))
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`no json`))
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleQuery_ResponderError(t *testing.T) {
	srv := newTestServer(&stubResponder{err: fmt.Errorf("boom")}, &stubStore{}, &stubChat{})

	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"query":"P0301"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(&stubResponder{}, &stubStore{count: 5}, &stubChat{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, float64(5), health["document_count"])
}

func TestHandleHealth_Empty(t *testing.T) {
	srv := newTestServer(&stubResponder{}, &stubStore{count: 0}, &stubChat{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "not_ready", health["status"])
}

func TestHandleInitialize(t *testing.T) {
	ingester := &stubIngester{count: 42}
	srv := newTestServer(&stubResponder{}, &stubStore{}, &stubChat{}).WithIngester(ingester)

	req := httptest.NewRequest(http.MethodPost, "/initialize?force=true", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, ingester.force)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(42), resp["chunks_added"])
}

func TestHandleInitialize_NotConfigured(t *testing.T) {
	srv := newTestServer(&stubResponder{}, &stubStore{}, &stubChat{})

	req := httptest.NewRequest(http.MethodPost, "/initialize", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestHandleDocuments(t *testing.T) {
	srv := newTestServer(&stubResponder{}, &stubStore{count: 7}, &stubChat{})

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(7), resp["count"])
	assert.Equal(t, true, resp["ready"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(&stubResponder{answer: &models.Answer{SourceType: "docs"}}, &stubStore{}, &stubChat{})

	// Record one query so the counter shows up.
	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"query":"P0301"}`))
	srv.Handler().ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "allion_queries_total")
}

func TestWebSocketStreaming(t *testing.T) {
	chat := &stubChat{chunks: []string{"Replace ", "the coil."}}
	srv := newTestServer(&stubResponder{}, &stubStore{}, chat)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(Message{Type: "chat", Content: "P0301 misfire"}))

	var received []Message
	for {
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		received = append(received, msg)
		if msg.Type == "done" || msg.Type == "error" {
			break
		}
	}

	require.GreaterOrEqual(t, len(received), 3)
	assert.Equal(t, "status", received[0].Type)

	var streamed strings.Builder
	for _, msg := range received {
		if msg.Type == "stream" {
			streamed.WriteString(msg.Content)
		}
	}
	assert.Equal(t, "Replace the coil.", streamed.String())
	assert.Equal(t, "done", received[len(received)-1].Type)
}
