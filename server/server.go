package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/allionai/allion/internal/models"
	"github.com/allionai/allion/internal/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Be careful with this in production
	},
}

// Message is the websocket frame for the streaming chat endpoint.
type Message struct {
	Type    string      `json:"type"`
	Content string      `json:"content"`
	Data    interface{} `json:"data,omitempty"`
}

// Ingester re-runs document ingestion, returning the number of chunks stored.
type Ingester interface {
	Reingest(ctx context.Context, force bool) (int, error)
}

// HealthReporter exposes a readiness snapshot.
type HealthReporter interface {
	Health(ctx context.Context) map[string]interface{}
}

// StreamChat answers a query against retrieved documents, optionally chunk by
// chunk.
type StreamChat interface {
	Chat(ctx context.Context, query string, docs []models.Document) (string, error)
	ChatStream(ctx context.Context, query string, docs []models.Document) (<-chan string, error)
}

type Config struct {
	Port      int
	Streaming bool
	SearchK   int
}

// Server exposes the assistant over HTTP and websocket.
type Server struct {
	config    Config
	responder types.Responder
	store     types.VectorStore
	embedder  types.Embedder
	chat      StreamChat
	ingester  Ingester
	health    HealthReporter
	metrics   *metrics
	mux       *http.ServeMux
}

func New(config Config, responder types.Responder, store types.VectorStore, embedder types.Embedder, chat StreamChat) *Server {
	if config.Port == 0 {
		config.Port = 8080
	}
	if config.SearchK == 0 {
		config.SearchK = 5
	}

	s := &Server{
		config:    config,
		responder: responder,
		store:     store,
		embedder:  embedder,
		chat:      chat,
		metrics:   newMetrics(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/query", s.handleQuery)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/initialize", s.handleInitialize)
	mux.HandleFunc("/documents", s.handleDocuments)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))
	s.mux = mux

	return s
}

// WithIngester enables the initialize endpoint.
func (s *Server) WithIngester(ingester Ingester) *Server {
	s.ingester = ingester
	return s
}

// WithHealth overrides the default health snapshot.
func (s *Server) WithHealth(reporter HealthReporter) *Server {
	s.health = reporter
	return s
}

// Handler returns the routing handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe blocks serving HTTP until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("server: listening on :%d", s.config.Port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

type queryRequest struct {
	Query string `json:"query"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	start := time.Now()
	answer, err := s.responder.Process(r.Context(), req.Query)
	s.metrics.queryDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.metrics.queriesTotal.WithLabelValues(answer.SourceType).Inc()
	for _, state := range answer.SearchPath {
		s.metrics.stateVisits.WithLabelValues(state).Inc()
	}

	writeJSON(w, http.StatusOK, answer)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		writeJSON(w, http.StatusOK, s.health.Health(r.Context()))
		return
	}

	count, err := s.store.Count(r.Context())
	status := "ok"
	if err != nil || count == 0 {
		status = "not_ready"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         status,
		"document_count": count,
	})
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	if s.ingester == nil {
		writeError(w, http.StatusNotImplemented, "ingestion not configured")
		return
	}

	force := r.URL.Query().Get("force") == "true"
	count, err := s.ingester.Reingest(r.Context(), force)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.metrics.documentCount.Set(float64(count))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "initialized",
		"chunks_added": count,
	})
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.Count(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.metrics.documentCount.Set(float64(count))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count": count,
		"ready": count > 0,
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("server: websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			s.sendMessage(conn, "error", "invalid message")
			continue
		}

		s.handleChatMessage(r.Context(), conn, msg)
	}
}

func (s *Server) handleChatMessage(ctx context.Context, conn *websocket.Conn, msg Message) {
	query := strings.TrimSpace(msg.Content)
	if query == "" {
		return
	}

	s.sendMessage(conn, "status", "Searching documents")

	embedding, err := s.embedder.CreateEmbedding(ctx, []string{query})
	if err != nil || len(embedding) == 0 {
		s.sendMessage(conn, "error", fmt.Sprintf("Failed to embed query: %v", err))
		return
	}

	docs, err := s.store.Query(ctx, embedding[0], s.config.SearchK)
	if err != nil {
		s.sendMessage(conn, "error", fmt.Sprintf("Error querying documents: %v", err))
		return
	}

	if s.config.Streaming {
		stream, err := s.chat.ChatStream(ctx, query, docs)
		if err != nil {
			s.sendMessage(conn, "error", fmt.Sprintf("Error: %v", err))
			return
		}

		for chunk := range stream {
			if strings.HasPrefix(chunk, "Error:") {
				s.sendMessage(conn, "error", chunk)
				return
			}
			s.sendMessage(conn, "stream", chunk)
		}
		s.sendMessage(conn, "done", "")
	} else {
		response, err := s.chat.Chat(ctx, query, docs)
		if err != nil {
			s.sendMessage(conn, "error", fmt.Sprintf("Error: %v", err))
			return
		}
		s.sendMessage(conn, "response", response)
	}
}

func (s *Server) sendMessage(conn *websocket.Conn, msgType, content string) {
	msg := Message{Type: msgType, Content: content}
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("server: send failed: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
