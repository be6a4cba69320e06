// Package web is the optional debug/introspection HTTP server. It exposes
// the session's state and event stream to a browser; the protocol client
// never talks to it.
package web

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/skdevtools/bazel-bsp/pkg/graph"
	"github.com/skdevtools/bazel-bsp/pkg/logging"
	"github.com/skdevtools/bazel-bsp/pkg/model"
	"github.com/skdevtools/bazel-bsp/pkg/protocol"
	"github.com/skdevtools/bazel-bsp/pkg/pubsub"
	"github.com/skdevtools/bazel-bsp/pkg/server"
)

// Server serves the debug endpoints for one session
type Server struct {
	router    *mux.Router
	session   *server.Session
	publisher pubsub.Publisher
}

// NewServer creates the debug server. The publisher must be the same one
// the session publishes to.
func NewServer(session *server.Session, publisher pubsub.Publisher) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		session:   session,
		publisher: publisher,
	}
	s.setupRoutes()
	return s
}

// ConfigureTopics sets the replay behavior for the session's topics on a
// fresh SSE publisher: late subscribers get the current state, not the
// history.
func ConfigureTopics(p *pubsub.SSEPublisher) {
	p.ConfigureTopic(pubsub.TopicLoadStatus, pubsub.TopicConfig{BufferSize: 10, ReplayAll: false})
	p.ConfigureTopic(pubsub.TopicGraph, pubsub.TopicConfig{BufferSize: 5, ReplayAll: false})
	p.ConfigureTopic(pubsub.TopicInvalidated, pubsub.TopicConfig{BufferSize: 20, ReplayAll: true})
}

func (s *Server) setupRoutes() {
	s.router.Use(logging.RequestIDMiddleware)

	s.router.HandleFunc("/api/status", s.handleStatus).Methods("GET")
	s.router.HandleFunc("/api/targets", s.handleTargets).Methods("GET")
	s.router.HandleFunc("/api/targets/{id}/sources", s.handleTargetSources).Methods("GET")
	s.router.HandleFunc("/api/targets/{id}/rdeps", s.handleReverseDeps).Methods("GET")
	s.router.HandleFunc("/api/cycles", s.handleCycles).Methods("GET")
	s.router.HandleFunc("/api/events", s.handleEvents).Methods("GET")
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.session.CurrentStatus())
}

func (s *Server) handleTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := s.session.Targets(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, targets)
}

func (s *Server) handleTargetSources(w http.ResponseWriter, r *http.Request) {
	pg := s.session.Graph()
	if pg == nil {
		http.Error(w, "project not loaded", http.StatusServiceUnavailable)
		return
	}

	id := model.TargetID(mux.Vars(r)["id"])
	t, ok := pg.Targets[id]
	if !ok {
		http.Error(w, fmt.Sprintf("target not found: %s", id), http.StatusNotFound)
		return
	}

	items := pg.SourcesByTarget[id]
	out := make([]protocol.SourceDescriptor, len(items))
	for i, item := range items {
		out[i] = protocol.DescribeSource(item)
	}
	writeJSON(w, map[string]interface{}{
		"label":   t.Label,
		"sources": out,
	})
}

func (s *Server) handleReverseDeps(w http.ResponseWriter, r *http.Request) {
	pg := s.session.Graph()
	if pg == nil {
		http.Error(w, "project not loaded", http.StatusServiceUnavailable)
		return
	}

	id := model.TargetID(mux.Vars(r)["id"])
	if _, ok := pg.Targets[id]; !ok {
		http.Error(w, fmt.Sprintf("target not found: %s", id), http.StatusNotFound)
		return
	}

	var labels []string
	for _, rid := range graph.NewDepIndex(pg).ReverseDeps(id) {
		labels = append(labels, pg.LabelsByID[rid])
	}
	writeJSON(w, labels)
}

func (s *Server) handleCycles(w http.ResponseWriter, r *http.Request) {
	pg := s.session.Graph()
	if pg == nil {
		http.Error(w, "project not loaded", http.StatusServiceUnavailable)
		return
	}

	var out [][]string
	for _, cycle := range graph.NewDepIndex(pg).Cycles() {
		labels := make([]string, len(cycle))
		for i, id := range cycle {
			labels[i] = pg.LabelsByID[id]
		}
		out = append(out, labels)
	}
	writeJSON(w, out)
}

// handleEvents streams session events over SSE. The topic query parameter
// selects one of load_status, graph, invalidated; default is load_status.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")
	if topic == "" {
		topic = pubsub.TopicLoadStatus
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Initial comment establishes the connection (Safari compatibility).
	fmt.Fprintf(w, ": connected\n\n")
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	sub, err := s.publisher.Subscribe(r.Context(), topic)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer sub.Close()

	for event := range sub.Events() {
		if err := pubsub.WriteSSE(w, event); err != nil {
			logging.Debug("SSE client disconnected", "topic", topic, "error", err)
			return
		}
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("failed to encode response", "error", err)
	}
}

// Start serves the debug endpoints on the given port, blocking until the
// listener fails.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf("localhost:%d", port)
	logging.Info("debug server listening", "addr", "http://"+addr)
	return http.ListenAndServe(addr, s.router)
}
