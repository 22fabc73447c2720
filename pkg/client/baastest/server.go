// Package baastest provides an in-process stand-in for the Browser-as-a-Service
// endpoints used by pkg/client.
package baastest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/integrail/uismoke/pkg/client/dto"
)

const APIKey = "test-key"

// Handler answers one program statement.
type Handler func(program string) dto.BrowserMessageOut

type Server struct {
	*httptest.Server

	handle Handler

	mu       sync.Mutex
	programs []string
	starts   []dto.Config
	sessions map[string]chan struct{}
}

func NewServer(t testing.TB, handle Handler) *Server {
	s := &Server{handle: handle, sessions: map[string]chan struct{}{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/async/start", s.start)
	mux.HandleFunc("/api/async/message", s.message)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(func() {
		s.stopAll()
		s.Close()
	})
	return s
}

// Programs returns every program statement received so far.
func (s *Server) Programs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.programs...)
}

func (s *Server) Starts() []dto.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]dto.Config(nil), s.starts...)
}

func (s *Server) OpenSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) authorized(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("Authorization") != "Bearer "+APIKey {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}

func (s *Server) start(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(w, r) {
		return
	}
	var cfg dto.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id := uuid.NewString()
	stop := make(chan struct{})
	s.mu.Lock()
	s.starts = append(s.starts, cfg)
	s.sessions[id] = stop
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/event-stream")
	_ = json.NewEncoder(w).Encode(dto.BrowserMessageOut{
		Timestamp: time.Now().Format(time.RFC3339),
		SessionID: id,
	})
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	select {
	case <-stop:
	case <-r.Context().Done():
	}
}

func (s *Server) message(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(w, r) {
		return
	}
	var in dto.BrowserMessageIn
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	stop, ok := s.sessions[in.SessionID]
	if ok {
		s.programs = append(s.programs, in.Program)
	}
	if ok && lo.FromPtr(in.StopSession) {
		delete(s.sessions, in.SessionID)
		close(stop)
	}
	s.mu.Unlock()
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	out := s.handle(in.Program)
	out.SessionID, out.RequestID = in.SessionID, in.RequestID
	out.Timestamp = time.Now().Format(time.RFC3339)

	// a stray event of another request precedes the answer, as on the real service
	enc := json.NewEncoder(w)
	_ = enc.Encode(dto.BrowserMessageOut{SessionID: in.SessionID, RequestID: "other", Log: []string{"heartbeat"}})
	_ = enc.Encode(out)
}

func (s *Server) stopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, stop := range s.sessions {
		close(stop)
		delete(s.sessions, id)
	}
}
