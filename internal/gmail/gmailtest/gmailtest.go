// Package gmailtest provides an in-memory fake of the Gmail REST endpoints
// used by the gmail package.
package gmailtest

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	gmail "google.golang.org/api/gmail/v1"
)

// Server is a fake Gmail API. Messages are listed in insertion order.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	messages   map[string]*gmail.Message
	order      []string
	sent       []string
	queries    []string
	tokens     []string
	getCalls   map[string]int
	failGet    map[string]int
	sendStatus int
	listStatus int
}

// NewServer starts a fake that is closed when t finishes.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		messages: make(map[string]*gmail.Message),
		getCalls: make(map[string]int),
		failGet:  make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /gmail/v1/users/{user}/messages/send", s.handleSend)
	mux.HandleFunc("GET /gmail/v1/users/{user}/messages", s.handleList)
	mux.HandleFunc("GET /gmail/v1/users/{user}/messages/{id}", s.handleGet)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// Endpoint is the base URL to pass to gmail.Options.
func (s *Server) Endpoint() string { return s.URL + "/" }

// AddMessage makes msg visible to list and get calls.
func (s *Server) AddMessage(msg *gmail.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[msg.Id]; !ok {
		s.order = append(s.order, msg.Id)
	}
	s.messages[msg.Id] = msg
}

// FailGet makes fetching id answer with status.
func (s *Server) FailGet(id string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failGet[id] = status
}

// FailSend makes every send answer with status.
func (s *Server) FailSend(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendStatus = status
}

// FailList makes every list call answer with status.
func (s *Server) FailList(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listStatus = status
}

// Sent returns the raw envelopes received so far.
func (s *Server) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

// Queries returns the q parameter of every list call.
func (s *Server) Queries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

// Tokens returns the Authorization headers seen.
func (s *Server) Tokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tokens...)
}

// GetCalls returns how often id was fetched.
func (s *Server) GetCalls(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getCalls[id]
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = append(s.tokens, r.Header.Get("Authorization"))
	if s.sendStatus != 0 {
		writeError(w, s.sendStatus, "send rejected")
		return
	}

	var msg gmail.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil || msg.Raw == "" {
		writeError(w, http.StatusBadRequest, "raw is required")
		return
	}
	s.sent = append(s.sent, msg.Raw)
	n := len(s.sent)
	writeJSON(w, &gmail.Message{
		Id:       fmt.Sprintf("sent-%d", n),
		ThreadId: fmt.Sprintf("thread-sent-%d", n),
		LabelIds: []string{"SENT"},
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = append(s.tokens, r.Header.Get("Authorization"))
	s.queries = append(s.queries, r.URL.Query().Get("q"))
	if s.listStatus != 0 {
		writeError(w, s.listStatus, "list failed")
		return
	}

	offset, _ := strconv.Atoi(r.URL.Query().Get("pageToken"))
	size, _ := strconv.Atoi(r.URL.Query().Get("maxResults"))
	if size <= 0 || size > 500 {
		size = 100
	}

	res := &gmail.ListMessagesResponse{Messages: []*gmail.Message{}}
	end := min(offset+size, len(s.order))
	for _, id := range s.order[offset:end] {
		res.Messages = append(res.Messages, &gmail.Message{Id: id, ThreadId: s.messages[id].ThreadId})
	}
	if end < len(s.order) {
		res.NextPageToken = strconv.Itoa(end)
	}
	res.ResultSizeEstimate = int64(len(s.order))
	writeJSON(w, res)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = append(s.tokens, r.Header.Get("Authorization"))
	s.getCalls[id]++
	if status, ok := s.failGet[id]; ok {
		writeError(w, status, "backend error")
		return
	}
	msg, ok := s.messages[id]
	if !ok {
		writeError(w, http.StatusNotFound, "Requested entity was not found.")
		return
	}
	writeJSON(w, msg)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": status, "message": message},
	})
}

// Message builds a full-format message with a single text/plain body.
func Message(id, threadID, from, to, subject, snippet, body string) *gmail.Message {
	return &gmail.Message{
		Id:           id,
		ThreadId:     threadID,
		Snippet:      snippet,
		InternalDate: 1767225600000,
		Payload: &gmail.MessagePart{
			MimeType: "multipart/alternative",
			Headers: []*gmail.MessagePartHeader{
				{Name: "From", Value: from},
				{Name: "To", Value: to},
				{Name: "Subject", Value: subject},
				{Name: "Date", Value: "Thu, 01 Jan 2026 10:00:00 +0000"},
			},
			Parts: []*gmail.MessagePart{
				{
					MimeType: "text/plain",
					Body:     &gmail.MessagePartBody{Data: base64.URLEncoding.EncodeToString([]byte(body))},
				},
				{
					MimeType: "text/html",
					Body:     &gmail.MessagePartBody{Data: base64.URLEncoding.EncodeToString([]byte("<p>" + body + "</p>"))},
				},
			},
		},
	}
}
