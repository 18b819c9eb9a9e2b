// Package providertest fakes an OpenAI compatible chat completion endpoint.
package providertest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"companion/app/config"

	"github.com/sashabaranov/go-openai"
)

// Server records every chat completion request and answers with Reply.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	requests []openai.ChatCompletionRequest

	// Reply produces the assistant content, an empty string yields a reply without choices.
	Reply func(req openai.ChatCompletionRequest) string
	// Status overrides the HTTP status when non-zero.
	Status int
	// Delay is slept before answering.
	Delay time.Duration
}

func New(t *testing.T, reply string) *Server {
	t.Helper()

	s := &Server{
		Reply: func(openai.ChatCompletionRequest) string { return reply },
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)

	return s
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	var req openai.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	status := s.Status
	delay := s.Delay
	reply := s.Reply
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")

	if status != 0 && status != http.StatusOK {
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "upstream exploded", "type": "server_error"},
		})
		return
	}

	resp := openai.ChatCompletionResponse{
		ID:      "chatcmpl-test",
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
	}

	if content := reply(req); content != "" {
		resp.Choices = []openai.ChatCompletionChoice{{
			Index:        0,
			Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content},
			FinishReason: openai.FinishReasonStop,
		}}
	}

	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) SetStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = status
}

func (s *Server) SetDelay(delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Delay = delay
}

func (s *Server) Requests() []openai.ChatCompletionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]openai.ChatCompletionRequest(nil), s.requests...)
}

// Config points a provider config at the fake server.
func (s *Server) Config() config.Provider {
	return config.Provider{
		BaseURL: s.URL,
		Token:   "test-token",
		Model:   "llama3-70b-8192",
		Timeout: 2 * time.Second,
	}
}
