package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	apperr "github.com/yungbote/curriculum-engine/internal/pkg/errors"
	"github.com/yungbote/curriculum-engine/internal/platform/logger"
)

const completionBody = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "model": "gpt-4o-2024-08-06",
  "choices": [{"index": 0, "message": {"role": "assistant", "content": %q}, "finish_reason": "stop"}],
  "usage": {"prompt_tokens": 120, "completion_tokens": 30, "total_tokens": 150}
}`

func newTestClient(t *testing.T, srv *httptest.Server, maxRetries int) Client {
	t.Helper()
	c, err := NewClient(logger.Nop(), Config{
		APIKey:         "sk-test-key-0000000000000000",
		BaseURL:        srv.URL + "/v1",
		Model:          "gpt-4o",
		ReasoningModel: "o1-mini",
		Timeout:        5 * time.Second,
		MaxRetries:     maxRetries,
		RetryBaseDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func writeCompletion(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(fmt.Sprintf(completionBody, content)))
}

func TestGenerateJSONStripsFences(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		writeCompletion(w, "```json\n{\"metadata\": {\"week\": 1}}\n```")
	}))
	defer srv.Close()

	resp, err := newTestClient(t, srv, 0).Generate(context.Background(), Request{
		System: "sys", User: "user", Shape: ShapeJSON, Tier: TierGeneral, Operation: "week_1_spec_attempt1",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	meta, _ := resp.JSON["metadata"].(map[string]any)
	if meta["week"] != float64(1) {
		t.Fatalf("unexpected json: %#v", resp.JSON)
	}
	if resp.Usage.TokensIn != 120 || resp.Usage.TokensOut != 30 {
		t.Fatalf("unexpected usage: %+v", resp.Usage)
	}
	if resp.Provider != ProviderOpenAI {
		t.Fatalf("provider: %q", resp.Provider)
	}
}

func TestGenerateMalformedJSONKeepsUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeCompletion(w, "I cannot produce that.")
	}))
	defer srv.Close()

	resp, err := newTestClient(t, srv, 0).Generate(context.Background(), Request{Shape: ShapeJSON, Operation: "op"})
	if !errors.Is(err, apperr.ErrMalformedResponse) {
		t.Fatalf("expected malformed response, got %v", err)
	}
	if resp.Usage.TokensIn != 120 {
		t.Fatalf("usage should survive a parse failure: %+v", resp.Usage)
	}
}

func TestGenerateRetriesTransientStatus(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error": {"message": "slow down", "type": "rate_limit"}}`))
			return
		}
		writeCompletion(w, "Salvete, discipuli!")
	}))
	defer srv.Close()

	resp, err := newTestClient(t, srv, 2).Generate(context.Background(), Request{Shape: ShapeText, Operation: "greeting"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Text != "Salvete, discipuli!" || atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("text=%q calls=%d", resp.Text, calls)
	}
}

func TestGenerateTransientAfterRetriesExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error": {"message": "overloaded", "type": "server_error"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, 1).Generate(context.Background(), Request{Operation: "op"})
	var te *apperr.TransientServiceError
	if !errors.As(err, &te) || te.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected transient 503, got %v", err)
	}
}

func TestGenerateUnauthorizedIsConfiguration(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "bad key", "type": "invalid_request_error"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, 3).Generate(context.Background(), Request{Operation: "op"})
	if !errors.Is(err, apperr.ErrServiceConfiguration) || !apperr.IsFatal(err) {
		t.Fatalf("expected fatal configuration error, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("configuration errors must not be retried, calls=%d", calls)
	}
}

func TestReasoningModelFoldsSystemPrompt(t *testing.T) {
	c := &client{cfg: Config{Model: "gpt-4o", ReasoningModel: "o1-mini", Temperature: 0.7, MaxOutputTokens: 100}}
	req := c.buildRequest(Request{System: "S", User: "U", Shape: ShapeJSON, Tier: TierReasoning}, c.ModelFor(TierReasoning))
	if len(req.Messages) != 1 || req.Messages[0].Content != "S\n\nU" {
		t.Fatalf("unexpected messages: %+v", req.Messages)
	}
	if req.ResponseFormat != nil || req.Temperature != 0 {
		t.Fatalf("reasoning request must omit format and temperature")
	}

	general := c.buildRequest(Request{System: "S", User: "U", Shape: ShapeJSON}, c.ModelFor(TierGeneral))
	if len(general.Messages) != 2 || general.ResponseFormat == nil {
		t.Fatalf("general request should carry system message and json format: %+v", general)
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(logger.Nop(), Config{Model: "gpt-4o"}); !errors.Is(err, apperr.ErrServiceConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
