package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"voxpersona/internal/config"
	"voxpersona/internal/llm"
)

func TestChat_ServerReturnsChoice(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello"}}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`))
	})
	srv := httptest.NewServer(h)
	defer srv.Close()

	c := config.OpenAIConfig{APIKey: "test", BaseURL: srv.URL, Model: "m"}
	cli := New(c, srv.Client())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	comp, err := cli.Chat(ctx, []llm.Message{{Role: "user", Content: "hi"}}, 0, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if comp.Content != "hello" {
		t.Fatalf("expected hello, got %q", comp.Content)
	}
	if comp.Usage.TotalTokens != 5 {
		t.Fatalf("unexpected usage %+v", comp.Usage)
	}
}

func TestChat_UsesRequestedModelOverDefault(t *testing.T) {
	var gotModel string
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if m, ok := body["model"].(string); ok {
			gotModel = m
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	})
	srv := httptest.NewServer(h)
	defer srv.Close()

	cli := New(config.OpenAIConfig{APIKey: "test", BaseURL: srv.URL, Model: "default-model"}, srv.Client())
	_, err := cli.Chat(context.Background(), []llm.Message{{Role: "user", Content: "hi"}}, 0, "override-model")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotModel != "override-model" {
		t.Fatalf("expected override-model, got %q", gotModel)
	}
}
