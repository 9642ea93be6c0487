package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"voxpersona/internal/config"
	"voxpersona/internal/llm"
)

func minimalUsage() sdk.Usage {
	return sdk.Usage{InputTokens: 10, OutputTokens: 5}
}

func TestChatReturnsText(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		defer r.Body.Close()
		w.Header().Set("Content-Type", "application/json")
		resp := sdk.Message{
			ID:         "msg_1",
			Type:       constant.Message("message"),
			Role:       constant.Assistant("assistant"),
			Model:      sdk.ModelClaude3_7SonnetLatest,
			StopReason: sdk.StopReasonEndTurn,
			Content: []sdk.ContentBlockUnion{
				{Type: "text", Text: "hello"},
			},
			Usage: minimalUsage(),
		}
		b, _ := json.Marshal(resp)
		_, _ = w.Write(b)
	}))
	t.Cleanup(srv.Close)

	client := New(config.AnthropicConfig{APIKey: "k", Model: "m", BaseURL: srv.URL}, srv.Client())
	comp, err := client.Chat(context.Background(), []llm.Message{{Role: "user", Content: "hi"}}, 0, "")
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if comp.Content != "hello" {
		t.Fatalf("unexpected content %q", comp.Content)
	}
	if comp.Usage.TotalTokens != 15 {
		t.Fatalf("unexpected usage %+v", comp.Usage)
	}
	if gotPath != "/v1/messages" {
		t.Fatalf("unexpected path %q", gotPath)
	}
}

func TestChatPromptCacheAddsCacheControlToSystem(t *testing.T) {
	var reqBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		_ = json.NewDecoder(r.Body).Decode(&reqBody)
		w.Header().Set("Content-Type", "application/json")
		resp := sdk.Message{
			ID:         "msg_2",
			Type:       constant.Message("message"),
			Role:       constant.Assistant("assistant"),
			Model:      sdk.ModelClaude3_7SonnetLatest,
			StopReason: sdk.StopReasonEndTurn,
			Content:    []sdk.ContentBlockUnion{{Type: "text", Text: "ok"}},
			Usage:      minimalUsage(),
		}
		b, _ := json.Marshal(resp)
		_, _ = w.Write(b)
	}))
	t.Cleanup(srv.Close)

	client := New(config.AnthropicConfig{
		APIKey:      "k",
		BaseURL:     srv.URL,
		PromptCache: config.AnthropicPromptCacheConfig{Enabled: true, TTL: "5m"},
	}, srv.Client())

	_, err := client.Chat(context.Background(), []llm.Message{
		{Role: "system", Content: "you are an audit assistant"},
		{Role: "user", Content: "summarize"},
	}, 0, "")
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}

	system, ok := reqBody["system"].([]any)
	if !ok || len(system) == 0 {
		t.Fatalf("expected system blocks in request, got %#v", reqBody["system"])
	}
	block, ok := system[0].(map[string]any)
	if !ok {
		t.Fatalf("unexpected system block shape %#v", system[0])
	}
	if _, ok := block["cache_control"]; !ok {
		t.Fatalf("expected cache_control on system block, got %#v", block)
	}
}

func TestChatRejectsUnsupportedRole(t *testing.T) {
	client := New(config.AnthropicConfig{APIKey: "k"}, http.DefaultClient)
	_, err := client.Chat(context.Background(), []llm.Message{{Role: "tool", Content: "x"}}, 0, "")
	if err == nil {
		t.Fatalf("expected error for unsupported role")
	}
}
