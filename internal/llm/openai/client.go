package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/param"

	"voxpersona/internal/config"
	"voxpersona/internal/llm"
	"voxpersona/internal/observability"
)

// Client wraps the OpenAI Chat Completions API (or any OpenAI-compatible
// self-hosted endpoint) as an llm.Provider.
type Client struct {
	sdk        sdk.Client
	model      string
	baseURL    string
	httpClient *http.Client
}

func New(c config.OpenAIConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{option.WithAPIKey(c.APIKey), option.WithHTTPClient(httpClient)}
	if c.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(c.BaseURL))
	}
	return &Client{
		sdk:        sdk.NewClient(opts...),
		model:      c.Model,
		baseURL:    c.BaseURL,
		httpClient: httpClient,
	}
}

// isSelfHosted returns true when talking to something other than the public
// OpenAI API (e.g. an in-house mlx_lm/llama.cpp server).
func (c *Client) isSelfHosted() bool {
	return c.baseURL != "" && c.baseURL != "https://api.openai.com/v1"
}

// tokenizeCount calls a llama.cpp-compatible /tokenize endpoint for a
// best-effort token count when the provider's own usage field is unreliable.
// Returns 0 on any failure so that metrics emission never blocks the caller.
func (c *Client) tokenizeCount(ctx context.Context, text string) int {
	if !c.isSelfHosted() || strings.TrimSpace(text) == "" {
		return 0
	}
	base := strings.TrimSuffix(strings.TrimSuffix(strings.TrimSpace(c.baseURL), "/"), "/v1")
	body, _ := json.Marshal(map[string]any{"content": text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/tokenize", bytes.NewReader(body))
	if err != nil {
		return 0
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()
	rb, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0
	}
	var parsed struct {
		Tokens []any `json:"tokens"`
	}
	if err := json.Unmarshal(rb, &parsed); err != nil {
		return 0
	}
	return len(parsed.Tokens)
}

func flattenPrompt(msgs []llm.Message) string {
	var sb strings.Builder
	for i, m := range msgs {
		sb.WriteString(m.Role)
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		if i < len(msgs)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func adaptMessages(msgs []llm.Message) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch strings.ToLower(strings.TrimSpace(m.Role)) {
		case "system":
			out = append(out, sdk.SystemMessage(m.Content))
		case "assistant":
			out = append(out, sdk.AssistantMessage(m.Content))
		default:
			out = append(out, sdk.UserMessage(m.Content))
		}
	}
	return out
}

func (c *Client) pickModel(model string) string {
	if m := strings.TrimSpace(model); m != "" {
		return m
	}
	return c.model
}

// Chat implements llm.Provider.Chat using OpenAI Chat Completions. It also
// serves self-hosted, OpenAI-compatible endpoints, falling back to a
// /tokenize call for token accounting when the server's usage field is
// absent or unreliable.
func (c *Client) Chat(ctx context.Context, msgs []llm.Message, maxTokens int, model string) (llm.Completion, error) {
	effectiveModel := c.pickModel(model)
	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(effectiveModel),
		Messages: adaptMessages(msgs),
	}
	if maxTokens > 0 {
		params.MaxTokens = param.NewOpt(int64(maxTokens))
	}

	ctx, span := llm.StartRequestSpan(ctx, "OpenAI Chat", effectiveModel, 0, len(msgs))
	defer span.End()
	llm.LogRedactedPrompt(ctx, msgs)
	log := observability.LoggerWithTrace(ctx)

	start := time.Now()
	comp, err := c.sdk.Chat.Completions.New(ctx, params)
	dur := time.Since(start)
	if err != nil {
		span.RecordError(err)
		log.Error().Err(err).Str("model", effectiveModel).Dur("duration", dur).Msg("chat_completion_error")
		return llm.Completion{}, err
	}

	var content string
	if len(comp.Choices) > 0 {
		content = comp.Choices[0].Message.Content
	}
	llm.LogRedactedResponse(ctx, comp.Choices)

	promptTokens := int(comp.Usage.PromptTokens)
	completionTokens := int(comp.Usage.CompletionTokens)
	if promptTokens == 0 && completionTokens == 0 && c.isSelfHosted() {
		promptTokens = c.tokenizeCount(ctx, flattenPrompt(msgs))
		completionTokens = c.tokenizeCount(ctx, content)
	}
	totalTokens := promptTokens + completionTokens
	llm.RecordTokenAttributes(span, promptTokens, completionTokens, totalTokens)
	llm.RecordTokenMetrics(effectiveModel, promptTokens, completionTokens)

	log.Debug().
		Str("model", effectiveModel).
		Dur("duration", dur).
		Int("prompt_tokens", promptTokens).
		Int("completion_tokens", completionTokens).
		Int("total_tokens", totalTokens).
		Msg("chat_completion_ok")

	return llm.Completion{
		Content: content,
		Model:   effectiveModel,
		Usage: llm.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      totalTokens,
		},
	}, nil
}

var _ llm.Provider = (*Client)(nil)
