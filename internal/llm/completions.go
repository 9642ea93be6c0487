// internal/llm/completions.go
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// choices: A list of outputs. Each output is a dictionary containing the fields:

// index: The index in the list.
// logprobs: A dictionary containing the fields:
// token_logprobs: A list of the log probabilities for the generated tokens.
// tokens: A list of the generated token ids.
// top_logprobs: A list of lists. Each list contains the logprobs top tokens (if requested) with their corresponding probabilities.

type Logprobs struct {
	TokenLogprobs []float64            `json:"token_logprobs,omitempty"`
	Tokens        []int                `json:"tokens,omitempty"`
	TopLogprobs   []map[string]float64 `json:"top_logprobs,omitempty"`
}

// wireMessage is the JSON wire shape for the raw OpenAI-compatible
// completions endpoint, distinct from the public Message type so that
// callers always go through Provider.Chat.
type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest represents the payload for the completion API.
type CompletionRequest struct {
	Model            string        `json:"model,omitempty"`
	Messages         []wireMessage `json:"messages"`
	Temperature      float64       `json:"temperature,omitempty"`
	TopP             float64       `json:"top_p,omitempty"`
	TopK             int           `json:"top_k,omitempty"`
	FrequencyPenalty float64       `json:"frequency_penalty,omitempty"`
	MaxTokens        int           `json:"max_tokens,omitempty"`
	Stream           bool          `json:"stream,omitempty"`
}

// Choice represents a choice for the completion response.
type Choice struct {
	Index        int         `json:"index"`
	Message      wireMessage `json:"message"`
	Logprobs     *Logprobs   `json:"logprobs,omitempty"`
	FinishReason string      `json:"finish_reason"`
}

// wireUsage is the JSON wire shape for token usage on the raw completions
// endpoint, distinct from the public Usage type.
type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionResponse represents the response from the completion API.
type CompletionResponse struct {
	ID                string    `json:"id"`
	Object            string    `json:"object"`
	Created           int64     `json:"created"`
	Model             string    `json:"model"`
	SystemFingerprint string    `json:"system_fingerprint"`
	Choices           []Choice  `json:"choices"`
	Usage             wireUsage `json:"usage"`
}

// ErrorData represents the structure of an error response from the OpenAI API.
type ErrorData struct {
	Code    interface{} `json:"code"`
	Message string      `json:"message"`
}

// ErrorResponse wraps the structure of an error when an API request fails.
type ErrorResponse struct {
	Error ErrorData `json:"error"`
}

// CallLLM calls a raw OpenAI-compatible completions endpoint and returns the
// full completion, including usage. It underlies HTTPProvider for
// self-hosted models that don't have a dedicated SDK client.
func CallLLM(ctx context.Context, endpoint, apiKey, model string, msgs []Message, maxTokens int, temperature float64) (Completion, error) {
	client := &http.Client{}

	wire := make([]wireMessage, len(msgs))
	for i, m := range msgs {
		wire[i] = wireMessage{Role: m.Role, Content: m.Content}
	}

	body, err := json.Marshal(CompletionRequest{
		Model:       model,
		Messages:    wire,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return Completion{}, fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewBuffer(body))
	if err != nil {
		return Completion{}, fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", apiKey))

	resp, err := client.Do(req)
	if err != nil {
		return Completion{}, fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Completion{}, fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err != nil {
			return Completion{}, fmt.Errorf("error parsing error response: %w (status: %d)", err, resp.StatusCode)
		}
		return Completion{}, fmt.Errorf("API error: %s", errResp.Error.Message)
	}

	var completion CompletionResponse
	if err := json.Unmarshal(respBody, &completion); err != nil {
		return Completion{}, fmt.Errorf("error parsing completion response: %w", err)
	}

	if len(completion.Choices) == 0 {
		return Completion{}, fmt.Errorf("no choices in completion response")
	}

	return Completion{
		Content: completion.Choices[0].Message.Content,
		Model:   completion.Model,
		Usage: Usage{
			PromptTokens:     completion.Usage.PromptTokens,
			CompletionTokens: completion.Usage.CompletionTokens,
			TotalTokens:      completion.Usage.TotalTokens,
		},
	}, nil
}

// HTTPProvider adapts CallLLM to the Provider interface for self-hosted,
// OpenAI-compatible chat endpoints.
type HTTPProvider struct {
	Endpoint    string
	APIKey      string
	Temperature float64
}

func (p HTTPProvider) Chat(ctx context.Context, msgs []Message, maxTokens int, model string) (Completion, error) {
	return CallLLM(ctx, p.Endpoint, p.APIKey, model, msgs, maxTokens, p.Temperature)
}

// GetEndpointModels returns a list of available models from the API endpoint.
func GetEndpointModels(ctx context.Context, endpoint, apiKey string) ([]string, error) {
	client := &http.Client{}

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", apiKey))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err != nil {
			return nil, fmt.Errorf("error parsing error response: %w (status: %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("API error: %s", errResp.Error.Message)
	}

	var models []string
	if err := json.Unmarshal(respBody, &models); err != nil {
		return nil, fmt.Errorf("error parsing models response: %w", err)
	}

	return models, nil
}
