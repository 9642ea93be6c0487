// Package llmcaller wires the Credential Pool (C2) and LLM Gateway (C3)
// together behind the chain.Caller interface C4 (and C8's dialog fan-out)
// depend on: acquire a permit, issue the call, release the permit with
// actual usage, and quarantine the credential on a CredentialError.
package llmcaller

import (
	"context"
	"time"

	"voxpersona/internal/analytics"
	"voxpersona/internal/apperr"
	"voxpersona/internal/cache"
	"voxpersona/internal/credentials"
	"voxpersona/internal/llm"
	"voxpersona/internal/llmgateway"
)

// Caller adapts a Pool+Gateway pair to chain.Caller (and any other single-
// message-in, single-text-out call site, e.g. the Dialog Answerer).
type Caller struct {
	Pool      *credentials.Pool
	Gateway   *llmgateway.Gateway
	Model     string
	MaxTokens int
	Sink      *analytics.Sink // optional usage-analytics sink; nil drops
	Cache     *cache.Cache    // optional token-count memoizer; nil disables
}

// Call acquires a credential, issues a single-user-message completion, and
// releases the credential with the observed usage. If the credential
// errors with CredentialError, it is quarantined for the remainder of the
// process (spec.md §4.3: "there is no automatic rotation").
//
// Once a permit is granted, the completion call itself runs with
// cancellation stripped from ctx (context.WithoutCancel): spec.md §4.8
// requires in-flight deep-search stages to complete even if the caller
// cancels, "to keep budget accounting honest". Acquire itself still fully
// honors ctx, so a cancelled caller's *queued* (not yet granted) stages
// withdraw without consuming budget, per §4.2's cancellation contract.
func (c *Caller) Call(ctx context.Context, stageText string) (string, error) {
	msgs := []llm.Message{{Role: "user", Content: stageText}}
	estimated := c.estimateTokens(ctx, msgs)

	permit, err := c.Pool.Acquire(ctx, estimated)
	if err != nil {
		return "", err
	}

	callCtx := context.WithoutCancel(ctx)
	start := time.Now()
	comp, callErr := c.Gateway.Complete(callCtx, "", msgs, c.MaxTokens, permit, c.Model)
	latency := time.Since(start)

	status := credentials.StatusOK
	actual := estimated
	if callErr != nil {
		status = credentials.StatusError
		if apperr.Is(callErr, apperr.CredentialError) {
			c.Pool.Quarantine(permit.ID)
		}
	} else if comp.Usage.TotalTokens > 0 {
		actual = comp.Usage.TotalTokens
	}
	permit.Release(actual, status)

	if c.Sink != nil {
		c.Sink.Record(context.Background(), analytics.UsageRow{
			CredentialID:     permit.ID,
			Model:            c.Model,
			PromptTokens:     comp.Usage.PromptTokens,
			CompletionTokens: comp.Usage.CompletionTokens,
			LatencyMS:        latency.Milliseconds(),
			Status:           statusLabel(callErr),
		})
	}

	if callErr != nil {
		return "", callErr
	}
	if c.Cache != nil {
		c.Cache.SetTokenCount(context.Background(), c.Model, stageText, comp.Usage.PromptTokens)
	}
	return comp.Content, nil
}

func (c *Caller) estimateTokens(ctx context.Context, msgs []llm.Message) int {
	if c.Cache != nil && len(msgs) == 1 {
		if n, ok := c.Cache.TokenCount(ctx, c.Model, msgs[0].Content); ok {
			return n + 10
		}
	}
	return llmgateway.EstimateTokens("", msgs)
}

func statusLabel(err error) string {
	if err == nil {
		return "ok"
	}
	switch apperr.KindOf(err) {
	case apperr.RateLimited:
		return "rate_limited"
	case apperr.Overloaded:
		return "overloaded"
	case apperr.CredentialError:
		return "credential_error"
	default:
		return "unavailable"
	}
}
