// Package llmgateway implements the LLM Gateway (C3): it issues a single
// chat/completion call via a chosen credential, retrying transient failures
// with bounded exponential backoff, and counts tokens for credential-budget
// accounting.
package llmgateway

import (
	"context"
	"time"

	"voxpersona/internal/apperr"
	"voxpersona/internal/credentials"
	"voxpersona/internal/llm"
)

// ProviderResolver returns the llm.Provider a credential's secret should be
// routed through. VoxPersona's credentials are all against the same logical
// model family, so most deployments return a single shared Provider
// regardless of credential; the resolver exists so tests and multi-vendor
// deployments can route per credential ID.
type ProviderResolver func(credentialID string) llm.Provider

// Gateway issues Complete calls against a resolved Provider, applying the
// bounded retry policy spec.md §4.3 describes.
type Gateway struct {
	resolve ProviderResolver
	now     func() time.Time
	sleep   func(context.Context, time.Duration) error
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithClock overrides the wall clock, for deterministic retry-bound tests.
func WithClock(now func() time.Time, sleep func(context.Context, time.Duration) error) Option {
	return func(g *Gateway) {
		g.now = now
		g.sleep = sleep
	}
}

// New constructs a Gateway. resolve must return a non-nil Provider for
// every credential ID the pool can hand out.
func New(resolve ProviderResolver, opts ...Option) *Gateway {
	g := &Gateway{
		resolve: resolve,
		now:     time.Now,
		sleep:   defaultSleep,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func defaultSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 16 * time.Second
	maxTotalWait   = 31 * time.Second
)

// Complete serialises system_prompt+messages to the provider's chat format
// and issues the call via the permit's credential, retrying on RateLimited
// and Overloaded with backoff starting at 1s and doubling to 16s, bounded
// so the sum of backoffs never exceeds 31s. CredentialError is surfaced
// immediately, without retry, so the caller can quarantine the credential.
func (g *Gateway) Complete(ctx context.Context, systemPrompt string, userMessages []llm.Message, maxTokens int, permit *credentials.Permit, model string) (llm.Completion, error) {
	provider := g.resolve(permit.ID)
	if provider == nil {
		return llm.Completion{}, apperr.New(apperr.Internal, "no provider resolved for credential "+permit.ID)
	}

	msgs := make([]llm.Message, 0, len(userMessages)+1)
	if systemPrompt != "" {
		msgs = append(msgs, llm.Message{Role: "system", Content: systemPrompt})
	}
	msgs = append(msgs, userMessages...)

	backoff := initialBackoff
	var totalWait time.Duration

	for {
		comp, err := provider.Chat(ctx, msgs, maxTokens, model)
		if err == nil {
			return comp, nil
		}

		kind := classify(err)
		if kind == apperr.CredentialError {
			return llm.Completion{}, apperr.Wrap(apperr.CredentialError, "credential rejected by provider", err)
		}
		if !isTransient(kind) {
			return llm.Completion{}, apperr.Wrap(kind, "llm gateway call failed", err)
		}

		if totalWait+backoff > maxTotalWait {
			return llm.Completion{}, apperr.Wrap(apperr.Unavailable, "llm gateway retries exhausted", err)
		}

		if sleepErr := g.sleep(ctx, backoff); sleepErr != nil {
			return llm.Completion{}, apperr.Wrap(apperr.Timeout, "llm gateway retry cancelled", sleepErr)
		}
		totalWait += backoff
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// EstimateTokens returns the token estimate used for credential-budget
// accounting: prompt_tokens + a 10-token safety margin, per spec.md §4.3.
func EstimateTokens(systemPrompt string, userMessages []llm.Message) int {
	msgs := make([]llm.Message, 0, len(userMessages)+1)
	if systemPrompt != "" {
		msgs = append(msgs, llm.Message{Role: "system", Content: systemPrompt})
	}
	msgs = append(msgs, userMessages...)
	return llm.EstimateTokensForMessages(msgs) + 10
}
