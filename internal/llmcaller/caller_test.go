package llmcaller

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxpersona/internal/config"
	"voxpersona/internal/credentials"
	"voxpersona/internal/llm"
	"voxpersona/internal/llmgateway"
)

type echoProvider struct {
	err error
}

func (p *echoProvider) Chat(ctx context.Context, msgs []llm.Message, maxTokens int, model string) (llm.Completion, error) {
	if p.err != nil {
		return llm.Completion{}, p.err
	}
	return llm.Completion{
		Content: "echo:" + msgs[len(msgs)-1].Content,
		Usage:   llm.Usage{PromptTokens: 5, CompletionTokens: 3, TotalTokens: 8},
	}, nil
}

func newCaller(t *testing.T, provider llm.Provider) (*Caller, *credentials.Pool) {
	t.Helper()
	pool := credentials.New([]config.CredentialConfig{{ID: "c1", TPM: 1_000_000, RPM: 1_000_000}})
	gw := llmgateway.New(func(string) llm.Provider { return provider })
	return &Caller{Pool: pool, Gateway: gw, Model: "claude-sonnet-4-5", MaxTokens: 512}, pool
}

func TestCallReturnsProviderContent(t *testing.T) {
	caller, _ := newCaller(t, &echoProvider{})
	out, err := caller.Call(context.Background(), "stage text")
	require.NoError(t, err)
	assert.Equal(t, "echo:stage text", out)
}

func TestCallQuarantinesCredentialOnCredentialError(t *testing.T) {
	caller, pool := newCaller(t, &echoProvider{err: errors.New("401 authentication_error")})
	_, err := caller.Call(context.Background(), "stage text")
	require.Error(t, err)
	assert.Equal(t, 0, pool.Size())
}

func TestCallWithdrawsWhenContextCancelledBeforeAcquire(t *testing.T) {
	caller, _ := newCaller(t, &echoProvider{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := caller.Call(ctx, "stage text")
	require.Error(t, err)
}
