package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/signals/internal/resilience"
)

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 1}
}

func TestChain_FirstProviderWins(t *testing.T) {
	first := &StaticProvider{ProviderName: "first", Content: "{}"}
	second := &StaticProvider{ProviderName: "second", Content: "{}"}

	chain := NewChain(fastRetry(), first, second)
	resp, err := chain.Run(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "first", resp.Provider)
	assert.Equal(t, 1, first.Calls)
	assert.Equal(t, 0, second.Calls)
}

func TestChain_SkipsUnavailable(t *testing.T) {
	first := &StaticProvider{ProviderName: "first", Unavailable: true}
	second := &StaticProvider{ProviderName: "second", Content: "{}"}

	chain := NewChain(fastRetry(), first, second)
	resp, err := chain.Run(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "second", resp.Provider)
	assert.Equal(t, 0, first.Calls)
}

func TestChain_FallsThroughOnFailure(t *testing.T) {
	first := &StaticProvider{ProviderName: "first", Err: errors.New("boom")}
	second := &StaticProvider{ProviderName: "second", Content: "{}"}

	chain := NewChain(fastRetry(), first, second)
	resp, err := chain.Run(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "second", resp.Provider)
	assert.Equal(t, 1, first.Calls)
}

func TestChain_NoProvidersAvailable(t *testing.T) {
	chain := NewChain(fastRetry(), &StaticProvider{Unavailable: true})
	_, err := chain.Run(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no providers available")
}

func TestChain_AllProvidersFail(t *testing.T) {
	first := &StaticProvider{ProviderName: "first", Err: errors.New("a")}
	second := &StaticProvider{ProviderName: "second", Err: errors.New("b")}

	chain := NewChain(fastRetry(), first, second)
	_, err := chain.Run(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all providers failed")
}

func TestChain_CanceledContextStopsFallthrough(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	first := &StaticProvider{ProviderName: "first"}
	second := &StaticProvider{ProviderName: "second", Content: "{}"}

	chain := NewChain(fastRetry(), first, second)
	_, err := chain.Run(ctx, Request{Prompt: "p"})
	require.Error(t, err)
	assert.Equal(t, 0, second.Calls)
}
