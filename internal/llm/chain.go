package llm

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/signals/internal/resilience"
)

// Chain tries providers in order and returns the first successful
// response. Unavailable providers are skipped; failures fall through to
// the next provider.
type Chain struct {
	providers []Provider
	retry     resilience.RetryConfig
}

// NewChain builds a provider chain. Each provider attempt is retried per
// cfg before the chain falls through.
func NewChain(retry resilience.RetryConfig, providers ...Provider) *Chain {
	return &Chain{providers: providers, retry: retry}
}

// Run executes the request against the chain. It returns an error only if
// no provider is available or every available provider failed.
func (c *Chain) Run(ctx context.Context, req Request) (*Response, error) {
	var lastErr error
	tried := 0

	for _, p := range c.providers {
		if !p.Available() {
			continue
		}
		tried++

		var resp *Response
		err := resilience.Do(ctx, c.retry, func(ctx context.Context) error {
			var runErr error
			resp, runErr = p.Run(ctx, req)
			return runErr
		})
		if err == nil {
			return resp, nil
		}

		lastErr = err
		zap.L().Warn("llm: provider failed, falling through",
			zap.String("provider", p.Name()),
			zap.Error(err),
		)

		// A dead context means timeout or cancellation, not a provider
		// fault; falling through would just fail again.
		if ctx.Err() != nil {
			break
		}
	}

	if tried == 0 {
		return nil, eris.New("llm: no providers available")
	}
	return nil, eris.Wrap(lastErr, "llm: all providers failed")
}
