package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/signals/internal/execute"
	"github.com/sells-group/signals/internal/extract"
	"github.com/sells-group/signals/internal/llm"
	"github.com/sells-group/signals/internal/resilience"
	"github.com/sells-group/signals/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	return store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
}

// buildRunner wires the extraction chain and execution runner from config.
// The primary and fallback models share one rate limiter so a fallback
// attempt still counts against the same API budget.
func buildRunner(st store.Store) (*execute.Runner, error) {
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("anthropic API key is required (SIGNALS_ANTHROPIC_KEY)")
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.LLM.RatePerSecond), cfg.LLM.RateBurst)

	providers := []llm.Provider{
		llm.NewAnthropic(cfg.Anthropic.Key, cfg.Anthropic.Model, limiter),
	}
	if cfg.Anthropic.FallbackModel != "" && cfg.Anthropic.FallbackModel != cfg.Anthropic.Model {
		providers = append(providers, llm.NewAnthropic(cfg.Anthropic.Key, cfg.Anthropic.FallbackModel, limiter))
	}

	retry := resilience.DefaultRetryConfig()
	if cfg.LLM.MaxRetries > 0 {
		retry.MaxAttempts = cfg.LLM.MaxRetries
	}
	chain := llm.NewChain(retry, providers...)

	extractor, err := extract.New(chain, st, time.Duration(cfg.LLM.TimeoutSecs)*time.Second, cfg.Anthropic.MaxTokens)
	if err != nil {
		return nil, eris.Wrap(err, "build extractor")
	}

	runner, err := execute.NewRunner(st, extractor, cfg.Pipeline.ConfidenceThreshold, cfg.Gates)
	if err != nil {
		return nil, eris.Wrap(err, "build runner")
	}
	return runner, nil
}
