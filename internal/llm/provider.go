// Package llm abstracts the language-model providers used for facts
// extraction. Providers are tried in chain order; the first available
// provider that returns a response wins.
package llm

import "context"

// Request is a provider-agnostic prompt.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int64
}

// Response is a provider-agnostic completion.
type Response struct {
	Content      string
	Provider     string
	Model        string
	LogID        string
	InputTokens  int64
	OutputTokens int64
	LatencyMS    int64
}

// Provider runs one prompt against one backend.
type Provider interface {
	// Name identifies the provider in facts metadata and logs.
	Name() string

	// Available reports whether the provider is configured and usable.
	// Unavailable providers are skipped by the chain without error.
	Available() bool

	// Run executes the prompt. Blocking; honors ctx cancellation.
	Run(ctx context.Context, req Request) (*Response, error)
}
