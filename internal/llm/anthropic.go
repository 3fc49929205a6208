package llm

import (
	"context"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// AnthropicProvider runs prompts against the Anthropic Messages API.
type AnthropicProvider struct {
	client  sdk.Client
	apiKey  string
	model   string
	limiter *rate.Limiter
}

// NewAnthropic creates an Anthropic-backed provider for a single model.
// The rate limiter is shared across calls to keep extraction under the
// account's request ceiling.
func NewAnthropic(apiKey, model string, limiter *rate.Limiter) *AnthropicProvider {
	return &AnthropicProvider{
		client: sdk.NewClient(
			option.WithAPIKey(apiKey),
		),
		apiKey:  apiKey,
		model:   model,
		limiter: limiter,
	}
}

func (p *AnthropicProvider) Name() string {
	return "anthropic/" + p.model
}

func (p *AnthropicProvider) Available() bool {
	return p.apiKey != "" && p.model != ""
}

func (p *AnthropicProvider) Run(ctx context.Context, req Request) (*Response, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "anthropic: rate wait")
		}
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(p.model),
		MaxTokens: req.MaxTokens,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}

	start := time.Now()
	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: create message")
	}

	var sb strings.Builder
	for _, b := range msg.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}

	return &Response{
		Content:      sb.String(),
		Provider:     p.Name(),
		Model:        string(msg.Model),
		LogID:        msg.ID,
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
		LatencyMS:    time.Since(start).Milliseconds(),
	}, nil
}
