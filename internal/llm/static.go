package llm

import "context"

// StaticProvider returns a fixed response. Used by tests and offline runs.
type StaticProvider struct {
	ProviderName string
	ModelName    string
	Content      string
	Err          error
	Unavailable  bool
	Calls        int
}

func (p *StaticProvider) Name() string {
	if p.ProviderName == "" {
		return "static"
	}
	return p.ProviderName
}

func (p *StaticProvider) Available() bool {
	return !p.Unavailable
}

func (p *StaticProvider) Run(ctx context.Context, req Request) (*Response, error) {
	p.Calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.Err != nil {
		return nil, p.Err
	}
	model := p.ModelName
	if model == "" {
		model = "static-model"
	}
	return &Response{
		Content:  p.Content,
		Provider: p.Name(),
		Model:    model,
		LogID:    "static-log",
	}, nil
}
