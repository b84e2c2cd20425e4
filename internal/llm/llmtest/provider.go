// Package llmtest provides a scriptable Provider for tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/akolanti/ChatAnalyzer/internal/llm"
)

// Provider records every request and answers through OnAnalyze. With no
// OnAnalyze it echoes "analysis of: " plus the material.
type Provider struct {
	NameValue  string
	ModelValue string
	Vision     bool
	OnAnalyze  func(ctx context.Context, call int, req llm.Request) (string, error)

	mu       sync.Mutex
	requests []llm.Request
}

func (p *Provider) Name() string {
	if p.NameValue == "" {
		return "mock"
	}
	return p.NameValue
}

func (p *Provider) Model() string {
	if p.ModelValue == "" {
		return "mock-1"
	}
	return p.ModelValue
}

func (p *Provider) Metered() bool        { return true }
func (p *Provider) SupportsVision() bool { return p.Vision }

func (p *Provider) Analyze(ctx context.Context, req llm.Request) (string, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	call := len(p.requests)
	p.mu.Unlock()

	if p.OnAnalyze != nil {
		return p.OnAnalyze(ctx, call, req)
	}
	return "analysis of: " + req.Text, nil
}

func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func (p *Provider) Requests() []llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.Request(nil), p.requests...)
}

func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = nil
}
