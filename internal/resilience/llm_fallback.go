package resilience

import (
	"context"

	"github.com/hireorbit/interviewd/pkg/provider/llm"
)

// LLMFallback implements [llm.Provider] with automatic failover across
// completion backends. Each backend has its own circuit breaker.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cbCfg CircuitBreakerConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cbCfg)}
}

// AddFallback registers an additional completion provider as a fallback.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Complete sends the request to the first healthy backend. The interview
// round-trip sees a single provider; failover happens underneath.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}
