package resilience

import (
	"context"

	"github.com/hireorbit/interviewd/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] with automatic failover across
// transcription backends. Each backend has its own circuit breaker.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cbCfg CircuitBreakerConfig) *STTFallback {
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cbCfg)}
}

// AddFallback registers an additional transcription provider as a fallback.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// Transcribe runs the recording through the first healthy backend.
func (f *STTFallback) Transcribe(ctx context.Context, audio []byte) (string, error) {
	return ExecuteWithResult(f.group, func(p stt.Provider) (string, error) {
		return p.Transcribe(ctx, audio)
	})
}
