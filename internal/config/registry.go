package config

import (
	"errors"
	"fmt"
	"sync"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/hireorbit/interviewd/pkg/provider/llm"
	"github.com/hireorbit/interviewd/pkg/provider/llm/anyllm"
	llmopenai "github.com/hireorbit/interviewd/pkg/provider/llm/openai"
	"github.com/hireorbit/interviewd/pkg/provider/stt"
	sttopenai "github.com/hireorbit/interviewd/pkg/provider/stt/openai"
	"github.com/hireorbit/interviewd/pkg/provider/stt/whisper"
	"github.com/hireorbit/interviewd/pkg/provider/tts"
	"github.com/hireorbit/interviewd/pkg/provider/tts/elevenlabs"
)

// ErrProviderNotRegistered is returned when a Create* call names a provider
// that has no registered factory.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// LLMFactory constructs a completion provider from its configuration entry.
type LLMFactory func(entry ProviderEntry) (llm.Provider, error)

// STTFactory constructs a transcription provider from its configuration entry.
type STTFactory func(entry ProviderEntry) (stt.Provider, error)

// TTSFactory constructs a synthesis provider from its configuration entry.
type TTSFactory func(entry ProviderEntry) (tts.Provider, error)

// Registry maps provider names to constructor functions. It allows embedding
// applications to plug in their own provider implementations without touching
// the wiring in cmd/interviewd.
//
// All methods are safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	llm map[string]LLMFactory
	stt map[string]STTFactory
	tts map[string]TTSFactory
}

// NewRegistry returns an empty registry. Most callers want [DefaultRegistry]
// instead, which comes preloaded with the built-in providers.
func NewRegistry() *Registry {
	return &Registry{
		llm: make(map[string]LLMFactory),
		stt: make(map[string]STTFactory),
		tts: make(map[string]TTSFactory),
	}
}

// RegisterLLM registers a completion provider factory under name,
// replacing any previous registration.
func (r *Registry) RegisterLLM(name string, f LLMFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = f
}

// RegisterSTT registers a transcription provider factory under name,
// replacing any previous registration.
func (r *Registry) RegisterSTT(name string, f STTFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = f
}

// RegisterTTS registers a synthesis provider factory under name,
// replacing any previous registration.
func (r *Registry) RegisterTTS(name string, f TTSFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = f
}

// CreateLLM builds the completion provider described by entry.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	f, ok := r.llm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, entry.Name)
	}
	return f(entry)
}

// CreateSTT builds the transcription provider described by entry.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	f, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, entry.Name)
	}
	return f(entry)
}

// CreateTTS builds the synthesis provider described by entry.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	f, ok := r.tts[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tts/%q", ErrProviderNotRegistered, entry.Name)
	}
	return f(entry)
}

// DefaultRegistry returns a registry preloaded with every built-in provider.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.RegisterLLM("openai", func(e ProviderEntry) (llm.Provider, error) {
		var opts []llmopenai.Option
		if e.BaseURL != "" {
			opts = append(opts, llmopenai.WithBaseURL(e.BaseURL))
		}
		return llmopenai.New(e.APIKey, e.Model, opts...)
	})
	for _, name := range []string{"anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"} {
		r.RegisterLLM(name, func(e ProviderEntry) (llm.Provider, error) {
			return anyllm.New(e.Name, e.Model, anyllmOptions(e)...)
		})
	}

	r.RegisterSTT("whisper", func(e ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if e.Model != "" {
			opts = append(opts, whisper.WithModel(e.Model))
		}
		if lang := e.StringOption("language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(e.BaseURL, opts...)
	})
	r.RegisterSTT("openai", func(e ProviderEntry) (stt.Provider, error) {
		var opts []sttopenai.Option
		if e.BaseURL != "" {
			opts = append(opts, sttopenai.WithBaseURL(e.BaseURL))
		}
		if e.Model != "" {
			opts = append(opts, sttopenai.WithModel(e.Model))
		}
		return sttopenai.New(e.APIKey, opts...)
	})

	r.RegisterTTS("elevenlabs", func(e ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if e.Model != "" {
			opts = append(opts, elevenlabs.WithModel(e.Model))
		}
		if e.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(e.BaseURL))
		}
		if format := e.StringOption("output_format"); format != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(format))
		}
		return elevenlabs.New(e.APIKey, e.StringOption("voice_id"), opts...)
	})

	return r
}

// anyllmOptions maps the generic provider entry fields onto any-llm-go options.
func anyllmOptions(e ProviderEntry) []anyllmlib.Option {
	var opts []anyllmlib.Option
	if e.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(e.APIKey))
	}
	if e.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(e.BaseURL))
	}
	return opts
}
