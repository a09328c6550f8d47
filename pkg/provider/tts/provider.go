// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs) and
// turns a complete text into a complete audio clip. The voice is part of the
// provider's construction-time configuration; interview deployments use one
// interviewer voice per process.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
//
// Implementations must be safe for concurrent use. Multiple synthesis
// requests may run in parallel (one per interview room).
type Provider interface {
	// Synthesize converts text into an encoded audio clip. The encoding is
	// implementation-defined (MP3 for the bundled ElevenLabs provider) and is
	// delivered to clients as an opaque blob.
	//
	// Returns an error if the backend cannot be reached, rejects the request,
	// or ctx is cancelled before the audio arrives.
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
