// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service (e.g., the OpenAI audio API or
// a local whisper.cpp server) and exposes a uniform batch interface: the
// caller hands over a complete audio recording and receives the transcribed
// text. Buffering of streamed fragments into a complete recording is the
// caller's concern.
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// Provider is the abstraction over any STT backend.
//
// Implementations must be safe for concurrent use; multiple transcriptions
// may run in parallel (one per interview room).
type Provider interface {
	// Transcribe submits a complete audio recording and returns the
	// recognised text. The audio must be in a container format the backend
	// accepts (WAV or WebM for the bundled implementations).
	//
	// Returns an error if the backend cannot be reached, rejects the audio,
	// or ctx is cancelled before the result arrives.
	Transcribe(ctx context.Context, audio []byte) (string, error)
}
