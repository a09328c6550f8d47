package session

import (
	"errors"
	"fmt"
)

// Sentinel errors for session lifecycle violations. Callers match these with
// [errors.Is].
var (
	// ErrSessionExists is returned by Start when the (session key, name,
	// email) triple already has transcript turns.
	ErrSessionExists = errors.New("session already exists")

	// ErrSessionNotFound is returned by operations that require an existing
	// transcript when the triple has none.
	ErrSessionNotFound = errors.New("session not found")

	// ErrForbidden is returned by destructive operations when the supplied
	// admin secret does not match.
	ErrForbidden = errors.New("admin secret mismatch")
)

// ValidationError reports a rejected request field. It is returned before any
// state is touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// CompletionError wraps a failure of the LLM completion provider. When it is
// returned from Reply the candidate's turn has already been persisted, so the
// request is safe to retry.
type CompletionError struct {
	Err error
}

func (e *CompletionError) Error() string { return "completion: " + e.Err.Error() }
func (e *CompletionError) Unwrap() error { return e.Err }

// TranscriptionError wraps a failure of the speech-to-text provider. Nothing
// has been appended to the transcript when it is returned.
type TranscriptionError struct {
	Err error
}

func (e *TranscriptionError) Error() string { return "transcription: " + e.Err.Error() }
func (e *TranscriptionError) Unwrap() error { return e.Err }

// SynthesisError wraps a failure of the text-to-speech provider. The textual
// reply has already been persisted when it is returned; only the audio is
// missing.
type SynthesisError struct {
	Err error
}

func (e *SynthesisError) Error() string { return "synthesis: " + e.Err.Error() }
func (e *SynthesisError) Unwrap() error { return e.Err }
