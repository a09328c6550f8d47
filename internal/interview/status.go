package interview

// Status is the derived lifecycle state of an interview session. It is never
// persisted; it is recomputed from the transcript on every read, so it cannot
// drift from the turns that define it.
type Status string

const (
	// StatusUninitiated means no turn exists for the identity.
	StatusUninitiated Status = "uninitiated"

	// StatusStarted means turns exist but none completed the session.
	StatusStarted Status = "started"

	// StatusFinished means at least one turn completed the session.
	// Absent an explicit delete, a finished session never reverts.
	StatusFinished Status = "finished"
)

// StatusOf derives the session status from an already-loaded transcript.
func StatusOf(turns []Turn) Status {
	if len(turns) == 0 {
		return StatusUninitiated
	}
	for _, t := range turns {
		if t.CompletesSession {
			return StatusFinished
		}
	}
	return StatusStarted
}
