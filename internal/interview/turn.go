// Package interview holds the core interview-session domain: the transcript
// of conversation turns, the derived session status, and the applicant
// registry projections over it.
//
// An interview session has no record of its own. It is identified entirely by
// an [Identity] — the (session key, applicant name, applicant email) triple —
// and exists exactly when at least one [Turn] carries that identity.
package interview

import (
	"strings"
	"time"
)

// DefaultClosingPhrase is the phrase that, when spoken by the system,
// marks an interview as finished. Matching is a case-insensitive
// substring check; see [IsClosing].
const DefaultClosingPhrase = "thank you for your time and insights"

// Role identifies the author of a turn.
type Role string

const (
	// RoleSystem marks turns authored by the interviewer side: the initial
	// prompt and every model-generated reply.
	RoleSystem Role = "system"

	// RoleUser marks turns authored by the candidate, whether typed or
	// transcribed from audio.
	RoleUser Role = "user"
)

// IsValid reports whether r is a recognised role.
func (r Role) IsValid() bool {
	return r == RoleSystem || r == RoleUser
}

// Identity is the compound key of one interview session: an opaque session
// key (the interview campaign / access grant) plus the candidate's name and
// email. Turns sharing an Identity form one strictly ordered transcript.
type Identity struct {
	// SessionKey is the opaque caller-supplied campaign identifier.
	SessionKey string

	// Name is the applicant's display name within the session key.
	Name string

	// Email is the applicant's email within the session key.
	Email string
}

// Turn is one persisted message of an interview transcript.
type Turn struct {
	// ID is the store-assigned surrogate key. Monotonically increasing,
	// never reused; it breaks ordering ties between equal timestamps.
	ID int64

	// Content is the text payload: human-authored, model-authored, or
	// speech-transcribed.
	Content string

	// CreatedAt is assigned by the store at insert time and is the primary
	// ordering key of the transcript.
	CreatedAt time.Time

	// Role identifies the speaker.
	Role Role

	// Identity is the session this turn belongs to.
	Identity Identity

	// CompletesSession is true when this turn closed the interview.
	// Only system turns can complete a session.
	CompletesSession bool
}

// HistoryEntry is the {role, content} projection of a turn that completion
// providers consume. It deliberately carries nothing else.
type HistoryEntry struct {
	Role    Role
	Content string
}

// Applicant is one distinct (name, email) pair under a session key,
// annotated with whether any of its turns completed the session.
type Applicant struct {
	Name  string
	Email string

	// Finished is true when the applicant has at least one completing turn.
	Finished bool
}

// IsClosing reports whether a turn with the given role and content would
// complete a session: the role must be system and content must contain
// phrase as a case-insensitive substring. A user turn never completes a
// session regardless of content.
func IsClosing(role Role, content, phrase string) bool {
	if role != RoleSystem || phrase == "" {
		return false
	}
	return strings.Contains(strings.ToLower(content), strings.ToLower(phrase))
}
