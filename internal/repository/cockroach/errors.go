package cockroach

import "errors"

// Sentinel errors surfaced by the repositories; callers branch on these
// with errors.Is
var (
	// ErrNotFound is returned when the requested row does not exist
	ErrNotFound = errors.New("not found")

	// ErrRequestNotPending is returned when a status-guarded update loses
	// the race: the call request already left the pending state
	ErrRequestNotPending = errors.New("call request is not pending")

	// ErrSessionNotActive is returned when ending a session that already
	// reached a terminal status
	ErrSessionNotActive = errors.New("call session is not active")
)
