package domain

import (
	"time"

	"github.com/google/uuid"
)

// ExerciseTypeCall is the only exercise kind brokered over signaling;
// other exercise kinds never produce call requests
const ExerciseTypeCall = "call"

// CallRequest is a durable, time-bounded invitation from one user to
// another to start a timed peer-practice call.
// Status transitions only pending -> {accepted, rejected, expired}; an
// accepted request later reaches completed when its session ends.
type CallRequest struct {
	RequestID     uuid.UUID  `json:"request_id" db:"request_id"`
	RequesterID   uuid.UUID  `json:"requester_id" db:"requester_id"`
	ReceiverID    uuid.UUID  `json:"receiver_id" db:"receiver_id"`
	ModuleID      uuid.UUID  `json:"module_id" db:"module_id"`
	ExerciseIndex int        `json:"exercise_index" db:"exercise_index"`
	ExerciseType  string     `json:"exercise_type" db:"exercise_type"`
	Duration      int        `json:"duration" db:"duration"` // minutes
	Message       *string    `json:"message,omitempty" db:"message"`
	Status        string     `json:"status" db:"status"` // pending, accepted, rejected, expired, completed
	RequestedAt   time.Time  `json:"requested_at" db:"requested_at"`
	RespondedAt   *time.Time `json:"responded_at,omitempty" db:"responded_at"`
	ExpiresAt     time.Time  `json:"expires_at" db:"expires_at"`
}

// IsExpired reports whether the request's answer window has passed
func (r *CallRequest) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// CallRequestCreate carries the fields needed to create a call request
type CallRequestCreate struct {
	RequesterID   uuid.UUID
	ReceiverID    uuid.UUID
	ModuleID      uuid.UUID
	ExerciseIndex int
	Duration      int
	Message       *string
}

// CallSession is the durable record of an accepted call request.
// Exactly one session exists per accepted request; status starts active
// and reaches a terminal state (completed, disconnected) exactly once.
type CallSession struct {
	SessionID          uuid.UUID  `json:"session_id" db:"session_id"`
	RequestID          uuid.UUID  `json:"request_id" db:"request_id"`
	Participant1ID     uuid.UUID  `json:"participant1_id" db:"participant1_id"`
	Participant2ID     uuid.UUID  `json:"participant2_id" db:"participant2_id"`
	ModuleID           uuid.UUID  `json:"module_id" db:"module_id"`
	ExerciseIndex      int        `json:"exercise_index" db:"exercise_index"`
	Duration           int        `json:"duration" db:"duration"` // planned minutes
	Status             string     `json:"status" db:"status"`     // active, completed, disconnected
	StartedAt          time.Time  `json:"started_at" db:"started_at"`
	EndedAt            *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	Participant1Joined bool       `json:"participant1_joined" db:"participant1_joined"`
	Participant2Joined bool       `json:"participant2_joined" db:"participant2_joined"`
	ActualDuration     *int       `json:"actual_duration,omitempty" db:"actual_duration"` // seconds
}

// OtherParticipant returns the peer of the given participant, or
// uuid.Nil if the user is not part of the session
func (s *CallSession) OtherParticipant(userID uuid.UUID) uuid.UUID {
	switch userID {
	case s.Participant1ID:
		return s.Participant2ID
	case s.Participant2ID:
		return s.Participant1ID
	default:
		return uuid.Nil
	}
}

// HasParticipant reports whether the user belongs to the session
func (s *CallSession) HasParticipant(userID uuid.UUID) bool {
	return userID == s.Participant1ID || userID == s.Participant2ID
}
