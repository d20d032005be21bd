package cockroach

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"peerpractice-backend/internal/domain"
	"peerpractice-backend/pkg/constants"
)

// CallSessionRepository handles the durable call session ledger
type CallSessionRepository struct {
	pool *pgxpool.Pool
}

// NewCallSessionRepository creates a new call session repository
func NewCallSessionRepository(pool *pgxpool.Pool) *CallSessionRepository {
	return &CallSessionRepository{pool: pool}
}

// Create persists a new active session promoted from an accepted request.
// Both participants count as joined at creation: acceptance is the moment
// the call starts from the ledger's point of view.
func (r *CallSessionRepository) Create(ctx context.Context, request *domain.CallRequest) (*domain.CallSession, error) {
	query := `
		INSERT INTO call_sessions (
			session_id, request_id, participant1_id, participant2_id,
			module_id, exercise_index, duration, status, started_at,
			participant1_joined, participant2_joined
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), true, true)
		RETURNING started_at
	`

	session := &domain.CallSession{
		SessionID:          uuid.New(),
		RequestID:          request.RequestID,
		Participant1ID:     request.RequesterID,
		Participant2ID:     request.ReceiverID,
		ModuleID:           request.ModuleID,
		ExerciseIndex:      request.ExerciseIndex,
		Duration:           request.Duration,
		Status:             constants.SessionStatusActive,
		Participant1Joined: true,
		Participant2Joined: true,
	}

	err := r.pool.QueryRow(ctx, query,
		session.SessionID,
		session.RequestID,
		session.Participant1ID,
		session.Participant2ID,
		session.ModuleID,
		session.ExerciseIndex,
		session.Duration,
		session.Status,
	).Scan(&session.StartedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to create call session: %w", err)
	}

	return session, nil
}

// GetByID retrieves a call session by ID
func (r *CallSessionRepository) GetByID(ctx context.Context, sessionID uuid.UUID) (*domain.CallSession, error) {
	query := `
		SELECT session_id, request_id, participant1_id, participant2_id,
		       module_id, exercise_index, duration, status, started_at,
		       ended_at, participant1_joined, participant2_joined, actual_duration
		FROM call_sessions
		WHERE session_id = $1
	`

	session := &domain.CallSession{}
	err := r.pool.QueryRow(ctx, query, sessionID).Scan(
		&session.SessionID,
		&session.RequestID,
		&session.Participant1ID,
		&session.Participant2ID,
		&session.ModuleID,
		&session.ExerciseIndex,
		&session.Duration,
		&session.Status,
		&session.StartedAt,
		&session.EndedAt,
		&session.Participant1Joined,
		&session.Participant2Joined,
		&session.ActualDuration,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get call session: %w", err)
	}

	return session, nil
}

// End moves an active session to the given terminal status and records the
// actual duration. Status-guarded: only the first ender wins, so a
// transport close racing an explicit disconnect settles on one terminal
// state.
func (r *CallSessionRepository) End(ctx context.Context, sessionID uuid.UUID, status string) (*domain.CallSession, error) {
	query := `
		UPDATE call_sessions
		SET status = $2,
		    ended_at = NOW(),
		    actual_duration = EXTRACT(EPOCH FROM (NOW() - started_at))::INT
		WHERE session_id = $1 AND status = 'active'
		RETURNING session_id, request_id, participant1_id, participant2_id,
		          module_id, exercise_index, duration, status, started_at,
		          ended_at, participant1_joined, participant2_joined, actual_duration
	`

	session := &domain.CallSession{}
	err := r.pool.QueryRow(ctx, query, sessionID, status).Scan(
		&session.SessionID,
		&session.RequestID,
		&session.Participant1ID,
		&session.Participant2ID,
		&session.ModuleID,
		&session.ExerciseIndex,
		&session.Duration,
		&session.Status,
		&session.StartedAt,
		&session.EndedAt,
		&session.Participant1Joined,
		&session.Participant2Joined,
		&session.ActualDuration,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either the row does not exist or it already ended
			if _, getErr := r.GetByID(ctx, sessionID); getErr != nil {
				return nil, getErr
			}
			return nil, ErrSessionNotActive
		}
		return nil, fmt.Errorf("failed to end call session: %w", err)
	}

	return session, nil
}

// ListActiveForUser returns the user's active sessions, newest first
func (r *CallSessionRepository) ListActiveForUser(ctx context.Context, userID uuid.UUID) ([]*domain.CallSession, error) {
	query := `
		SELECT session_id, request_id, participant1_id, participant2_id,
		       module_id, exercise_index, duration, status, started_at,
		       ended_at, participant1_joined, participant2_joined, actual_duration
		FROM call_sessions
		WHERE status = 'active' AND (participant1_id = $1 OR participant2_id = $1)
		ORDER BY started_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active call sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*domain.CallSession
	for rows.Next() {
		session := &domain.CallSession{}
		err := rows.Scan(
			&session.SessionID,
			&session.RequestID,
			&session.Participant1ID,
			&session.Participant2ID,
			&session.ModuleID,
			&session.ExerciseIndex,
			&session.Duration,
			&session.Status,
			&session.StartedAt,
			&session.EndedAt,
			&session.Participant1Joined,
			&session.Participant2Joined,
			&session.ActualDuration,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan call session: %w", err)
		}
		sessions = append(sessions, session)
	}

	return sessions, nil
}
