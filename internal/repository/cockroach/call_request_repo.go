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

// CallRequestRepository handles the durable call invitation ledger.
// Pending-exit transitions are status-guarded so racing responders cannot
// both win.
type CallRequestRepository struct {
	pool *pgxpool.Pool
}

// NewCallRequestRepository creates a new call request repository
func NewCallRequestRepository(pool *pgxpool.Pool) *CallRequestRepository {
	return &CallRequestRepository{pool: pool}
}

// Create persists a new pending call request with a 2-minute answer window
func (r *CallRequestRepository) Create(ctx context.Context, create *domain.CallRequestCreate) (*domain.CallRequest, error) {
	query := `
		INSERT INTO call_requests (
			request_id, requester_id, receiver_id, module_id, exercise_index,
			exercise_type, duration, message, status, requested_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW() + $10::INTERVAL)
		RETURNING requested_at, expires_at
	`

	request := &domain.CallRequest{
		RequestID:     uuid.New(),
		RequesterID:   create.RequesterID,
		ReceiverID:    create.ReceiverID,
		ModuleID:      create.ModuleID,
		ExerciseIndex: create.ExerciseIndex,
		ExerciseType:  domain.ExerciseTypeCall,
		Duration:      create.Duration,
		Message:       create.Message,
		Status:        constants.RequestStatusPending,
	}

	err := r.pool.QueryRow(ctx, query,
		request.RequestID,
		request.RequesterID,
		request.ReceiverID,
		request.ModuleID,
		request.ExerciseIndex,
		request.ExerciseType,
		request.Duration,
		request.Message,
		request.Status,
		constants.CallRequestExpiry.String(),
	).Scan(&request.RequestedAt, &request.ExpiresAt)

	if err != nil {
		return nil, fmt.Errorf("failed to create call request: %w", err)
	}

	return request, nil
}

// GetByID retrieves a call request by ID
func (r *CallRequestRepository) GetByID(ctx context.Context, requestID uuid.UUID) (*domain.CallRequest, error) {
	query := `
		SELECT request_id, requester_id, receiver_id, module_id, exercise_index,
		       exercise_type, duration, message, status, requested_at,
		       responded_at, expires_at
		FROM call_requests
		WHERE request_id = $1
	`

	request := &domain.CallRequest{}
	err := r.pool.QueryRow(ctx, query, requestID).Scan(
		&request.RequestID,
		&request.RequesterID,
		&request.ReceiverID,
		&request.ModuleID,
		&request.ExerciseIndex,
		&request.ExerciseType,
		&request.Duration,
		&request.Message,
		&request.Status,
		&request.RequestedAt,
		&request.RespondedAt,
		&request.ExpiresAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get call request: %w", err)
	}

	return request, nil
}

// ResolvePending transitions a pending request to accepted, rejected or
// expired. The WHERE status = 'pending' guard makes this a compare-and-swap:
// exactly one racing caller observes success.
func (r *CallRequestRepository) ResolvePending(ctx context.Context, requestID uuid.UUID, status string) error {
	query := `
		UPDATE call_requests
		SET status = $2, responded_at = NOW()
		WHERE request_id = $1 AND status = 'pending'
	`

	tag, err := r.pool.Exec(ctx, query, requestID, status)
	if err != nil {
		return fmt.Errorf("failed to resolve call request: %w", err)
	}

	if tag.RowsAffected() == 0 {
		// Either the row does not exist or someone else resolved it first
		if _, getErr := r.GetByID(ctx, requestID); getErr != nil {
			return getErr
		}
		return ErrRequestNotPending
	}

	return nil
}

// MarkCompleted moves an accepted request to its terminal bookkeeping
// state once the derived session ends
func (r *CallRequestRepository) MarkCompleted(ctx context.Context, requestID uuid.UUID) error {
	query := `
		UPDATE call_requests
		SET status = $2
		WHERE request_id = $1 AND status = $3
	`

	_, err := r.pool.Exec(ctx, query, requestID,
		constants.RequestStatusCompleted, constants.RequestStatusAccepted)
	if err != nil {
		return fmt.Errorf("failed to mark call request completed: %w", err)
	}

	return nil
}

// ListForUser returns all requests the user sent or received, newest first
func (r *CallRequestRepository) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.CallRequest, error) {
	query := `
		SELECT request_id, requester_id, receiver_id, module_id, exercise_index,
		       exercise_type, duration, message, status, requested_at,
		       responded_at, expires_at
		FROM call_requests
		WHERE requester_id = $1 OR receiver_id = $1
		ORDER BY requested_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list call requests: %w", err)
	}
	defer rows.Close()

	var requests []*domain.CallRequest
	for rows.Next() {
		request := &domain.CallRequest{}
		err := rows.Scan(
			&request.RequestID,
			&request.RequesterID,
			&request.ReceiverID,
			&request.ModuleID,
			&request.ExerciseIndex,
			&request.ExerciseType,
			&request.Duration,
			&request.Message,
			&request.Status,
			&request.RequestedAt,
			&request.RespondedAt,
			&request.ExpiresAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan call request: %w", err)
		}
		requests = append(requests, request)
	}

	return requests, nil
}

// ExpireOverdue CASes every overdue pending request to expired and returns
// the expired rows so the caller can notify the requesters
func (r *CallRequestRepository) ExpireOverdue(ctx context.Context) ([]*domain.CallRequest, error) {
	query := `
		UPDATE call_requests
		SET status = $1, responded_at = NOW()
		WHERE status = 'pending' AND expires_at < NOW()
		RETURNING request_id, requester_id, receiver_id, module_id, exercise_index,
		          exercise_type, duration, message, status, requested_at,
		          responded_at, expires_at
	`

	rows, err := r.pool.Query(ctx, query, constants.RequestStatusExpired)
	if err != nil {
		return nil, fmt.Errorf("failed to expire overdue call requests: %w", err)
	}
	defer rows.Close()

	var requests []*domain.CallRequest
	for rows.Next() {
		request := &domain.CallRequest{}
		err := rows.Scan(
			&request.RequestID,
			&request.RequesterID,
			&request.ReceiverID,
			&request.ModuleID,
			&request.ExerciseIndex,
			&request.ExerciseType,
			&request.Duration,
			&request.Message,
			&request.Status,
			&request.RequestedAt,
			&request.RespondedAt,
			&request.ExpiresAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expired call request: %w", err)
		}
		requests = append(requests, request)
	}

	return requests, nil
}
