package cassandra

import (
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"peerpractice-backend/internal/domain"
	"peerpractice-backend/pkg/constants"
)

// EventRepository appends signaling lifecycle events to Cassandra.
// Partitioned by (user_id, bucket) with a month bucket so one user's
// history never grows a partition unbounded.
type EventRepository struct {
	session *gocql.Session
}

// NewEventRepository creates a new EventRepository
func NewEventRepository(session *gocql.Session) *EventRepository {
	return &EventRepository{session: session}
}

// Append inserts a signaling event
func (r *EventRepository) Append(event *domain.SignalingEvent) error {
	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	bucket := domain.EventBucket(event.CreatedAt)

	query := `
		INSERT INTO signaling_events (
			user_id, bucket, event_id, event_type, peer_id,
			request_id, session_id, detail, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		USING TTL ?
	`

	err := r.session.Query(query,
		event.UserID,
		bucket,
		event.EventID,
		event.EventType,
		event.PeerID,
		event.RequestID,
		event.SessionID,
		event.Detail,
		event.CreatedAt,
		int(constants.EventLogTTL.Seconds()),
	).Exec()

	if err != nil {
		return fmt.Errorf("failed to append signaling event: %w", err)
	}

	return nil
}

// ListForUser retrieves a user's events from one month bucket, newest first
func (r *EventRepository) ListForUser(userID uuid.UUID, bucket int, limit int) ([]*domain.SignalingEvent, error) {
	query := `
		SELECT user_id, event_id, event_type, peer_id,
		       request_id, session_id, detail, created_at
		FROM signaling_events
		WHERE user_id = ? AND bucket = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	iter := r.session.Query(query, userID, bucket, limit).Iter()

	var events []*domain.SignalingEvent

	for {
		event := &domain.SignalingEvent{}
		if !iter.Scan(
			&event.UserID,
			&event.EventID,
			&event.EventType,
			&event.PeerID,
			&event.RequestID,
			&event.SessionID,
			&event.Detail,
			&event.CreatedAt,
		) {
			break
		}
		events = append(events, event)
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to fetch signaling events: %w", err)
	}

	return events, nil
}

// ListRecentForUser retrieves the user's events from the current and
// previous month buckets
func (r *EventRepository) ListRecentForUser(userID uuid.UUID, limit int) ([]*domain.SignalingEvent, error) {
	now := time.Now().UTC()
	buckets := []int{
		domain.EventBucket(now),
		domain.EventBucket(now.AddDate(0, -1, 0)),
	}

	var all []*domain.SignalingEvent
	for _, bucket := range buckets {
		events, err := r.ListForUser(userID, bucket, limit-len(all))
		if err != nil {
			return nil, err
		}
		all = append(all, events...)

		if len(all) >= limit {
			break
		}
	}

	return all, nil
}
