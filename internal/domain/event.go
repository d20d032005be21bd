package domain

import (
	"time"

	"github.com/google/uuid"
)

// Signaling event types recorded in the event log
const (
	EventUserConnected    = "user_connected"
	EventUserDisconnected = "user_disconnected"
	EventRequestCreated   = "request_created"
	EventRequestAccepted  = "request_accepted"
	EventRequestRejected  = "request_rejected"
	EventRequestCancelled = "request_cancelled"
	EventRequestExpired   = "request_expired"
	EventSessionStarted   = "session_started"
	EventSessionEnded     = "session_ended"
)

// SignalingEvent is one append-only entry in the Cassandra event log.
// Rows are partitioned by (user_id, bucket) where bucket is year*100+month.
type SignalingEvent struct {
	EventID   uuid.UUID  `json:"event_id"`
	UserID    uuid.UUID  `json:"user_id"`
	EventType string     `json:"event_type"`
	PeerID    *uuid.UUID `json:"peer_id,omitempty"`
	RequestID *uuid.UUID `json:"request_id,omitempty"`
	SessionID *uuid.UUID `json:"session_id,omitempty"`
	Detail    string     `json:"detail,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// EventBucket computes the month bucket for a timestamp
func EventBucket(t time.Time) int {
	return t.Year()*100 + int(t.Month())
}
