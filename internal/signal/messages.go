// Package signal defines the JSON wire schema spoken over the signaling
// WebSocket. Every frame is an envelope {"type": ..., ...fields}.
package signal

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"peerpractice-backend/internal/domain"
)

// Client -> server message types
const (
	TypeAuthenticate   = "authenticate"
	TypeCallRequest    = "call_request"
	TypeCallResponse   = "call_response"
	TypeCallCancel     = "call_cancel"
	TypeCallDisconnect = "call_disconnect"
	TypeHeartbeat      = "heartbeat"
)

// Server -> client message types
const (
	TypeAuthenticated       = "authenticated"
	TypeOnlineUsersUpdate   = "online_users_update"
	TypeIncomingCallRequest = "incoming_call_request"
	TypeCallRequestSent     = "call_request_sent"
	TypeCallAccepted        = "call_accepted"
	TypeCallRejected        = "call_rejected"
	TypeCallCancelled       = "call_cancelled"
	TypeCallEnded           = "call_ended"
	TypeHeartbeatAck        = "heartbeat_ack"
	TypeError               = "error"
)

// Session end reasons carried in call_ended
const (
	ReasonPeerDisconnected = "peer_disconnected"
	ReasonYouDisconnected  = "you_disconnected"
)

// Error codes carried in error replies
const (
	ErrCodeInvalidMessage   = "invalid_message"
	ErrCodeNotAuthenticated = "not_authenticated"
	ErrCodeNotFound         = "not_found"
	ErrCodeForbidden        = "forbidden"
	ErrCodeConflict         = "conflict"
	ErrCodeExpired          = "expired"
	ErrCodeInternal         = "internal_error"
)

// Envelope carries just the discriminator; payloads re-parse the full frame
type Envelope struct {
	Type string `json:"type"`
}

// ParseEnvelope extracts the message type from a raw frame
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unparsable message: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("message has no type")
	}
	return &env, nil
}

// AuthenticatePayload is the first message a client must send
type AuthenticatePayload struct {
	Token string `json:"token"`
}

// CallRequestPayload asks a peer to start a timed practice call
type CallRequestPayload struct {
	ReceiverID    uuid.UUID `json:"receiver_id"`
	ModuleID      uuid.UUID `json:"module_id"`
	ExerciseIndex int       `json:"exercise_index"`
	Duration      int       `json:"duration"` // minutes
	Message       *string   `json:"message,omitempty"`
}

// CallResponsePayload accepts or rejects a pending call request
type CallResponsePayload struct {
	RequestID uuid.UUID `json:"request_id"`
	Accepted  bool      `json:"accepted"`
}

// CallCancelPayload withdraws the sender's own pending request
type CallCancelPayload struct {
	RequestID uuid.UUID `json:"request_id"`
}

// CallDisconnectPayload ends an active session
type CallDisconnectPayload struct {
	SessionID uuid.UUID `json:"session_id"`
}

// AuthenticatedMsg confirms a successful authenticate
type AuthenticatedMsg struct {
	Type   string    `json:"type"`
	UserID uuid.UUID `json:"user_id"`
}

// NewAuthenticated builds an authenticated reply
func NewAuthenticated(userID uuid.UUID) *AuthenticatedMsg {
	return &AuthenticatedMsg{Type: TypeAuthenticated, UserID: userID}
}

// OnlineUsersUpdateMsg carries the full current online-user set
type OnlineUsersUpdateMsg struct {
	Type  string               `json:"type"`
	Users []*domain.OnlineUser `json:"users"`
}

// NewOnlineUsersUpdate builds an online_users_update push
func NewOnlineUsersUpdate(users []*domain.OnlineUser) *OnlineUsersUpdateMsg {
	if users == nil {
		users = []*domain.OnlineUser{}
	}
	return &OnlineUsersUpdateMsg{Type: TypeOnlineUsersUpdate, Users: users}
}

// IncomingCallRequestMsg notifies the receiver of a new call request
type IncomingCallRequestMsg struct {
	Type          string               `json:"type"`
	RequestID     uuid.UUID            `json:"request_id"`
	Requester     *domain.UserResponse `json:"requester"`
	ModuleID      uuid.UUID            `json:"module_id"`
	ExerciseIndex int                  `json:"exercise_index"`
	Duration      int                  `json:"duration"`
	Message       *string              `json:"message,omitempty"`
	ExpiresAt     time.Time            `json:"expires_at"`
}

// NewIncomingCallRequest builds an incoming_call_request push
func NewIncomingCallRequest(request *domain.CallRequest, requester *domain.UserResponse) *IncomingCallRequestMsg {
	return &IncomingCallRequestMsg{
		Type:          TypeIncomingCallRequest,
		RequestID:     request.RequestID,
		Requester:     requester,
		ModuleID:      request.ModuleID,
		ExerciseIndex: request.ExerciseIndex,
		Duration:      request.Duration,
		Message:       request.Message,
		ExpiresAt:     request.ExpiresAt,
	}
}

// CallRequestSentMsg acknowledges request creation to the requester
type CallRequestSentMsg struct {
	Type      string    `json:"type"`
	RequestID uuid.UUID `json:"request_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewCallRequestSent builds a call_request_sent reply
func NewCallRequestSent(request *domain.CallRequest) *CallRequestSentMsg {
	return &CallRequestSentMsg{
		Type:      TypeCallRequestSent,
		RequestID: request.RequestID,
		ExpiresAt: request.ExpiresAt,
	}
}

// CallAcceptedMsg announces the new session to both participants
type CallAcceptedMsg struct {
	Type          string      `json:"type"`
	SessionID     uuid.UUID   `json:"session_id"`
	RequestID     uuid.UUID   `json:"request_id"`
	Participants  []uuid.UUID `json:"participants"`
	ModuleID      uuid.UUID   `json:"module_id"`
	ExerciseIndex int         `json:"exercise_index"`
	Duration      int         `json:"duration"`
}

// NewCallAccepted builds a call_accepted push
func NewCallAccepted(session *domain.CallSession) *CallAcceptedMsg {
	return &CallAcceptedMsg{
		Type:          TypeCallAccepted,
		SessionID:     session.SessionID,
		RequestID:     session.RequestID,
		Participants:  []uuid.UUID{session.Participant1ID, session.Participant2ID},
		ModuleID:      session.ModuleID,
		ExerciseIndex: session.ExerciseIndex,
		Duration:      session.Duration,
	}
}

// CallRejectedMsg tells the requester the receiver declined
type CallRejectedMsg struct {
	Type      string    `json:"type"`
	RequestID uuid.UUID `json:"request_id"`
}

// NewCallRejected builds a call_rejected push
func NewCallRejected(requestID uuid.UUID) *CallRejectedMsg {
	return &CallRejectedMsg{Type: TypeCallRejected, RequestID: requestID}
}

// CallCancelledMsg tells the receiver the requester withdrew the request
type CallCancelledMsg struct {
	Type      string    `json:"type"`
	RequestID uuid.UUID `json:"request_id"`
}

// NewCallCancelled builds a call_cancelled push
func NewCallCancelled(requestID uuid.UUID) *CallCancelledMsg {
	return &CallCancelledMsg{Type: TypeCallCancelled, RequestID: requestID}
}

// CallEndedMsg announces a session reaching a terminal state.
// should_evaluate is true for the participant expected to rate the peer
// named in evaluated_user_id.
type CallEndedMsg struct {
	Type            string     `json:"type"`
	SessionID       uuid.UUID  `json:"session_id"`
	Reason          string     `json:"reason"`
	ShouldEvaluate  bool       `json:"should_evaluate"`
	EvaluatedUserID *uuid.UUID `json:"evaluated_user_id,omitempty"`
}

// NewCallEnded builds a call_ended push
func NewCallEnded(sessionID uuid.UUID, reason string, shouldEvaluate bool, evaluatedUserID *uuid.UUID) *CallEndedMsg {
	return &CallEndedMsg{
		Type:            TypeCallEnded,
		SessionID:       sessionID,
		Reason:          reason,
		ShouldEvaluate:  shouldEvaluate,
		EvaluatedUserID: evaluatedUserID,
	}
}

// HeartbeatAckMsg answers a heartbeat
type HeartbeatAckMsg struct {
	Type string `json:"type"`
}

// NewHeartbeatAck builds a heartbeat_ack reply
func NewHeartbeatAck() *HeartbeatAckMsg {
	return &HeartbeatAckMsg{Type: TypeHeartbeatAck}
}

// ErrorMsg reports a protocol-level failure; the connection stays open
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewError builds an error reply
func NewError(code, message string) *ErrorMsg {
	return &ErrorMsg{Type: TypeError, Code: code, Message: message}
}
