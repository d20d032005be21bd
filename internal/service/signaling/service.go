// Package signaling implements the call coordination state machine: it
// authenticates connections, tracks presence, brokers call requests
// between peers, promotes accepted requests into sessions, and fans
// lifecycle events out to live connections.
package signaling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"peerpractice-backend/internal/domain"
	"peerpractice-backend/internal/repository/cockroach"
	"peerpractice-backend/internal/signal"
	"peerpractice-backend/pkg/constants"
	apperrors "peerpractice-backend/pkg/errors"
	"peerpractice-backend/pkg/jwt"
	"peerpractice-backend/pkg/logger"
	"peerpractice-backend/pkg/metrics"
)

// PresenceStore is the durable presence ledger
type PresenceStore interface {
	SetOnline(ctx context.Context, userID uuid.UUID, connectionID string) error
	SetOffline(ctx context.Context, userID uuid.UUID) error
	GetStatus(ctx context.Context, userID uuid.UUID) (*domain.PresenceRecord, error)
	GetOnlineUsers(ctx context.Context) ([]*domain.OnlineUser, error)
}

// PresenceCache is the best-effort Redis mirror of the presence ledger
type PresenceCache interface {
	SetOnline(ctx context.Context, userID uuid.UUID) error
	SetOffline(ctx context.Context, userID uuid.UUID) error
	Refresh(ctx context.Context, userID uuid.UUID) error
}

// CallRequestStore is the durable call invitation ledger
type CallRequestStore interface {
	Create(ctx context.Context, create *domain.CallRequestCreate) (*domain.CallRequest, error)
	GetByID(ctx context.Context, requestID uuid.UUID) (*domain.CallRequest, error)
	ResolvePending(ctx context.Context, requestID uuid.UUID, status string) error
	MarkCompleted(ctx context.Context, requestID uuid.UUID) error
	ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.CallRequest, error)
	ExpireOverdue(ctx context.Context) ([]*domain.CallRequest, error)
}

// CallSessionStore is the durable call session ledger
type CallSessionStore interface {
	Create(ctx context.Context, request *domain.CallRequest) (*domain.CallSession, error)
	GetByID(ctx context.Context, sessionID uuid.UUID) (*domain.CallSession, error)
	End(ctx context.Context, sessionID uuid.UUID, status string) (*domain.CallSession, error)
	ListActiveForUser(ctx context.Context, userID uuid.UUID) ([]*domain.CallSession, error)
}

// UserStore resolves user profiles from the platform directory
type UserStore interface {
	GetByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
}

// ModuleStore resolves practice modules from the course catalog
type ModuleStore interface {
	GetByID(ctx context.Context, moduleID uuid.UUID) (*domain.PracticeModule, error)
}

// EventStore appends to the signaling event log
type EventStore interface {
	Append(event *domain.SignalingEvent) error
	ListRecentForUser(userID uuid.UUID, limit int) ([]*domain.SignalingEvent, error)
}

// Pusher delivers messages to live connections. PushToUser reports
// whether the user had a connection to deliver to.
type Pusher interface {
	PushToUser(userID uuid.UUID, message any) bool
	Broadcast(message any)
}

// Notifier sends best-effort push notifications to offline users
type Notifier interface {
	SendIncomingCallNotification(ctx context.Context, receiverID uuid.UUID, requesterName string, requestID uuid.UUID, duration int) error
	SendMissedCallNotification(ctx context.Context, receiverID uuid.UUID, requesterName string, requestID uuid.UUID) error
}

// Service coordinates signaling across the stores, the live connection
// hub, and the push channel
type Service struct {
	presence PresenceStore
	cache    PresenceCache
	requests CallRequestStore
	sessions CallSessionStore
	users    UserStore
	modules  ModuleStore
	events   EventStore
	notifier Notifier
	jwtMgr   *jwt.JWTManager
	metrics  *metrics.Metrics
	pusher   Pusher
}

// NewService creates a new signaling service. The Pusher is attached
// separately because the hub and the service reference each other.
func NewService(
	presence PresenceStore,
	cache PresenceCache,
	requests CallRequestStore,
	sessions CallSessionStore,
	users UserStore,
	modules ModuleStore,
	events EventStore,
	notifier Notifier,
	jwtMgr *jwt.JWTManager,
	m *metrics.Metrics,
) *Service {
	return &Service{
		presence: presence,
		cache:    cache,
		requests: requests,
		sessions: sessions,
		users:    users,
		modules:  modules,
		events:   events,
		notifier: notifier,
		jwtMgr:   jwtMgr,
		metrics:  m,
		pusher:   noopPusher{},
	}
}

// SetPusher attaches the live connection hub
func (s *Service) SetPusher(p Pusher) {
	s.pusher = p
}

// Authenticate validates a signaling token and resolves the user
func (s *Service) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, apperrors.MissingFieldError("token")
	}

	claims, err := s.jwtMgr.ValidateToken(token)
	if err != nil {
		return nil, apperrors.InvalidTokenError("Invalid or expired token")
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, cockroach.ErrNotFound) {
			return nil, apperrors.UserNotFoundError()
		}
		return nil, apperrors.DatabaseError(err)
	}

	return user, nil
}

// ConnectionOpened records a newly authenticated connection: flips the
// durable presence row online, mirrors it in the cache, and rebroadcasts
// the online-user set. Presence is best-effort, not safety-critical, so
// storage failures are logged and the connection stays up.
func (s *Service) ConnectionOpened(ctx context.Context, userID uuid.UUID, connectionID string) {
	if err := s.presence.SetOnline(ctx, userID, connectionID); err != nil {
		logger.Error("Failed to set user online",
			zap.String("user_id", userID.String()),
			zap.Error(err))
	}

	if err := s.cache.SetOnline(ctx, userID); err != nil {
		logger.Warn("Failed to update presence cache",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		s.metrics.RecordRedisError("set_online")
	}

	s.logEvent(&domain.SignalingEvent{
		UserID:    userID,
		EventType: domain.EventUserConnected,
		Detail:    connectionID,
	})

	s.BroadcastOnlineUsers(ctx)
}

// ConnectionClosed handles a connection going away for any reason: ends
// the user's active sessions as disconnected, flips presence offline,
// and rebroadcasts. Cleanup is unconditional; every exit path of the
// connection lifecycle funnels through here exactly once.
func (s *Service) ConnectionClosed(ctx context.Context, userID uuid.UUID) {
	s.endActiveSessionsOnDrop(ctx, userID)

	if err := s.presence.SetOffline(ctx, userID); err != nil {
		logger.Error("Failed to set user offline",
			zap.String("user_id", userID.String()),
			zap.Error(err))
	}

	if err := s.cache.SetOffline(ctx, userID); err != nil {
		logger.Warn("Failed to update presence cache",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		s.metrics.RecordRedisError("set_offline")
	}

	s.logEvent(&domain.SignalingEvent{
		UserID:    userID,
		EventType: domain.EventUserDisconnected,
	})

	s.BroadcastOnlineUsers(ctx)
}

// BroadcastOnlineUsers pushes the current online-user set to every
// connected client
func (s *Service) BroadcastOnlineUsers(ctx context.Context) {
	users, err := s.presence.GetOnlineUsers(ctx)
	if err != nil {
		logger.Error("Failed to load online users for broadcast", zap.Error(err))
		return
	}

	s.metrics.SetUsersOnline(len(users))
	s.pusher.Broadcast(signal.NewOnlineUsersUpdate(users))
}

// CreateCallRequest validates and persists a new call invitation, then
// notifies the receiver: over the live connection when one exists,
// otherwise via a best-effort push notification
func (s *Service) CreateCallRequest(ctx context.Context, requesterID uuid.UUID, p *signal.CallRequestPayload) (*domain.CallRequest, error) {
	if p.ReceiverID == uuid.Nil {
		return nil, apperrors.MissingFieldError("receiver_id")
	}
	if p.ReceiverID == requesterID {
		return nil, apperrors.ValidationError("Cannot request a call with yourself")
	}
	if p.Duration < constants.MinCallDuration || p.Duration > constants.MaxCallDuration {
		return nil, apperrors.ValidationError("Call duration out of range")
	}

	if _, err := s.users.GetByID(ctx, p.ReceiverID); err != nil {
		if errors.Is(err, cockroach.ErrNotFound) {
			return nil, apperrors.UserNotFoundError()
		}
		return nil, apperrors.DatabaseError(err)
	}

	module, err := s.modules.GetByID(ctx, p.ModuleID)
	if err != nil {
		if errors.Is(err, cockroach.ErrNotFound) {
			return nil, apperrors.NotFoundError("Module")
		}
		return nil, apperrors.DatabaseError(err)
	}
	if !module.HasExercise(p.ExerciseIndex) {
		return nil, apperrors.ValidationError("Exercise index out of range")
	}

	requester, err := s.users.GetByID(ctx, requesterID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	request, err := s.requests.Create(ctx, &domain.CallRequestCreate{
		RequesterID:   requesterID,
		ReceiverID:    p.ReceiverID,
		ModuleID:      p.ModuleID,
		ExerciseIndex: p.ExerciseIndex,
		Duration:      p.Duration,
		Message:       p.Message,
	})
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	s.logEvent(&domain.SignalingEvent{
		UserID:    requesterID,
		EventType: domain.EventRequestCreated,
		PeerID:    &request.ReceiverID,
		RequestID: &request.RequestID,
	})

	delivered := s.pusher.PushToUser(request.ReceiverID,
		signal.NewIncomingCallRequest(request, requester.ToResponse()))

	if delivered {
		s.metrics.RecordCallRequest("online")
	} else {
		s.metrics.RecordCallRequest("offline")
		// The receiver still sees the request by listing; the push
		// notification just shortens the gap
		if err := s.notifier.SendIncomingCallNotification(ctx,
			request.ReceiverID, requester.DisplayName, request.RequestID, request.Duration); err != nil {
			logger.Warn("Failed to send incoming call push notification",
				zap.String("request_id", request.RequestID.String()),
				zap.Error(err))
		}
	}

	s.pusher.PushToUser(requesterID, signal.NewCallRequestSent(request))

	logger.Info("Call request created",
		zap.String("request_id", request.RequestID.String()),
		zap.String("requester_id", requesterID.String()),
		zap.String("receiver_id", request.ReceiverID.String()),
		zap.Bool("receiver_online", delivered))

	return request, nil
}

// RespondToCallRequest resolves a pending request. On acceptance it
// promotes the request into a session and announces it to both
// participants; on rejection only the requester is told. The
// status-guarded ledger update means at most one racing response wins.
func (s *Service) RespondToCallRequest(ctx context.Context, responderID, requestID uuid.UUID, accepted bool) (*domain.CallSession, error) {
	request, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, cockroach.ErrNotFound) {
			return nil, apperrors.CallRequestNotFoundError()
		}
		return nil, apperrors.DatabaseError(err)
	}

	if request.ReceiverID != responderID {
		return nil, apperrors.ForbiddenError("Only the receiver can respond to a call request")
	}

	if request.Status != constants.RequestStatusPending {
		return nil, apperrors.RequestNotPendingError()
	}

	// Late responses lose even if the sweeper has not caught up yet
	if request.IsExpired(time.Now()) {
		if err := s.requests.ResolvePending(ctx, requestID, constants.RequestStatusExpired); err == nil {
			s.metrics.RecordCallResponse("expired")
			s.logEvent(&domain.SignalingEvent{
				UserID:    request.ReceiverID,
				EventType: domain.EventRequestExpired,
				PeerID:    &request.RequesterID,
				RequestID: &request.RequestID,
			})
		}
		return nil, apperrors.RequestExpiredError()
	}

	newStatus := constants.RequestStatusRejected
	if accepted {
		newStatus = constants.RequestStatusAccepted
	}

	if err := s.requests.ResolvePending(ctx, requestID, newStatus); err != nil {
		if errors.Is(err, cockroach.ErrRequestNotPending) {
			return nil, apperrors.RequestNotPendingError()
		}
		if errors.Is(err, cockroach.ErrNotFound) {
			return nil, apperrors.CallRequestNotFoundError()
		}
		return nil, apperrors.DatabaseError(err)
	}

	if !accepted {
		s.metrics.RecordCallResponse("rejected")
		s.logEvent(&domain.SignalingEvent{
			UserID:    responderID,
			EventType: domain.EventRequestRejected,
			PeerID:    &request.RequesterID,
			RequestID: &request.RequestID,
		})

		s.pusher.PushToUser(request.RequesterID, signal.NewCallRejected(requestID))
		return nil, nil
	}

	session, err := s.sessions.Create(ctx, request)
	if err != nil {
		// The request is stuck accepted with no session; both clients
		// recover by polling active sessions after reconnect
		logger.Error("Failed to create session for accepted request",
			zap.String("request_id", requestID.String()),
			zap.Error(err))
		return nil, apperrors.DatabaseError(err)
	}

	s.metrics.RecordCallResponse("accepted")
	s.metrics.IncrementActiveSessions()
	s.logEvent(&domain.SignalingEvent{
		UserID:    responderID,
		EventType: domain.EventRequestAccepted,
		PeerID:    &request.RequesterID,
		RequestID: &request.RequestID,
	})
	s.logEvent(&domain.SignalingEvent{
		UserID:    session.Participant1ID,
		EventType: domain.EventSessionStarted,
		PeerID:    &session.Participant2ID,
		SessionID: &session.SessionID,
	})

	accepted1 := s.pusher.PushToUser(session.Participant1ID, signal.NewCallAccepted(session))
	accepted2 := s.pusher.PushToUser(session.Participant2ID, signal.NewCallAccepted(session))

	logger.Info("Call session started",
		zap.String("session_id", session.SessionID.String()),
		zap.String("request_id", requestID.String()),
		zap.Bool("participant1_notified", accepted1),
		zap.Bool("participant2_notified", accepted2))

	return session, nil
}

// CancelCallRequest withdraws the requester's own pending request. Uses
// the same status-guarded transition as responses, so a cancel racing an
// accept settles on exactly one outcome.
func (s *Service) CancelCallRequest(ctx context.Context, requesterID, requestID uuid.UUID) error {
	request, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, cockroach.ErrNotFound) {
			return apperrors.CallRequestNotFoundError()
		}
		return apperrors.DatabaseError(err)
	}

	if request.RequesterID != requesterID {
		return apperrors.ForbiddenError("Only the requester can cancel a call request")
	}

	if err := s.requests.ResolvePending(ctx, requestID, constants.RequestStatusExpired); err != nil {
		if errors.Is(err, cockroach.ErrRequestNotPending) {
			return apperrors.RequestNotPendingError()
		}
		if errors.Is(err, cockroach.ErrNotFound) {
			return apperrors.CallRequestNotFoundError()
		}
		return apperrors.DatabaseError(err)
	}

	s.metrics.RecordCallResponse("cancelled")
	s.logEvent(&domain.SignalingEvent{
		UserID:    requesterID,
		EventType: domain.EventRequestCancelled,
		PeerID:    &request.ReceiverID,
		RequestID: &request.RequestID,
	})

	s.pusher.PushToUser(request.ReceiverID, signal.NewCallCancelled(requestID))

	return nil
}

// EndSession handles an explicit call_disconnect from a participant.
// The peer is told to evaluate the disconnecting user; the disconnecting
// user gets a confirmation without an evaluation prompt.
func (s *Service) EndSession(ctx context.Context, userID, sessionID uuid.UUID) (*domain.CallSession, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, cockroach.ErrNotFound) {
			return nil, apperrors.CallSessionNotFoundError()
		}
		return nil, apperrors.DatabaseError(err)
	}

	if !session.HasParticipant(userID) {
		return nil, apperrors.ForbiddenError("Not a participant of this session")
	}

	ended, err := s.sessions.End(ctx, sessionID, constants.SessionStatusCompleted)
	if err != nil {
		if errors.Is(err, cockroach.ErrSessionNotActive) {
			return nil, apperrors.SessionNotActiveError()
		}
		return nil, apperrors.DatabaseError(err)
	}

	s.finishSession(ctx, ended, userID)

	s.pusher.PushToUser(userID,
		signal.NewCallEnded(sessionID, signal.ReasonYouDisconnected, false, nil))

	return ended, nil
}

// endActiveSessionsOnDrop terminates the user's active sessions when
// their transport drops without an explicit disconnect. These endings
// are recorded as disconnected rather than completed.
func (s *Service) endActiveSessionsOnDrop(ctx context.Context, userID uuid.UUID) {
	sessions, err := s.sessions.ListActiveForUser(ctx, userID)
	if err != nil {
		logger.Error("Failed to list active sessions on disconnect",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return
	}

	for _, session := range sessions {
		ended, err := s.sessions.End(ctx, session.SessionID, constants.SessionStatusDisconnected)
		if err != nil {
			if errors.Is(err, cockroach.ErrSessionNotActive) {
				continue // lost the race to an explicit disconnect
			}
			logger.Error("Failed to end session on disconnect",
				zap.String("session_id", session.SessionID.String()),
				zap.Error(err))
			continue
		}

		s.finishSession(ctx, ended, userID)
	}
}

// finishSession performs the shared bookkeeping for any session ending:
// request completion, metrics, event log, and the peer's call_ended push
func (s *Service) finishSession(ctx context.Context, session *domain.CallSession, endedBy uuid.UUID) {
	if err := s.requests.MarkCompleted(ctx, session.RequestID); err != nil {
		logger.Warn("Failed to mark call request completed",
			zap.String("request_id", session.RequestID.String()),
			zap.Error(err))
	}

	duration := time.Duration(0)
	if session.ActualDuration != nil {
		duration = time.Duration(*session.ActualDuration) * time.Second
	}
	s.metrics.DecrementActiveSessions()
	s.metrics.RecordSessionEnded(session.Status, duration)

	s.logEvent(&domain.SignalingEvent{
		UserID:    endedBy,
		EventType: domain.EventSessionEnded,
		PeerID:    uuidPtr(session.OtherParticipant(endedBy)),
		SessionID: &session.SessionID,
		Detail:    session.Status,
	})

	peer := session.OtherParticipant(endedBy)
	if peer != uuid.Nil {
		evaluated := endedBy
		s.pusher.PushToUser(peer,
			signal.NewCallEnded(session.SessionID, signal.ReasonPeerDisconnected, true, &evaluated))
	}

	logger.Info("Call session ended",
		zap.String("session_id", session.SessionID.String()),
		zap.String("status", session.Status),
		zap.String("ended_by", endedBy.String()))
}

// Heartbeat refreshes the presence cache TTL for a live connection
func (s *Service) Heartbeat(ctx context.Context, userID uuid.UUID) {
	if err := s.cache.Refresh(ctx, userID); err != nil {
		logger.Warn("Failed to refresh presence cache",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		s.metrics.RecordRedisError("refresh_presence")
	}
}

// OnlineUsers lists currently online users with public profiles
func (s *Service) OnlineUsers(ctx context.Context) ([]*domain.OnlineUser, error) {
	users, err := s.presence.GetOnlineUsers(ctx)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return users, nil
}

// PresenceStatus returns one user's presence record, defaulting to
// offline when the user has never connected
func (s *Service) PresenceStatus(ctx context.Context, userID uuid.UUID) (*domain.PresenceRecord, error) {
	record, err := s.presence.GetStatus(ctx, userID)
	if err != nil {
		if errors.Is(err, cockroach.ErrNotFound) {
			return domain.OfflinePresence(userID), nil
		}
		return nil, apperrors.DatabaseError(err)
	}
	return record, nil
}

// ListRequestsForUser returns the user's sent and received call
// requests, newest first
func (s *Service) ListRequestsForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.CallRequest, error) {
	requests, err := s.requests.ListForUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return requests, nil
}

// ListActiveSessionsForUser returns the user's active sessions
func (s *Service) ListActiveSessionsForUser(ctx context.Context, userID uuid.UUID) ([]*domain.CallSession, error) {
	sessions, err := s.sessions.ListActiveForUser(ctx, userID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return sessions, nil
}

// ListEventsForUser returns the user's recent signaling events
func (s *Service) ListEventsForUser(_ context.Context, userID uuid.UUID, limit int) ([]*domain.SignalingEvent, error) {
	if s.events == nil {
		return nil, apperrors.ServiceUnavailableError("Event log is not available")
	}

	events, err := s.events.ListRecentForUser(userID, limit)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return events, nil
}

// ExpireOverdueRequests CASes overdue pending requests to expired and
// notifies the affected parties. Called by the sweeper.
func (s *Service) ExpireOverdueRequests(ctx context.Context) (int, error) {
	expired, err := s.requests.ExpireOverdue(ctx)
	if err != nil {
		return 0, err
	}

	for _, request := range expired {
		s.metrics.RecordCallResponse("expired")
		s.logEvent(&domain.SignalingEvent{
			UserID:    request.ReceiverID,
			EventType: domain.EventRequestExpired,
			PeerID:    &request.RequesterID,
			RequestID: &request.RequestID,
		})

		// Clear the stale invite on a connected receiver; tell an
		// offline one they missed the call
		delivered := s.pusher.PushToUser(request.ReceiverID, signal.NewCallCancelled(request.RequestID))
		if !delivered {
			requester, err := s.users.GetByID(ctx, request.RequesterID)
			if err != nil {
				continue
			}
			if err := s.notifier.SendMissedCallNotification(ctx,
				request.ReceiverID, requester.DisplayName, request.RequestID); err != nil {
				logger.Warn("Failed to send missed call push notification",
					zap.String("request_id", request.RequestID.String()),
					zap.Error(err))
			}
		}
	}

	if len(expired) > 0 {
		s.metrics.RecordCallRequestsSwept(len(expired))
		logger.Info("Expired overdue call requests", zap.Int("count", len(expired)))
	}

	return len(expired), nil
}

// logEvent appends to the event log; failures never affect the
// triggering action
func (s *Service) logEvent(event *domain.SignalingEvent) {
	if s.events == nil {
		return
	}

	err := s.events.Append(event)
	s.metrics.RecordEventLogWrite(err)
	if err != nil {
		logger.Warn("Failed to append signaling event",
			zap.String("event_type", event.EventType),
			zap.Error(err))
	}
}

func uuidPtr(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

// noopPusher stands in until the hub is attached
type noopPusher struct{}

func (noopPusher) PushToUser(uuid.UUID, any) bool { return false }
func (noopPusher) Broadcast(any)                  {}
