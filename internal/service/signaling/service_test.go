package signaling

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"peerpractice-backend/internal/domain"
	"peerpractice-backend/internal/repository/cockroach"
	"peerpractice-backend/internal/signal"
	"peerpractice-backend/pkg/constants"
	"peerpractice-backend/pkg/jwt"
	"peerpractice-backend/pkg/logger"
	"peerpractice-backend/pkg/metrics"
)

func TestMain(m *testing.M) {
	logger.InitDefault()
	os.Exit(m.Run())
}

// MockPresenceStore is a mock implementation of PresenceStore
type MockPresenceStore struct {
	mock.Mock
}

func (m *MockPresenceStore) SetOnline(ctx context.Context, userID uuid.UUID, connectionID string) error {
	args := m.Called(ctx, userID, connectionID)
	return args.Error(0)
}

func (m *MockPresenceStore) SetOffline(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockPresenceStore) GetStatus(ctx context.Context, userID uuid.UUID) (*domain.PresenceRecord, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PresenceRecord), args.Error(1)
}

func (m *MockPresenceStore) GetOnlineUsers(ctx context.Context) ([]*domain.OnlineUser, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.OnlineUser), args.Error(1)
}

// MockPresenceCache is a mock implementation of PresenceCache
type MockPresenceCache struct {
	mock.Mock
}

func (m *MockPresenceCache) SetOnline(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockPresenceCache) SetOffline(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockPresenceCache) Refresh(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// MockCallRequestStore is a mock implementation of CallRequestStore
type MockCallRequestStore struct {
	mock.Mock
}

func (m *MockCallRequestStore) Create(ctx context.Context, create *domain.CallRequestCreate) (*domain.CallRequest, error) {
	args := m.Called(ctx, create)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CallRequest), args.Error(1)
}

func (m *MockCallRequestStore) GetByID(ctx context.Context, requestID uuid.UUID) (*domain.CallRequest, error) {
	args := m.Called(ctx, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CallRequest), args.Error(1)
}

func (m *MockCallRequestStore) ResolvePending(ctx context.Context, requestID uuid.UUID, status string) error {
	args := m.Called(ctx, requestID, status)
	return args.Error(0)
}

func (m *MockCallRequestStore) MarkCompleted(ctx context.Context, requestID uuid.UUID) error {
	args := m.Called(ctx, requestID)
	return args.Error(0)
}

func (m *MockCallRequestStore) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.CallRequest, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.CallRequest), args.Error(1)
}

func (m *MockCallRequestStore) ExpireOverdue(ctx context.Context) ([]*domain.CallRequest, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.CallRequest), args.Error(1)
}

// MockCallSessionStore is a mock implementation of CallSessionStore
type MockCallSessionStore struct {
	mock.Mock
}

func (m *MockCallSessionStore) Create(ctx context.Context, request *domain.CallRequest) (*domain.CallSession, error) {
	args := m.Called(ctx, request)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CallSession), args.Error(1)
}

func (m *MockCallSessionStore) GetByID(ctx context.Context, sessionID uuid.UUID) (*domain.CallSession, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CallSession), args.Error(1)
}

func (m *MockCallSessionStore) End(ctx context.Context, sessionID uuid.UUID, status string) (*domain.CallSession, error) {
	args := m.Called(ctx, sessionID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CallSession), args.Error(1)
}

func (m *MockCallSessionStore) ListActiveForUser(ctx context.Context, userID uuid.UUID) ([]*domain.CallSession, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.CallSession), args.Error(1)
}

// MockUserStore is a mock implementation of UserStore
type MockUserStore struct {
	mock.Mock
}

func (m *MockUserStore) GetByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

// MockModuleStore is a mock implementation of ModuleStore
type MockModuleStore struct {
	mock.Mock
}

func (m *MockModuleStore) GetByID(ctx context.Context, moduleID uuid.UUID) (*domain.PracticeModule, error) {
	args := m.Called(ctx, moduleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PracticeModule), args.Error(1)
}

// MockEventStore is a mock implementation of EventStore
type MockEventStore struct {
	mock.Mock
}

func (m *MockEventStore) Append(event *domain.SignalingEvent) error {
	args := m.Called(event)
	return args.Error(0)
}

func (m *MockEventStore) ListRecentForUser(userID uuid.UUID, limit int) ([]*domain.SignalingEvent, error) {
	args := m.Called(userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.SignalingEvent), args.Error(1)
}

// MockNotifier is a mock implementation of Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendIncomingCallNotification(ctx context.Context, receiverID uuid.UUID, requesterName string, requestID uuid.UUID, duration int) error {
	args := m.Called(ctx, receiverID, requesterName, requestID, duration)
	return args.Error(0)
}

func (m *MockNotifier) SendMissedCallNotification(ctx context.Context, receiverID uuid.UUID, requesterName string, requestID uuid.UUID) error {
	args := m.Called(ctx, receiverID, requesterName, requestID)
	return args.Error(0)
}

// MockPusher is a mock implementation of Pusher
type MockPusher struct {
	mock.Mock
}

func (m *MockPusher) PushToUser(userID uuid.UUID, message any) bool {
	args := m.Called(userID, message)
	return args.Bool(0)
}

func (m *MockPusher) Broadcast(message any) {
	m.Called(message)
}

// fixture bundles the service and all of its mocked dependencies
type fixture struct {
	presence *MockPresenceStore
	cache    *MockPresenceCache
	requests *MockCallRequestStore
	sessions *MockCallSessionStore
	users    *MockUserStore
	modules  *MockModuleStore
	events   *MockEventStore
	notifier *MockNotifier
	pusher   *MockPusher
	jwtMgr   *jwt.JWTManager
	service  *Service
}

func newFixture() *fixture {
	f := &fixture{
		presence: new(MockPresenceStore),
		cache:    new(MockPresenceCache),
		requests: new(MockCallRequestStore),
		sessions: new(MockCallSessionStore),
		users:    new(MockUserStore),
		modules:  new(MockModuleStore),
		events:   new(MockEventStore),
		notifier: new(MockNotifier),
		pusher:   new(MockPusher),
		jwtMgr:   jwt.NewJWTManager("test-secret-key", time.Hour),
	}

	f.service = NewService(
		f.presence, f.cache, f.requests, f.sessions,
		f.users, f.modules, f.events, f.notifier,
		f.jwtMgr, metrics.NewMetrics("signaling-test"),
	)
	f.service.SetPusher(f.pusher)

	// Event log failures never affect outcomes, so most tests just let
	// appends succeed
	f.events.On("Append", mock.Anything).Return(nil).Maybe()

	return f
}

func testUser(id uuid.UUID, name string) *domain.User {
	return &domain.User{
		UserID:      id,
		Username:    name,
		DisplayName: name,
	}
}

func pendingRequest(requesterID, receiverID uuid.UUID) *domain.CallRequest {
	now := time.Now()
	return &domain.CallRequest{
		RequestID:     uuid.New(),
		RequesterID:   requesterID,
		ReceiverID:    receiverID,
		ModuleID:      uuid.New(),
		ExerciseIndex: 1,
		ExerciseType:  domain.ExerciseTypeCall,
		Duration:      15,
		Status:        constants.RequestStatusPending,
		RequestedAt:   now,
		ExpiresAt:     now.Add(constants.CallRequestExpiry),
	}
}

func activeSession(request *domain.CallRequest) *domain.CallSession {
	return &domain.CallSession{
		SessionID:          uuid.New(),
		RequestID:          request.RequestID,
		Participant1ID:     request.RequesterID,
		Participant2ID:     request.ReceiverID,
		ModuleID:           request.ModuleID,
		ExerciseIndex:      request.ExerciseIndex,
		Duration:           request.Duration,
		Status:             constants.SessionStatusActive,
		StartedAt:          time.Now(),
		Participant1Joined: true,
		Participant2Joined: true,
	}
}

func endedSession(session *domain.CallSession, status string) *domain.CallSession {
	ended := *session
	ended.Status = status
	now := time.Now()
	ended.EndedAt = &now
	seconds := 300
	ended.ActualDuration = &seconds
	return &ended
}

// TestAuthenticate tests token validation and user resolution
func TestAuthenticate(t *testing.T) {
	f := newFixture()
	userID := uuid.New()
	user := testUser(userID, "alice")

	token, err := f.jwtMgr.GenerateAccessToken(userID, "alice", "student")
	assert.NoError(t, err)

	f.users.On("GetByID", mock.Anything, userID).Return(user, nil)

	result, err := f.service.Authenticate(context.Background(), token)

	assert.NoError(t, err)
	assert.Equal(t, userID, result.UserID)
	f.users.AssertExpectations(t)
}

// TestAuthenticate_InvalidToken tests rejection of a garbage token
func TestAuthenticate_InvalidToken(t *testing.T) {
	f := newFixture()

	result, err := f.service.Authenticate(context.Background(), "not-a-token")

	assert.Error(t, err)
	assert.Nil(t, result)
	f.users.AssertNotCalled(t, "GetByID")
}

// TestCreateCallRequest tests the online-receiver path
func TestCreateCallRequest(t *testing.T) {
	f := newFixture()
	requesterID := uuid.New()
	receiverID := uuid.New()
	moduleID := uuid.New()

	request := pendingRequest(requesterID, receiverID)
	request.ModuleID = moduleID

	f.users.On("GetByID", mock.Anything, receiverID).Return(testUser(receiverID, "bob"), nil)
	f.users.On("GetByID", mock.Anything, requesterID).Return(testUser(requesterID, "alice"), nil)
	f.modules.On("GetByID", mock.Anything, moduleID).Return(&domain.PracticeModule{
		ModuleID:      moduleID,
		Title:         "Small Talk",
		ExerciseCount: 5,
	}, nil)
	f.requests.On("Create", mock.Anything, mock.AnythingOfType("*domain.CallRequestCreate")).Return(request, nil)
	f.pusher.On("PushToUser", receiverID, mock.AnythingOfType("*signal.IncomingCallRequestMsg")).Return(true)
	f.pusher.On("PushToUser", requesterID, mock.AnythingOfType("*signal.CallRequestSentMsg")).Return(true)

	result, err := f.service.CreateCallRequest(context.Background(), requesterID, &signal.CallRequestPayload{
		ReceiverID:    receiverID,
		ModuleID:      moduleID,
		ExerciseIndex: 1,
		Duration:      15,
	})

	assert.NoError(t, err)
	assert.Equal(t, request.RequestID, result.RequestID)
	f.pusher.AssertExpectations(t)
	f.notifier.AssertNotCalled(t, "SendIncomingCallNotification")
}

// TestCreateCallRequest_ReceiverOffline tests the push notification fallback
func TestCreateCallRequest_ReceiverOffline(t *testing.T) {
	f := newFixture()
	requesterID := uuid.New()
	receiverID := uuid.New()
	moduleID := uuid.New()

	request := pendingRequest(requesterID, receiverID)
	request.ModuleID = moduleID

	f.users.On("GetByID", mock.Anything, receiverID).Return(testUser(receiverID, "bob"), nil)
	f.users.On("GetByID", mock.Anything, requesterID).Return(testUser(requesterID, "alice"), nil)
	f.modules.On("GetByID", mock.Anything, moduleID).Return(&domain.PracticeModule{
		ModuleID:      moduleID,
		Title:         "Small Talk",
		ExerciseCount: 5,
	}, nil)
	f.requests.On("Create", mock.Anything, mock.AnythingOfType("*domain.CallRequestCreate")).Return(request, nil)
	f.pusher.On("PushToUser", receiverID, mock.AnythingOfType("*signal.IncomingCallRequestMsg")).Return(false)
	f.pusher.On("PushToUser", requesterID, mock.AnythingOfType("*signal.CallRequestSentMsg")).Return(true)
	f.notifier.On("SendIncomingCallNotification", mock.Anything, receiverID, "alice", request.RequestID, 15).Return(nil)

	_, err := f.service.CreateCallRequest(context.Background(), requesterID, &signal.CallRequestPayload{
		ReceiverID:    receiverID,
		ModuleID:      moduleID,
		ExerciseIndex: 1,
		Duration:      15,
	})

	assert.NoError(t, err)
	f.notifier.AssertExpectations(t)
}

// TestCreateCallRequest_SelfCall tests that users cannot call themselves
func TestCreateCallRequest_SelfCall(t *testing.T) {
	f := newFixture()
	userID := uuid.New()

	_, err := f.service.CreateCallRequest(context.Background(), userID, &signal.CallRequestPayload{
		ReceiverID:    userID,
		ModuleID:      uuid.New(),
		ExerciseIndex: 0,
		Duration:      15,
	})

	assert.Error(t, err)
	f.requests.AssertNotCalled(t, "Create")
}

// TestCreateCallRequest_DurationOutOfRange tests duration validation
func TestCreateCallRequest_DurationOutOfRange(t *testing.T) {
	f := newFixture()

	_, err := f.service.CreateCallRequest(context.Background(), uuid.New(), &signal.CallRequestPayload{
		ReceiverID:    uuid.New(),
		ModuleID:      uuid.New(),
		ExerciseIndex: 0,
		Duration:      0,
	})

	assert.Error(t, err)
	f.requests.AssertNotCalled(t, "Create")
}

// TestCreateCallRequest_ExerciseOutOfRange tests exercise index validation
func TestCreateCallRequest_ExerciseOutOfRange(t *testing.T) {
	f := newFixture()
	requesterID := uuid.New()
	receiverID := uuid.New()
	moduleID := uuid.New()

	f.users.On("GetByID", mock.Anything, receiverID).Return(testUser(receiverID, "bob"), nil)
	f.modules.On("GetByID", mock.Anything, moduleID).Return(&domain.PracticeModule{
		ModuleID:      moduleID,
		Title:         "Small Talk",
		ExerciseCount: 3,
	}, nil)

	_, err := f.service.CreateCallRequest(context.Background(), requesterID, &signal.CallRequestPayload{
		ReceiverID:    receiverID,
		ModuleID:      moduleID,
		ExerciseIndex: 5,
		Duration:      15,
	})

	assert.Error(t, err)
	f.requests.AssertNotCalled(t, "Create")
}

// TestRespondToCallRequest_Accept tests acceptance creating a session
func TestRespondToCallRequest_Accept(t *testing.T) {
	f := newFixture()
	requesterID := uuid.New()
	receiverID := uuid.New()
	request := pendingRequest(requesterID, receiverID)
	session := activeSession(request)

	f.requests.On("GetByID", mock.Anything, request.RequestID).Return(request, nil)
	f.requests.On("ResolvePending", mock.Anything, request.RequestID, constants.RequestStatusAccepted).Return(nil)
	f.sessions.On("Create", mock.Anything, request).Return(session, nil)
	f.pusher.On("PushToUser", requesterID, mock.AnythingOfType("*signal.CallAcceptedMsg")).Return(true)
	f.pusher.On("PushToUser", receiverID, mock.AnythingOfType("*signal.CallAcceptedMsg")).Return(true)

	result, err := f.service.RespondToCallRequest(context.Background(), receiverID, request.RequestID, true)

	assert.NoError(t, err)
	assert.Equal(t, session.SessionID, result.SessionID)
	f.requests.AssertExpectations(t)
	f.sessions.AssertExpectations(t)
	f.pusher.AssertExpectations(t)
}

// TestRespondToCallRequest_Reject tests rejection notifying only the requester
func TestRespondToCallRequest_Reject(t *testing.T) {
	f := newFixture()
	requesterID := uuid.New()
	receiverID := uuid.New()
	request := pendingRequest(requesterID, receiverID)

	f.requests.On("GetByID", mock.Anything, request.RequestID).Return(request, nil)
	f.requests.On("ResolvePending", mock.Anything, request.RequestID, constants.RequestStatusRejected).Return(nil)
	f.pusher.On("PushToUser", requesterID, mock.AnythingOfType("*signal.CallRejectedMsg")).Return(true)

	result, err := f.service.RespondToCallRequest(context.Background(), receiverID, request.RequestID, false)

	assert.NoError(t, err)
	assert.Nil(t, result)
	f.sessions.AssertNotCalled(t, "Create")
	f.pusher.AssertExpectations(t)
}

// TestRespondToCallRequest_NotReceiver tests that only the receiver may respond
func TestRespondToCallRequest_NotReceiver(t *testing.T) {
	f := newFixture()
	request := pendingRequest(uuid.New(), uuid.New())

	f.requests.On("GetByID", mock.Anything, request.RequestID).Return(request, nil)

	_, err := f.service.RespondToCallRequest(context.Background(), request.RequesterID, request.RequestID, true)

	assert.Error(t, err)
	f.requests.AssertNotCalled(t, "ResolvePending")
}

// TestRespondToCallRequest_AlreadyResolved tests responding to a settled request
func TestRespondToCallRequest_AlreadyResolved(t *testing.T) {
	f := newFixture()
	request := pendingRequest(uuid.New(), uuid.New())
	request.Status = constants.RequestStatusAccepted

	f.requests.On("GetByID", mock.Anything, request.RequestID).Return(request, nil)

	_, err := f.service.RespondToCallRequest(context.Background(), request.ReceiverID, request.RequestID, true)

	assert.Error(t, err)
	f.requests.AssertNotCalled(t, "ResolvePending")
}

// TestRespondToCallRequest_Expired tests that a late response cannot win
func TestRespondToCallRequest_Expired(t *testing.T) {
	f := newFixture()
	request := pendingRequest(uuid.New(), uuid.New())
	request.ExpiresAt = time.Now().Add(-time.Minute)

	f.requests.On("GetByID", mock.Anything, request.RequestID).Return(request, nil)
	f.requests.On("ResolvePending", mock.Anything, request.RequestID, constants.RequestStatusExpired).Return(nil)

	_, err := f.service.RespondToCallRequest(context.Background(), request.ReceiverID, request.RequestID, true)

	assert.Error(t, err)
	f.sessions.AssertNotCalled(t, "Create")
	f.requests.AssertExpectations(t)
}

// TestRespondToCallRequest_LostRace tests losing the status transition race
func TestRespondToCallRequest_LostRace(t *testing.T) {
	f := newFixture()
	request := pendingRequest(uuid.New(), uuid.New())

	f.requests.On("GetByID", mock.Anything, request.RequestID).Return(request, nil)
	f.requests.On("ResolvePending", mock.Anything, request.RequestID, constants.RequestStatusAccepted).
		Return(cockroach.ErrRequestNotPending)

	_, err := f.service.RespondToCallRequest(context.Background(), request.ReceiverID, request.RequestID, true)

	assert.Error(t, err)
	f.sessions.AssertNotCalled(t, "Create")
}

// TestCancelCallRequest tests a requester withdrawing their own request
func TestCancelCallRequest(t *testing.T) {
	f := newFixture()
	request := pendingRequest(uuid.New(), uuid.New())

	f.requests.On("GetByID", mock.Anything, request.RequestID).Return(request, nil)
	f.requests.On("ResolvePending", mock.Anything, request.RequestID, constants.RequestStatusExpired).Return(nil)
	f.pusher.On("PushToUser", request.ReceiverID, mock.AnythingOfType("*signal.CallCancelledMsg")).Return(true)

	err := f.service.CancelCallRequest(context.Background(), request.RequesterID, request.RequestID)

	assert.NoError(t, err)
	f.pusher.AssertExpectations(t)
}

// TestCancelCallRequest_NotRequester tests that only the requester may cancel
func TestCancelCallRequest_NotRequester(t *testing.T) {
	f := newFixture()
	request := pendingRequest(uuid.New(), uuid.New())

	f.requests.On("GetByID", mock.Anything, request.RequestID).Return(request, nil)

	err := f.service.CancelCallRequest(context.Background(), request.ReceiverID, request.RequestID)

	assert.Error(t, err)
	f.requests.AssertNotCalled(t, "ResolvePending")
}

// TestEndSession tests an explicit disconnect completing the session
func TestEndSession(t *testing.T) {
	f := newFixture()
	request := pendingRequest(uuid.New(), uuid.New())
	session := activeSession(request)
	ended := endedSession(session, constants.SessionStatusCompleted)
	userID := session.Participant1ID
	peerID := session.Participant2ID

	var peerMsg *signal.CallEndedMsg
	f.sessions.On("GetByID", mock.Anything, session.SessionID).Return(session, nil)
	f.sessions.On("End", mock.Anything, session.SessionID, constants.SessionStatusCompleted).Return(ended, nil)
	f.requests.On("MarkCompleted", mock.Anything, session.RequestID).Return(nil)
	f.pusher.On("PushToUser", peerID, mock.AnythingOfType("*signal.CallEndedMsg")).
		Run(func(args mock.Arguments) {
			peerMsg = args.Get(1).(*signal.CallEndedMsg)
		}).Return(true)
	f.pusher.On("PushToUser", userID, mock.AnythingOfType("*signal.CallEndedMsg")).Return(true)

	result, err := f.service.EndSession(context.Background(), userID, session.SessionID)

	assert.NoError(t, err)
	assert.Equal(t, constants.SessionStatusCompleted, result.Status)
	assert.NotNil(t, peerMsg)
	assert.Equal(t, signal.ReasonPeerDisconnected, peerMsg.Reason)
	assert.True(t, peerMsg.ShouldEvaluate)
	assert.Equal(t, userID, *peerMsg.EvaluatedUserID)
	f.sessions.AssertExpectations(t)
}

// TestEndSession_NotParticipant tests that outsiders cannot end a session
func TestEndSession_NotParticipant(t *testing.T) {
	f := newFixture()
	session := activeSession(pendingRequest(uuid.New(), uuid.New()))

	f.sessions.On("GetByID", mock.Anything, session.SessionID).Return(session, nil)

	_, err := f.service.EndSession(context.Background(), uuid.New(), session.SessionID)

	assert.Error(t, err)
	f.sessions.AssertNotCalled(t, "End")
}

// TestEndSession_AlreadyEnded tests ending a session twice
func TestEndSession_AlreadyEnded(t *testing.T) {
	f := newFixture()
	session := activeSession(pendingRequest(uuid.New(), uuid.New()))

	f.sessions.On("GetByID", mock.Anything, session.SessionID).Return(session, nil)
	f.sessions.On("End", mock.Anything, session.SessionID, constants.SessionStatusCompleted).
		Return(nil, cockroach.ErrSessionNotActive)

	_, err := f.service.EndSession(context.Background(), session.Participant1ID, session.SessionID)

	assert.Error(t, err)
}

// TestConnectionOpened tests presence going online and the broadcast
func TestConnectionOpened(t *testing.T) {
	f := newFixture()
	userID := uuid.New()

	f.presence.On("SetOnline", mock.Anything, userID, "conn-1").Return(nil)
	f.cache.On("SetOnline", mock.Anything, userID).Return(nil)
	f.presence.On("GetOnlineUsers", mock.Anything).Return([]*domain.OnlineUser{
		{UserID: userID, Username: "alice", DisplayName: "alice"},
	}, nil)
	f.pusher.On("Broadcast", mock.AnythingOfType("*signal.OnlineUsersUpdateMsg")).Return()

	f.service.ConnectionOpened(context.Background(), userID, "conn-1")

	f.presence.AssertExpectations(t)
	f.cache.AssertExpectations(t)
	f.pusher.AssertExpectations(t)
}

// TestConnectionClosed tests that a transport drop ends active sessions
// as disconnected and notifies the peer
func TestConnectionClosed(t *testing.T) {
	f := newFixture()
	request := pendingRequest(uuid.New(), uuid.New())
	session := activeSession(request)
	ended := endedSession(session, constants.SessionStatusDisconnected)
	userID := session.Participant1ID
	peerID := session.Participant2ID

	f.sessions.On("ListActiveForUser", mock.Anything, userID).Return([]*domain.CallSession{session}, nil)
	f.sessions.On("End", mock.Anything, session.SessionID, constants.SessionStatusDisconnected).Return(ended, nil)
	f.requests.On("MarkCompleted", mock.Anything, session.RequestID).Return(nil)
	f.pusher.On("PushToUser", peerID, mock.AnythingOfType("*signal.CallEndedMsg")).Return(true)
	f.presence.On("SetOffline", mock.Anything, userID).Return(nil)
	f.cache.On("SetOffline", mock.Anything, userID).Return(nil)
	f.presence.On("GetOnlineUsers", mock.Anything).Return([]*domain.OnlineUser{}, nil)
	f.pusher.On("Broadcast", mock.AnythingOfType("*signal.OnlineUsersUpdateMsg")).Return()

	f.service.ConnectionClosed(context.Background(), userID)

	f.sessions.AssertExpectations(t)
	f.presence.AssertExpectations(t)
	f.pusher.AssertExpectations(t)
}

// TestConnectionClosed_RaceWithExplicitEnd tests a drop racing an
// explicit disconnect that already ended the session
func TestConnectionClosed_RaceWithExplicitEnd(t *testing.T) {
	f := newFixture()
	request := pendingRequest(uuid.New(), uuid.New())
	session := activeSession(request)
	userID := session.Participant1ID

	f.sessions.On("ListActiveForUser", mock.Anything, userID).Return([]*domain.CallSession{session}, nil)
	f.sessions.On("End", mock.Anything, session.SessionID, constants.SessionStatusDisconnected).
		Return(nil, cockroach.ErrSessionNotActive)
	f.presence.On("SetOffline", mock.Anything, userID).Return(nil)
	f.cache.On("SetOffline", mock.Anything, userID).Return(nil)
	f.presence.On("GetOnlineUsers", mock.Anything).Return([]*domain.OnlineUser{}, nil)
	f.pusher.On("Broadcast", mock.AnythingOfType("*signal.OnlineUsersUpdateMsg")).Return()

	f.service.ConnectionClosed(context.Background(), userID)

	f.requests.AssertNotCalled(t, "MarkCompleted")
	f.pusher.AssertNotCalled(t, "PushToUser", mock.Anything, mock.Anything)
}

// TestExpireOverdueRequests tests the sweep notifying an offline receiver
func TestExpireOverdueRequests(t *testing.T) {
	f := newFixture()
	request := pendingRequest(uuid.New(), uuid.New())
	request.Status = constants.RequestStatusExpired

	f.requests.On("ExpireOverdue", mock.Anything).Return([]*domain.CallRequest{request}, nil)
	f.pusher.On("PushToUser", request.ReceiverID, mock.AnythingOfType("*signal.CallCancelledMsg")).Return(false)
	f.users.On("GetByID", mock.Anything, request.RequesterID).Return(testUser(request.RequesterID, "alice"), nil)
	f.notifier.On("SendMissedCallNotification", mock.Anything, request.ReceiverID, "alice", request.RequestID).Return(nil)

	count, err := f.service.ExpireOverdueRequests(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 1, count)
	f.notifier.AssertExpectations(t)
}

// TestPresenceStatus_DefaultsOffline tests the never-connected default
func TestPresenceStatus_DefaultsOffline(t *testing.T) {
	f := newFixture()
	userID := uuid.New()

	f.presence.On("GetStatus", mock.Anything, userID).Return(nil, cockroach.ErrNotFound)

	record, err := f.service.PresenceStatus(context.Background(), userID)

	assert.NoError(t, err)
	assert.Equal(t, userID, record.UserID)
	assert.False(t, record.IsOnline)
}

// TestHeartbeat tests the presence cache refresh
func TestHeartbeat(t *testing.T) {
	f := newFixture()
	userID := uuid.New()

	f.cache.On("Refresh", mock.Anything, userID).Return(nil)

	f.service.Heartbeat(context.Background(), userID)

	f.cache.AssertExpectations(t)
}
