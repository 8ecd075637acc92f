package signaling

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"inspectcall-backend/internal/domain"
	"inspectcall-backend/internal/service/session"
	apperrors "inspectcall-backend/pkg/errors"
)

// Mocks

type MockCallRepository struct {
	mock.Mock
}

func (m *MockCallRepository) Create(ctx context.Context, call *domain.Call) error {
	args := m.Called(ctx, call)
	return args.Error(0)
}

func (m *MockCallRepository) UpdateStatus(ctx context.Context, callID uuid.UUID, status domain.CallStatus) error {
	args := m.Called(ctx, callID, status)
	return args.Error(0)
}

func (m *MockCallRepository) EndCall(ctx context.Context, callID uuid.UUID, endedAt time.Time) error {
	args := m.Called(ctx, callID, endedAt)
	return args.Error(0)
}

func (m *MockCallRepository) UpdateLocation(ctx context.Context, callID uuid.UUID, location *domain.Location) error {
	args := m.Called(ctx, callID, location)
	return args.Error(0)
}

func (m *MockCallRepository) GetByID(ctx context.Context, callID uuid.UUID) (*domain.Call, error) {
	args := m.Called(ctx, callID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Call), args.Error(1)
}

func (m *MockCallRepository) GetUserCalls(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Call, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Call), args.Error(1)
}

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

type MockLocationStore struct {
	mock.Mock
}

func (m *MockLocationStore) SetLocation(ctx context.Context, callID uuid.UUID, location *domain.Location) error {
	args := m.Called(ctx, callID, location)
	return args.Error(0)
}

func (m *MockLocationStore) GetLocation(ctx context.Context, callID uuid.UUID) (*domain.Location, error) {
	args := m.Called(ctx, callID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Location), args.Error(1)
}

type MockCaptureRecorder struct {
	mock.Mock
}

func (m *MockCaptureRecorder) RecordCaptureResult(ctx context.Context, callID uuid.UUID, result *domain.CaptureResult) error {
	args := m.Called(ctx, callID, result)
	return args.Error(0)
}

// Fixture

type routerFixture struct {
	router        *Router
	registry      *session.Registry
	callRepo      *MockCallRepository
	captures      *MockCaptureRecorder
	call          *domain.Call
	coordinatorID uuid.UUID
	inspectorID   uuid.UUID
}

func newRouterFixture(t *testing.T, status domain.CallStatus) *routerFixture {
	t.Helper()

	coordinatorID := uuid.New()
	inspectorID := uuid.New()
	call := &domain.Call{
		CallID:        uuid.New(),
		CoordinatorID: coordinatorID,
		InspectorID:   inspectorID,
		Status:        status,
		StartedAt:     time.Now().UTC(),
	}

	callRepo := new(MockCallRepository)
	callRepo.On("GetByID", mock.Anything, call.CallID).Return(call, nil)

	registry := session.NewRegistry(callRepo, new(MockUserRepository), new(MockLocationStore), nil)
	captures := new(MockCaptureRecorder)

	return &routerFixture{
		router:        NewRouter(registry, captures, nil),
		registry:      registry,
		callRepo:      callRepo,
		captures:      captures,
		call:          call,
		coordinatorID: coordinatorID,
		inspectorID:   inspectorID,
	}
}

func message(typ domain.SignalType, callID, userID uuid.UUID, data string) *domain.SignalingMessage {
	msg := &domain.SignalingMessage{
		Type:   typ,
		CallID: callID.String(),
		UserID: userID.String(),
	}
	if data != "" {
		msg.Data = json.RawMessage(data)
	}
	return msg
}

// Tests

func TestCallLifecycle(t *testing.T) {
	f := newRouterFixture(t, domain.CallStatusPending)
	ctx := context.Background()

	f.callRepo.On("UpdateStatus", mock.Anything, f.call.CallID, domain.CallStatusActive).Return(nil)
	f.callRepo.On("EndCall", mock.Anything, f.call.CallID, mock.AnythingOfType("time.Time")).Return(nil)
	f.captures.On("RecordCaptureResult", mock.Anything, f.call.CallID, mock.AnythingOfType("*domain.CaptureResult")).Return(nil)

	// Coordinator joins: private ack, call still pending
	deliveries, err := f.router.Route(ctx, message(domain.SignalTypeJoinCall, f.call.CallID, f.coordinatorID, ""))
	assert.NoError(t, err)
	assert.Len(t, deliveries, 1)
	assert.Equal(t, f.coordinatorID, deliveries[0].To)
	assert.Contains(t, string(deliveries[0].Message.Data), "pending")
	assert.Equal(t, domain.CallStatusPending, f.call.Status)

	// Inspector joins: call activates, both sides notified
	deliveries, err = f.router.Route(ctx, message(domain.SignalTypeJoinCall, f.call.CallID, f.inspectorID, ""))
	assert.NoError(t, err)
	assert.Len(t, deliveries, 2)
	assert.Equal(t, domain.CallStatusActive, f.call.Status)
	recipients := []uuid.UUID{deliveries[0].To, deliveries[1].To}
	assert.Contains(t, recipients, f.coordinatorID)
	assert.Contains(t, recipients, f.inspectorID)
	assert.Contains(t, string(deliveries[0].Message.Data), "active")

	// Coordinator requests a capture: routed to the inspector only
	deliveries, err = f.router.Route(ctx, message(domain.SignalTypeCaptureRequest, f.call.CallID, f.coordinatorID, ""))
	assert.NoError(t, err)
	assert.Len(t, deliveries, 1)
	assert.Equal(t, f.inspectorID, deliveries[0].To)

	// Inspector completes the capture: recorded and forwarded
	payload := `{"filename":"site.jpg","originalUrl":"https://storage/site.jpg"}`
	deliveries, err = f.router.Route(ctx, message(domain.SignalTypeCaptureComplete, f.call.CallID, f.inspectorID, payload))
	assert.NoError(t, err)
	assert.Len(t, deliveries, 1)
	assert.Equal(t, f.coordinatorID, deliveries[0].To)
	f.captures.AssertCalled(t, "RecordCaptureResult", mock.Anything, f.call.CallID, mock.AnythingOfType("*domain.CaptureResult"))

	// Coordinator leaves: call ends, both sides notified
	deliveries, err = f.router.Route(ctx, message(domain.SignalTypeLeaveCall, f.call.CallID, f.coordinatorID, ""))
	assert.NoError(t, err)
	assert.Len(t, deliveries, 2)
	assert.Equal(t, domain.CallStatusEnded, f.call.Status)
	assert.NotNil(t, f.call.EndedAt)

	// Nothing is routable on an ended call
	_, err = f.router.Route(ctx, message(domain.SignalTypeChatMessage, f.call.CallID, f.inspectorID, `{"text":"hi"}`))
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidState))

	f.callRepo.AssertExpectations(t)
}

func TestJoinIsIdempotent(t *testing.T) {
	f := newRouterFixture(t, domain.CallStatusPending)
	ctx := context.Background()

	first, err := f.router.Route(ctx, message(domain.SignalTypeJoinCall, f.call.CallID, f.coordinatorID, ""))
	assert.NoError(t, err)

	second, err := f.router.Route(ctx, message(domain.SignalTypeJoinCall, f.call.CallID, f.coordinatorID, ""))
	assert.NoError(t, err)

	// Duplicate join acks privately, never broadcasts, never transitions
	assert.Len(t, first, 1)
	assert.Len(t, second, 1)
	assert.Equal(t, f.coordinatorID, second[0].To)
	assert.Equal(t, domain.CallStatusPending, f.call.Status)
	f.callRepo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestNegotiationRoutesToCounterpart(t *testing.T) {
	f := newRouterFixture(t, domain.CallStatusActive)
	ctx := context.Background()

	for _, typ := range []domain.SignalType{
		domain.SignalTypeOffer,
		domain.SignalTypeAnswer,
		domain.SignalTypeICECandidate,
		domain.SignalTypeICERestartRequest,
		domain.SignalTypeChatMessage,
	} {
		deliveries, err := f.router.Route(ctx, message(typ, f.call.CallID, f.coordinatorID, `{"x":1}`))
		assert.NoError(t, err, "type %s", typ)
		assert.Len(t, deliveries, 1)
		// Never echoed back to the sender
		assert.Equal(t, f.inspectorID, deliveries[0].To, "type %s", typ)

		deliveries, err = f.router.Route(ctx, message(typ, f.call.CallID, f.inspectorID, `{"x":1}`))
		assert.NoError(t, err, "type %s", typ)
		assert.Equal(t, f.coordinatorID, deliveries[0].To, "type %s", typ)
	}
}

func TestNegotiationBeforeAnyJoinRejected(t *testing.T) {
	f := newRouterFixture(t, domain.CallStatusPending)

	_, err := f.router.Route(context.Background(), message(domain.SignalTypeOffer, f.call.CallID, f.coordinatorID, `{"sdp":"v=0"}`))

	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidState))
}

func TestNegotiationAllowedInPendingAfterJoin(t *testing.T) {
	f := newRouterFixture(t, domain.CallStatusPending)
	ctx := context.Background()

	_, err := f.router.Route(ctx, message(domain.SignalTypeJoinCall, f.call.CallID, f.coordinatorID, ""))
	assert.NoError(t, err)

	deliveries, err := f.router.Route(ctx, message(domain.SignalTypeOffer, f.call.CallID, f.coordinatorID, `{"sdp":"v=0"}`))
	assert.NoError(t, err)
	assert.Equal(t, f.inspectorID, deliveries[0].To)
}

func TestStrangerIsForbidden(t *testing.T) {
	f := newRouterFixture(t, domain.CallStatusActive)

	_, err := f.router.Route(context.Background(), message(domain.SignalTypeOffer, f.call.CallID, uuid.New(), ""))

	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeForbidden))
}

func TestUnknownCall(t *testing.T) {
	callRepo := new(MockCallRepository)
	unknownID := uuid.New()
	callRepo.On("GetByID", mock.Anything, unknownID).Return(nil, apperrors.CallNotFoundError())

	registry := session.NewRegistry(callRepo, new(MockUserRepository), new(MockLocationStore), nil)
	router := NewRouter(registry, new(MockCaptureRecorder), nil)

	_, err := router.Route(context.Background(), message(domain.SignalTypeJoinCall, unknownID, uuid.New(), ""))

	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeCallNotFound))
}

func TestCaptureOnPendingCallRejected(t *testing.T) {
	f := newRouterFixture(t, domain.CallStatusPending)
	ctx := context.Background()

	for _, typ := range []domain.SignalType{
		domain.SignalTypeCaptureRequest,
		domain.SignalTypeCaptureImage,
		domain.SignalTypeCaptureComplete,
		domain.SignalTypeCaptureError,
	} {
		_, err := f.router.Route(ctx, message(typ, f.call.CallID, f.coordinatorID, ""))
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidState), "type %s", typ)
	}
}

func TestInspectorCaptureImageAckedToDevice(t *testing.T) {
	f := newRouterFixture(t, domain.CallStatusActive)

	deliveries, err := f.router.Route(context.Background(), message(domain.SignalTypeCaptureImage, f.call.CallID, f.inspectorID, ""))

	assert.NoError(t, err)
	assert.Len(t, deliveries, 1)
	assert.Equal(t, f.inspectorID, deliveries[0].To)
}

func TestCaptureCompleteInvalidPayload(t *testing.T) {
	f := newRouterFixture(t, domain.CallStatusActive)
	ctx := context.Background()

	// Missing originalUrl
	_, err := f.router.Route(ctx, message(domain.SignalTypeCaptureComplete, f.call.CallID, f.inspectorID, `{"filename":"a.jpg"}`))
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))

	// Malformed payload
	_, err = f.router.Route(ctx, message(domain.SignalTypeCaptureComplete, f.call.CallID, f.inspectorID, `"not-an-object`))
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))

	f.captures.AssertNotCalled(t, "RecordCaptureResult", mock.Anything, mock.Anything, mock.Anything)
}

func TestLeavePendingCallCancelsIt(t *testing.T) {
	f := newRouterFixture(t, domain.CallStatusPending)
	ctx := context.Background()

	f.callRepo.On("EndCall", mock.Anything, f.call.CallID, mock.AnythingOfType("time.Time")).Return(nil)

	deliveries, err := f.router.Route(ctx, message(domain.SignalTypeLeaveCall, f.call.CallID, f.inspectorID, ""))

	assert.NoError(t, err)
	assert.Len(t, deliveries, 2)
	assert.Equal(t, domain.CallStatusEnded, f.call.Status)
	f.callRepo.AssertExpectations(t)
}

func TestActivationRollsBackOnPersistFailure(t *testing.T) {
	f := newRouterFixture(t, domain.CallStatusPending)
	ctx := context.Background()

	f.callRepo.On("UpdateStatus", mock.Anything, f.call.CallID, domain.CallStatusActive).
		Return(assert.AnError)

	_, err := f.router.Route(ctx, message(domain.SignalTypeJoinCall, f.call.CallID, f.coordinatorID, ""))
	assert.NoError(t, err)

	_, err = f.router.Route(ctx, message(domain.SignalTypeJoinCall, f.call.CallID, f.inspectorID, ""))
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeDatabase))
	// The call stays pending so a retried join can complete the transition
	assert.Equal(t, domain.CallStatusPending, f.call.Status)
}
