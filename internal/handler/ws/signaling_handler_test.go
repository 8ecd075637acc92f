package ws

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"inspectcall-backend/internal/domain"
	"inspectcall-backend/internal/service/session"
	"inspectcall-backend/pkg/metrics"
)

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

func newTestHub(registry *session.Registry) *SignalingHub {
	return &SignalingHub{
		calls:               make(map[uuid.UUID]map[uuid.UUID]*SignalingClient),
		subscriptionCancels: make(map[uuid.UUID]context.CancelFunc),
		registry:            registry,
		metrics:             metrics.NewMetrics("signaling-test"),
		instanceID:          uuid.NewString(),
		register:            make(chan *SignalingClient),
		unregister:          make(chan *SignalingClient),
		outbound:            make(chan *outboundMessage, 16),
		semaphore:           make(chan struct{}, 8),
	}
}

func attach(hub *SignalingHub, callID, userID uuid.UUID, buffer int) *SignalingClient {
	ctx, cancel := context.WithCancel(context.Background())
	client := &SignalingClient{
		hub:    hub,
		send:   make(chan []byte, buffer),
		userID: userID,
		callID: callID,
		ctx:    ctx,
		cancel: cancel,
	}
	hub.mu.Lock()
	if hub.calls[callID] == nil {
		hub.calls[callID] = make(map[uuid.UUID]*SignalingClient)
	}
	hub.calls[callID][userID] = client
	hub.mu.Unlock()
	return client
}

func TestSlowConsumerDropDetachesClient(t *testing.T) {
	call := &domain.Call{
		CallID:        uuid.New(),
		CoordinatorID: uuid.New(),
		InspectorID:   uuid.New(),
		Status:        domain.CallStatusEnded,
	}
	callRepo := new(MockCallRepository)
	callRepo.On("GetByID", mock.Anything, call.CallID).Return(call, nil)

	registry := session.NewRegistry(callRepo, new(MockUserRepository), new(MockLocationStore), nil)
	assert.NoError(t, registry.Connect(context.Background(), call.CallID, call.InspectorID))

	hub := newTestHub(registry)
	client := attach(hub, call.CallID, call.InspectorID, 0)
	go hub.run()

	// Nobody drains the send channel, so the delivery cannot be buffered
	hub.outbound <- &outboundMessage{callID: call.CallID, to: call.InspectorID, payload: []byte(`{}`)}

	assert.Eventually(t, func() bool {
		hub.mu.RLock()
		_, attached := hub.calls[call.CallID]
		hub.mu.RUnlock()
		return !attached
	}, time.Second, 10*time.Millisecond)

	// The drop released the registry presence too: the ended session was
	// evicted, so the next lookup has to hydrate from the repository again
	assert.Eventually(t, func() bool {
		_, err := registry.GetCall(context.Background(), call.CallID)
		assert.NoError(t, err)
		hydrations := 0
		for _, mockCall := range callRepo.Calls {
			if mockCall.Method == "GetByID" {
				hydrations++
			}
		}
		return hydrations >= 2
	}, time.Second, 10*time.Millisecond)

	select {
	case _, open := <-client.send:
		assert.False(t, open)
	default:
		t.Fatal("send channel left open after drop")
	}
	assert.Error(t, client.ctx.Err())
}

func TestReplacedAttachmentDoesNotDetachSuccessor(t *testing.T) {
	call := &domain.Call{
		CallID:        uuid.New(),
		CoordinatorID: uuid.New(),
		InspectorID:   uuid.New(),
		Status:        domain.CallStatusActive,
	}
	callRepo := new(MockCallRepository)
	callRepo.On("GetByID", mock.Anything, call.CallID).Return(call, nil)

	registry := session.NewRegistry(callRepo, new(MockUserRepository), new(MockLocationStore), nil)
	assert.NoError(t, registry.Connect(context.Background(), call.CallID, call.InspectorID))

	hub := newTestHub(registry)
	stale := attach(hub, call.CallID, call.InspectorID, 1)
	fresh := attach(hub, call.CallID, call.InspectorID, 1)

	// The stale connection's teardown arrives after the reconnect
	hub.detach(stale)

	hub.mu.RLock()
	current := hub.calls[call.CallID][call.InspectorID]
	hub.mu.RUnlock()
	assert.Same(t, fresh, current)
	assert.NoError(t, fresh.ctx.Err())
}
