// Package session tracks inspection calls, their participants, and their
// transient connection state. Persistence is delegated to the call
// repository; the in-memory session table is the authoritative copy for
// signaling while a call is live.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"inspectcall-backend/internal/domain"
	apperrors "inspectcall-backend/pkg/errors"
	"inspectcall-backend/pkg/logger"
)

// CallRepository persists call records
type CallRepository interface {
	Create(ctx context.Context, call *domain.Call) error
	UpdateStatus(ctx context.Context, callID uuid.UUID, status domain.CallStatus) error
	EndCall(ctx context.Context, callID uuid.UUID, endedAt time.Time) error
	UpdateLocation(ctx context.Context, callID uuid.UUID, location *domain.Location) error
	GetByID(ctx context.Context, callID uuid.UUID) (*domain.Call, error)
	GetUserCalls(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Call, error)
}

// UserRepository resolves user records
type UserRepository interface {
	GetByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
}

// LocationStore holds the latest inspector location per call
type LocationStore interface {
	SetLocation(ctx context.Context, callID uuid.UUID, location *domain.Location) error
	GetLocation(ctx context.Context, callID uuid.UUID) (*domain.Location, error)
}

// InviteSender notifies the inspector that a call is waiting for them
type InviteSender interface {
	SendCallInvite(ctx context.Context, call *domain.Call, coordinatorName string)
}

// Session is the live state of one call. Lock covers everything below it;
// the signaling router holds it for the duration of one message so a call's
// transitions are never interleaved with themselves. Different calls use
// different locks and proceed in parallel.
type Session struct {
	Lock sync.Mutex

	Call *domain.Call

	// Joined records which participants have sent join-call. Assignment to a
	// call is permanent; joining is an act.
	Joined map[uuid.UUID]bool

	// Connected records which participants currently have a live transport
	// attachment. Distinct from Joined: a reconnecting client is joined but
	// briefly not connected.
	Connected map[uuid.UUID]bool
}

// Registry is the in-memory session table
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session

	calls     CallRepository
	users     UserRepository
	locations LocationStore
	invites   InviteSender // optional
}

// NewRegistry creates a new session registry. invites may be nil.
func NewRegistry(calls CallRepository, users UserRepository, locations LocationStore, invites InviteSender) *Registry {
	return &Registry{
		sessions:  make(map[uuid.UUID]*Session),
		calls:     calls,
		users:     users,
		locations: locations,
		invites:   invites,
	}
}

// CreateCall creates a new call in pending status between a coordinator and
// an inspector. Both users must exist and hold the matching role.
func (r *Registry) CreateCall(ctx context.Context, coordinatorID, inspectorID uuid.UUID, inspectionReference string) (*domain.Call, error) {
	coordinator, err := r.users.GetByID(ctx, coordinatorID)
	if err != nil {
		return nil, err
	}
	if coordinator.Role != domain.RoleCoordinator {
		return nil, apperrors.ValidationError("coordinator_id does not reference a coordinator")
	}

	inspector, err := r.users.GetByID(ctx, inspectorID)
	if err != nil {
		return nil, err
	}
	if inspector.Role != domain.RoleInspector {
		return nil, apperrors.ValidationError("inspector_id does not reference an inspector")
	}

	call := &domain.Call{
		CallID:              uuid.New(),
		CoordinatorID:       coordinatorID,
		InspectorID:         inspectorID,
		InspectionReference: inspectionReference,
		Status:              domain.CallStatusPending,
		StartedAt:           time.Now().UTC(),
	}

	if err := r.calls.Create(ctx, call); err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	r.mu.Lock()
	r.sessions[call.CallID] = newSession(call)
	r.mu.Unlock()

	if r.invites != nil {
		r.invites.SendCallInvite(ctx, call, coordinator.DisplayName)
	}

	logger.Info("Call created",
		zap.String("call_id", call.CallID.String()),
		zap.String("coordinator_id", coordinatorID.String()),
		zap.String("inspector_id", inspectorID.String()))

	return call, nil
}

func newSession(call *domain.Call) *Session {
	return &Session{
		Call:      call,
		Joined:    make(map[uuid.UUID]bool),
		Connected: make(map[uuid.UUID]bool),
	}
}

// SessionFor returns the live session for a call, hydrating it from the
// repository after a restart. Returns CallNotFoundError for unknown ids.
func (r *Registry) SessionFor(ctx context.Context, callID uuid.UUID) (*Session, error) {
	r.mu.RLock()
	sess, ok := r.sessions[callID]
	r.mu.RUnlock()
	if ok {
		return sess, nil
	}

	call, err := r.calls.GetByID(ctx, callID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Another goroutine may have hydrated it in the meantime
	if sess, ok := r.sessions[callID]; ok {
		return sess, nil
	}
	sess = newSession(call)
	r.sessions[callID] = sess
	return sess, nil
}

// Connect records a transport attachment for a participant.
// Returns ForbiddenError when userID is neither the coordinator nor the
// inspector of the call.
func (r *Registry) Connect(ctx context.Context, callID, userID uuid.UUID) error {
	sess, err := r.SessionFor(ctx, callID)
	if err != nil {
		return err
	}

	sess.Lock.Lock()
	defer sess.Lock.Unlock()

	if sess.Call.ParticipantRole(userID) == "" {
		return apperrors.ForbiddenError("user is not a participant of this call")
	}

	sess.Connected[userID] = true
	return nil
}

// Disconnect removes a transport attachment. Sessions of ended calls are
// dropped from the table once the last participant detaches.
func (r *Registry) Disconnect(ctx context.Context, callID, userID uuid.UUID) {
	r.mu.RLock()
	sess, ok := r.sessions[callID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	sess.Lock.Lock()
	delete(sess.Connected, userID)
	drop := sess.Call.Status == domain.CallStatusEnded && len(sess.Connected) == 0
	sess.Lock.Unlock()

	if drop {
		r.mu.Lock()
		delete(r.sessions, callID)
		r.mu.Unlock()
	}
}

// GetCall returns a snapshot of the call record
func (r *Registry) GetCall(ctx context.Context, callID uuid.UUID) (*domain.Call, error) {
	sess, err := r.SessionFor(ctx, callID)
	if err != nil {
		return nil, err
	}

	sess.Lock.Lock()
	defer sess.Lock.Unlock()
	snapshot := *sess.Call
	return &snapshot, nil
}

// UpdateLocation overwrites the inspector's location snapshot. Only the
// inspector of the call may report location; the call must not have ended.
func (r *Registry) UpdateLocation(ctx context.Context, callID, userID uuid.UUID, location *domain.Location) error {
	sess, err := r.SessionFor(ctx, callID)
	if err != nil {
		return err
	}

	sess.Lock.Lock()
	defer sess.Lock.Unlock()

	if sess.Call.InspectorID != userID {
		return apperrors.ForbiddenError("only the inspector may report location")
	}
	if sess.Call.Status == domain.CallStatusEnded {
		return apperrors.InvalidStateError("call has ended")
	}

	sess.Call.InspectorLocation = location

	if err := r.locations.SetLocation(ctx, callID, location); err != nil {
		return err
	}
	if err := r.calls.UpdateLocation(ctx, callID, location); err != nil {
		return apperrors.DatabaseError(err)
	}

	return nil
}

// PersistStatus writes a status change through to the call repository.
// Callers hold the session lock and have already mutated the in-memory call;
// this only touches storage.
func (r *Registry) PersistStatus(ctx context.Context, callID uuid.UUID, status domain.CallStatus) error {
	if err := r.calls.UpdateStatus(ctx, callID, status); err != nil {
		return apperrors.DatabaseError(err)
	}
	return nil
}

// PersistEnd writes the terminal transition through to the call repository.
// Same locking contract as PersistStatus.
func (r *Registry) PersistEnd(ctx context.Context, callID uuid.UUID, endedAt time.Time) error {
	if err := r.calls.EndCall(ctx, callID, endedAt); err != nil {
		return apperrors.DatabaseError(err)
	}
	return nil
}

// GetUserCalls returns a user's call history, newest first
func (r *Registry) GetUserCalls(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Call, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	calls, err := r.calls.GetUserCalls(ctx, userID, limit, offset)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return calls, nil
}

// EndCall force-ends a call outside the signaling path (explicit end action
// from the REST API). Idempotent on already-ended calls.
func (r *Registry) EndCall(ctx context.Context, callID, userID uuid.UUID) (*domain.Call, error) {
	sess, err := r.SessionFor(ctx, callID)
	if err != nil {
		return nil, err
	}

	sess.Lock.Lock()

	if sess.Call.ParticipantRole(userID) == "" {
		sess.Lock.Unlock()
		return nil, apperrors.ForbiddenError("user is not a participant of this call")
	}

	if sess.Call.Status != domain.CallStatusEnded {
		endedAt := time.Now().UTC()
		sess.Call.Status = domain.CallStatusEnded
		sess.Call.EndedAt = &endedAt

		if err := r.calls.EndCall(ctx, callID, endedAt); err != nil {
			sess.Lock.Unlock()
			return nil, apperrors.DatabaseError(err)
		}

		logger.Info("Call ended",
			zap.String("call_id", callID.String()),
			zap.String("ended_by", userID.String()))
	}

	snapshot := *sess.Call
	drop := len(sess.Connected) == 0
	sess.Lock.Unlock()

	// With no attachments left there is no Disconnect coming to evict the
	// session
	if drop {
		r.mu.Lock()
		delete(r.sessions, callID)
		r.mu.Unlock()
	}

	return &snapshot, nil
}
