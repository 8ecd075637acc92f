package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"inspectcall-backend/internal/domain"
	"inspectcall-backend/internal/service/session"
	apperrors "inspectcall-backend/pkg/errors"
	"inspectcall-backend/pkg/logger"
	"inspectcall-backend/pkg/metrics"
)

// Delivery is one outbound message addressed to one participant. The
// transport owns actual delivery; the router never blocks on it.
type Delivery struct {
	To      uuid.UUID
	Message *domain.SignalingMessage
}

// CaptureRecorder persists the result a capture-complete message carries
type CaptureRecorder interface {
	RecordCaptureResult(ctx context.Context, callID uuid.UUID, result *domain.CaptureResult) error
}

// Router is the per-call signaling state machine. It validates every inbound
// message against the call's current status, applies status transitions, and
// decides who receives what. Processing for one call is serialized on the
// session lock; different calls proceed in parallel.
type Router struct {
	registry *session.Registry
	captures CaptureRecorder
	metrics  *metrics.Metrics // optional
}

// NewRouter creates a new signaling router. metrics may be nil.
func NewRouter(registry *session.Registry, captures CaptureRecorder, m *metrics.Metrics) *Router {
	return &Router{
		registry: registry,
		captures: captures,
		metrics:  m,
	}
}

// statusPayload is the data attached to join-call/leave-call notifications
type statusPayload struct {
	Status domain.CallStatus `json:"status"`
}

func mustPayload(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		// statusPayload is a fixed shape; marshalling cannot fail
		panic(fmt.Sprintf("signaling: marshal payload: %v", err))
	}
	return raw
}

// Route processes one inbound message and returns the deliveries the
// transport must make. The session lock is released before returning, so
// callers send without holding any call state.
//
// Errors are addressed to the sender alone and never disturb other calls.
func (r *Router) Route(ctx context.Context, msg *domain.SignalingMessage) ([]Delivery, error) {
	deliveries, err := r.route(ctx, msg)
	if err != nil {
		if r.metrics != nil {
			code := apperrors.ErrCodeInternal
			if appErr := apperrors.GetAppError(err); appErr != nil {
				code = appErr.Code
			}
			r.metrics.RecordSignalingError(string(code))
		}
		return nil, err
	}
	if r.metrics != nil {
		r.metrics.RecordSignalingMessage(string(msg.Type))
	}
	return deliveries, nil
}

func (r *Router) route(ctx context.Context, msg *domain.SignalingMessage) ([]Delivery, error) {
	callID, err := uuid.Parse(msg.CallID)
	if err != nil {
		return nil, apperrors.DecodeError("callId is not a valid id")
	}
	senderID, err := uuid.Parse(msg.UserID)
	if err != nil {
		return nil, apperrors.DecodeError("userId is not a valid id")
	}

	sess, err := r.registry.SessionFor(ctx, callID)
	if err != nil {
		return nil, err
	}

	sess.Lock.Lock()
	defer sess.Lock.Unlock()

	call := sess.Call

	role := call.ParticipantRole(senderID)
	if role == "" {
		return nil, apperrors.ForbiddenError("sender is not a participant of this call")
	}

	if call.Status == domain.CallStatusEnded {
		return nil, apperrors.InvalidStateError("call has ended")
	}

	counterpart, _ := call.Counterpart(senderID)

	switch msg.Type {
	case domain.SignalTypeJoinCall:
		return r.handleJoin(ctx, sess, senderID)

	case domain.SignalTypeLeaveCall:
		return r.handleLeave(ctx, sess, senderID)

	case domain.SignalTypeOffer, domain.SignalTypeAnswer,
		domain.SignalTypeICECandidate, domain.SignalTypeICERestartRequest:
		// Negotiation is allowed while pending once one side has joined, so
		// the peer connection can come up before the counterpart's join-call
		// lands.
		if call.Status == domain.CallStatusPending && len(sess.Joined) == 0 {
			return nil, apperrors.InvalidStateError("negotiation before any participant joined")
		}
		return []Delivery{{To: counterpart, Message: msg}}, nil

	case domain.SignalTypeChatMessage:
		// Valid in pending or active; ephemeral, never persisted
		return []Delivery{{To: counterpart, Message: msg}}, nil

	case domain.SignalTypeCaptureRequest, domain.SignalTypeCaptureImage:
		if call.Status != domain.CallStatusActive {
			return nil, apperrors.InvalidStateError("capture is only available on an active call")
		}
		if role == domain.RoleCoordinator {
			return []Delivery{{To: call.InspectorID, Message: msg}}, nil
		}
		// Inspector-initiated capture: acknowledge back to the device
		return []Delivery{{To: senderID, Message: msg}}, nil

	case domain.SignalTypeCaptureComplete:
		if call.Status != domain.CallStatusActive {
			return nil, apperrors.InvalidStateError("capture is only available on an active call")
		}
		return r.handleCaptureComplete(ctx, call, counterpart, msg)

	case domain.SignalTypeCaptureError:
		if call.Status != domain.CallStatusActive {
			return nil, apperrors.InvalidStateError("capture is only available on an active call")
		}
		return []Delivery{{To: counterpart, Message: msg}}, nil

	default:
		// Unreachable: the codec rejects unknown types
		return nil, apperrors.DecodeError(fmt.Sprintf("unknown message type: %q", msg.Type))
	}
}

// handleJoin records the join and, when both sides have joined, moves the
// call to active. Duplicate joins are acknowledged, never broadcast.
func (r *Router) handleJoin(ctx context.Context, sess *session.Session, senderID uuid.UUID) ([]Delivery, error) {
	call := sess.Call

	ack := func() []Delivery {
		return []Delivery{{
			To: senderID,
			Message: &domain.SignalingMessage{
				Type:   domain.SignalTypeJoinCall,
				CallID: call.CallID.String(),
				UserID: senderID.String(),
				Data:   mustPayload(statusPayload{Status: call.Status}),
			},
		}}
	}

	if sess.Joined[senderID] {
		// Idempotent: duplicate join-call is a no-op
		return ack(), nil
	}

	sess.Joined[senderID] = true

	bothJoined := sess.Joined[call.CoordinatorID] && sess.Joined[call.InspectorID]
	if !bothJoined || call.Status != domain.CallStatusPending {
		return ack(), nil
	}

	call.Status = domain.CallStatusActive
	if err := r.registry.PersistStatus(ctx, call.CallID, domain.CallStatusActive); err != nil {
		// Roll back so a retry can complete the transition
		call.Status = domain.CallStatusPending
		delete(sess.Joined, senderID)
		return nil, err
	}

	if r.metrics != nil {
		r.metrics.RecordCallTransition(string(domain.CallStatusActive))
		r.metrics.CallActivated()
	}

	logger.Info("Call activated",
		zap.String("call_id", call.CallID.String()))

	// Status-change notification to both participants
	notification := &domain.SignalingMessage{
		Type:   domain.SignalTypeJoinCall,
		CallID: call.CallID.String(),
		UserID: senderID.String(),
		Data:   mustPayload(statusPayload{Status: domain.CallStatusActive}),
	}
	return []Delivery{
		{To: call.CoordinatorID, Message: notification},
		{To: call.InspectorID, Message: notification},
	}, nil
}

// handleLeave ends the call. Either side leaving terminates the session;
// leaving a pending call cancels it.
func (r *Router) handleLeave(ctx context.Context, sess *session.Session, senderID uuid.UUID) ([]Delivery, error) {
	call := sess.Call

	wasActive := call.Status == domain.CallStatusActive
	endedAt := time.Now().UTC()
	call.Status = domain.CallStatusEnded
	call.EndedAt = &endedAt

	if err := r.registry.PersistEnd(ctx, call.CallID, endedAt); err != nil {
		return nil, err
	}

	if r.metrics != nil {
		r.metrics.RecordCallTransition(string(domain.CallStatusEnded))
		if wasActive {
			r.metrics.CallEnded()
		}
	}

	logger.Info("Call ended by participant",
		zap.String("call_id", call.CallID.String()),
		zap.String("user_id", senderID.String()))

	notification := &domain.SignalingMessage{
		Type:   domain.SignalTypeLeaveCall,
		CallID: call.CallID.String(),
		UserID: senderID.String(),
		Data:   mustPayload(statusPayload{Status: domain.CallStatusEnded}),
	}
	return []Delivery{
		{To: call.CoordinatorID, Message: notification},
		{To: call.InspectorID, Message: notification},
	}, nil
}

// handleCaptureComplete persists the carried capture result, then forwards
// the message to the counterpart.
func (r *Router) handleCaptureComplete(ctx context.Context, call *domain.Call, counterpart uuid.UUID, msg *domain.SignalingMessage) ([]Delivery, error) {
	result := &domain.CaptureResult{}
	if err := json.Unmarshal(msg.Data, result); err != nil {
		return nil, apperrors.ValidationError("capture-complete payload is malformed")
	}
	if result.Filename == "" || result.OriginalURL == "" {
		return nil, apperrors.ValidationError("capture-complete requires filename and originalUrl")
	}

	if err := r.captures.RecordCaptureResult(ctx, call.CallID, result); err != nil {
		return nil, err
	}

	return []Delivery{{To: counterpart, Message: msg}}, nil
}
