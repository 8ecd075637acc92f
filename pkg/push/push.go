package push

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"inspectcall-backend/internal/domain"
	"inspectcall-backend/pkg/logger"
)

// Provider defines the interface for sending push notifications
type Provider interface {
	Send(ctx context.Context, notification *Notification, tokens []string) (*SendResult, error)
}

// SendResult contains the result of a push notification send operation
type SendResult struct {
	SuccessCount  int
	FailureCount  int
	InvalidTokens []string
	Errors        []error
}

// Notification represents a push notification
type Notification struct {
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data,omitempty"`
	Priority string            `json:"priority,omitempty"` // high, normal, low
	Sound    string            `json:"sound,omitempty"`
	Category string            `json:"category,omitempty"`
}

// TokenSource resolves the device tokens registered for a user
type TokenSource interface {
	GetTokens(ctx context.Context, userID uuid.UUID) ([]string, error)
}

// Service sends call-related push notifications
type Service struct {
	provider Provider
	tokens   TokenSource
}

// NewService creates a new push notification service
func NewService(provider Provider, tokens TokenSource) *Service {
	return &Service{
		provider: provider,
		tokens:   tokens,
	}
}

// SendCallInvite notifies the inspector that a coordinator created a call and
// is waiting for them to join. Failures are logged, not propagated: a call is
// usable without the push.
func (s *Service) SendCallInvite(ctx context.Context, call *domain.Call, coordinatorName string) {
	tokens, err := s.tokens.GetTokens(ctx, call.InspectorID)
	if err != nil {
		logger.Warn("Failed to get push tokens for inspector",
			zap.String("inspector_id", call.InspectorID.String()),
			zap.Error(err))
		return
	}
	if len(tokens) == 0 {
		return
	}

	notification := &Notification{
		Title:    "Inspection call",
		Body:     fmt.Sprintf("%s is waiting for you to join an inspection call", coordinatorName),
		Priority: "high",
		Sound:    "default",
		Category: "INSPECTION_CALL",
		Data: map[string]string{
			"type":           "call-invite",
			"call_id":        call.CallID.String(),
			"coordinator_id": call.CoordinatorID.String(),
			"status":         string(call.Status),
			"timestamp":      fmt.Sprintf("%d", time.Now().Unix()),
		},
	}

	result, err := s.provider.Send(ctx, notification, tokens)
	if err != nil {
		logger.Warn("Failed to send call invite push",
			zap.String("call_id", call.CallID.String()),
			zap.Error(err))
		return
	}

	logger.Debug("Call invite push sent",
		zap.String("call_id", call.CallID.String()),
		zap.Int("success", result.SuccessCount),
		zap.Int("failure", result.FailureCount))
}

// MockProvider is a no-op provider for development and testing
type MockProvider struct{}

// Send implements Provider; it logs and reports success for every token
func (m *MockProvider) Send(_ context.Context, notification *Notification, tokens []string) (*SendResult, error) {
	logger.Debug("Mock push send",
		zap.String("title", notification.Title),
		zap.Int("tokens", len(tokens)))
	return &SendResult{SuccessCount: len(tokens)}, nil
}
