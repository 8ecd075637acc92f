// Package signaling implements the wire codec and the per-call routing state
// machine for inspection-call messages.
package signaling

import (
	"encoding/json"
	"fmt"

	"inspectcall-backend/internal/domain"
	apperrors "inspectcall-backend/pkg/errors"
)

// DecodeMessage parses and validates a raw signaling frame. The payload is
// passed through opaquely; type-specific validation happens downstream.
func DecodeMessage(raw []byte) (*domain.SignalingMessage, error) {
	msg := &domain.SignalingMessage{}
	if err := json.Unmarshal(raw, msg); err != nil {
		return nil, apperrors.DecodeError("malformed signaling message")
	}

	if !domain.ValidSignalType(msg.Type) {
		return nil, apperrors.DecodeError(fmt.Sprintf("unknown message type: %q", msg.Type))
	}
	if msg.CallID == "" {
		return nil, apperrors.DecodeError("callId is required")
	}
	if msg.UserID == "" {
		return nil, apperrors.DecodeError("userId is required")
	}

	return msg, nil
}

// EncodeMessage serializes a signaling message for the wire
func EncodeMessage(msg *domain.SignalingMessage) ([]byte, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode signaling message: %w", err)
	}
	return raw, nil
}
