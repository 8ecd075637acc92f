// Package device exposes push-notification device token registration over
// HTTP. Tokens feed the call-invite push sent when a coordinator opens a
// call.
package device

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "inspectcall-backend/pkg/errors"
	"inspectcall-backend/pkg/logger"
	"inspectcall-backend/pkg/response"
)

// TokenStore registers and removes device tokens per user
type TokenStore interface {
	Register(ctx context.Context, userID uuid.UUID, token string) error
	Unregister(ctx context.Context, userID uuid.UUID, token string) error
}

// Handler handles device token HTTP requests
type Handler struct {
	tokens TokenStore
}

// NewHandler creates a new device token handler
func NewHandler(tokens TokenStore) *Handler {
	return &Handler{tokens: tokens}
}

// TokenRequest carries one device token
type TokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// RegisterToken registers a push device token for the authenticated user
// POST /v1/devices
func (h *Handler) RegisterToken(c *gin.Context) {
	userID, ok := contextUserID(c)
	if !ok {
		return
	}

	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	if err := h.tokens.Register(c.Request.Context(), userID, req.Token); err != nil {
		logger.Error("Failed to register device token",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		response.FromError(c, apperrors.StorageError(err))
		return
	}

	logger.Info("Device token registered",
		zap.String("user_id", userID.String()))

	response.Success(c, http.StatusOK, gin.H{"message": "Token registered"})
}

// UnregisterToken removes a push device token for the authenticated user
// DELETE /v1/devices
func (h *Handler) UnregisterToken(c *gin.Context) {
	userID, ok := contextUserID(c)
	if !ok {
		return
	}

	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	if err := h.tokens.Unregister(c.Request.Context(), userID, req.Token); err != nil {
		logger.Error("Failed to unregister device token",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		response.FromError(c, apperrors.StorageError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Token unregistered"})
}

// contextUserID pulls the authenticated user ID set by the auth middleware
func contextUserID(c *gin.Context) (uuid.UUID, bool) {
	val, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, "Not authenticated")
		return uuid.Nil, false
	}
	userID, ok := val.(uuid.UUID)
	if !ok {
		response.InternalError(c, "Invalid user ID")
		return uuid.Nil, false
	}
	return userID, true
}
