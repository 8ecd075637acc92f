// Package call exposes call lifecycle and location endpoints over HTTP.
// Signaling itself travels over WebSocket; these endpoints create calls,
// inspect them, and end them out of band.
package call

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"inspectcall-backend/internal/domain"
	"inspectcall-backend/internal/service/location"
	"inspectcall-backend/internal/service/session"
	"inspectcall-backend/pkg/response"
)

// Handler handles call HTTP requests
type Handler struct {
	registry *session.Registry
	tracker  *location.Tracker
}

// NewHandler creates a new call handler
func NewHandler(registry *session.Registry, tracker *location.Tracker) *Handler {
	return &Handler{registry: registry, tracker: tracker}
}

// CreateCallRequest represents a call creation request
type CreateCallRequest struct {
	InspectorID         string `json:"inspector_id" binding:"required,uuid"`
	InspectionReference string `json:"inspection_reference"`
}

// CreateCall creates a pending call between the requesting coordinator and
// an inspector
// POST /v1/calls
func (h *Handler) CreateCall(c *gin.Context) {
	var req CreateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	coordinatorID, ok := contextUserID(c)
	if !ok {
		return
	}

	inspectorID, err := uuid.Parse(req.InspectorID)
	if err != nil {
		response.ValidationError(c, "Invalid inspector ID")
		return
	}

	created, err := h.registry.CreateCall(c.Request.Context(), coordinatorID, inspectorID, req.InspectionReference)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, created)
}

// GetCall retrieves a call by ID. Only its participants may see it.
// GET /v1/calls/:id
func (h *Handler) GetCall(c *gin.Context) {
	callID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid call ID")
		return
	}

	userID, ok := contextUserID(c)
	if !ok {
		return
	}

	call, err := h.registry.GetCall(c.Request.Context(), callID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	if call.ParticipantRole(userID) == "" {
		response.Forbidden(c, "Not a participant of this call")
		return
	}

	response.Success(c, http.StatusOK, call)
}

// EndCall force-ends a call from outside the signaling channel
// POST /v1/calls/:id/end
func (h *Handler) EndCall(c *gin.Context) {
	callID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid call ID")
		return
	}

	userID, ok := contextUserID(c)
	if !ok {
		return
	}

	ended, err := h.registry.EndCall(c.Request.Context(), callID, userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, ended)
}

// UpdateLocationRequest represents a location report from the inspector's
// device
type UpdateLocationRequest struct {
	Latitude  float64    `json:"latitude" binding:"min=-90,max=90"`
	Longitude float64    `json:"longitude" binding:"min=-180,max=180"`
	Accuracy  float64    `json:"accuracy"`
	Timestamp *time.Time `json:"timestamp"`
}

// UpdateLocation overwrites the call's inspector location
// PUT /v1/calls/:id/location
func (h *Handler) UpdateLocation(c *gin.Context) {
	callID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid call ID")
		return
	}

	userID, ok := contextUserID(c)
	if !ok {
		return
	}

	var req UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	loc := &domain.Location{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Accuracy:  req.Accuracy,
		Timestamp: time.Now().UTC(),
	}
	if req.Timestamp != nil {
		loc.Timestamp = *req.Timestamp
	}

	if err := h.registry.UpdateLocation(c.Request.Context(), callID, userID, loc); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, loc)
}

// GetLocation returns the latest inspector location for a call, if any
// GET /v1/calls/:id/location
func (h *Handler) GetLocation(c *gin.Context) {
	callID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid call ID")
		return
	}

	userID, ok := contextUserID(c)
	if !ok {
		return
	}

	call, err := h.registry.GetCall(c.Request.Context(), callID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	if call.ParticipantRole(userID) == "" {
		response.Forbidden(c, "Not a participant of this call")
		return
	}

	loc, err := h.tracker.GetLocation(c.Request.Context(), callID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	if loc == nil {
		loc = call.InspectorLocation
	}
	if loc == nil {
		response.NotFound(c, "No location reported for this call")
		return
	}

	response.Success(c, http.StatusOK, loc)
}

// ListUserCalls returns the requesting user's call history, newest first
// GET /v1/users/:id/calls
func (h *Handler) ListUserCalls(c *gin.Context) {
	paramID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid user ID")
		return
	}

	userID, ok := contextUserID(c)
	if !ok {
		return
	}
	if paramID != userID {
		response.Forbidden(c, "Cannot list another user's calls")
		return
	}

	limit, offset := pageParams(c)
	calls, err := h.registry.GetUserCalls(c.Request.Context(), userID, limit, offset)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"calls":  calls,
		"limit":  limit,
		"offset": offset,
	})
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

func pageParams(c *gin.Context) (int, int) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	return limit, offset
}
