// Package media exposes the capture ledger over HTTP: recording captures,
// listing them, and presigning object storage URLs.
package media

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"inspectcall-backend/internal/service/media"
	"inspectcall-backend/internal/service/session"
	"inspectcall-backend/pkg/response"
)

// Handler handles capture ledger HTTP requests
type Handler struct {
	mediaService *media.Service
	registry     *session.Registry
}

// NewHandler creates a new media handler
func NewHandler(mediaService *media.Service, registry *session.Registry) *Handler {
	return &Handler{mediaService: mediaService, registry: registry}
}

// RecordImageRequest represents a completed image capture
type RecordImageRequest struct {
	Filename     string         `json:"filename" binding:"required"`
	OriginalURL  string         `json:"original_url" binding:"required"`
	ThumbnailURL *string        `json:"thumbnail_url"`
	Metadata     map[string]any `json:"metadata"`
}

// RecordImage appends a captured image to the call's ledger
// POST /v1/calls/:id/images
func (h *Handler) RecordImage(c *gin.Context) {
	callID, ok := h.participantCall(c)
	if !ok {
		return
	}

	var req RecordImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	image, err := h.mediaService.RecordImage(c.Request.Context(), &media.RecordImageInput{
		CallID:       callID,
		Filename:     req.Filename,
		OriginalURL:  req.OriginalURL,
		ThumbnailURL: req.ThumbnailURL,
		Metadata:     req.Metadata,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, image)
}

// RecordVideoRequest represents a completed video recording
type RecordVideoRequest struct {
	Filename    string         `json:"filename" binding:"required"`
	MimeType    string         `json:"mime_type"`
	OriginalURL string         `json:"original_url" binding:"required"`
	Duration    *float64       `json:"duration"`
	Size        *int64         `json:"size"`
	Metadata    map[string]any `json:"metadata"`
}

// RecordVideo appends a video recording to the call's ledger
// POST /v1/calls/:id/recordings
func (h *Handler) RecordVideo(c *gin.Context) {
	callID, ok := h.participantCall(c)
	if !ok {
		return
	}

	var req RecordVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	recording, err := h.mediaService.RecordVideo(c.Request.Context(), &media.RecordVideoInput{
		CallID:      callID,
		Filename:    req.Filename,
		MimeType:    req.MimeType,
		OriginalURL: req.OriginalURL,
		Duration:    req.Duration,
		Size:        req.Size,
		Metadata:    req.Metadata,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, recording)
}

// ListImages returns a call's captured images in capture order
// GET /v1/calls/:id/images
func (h *Handler) ListImages(c *gin.Context) {
	callID, ok := h.participantCall(c)
	if !ok {
		return
	}

	limit, offset := pageParams(c)
	images, err := h.mediaService.ListImages(c.Request.Context(), callID, limit, offset)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"images": images,
		"count":  len(images),
	})
}

// ListRecordings returns a call's video recordings in recording order
// GET /v1/calls/:id/recordings
func (h *Handler) ListRecordings(c *gin.Context) {
	callID, ok := h.participantCall(c)
	if !ok {
		return
	}

	limit, offset := pageParams(c)
	recordings, err := h.mediaService.ListRecordings(c.Request.Context(), callID, limit, offset)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"recordings": recordings,
		"count":      len(recordings),
	})
}

// UploadURLRequest represents a presigned upload request
type UploadURLRequest struct {
	Filename string `json:"filename" binding:"required"`
	Kind     string `json:"kind"`
}

// GenerateUploadURL issues a presigned PUT URL for a capture object
// POST /v1/calls/:id/captures/upload-url
func (h *Handler) GenerateUploadURL(c *gin.Context) {
	callID, ok := h.participantCall(c)
	if !ok {
		return
	}

	var req UploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	output, err := h.mediaService.GenerateUploadURL(c.Request.Context(), &media.GenerateUploadURLInput{
		CallID:   callID,
		Filename: req.Filename,
		Kind:     req.Kind,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, output)
}

// GenerateDownloadURL issues a presigned GET URL for a stored capture
// GET /v1/calls/:id/captures/download-url?object_key=...
func (h *Handler) GenerateDownloadURL(c *gin.Context) {
	callID, ok := h.participantCall(c)
	if !ok {
		return
	}

	objectKey := c.Query("object_key")
	downloadURL, err := h.mediaService.GenerateDownloadURL(c.Request.Context(), callID, objectKey)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"download_url": downloadURL,
	})
}

// participantCall parses the call ID and rejects users who are not on the
// call
func (h *Handler) participantCall(c *gin.Context) (uuid.UUID, bool) {
	callID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid call ID")
		return uuid.Nil, false
	}

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

	call, err := h.registry.GetCall(c.Request.Context(), callID)
	if err != nil {
		response.FromError(c, err)
		return uuid.Nil, false
	}
	if call.ParticipantRole(userID) == "" {
		response.Forbidden(c, "Not a participant of this call")
		return uuid.Nil, false
	}

	return callID, true
}

func pageParams(c *gin.Context) (int, int) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	return limit, offset
}
