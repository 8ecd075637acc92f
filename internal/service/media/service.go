// Package media keeps the per-call capture ledger: still images and video
// recordings produced by the inspector. Records are append-only; nothing
// here updates or deletes a capture once it is written.
package media

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"inspectcall-backend/internal/domain"
	"inspectcall-backend/pkg/constants"
	apperrors "inspectcall-backend/pkg/errors"
	"inspectcall-backend/pkg/logger"
	"inspectcall-backend/pkg/metrics"
)

// MediaRepository persists capture records
type MediaRepository interface {
	CreateImage(ctx context.Context, image *domain.CapturedImage) error
	CreateRecording(ctx context.Context, recording *domain.VideoRecording) error
	GetImagesByCall(ctx context.Context, callID uuid.UUID, limit, offset int) ([]*domain.CapturedImage, error)
	GetRecordingsByCall(ctx context.Context, callID uuid.UUID, limit, offset int) ([]*domain.VideoRecording, error)
}

// CallResolver looks up the call a capture belongs to
type CallResolver interface {
	GetCall(ctx context.Context, callID uuid.UUID) (*domain.Call, error)
}

// ObjectStore issues presigned URLs against object storage
type ObjectStore interface {
	PresignedUploadURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
	PresignedDownloadURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
}

// Service handles capture ledger operations
type Service struct {
	repo    MediaRepository
	calls   CallResolver
	store   ObjectStore
	metrics *metrics.Metrics
}

// NewService creates a new media service
func NewService(repo MediaRepository, calls CallResolver, store ObjectStore, m *metrics.Metrics) *Service {
	return &Service{
		repo:    repo,
		calls:   calls,
		store:   store,
		metrics: m,
	}
}

// RecordImageInput contains a still image capture to record
type RecordImageInput struct {
	CallID       uuid.UUID
	Filename     string
	OriginalURL  string
	ThumbnailURL *string
	Metadata     map[string]any
}

// RecordImage appends a captured image to the call's ledger. The capture
// timestamp is assigned here, not taken from the client.
func (s *Service) RecordImage(ctx context.Context, input *RecordImageInput) (*domain.CapturedImage, error) {
	if input.Filename == "" {
		s.metrics.RecordCaptureError("missing_filename")
		return nil, apperrors.MissingFieldError("filename")
	}
	if input.OriginalURL == "" {
		s.metrics.RecordCaptureError("missing_url")
		return nil, apperrors.MissingFieldError("original_url")
	}

	call, err := s.calls.GetCall(ctx, input.CallID)
	if err != nil {
		return nil, err
	}

	image := &domain.CapturedImage{
		ImageID:      uuid.New(),
		CallID:       call.CallID,
		Filename:     input.Filename,
		OriginalURL:  input.OriginalURL,
		ThumbnailURL: input.ThumbnailURL,
		CapturedAt:   time.Now().UTC(),
		Metadata:     input.Metadata,
	}
	if call.Status == domain.CallStatusEnded {
		image.Metadata = lateCapture(image.Metadata)
	}

	if err := s.repo.CreateImage(ctx, image); err != nil {
		s.metrics.RecordCaptureError("database")
		return nil, apperrors.DatabaseError(err)
	}

	s.metrics.RecordCapture("image")
	logger.Info("captured image recorded",
		zap.String("call_id", call.CallID.String()),
		zap.String("image_id", image.ImageID.String()),
		zap.String("filename", image.Filename),
	)

	return image, nil
}

// RecordVideoInput contains a video recording to record
type RecordVideoInput struct {
	CallID      uuid.UUID
	Filename    string
	MimeType    string
	OriginalURL string
	Duration    *float64
	Size        *int64
	Metadata    map[string]any
}

// RecordVideo appends a video recording to the call's ledger. Only WebM and
// MP4 recordings are accepted; anything else is rejected before touching
// storage.
func (s *Service) RecordVideo(ctx context.Context, input *RecordVideoInput) (*domain.VideoRecording, error) {
	if input.Filename == "" {
		s.metrics.RecordCaptureError("missing_filename")
		return nil, apperrors.MissingFieldError("filename")
	}
	if input.OriginalURL == "" {
		s.metrics.RecordCaptureError("missing_url")
		return nil, apperrors.MissingFieldError("original_url")
	}

	if input.MimeType != "" {
		if !domain.AllowedVideoMIME(input.MimeType) {
			s.metrics.RecordCaptureError("mime_type")
			return nil, apperrors.ValidationError(
				fmt.Sprintf("unsupported recording encoding %q, allowed: %s, %s",
					input.MimeType, domain.MIMEVideoWebM, domain.MIMEVideoMP4))
		}
	} else if !domain.AllowedVideoFilename(input.Filename) {
		s.metrics.RecordCaptureError("extension")
		return nil, apperrors.ValidationError(
			fmt.Sprintf("unsupported recording filename %q, allowed extensions: .webm, .mp4", input.Filename))
	}

	call, err := s.calls.GetCall(ctx, input.CallID)
	if err != nil {
		return nil, err
	}

	recording := &domain.VideoRecording{
		RecordingID: uuid.New(),
		CallID:      call.CallID,
		Filename:    input.Filename,
		OriginalURL: input.OriginalURL,
		Duration:    input.Duration,
		Size:        input.Size,
		RecordedAt:  time.Now().UTC(),
		Metadata:    input.Metadata,
	}
	if call.Status == domain.CallStatusEnded {
		recording.Metadata = lateCapture(recording.Metadata)
	}

	if err := s.repo.CreateRecording(ctx, recording); err != nil {
		s.metrics.RecordCaptureError("database")
		return nil, apperrors.DatabaseError(err)
	}

	s.metrics.RecordCapture("video")
	logger.Info("video recording recorded",
		zap.String("call_id", call.CallID.String()),
		zap.String("recording_id", recording.RecordingID.String()),
		zap.String("filename", recording.Filename),
	)

	return recording, nil
}

// RecordCaptureResult turns a capture-complete payload into a ledger record.
// A result is treated as a video when it says so or carries a video encoding;
// everything else is a still image.
func (s *Service) RecordCaptureResult(ctx context.Context, callID uuid.UUID, result *domain.CaptureResult) error {
	if result.Kind == "video" || domain.AllowedVideoMIME(result.MimeType) {
		_, err := s.RecordVideo(ctx, &RecordVideoInput{
			CallID:      callID,
			Filename:    result.Filename,
			MimeType:    result.MimeType,
			OriginalURL: result.OriginalURL,
			Duration:    result.Duration,
			Size:        result.Size,
			Metadata:    result.Metadata,
		})
		return err
	}

	_, err := s.RecordImage(ctx, &RecordImageInput{
		CallID:       callID,
		Filename:     result.Filename,
		OriginalURL:  result.OriginalURL,
		ThumbnailURL: result.ThumbnailURL,
		Metadata:     result.Metadata,
	})
	return err
}

// ListImages returns a call's captured images in capture order
func (s *Service) ListImages(ctx context.Context, callID uuid.UUID, limit, offset int) ([]*domain.CapturedImage, error) {
	if _, err := s.calls.GetCall(ctx, callID); err != nil {
		return nil, err
	}

	limit, offset = clampPage(limit, offset)
	images, err := s.repo.GetImagesByCall(ctx, callID, limit, offset)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return images, nil
}

// ListRecordings returns a call's video recordings in recording order
func (s *Service) ListRecordings(ctx context.Context, callID uuid.UUID, limit, offset int) ([]*domain.VideoRecording, error) {
	if _, err := s.calls.GetCall(ctx, callID); err != nil {
		return nil, err
	}

	limit, offset = clampPage(limit, offset)
	recordings, err := s.repo.GetRecordingsByCall(ctx, callID, limit, offset)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return recordings, nil
}

// GenerateUploadURLInput contains a capture upload request
type GenerateUploadURLInput struct {
	CallID   uuid.UUID
	Filename string
	Kind     string // "image" (default) or "video"
}

// GenerateUploadURLOutput contains the presigned upload target
type GenerateUploadURLOutput struct {
	ObjectKey string    `json:"object_key"`
	UploadURL string    `json:"upload_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// GenerateUploadURL issues a presigned PUT URL for a capture object. The
// ledger record is written afterwards via RecordImage or RecordVideo; a URL
// alone does not put anything in the ledger.
func (s *Service) GenerateUploadURL(ctx context.Context, input *GenerateUploadURLInput) (*GenerateUploadURLOutput, error) {
	if input.Filename == "" {
		return nil, apperrors.MissingFieldError("filename")
	}

	kind := input.Kind
	switch kind {
	case "", "image":
		kind = "image"
	case "video":
		if !domain.AllowedVideoFilename(input.Filename) {
			return nil, apperrors.ValidationError(
				fmt.Sprintf("unsupported recording filename %q, allowed extensions: .webm, .mp4", input.Filename))
		}
	default:
		return nil, apperrors.ValidationError(fmt.Sprintf("unknown capture kind %q", input.Kind))
	}

	call, err := s.calls.GetCall(ctx, input.CallID)
	if err != nil {
		return nil, err
	}

	objectKey := fmt.Sprintf("calls/%s/%ss/%s-%s", call.CallID, kind, uuid.New(), input.Filename)

	uploadURL, err := s.store.PresignedUploadURL(ctx, objectKey, constants.PresignedURLExpiry)
	if err != nil {
		s.metrics.RecordCaptureError("presign")
		return nil, apperrors.StorageError(err)
	}

	return &GenerateUploadURLOutput{
		ObjectKey: objectKey,
		UploadURL: uploadURL,
		ExpiresAt: time.Now().Add(constants.PresignedURLExpiry),
	}, nil
}

// GenerateDownloadURL issues a presigned GET URL for a stored capture object.
func (s *Service) GenerateDownloadURL(ctx context.Context, callID uuid.UUID, objectKey string) (string, error) {
	if objectKey == "" {
		return "", apperrors.MissingFieldError("object_key")
	}

	call, err := s.calls.GetCall(ctx, callID)
	if err != nil {
		return "", err
	}

	// Object keys are namespaced per call; refuse keys that point elsewhere.
	prefix := fmt.Sprintf("calls/%s/", call.CallID)
	if len(objectKey) < len(prefix) || objectKey[:len(prefix)] != prefix {
		return "", apperrors.ForbiddenError("object does not belong to this call")
	}

	downloadURL, err := s.store.PresignedDownloadURL(ctx, objectKey, constants.PresignedURLExpiry)
	if err != nil {
		s.metrics.RecordCaptureError("presign")
		return "", apperrors.StorageError(err)
	}
	return downloadURL, nil
}

// lateCapture flags metadata for a capture recorded after its call ended.
func lateCapture(metadata map[string]any) map[string]any {
	if metadata == nil {
		metadata = make(map[string]any, 1)
	}
	metadata["late_capture"] = true
	return metadata
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = constants.DefaultCapturePageSize
	}
	if limit > constants.MaxCapturePageSize {
		limit = constants.MaxCapturePageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
