package cockroach

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"inspectcall-backend/internal/domain"
)

// MediaRepository handles captured image and video recording data operations.
// Both tables are append-only; there are no update or delete operations here.
type MediaRepository struct {
	pool *pgxpool.Pool
}

// NewMediaRepository creates a new media repository
func NewMediaRepository(pool *pgxpool.Pool) *MediaRepository {
	return &MediaRepository{pool: pool}
}

// CreateImage inserts a captured image record
func (r *MediaRepository) CreateImage(ctx context.Context, image *domain.CapturedImage) error {
	query := `
		INSERT INTO captured_images (
			image_id, call_id, filename, original_url, thumbnail_url,
			captured_at, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		image.ImageID,
		image.CallID,
		image.Filename,
		image.OriginalURL,
		image.ThumbnailURL,
		image.CapturedAt,
		image.Metadata,
	)

	if err != nil {
		return fmt.Errorf("failed to create captured image: %w", err)
	}

	return nil
}

// CreateRecording inserts a video recording record
func (r *MediaRepository) CreateRecording(ctx context.Context, recording *domain.VideoRecording) error {
	query := `
		INSERT INTO video_recordings (
			recording_id, call_id, filename, original_url, duration,
			size, recorded_at, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.pool.Exec(ctx, query,
		recording.RecordingID,
		recording.CallID,
		recording.Filename,
		recording.OriginalURL,
		recording.Duration,
		recording.Size,
		recording.RecordedAt,
		recording.Metadata,
	)

	if err != nil {
		return fmt.Errorf("failed to create video recording: %w", err)
	}

	return nil
}

// GetImagesByCall retrieves the images captured during a call in capture order
func (r *MediaRepository) GetImagesByCall(ctx context.Context, callID uuid.UUID, limit, offset int) ([]*domain.CapturedImage, error) {
	query := `
		SELECT image_id, call_id, filename, original_url, thumbnail_url,
		       captured_at, metadata
		FROM captured_images
		WHERE call_id = $1
		ORDER BY captured_at ASC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, callID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get captured images: %w", err)
	}
	defer rows.Close()

	var images []*domain.CapturedImage
	for rows.Next() {
		image := &domain.CapturedImage{}
		err := rows.Scan(
			&image.ImageID,
			&image.CallID,
			&image.Filename,
			&image.OriginalURL,
			&image.ThumbnailURL,
			&image.CapturedAt,
			&image.Metadata,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan captured image: %w", err)
		}
		images = append(images, image)
	}

	return images, nil
}

// GetRecordingsByCall retrieves the recordings made during a call in recording order
func (r *MediaRepository) GetRecordingsByCall(ctx context.Context, callID uuid.UUID, limit, offset int) ([]*domain.VideoRecording, error) {
	query := `
		SELECT recording_id, call_id, filename, original_url, duration,
		       size, recorded_at, metadata
		FROM video_recordings
		WHERE call_id = $1
		ORDER BY recorded_at ASC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, callID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get video recordings: %w", err)
	}
	defer rows.Close()

	var recordings []*domain.VideoRecording
	for rows.Next() {
		recording := &domain.VideoRecording{}
		err := rows.Scan(
			&recording.RecordingID,
			&recording.CallID,
			&recording.Filename,
			&recording.OriginalURL,
			&recording.Duration,
			&recording.Size,
			&recording.RecordedAt,
			&recording.Metadata,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan video recording: %w", err)
		}
		recordings = append(recordings, recording)
	}

	return recordings, nil
}
