package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// CapturedImage is a still image taken by the inspector during a call.
// Immutable after creation; rows are append-only per call.
// Maps to the CockroachDB captured_images table
type CapturedImage struct {
	ImageID      uuid.UUID      `json:"image_id" db:"image_id"`
	CallID       uuid.UUID      `json:"call_id" db:"call_id"`
	Filename     string         `json:"filename" db:"filename"`
	OriginalURL  string         `json:"original_url" db:"original_url"`
	ThumbnailURL *string        `json:"thumbnail_url,omitempty" db:"thumbnail_url"`
	CapturedAt   time.Time      `json:"captured_at" db:"captured_at"` // server-assigned
	Metadata     map[string]any `json:"metadata,omitempty" db:"metadata"`
}

// VideoRecording is a video clip recorded during a call.
// Immutable after creation; rows are append-only per call.
// Maps to the CockroachDB video_recordings table
type VideoRecording struct {
	RecordingID uuid.UUID      `json:"recording_id" db:"recording_id"`
	CallID      uuid.UUID      `json:"call_id" db:"call_id"`
	Filename    string         `json:"filename" db:"filename"`
	OriginalURL string         `json:"original_url" db:"original_url"`
	Duration    *float64       `json:"duration,omitempty" db:"duration"` // seconds
	Size        *int64         `json:"size,omitempty" db:"size"`         // bytes
	RecordedAt  time.Time      `json:"recorded_at" db:"recorded_at"`
	Metadata    map[string]any `json:"metadata,omitempty" db:"metadata"`
}

// Allowed video encodings
const (
	MIMEVideoWebM = "video/webm"
	MIMEVideoMP4  = "video/mp4"
)

// AllowedVideoMIME reports whether mimeType is an accepted recording encoding.
func AllowedVideoMIME(mimeType string) bool {
	return mimeType == MIMEVideoWebM || mimeType == MIMEVideoMP4
}

// AllowedVideoFilename reports whether filename carries an accepted recording
// extension (webm or mp4, case-insensitive).
func AllowedVideoFilename(filename string) bool {
	lower := strings.ToLower(filename)
	return strings.HasSuffix(lower, ".webm") || strings.HasSuffix(lower, ".mp4")
}
