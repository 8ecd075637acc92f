// Package location tracks the latest inspector GPS fix per call. Only the
// most recent fix is kept; there is no movement history.
package location

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"inspectcall-backend/internal/domain"
	apperrors "inspectcall-backend/pkg/errors"
	"inspectcall-backend/pkg/logger"
	"inspectcall-backend/pkg/metrics"
)

// Store persists the latest location fix
type Store interface {
	Set(ctx context.Context, callID uuid.UUID, location *domain.Location) error
	Get(ctx context.Context, callID uuid.UUID) (*domain.Location, error)
	Delete(ctx context.Context, callID uuid.UUID) error
}

// Tracker is the latest-only location service backing the session registry.
type Tracker struct {
	store   Store
	metrics *metrics.Metrics
}

// NewTracker creates a new location tracker
func NewTracker(store Store, m *metrics.Metrics) *Tracker {
	return &Tracker{store: store, metrics: m}
}

// SetLocation overwrites the call's location fix with a newer one.
func (t *Tracker) SetLocation(ctx context.Context, callID uuid.UUID, location *domain.Location) error {
	if location == nil {
		return apperrors.MissingFieldError("location")
	}
	if location.Latitude < -90 || location.Latitude > 90 {
		return apperrors.ValidationError("latitude out of range")
	}
	if location.Longitude < -180 || location.Longitude > 180 {
		return apperrors.ValidationError("longitude out of range")
	}

	if err := t.store.Set(ctx, callID, location); err != nil {
		return apperrors.StorageError(err)
	}

	t.metrics.RecordLocationUpdate()
	logger.Debug("inspector location updated",
		zap.String("call_id", callID.String()),
		zap.Float64("latitude", location.Latitude),
		zap.Float64("longitude", location.Longitude),
	)
	return nil
}

// GetLocation returns the call's latest fix, or nil when none was reported.
func (t *Tracker) GetLocation(ctx context.Context, callID uuid.UUID) (*domain.Location, error) {
	location, err := t.store.Get(ctx, callID)
	if err != nil {
		return nil, apperrors.StorageError(err)
	}
	return location, nil
}

// Forget drops the fix for a call, typically after the call ends.
func (t *Tracker) Forget(ctx context.Context, callID uuid.UUID) error {
	if err := t.store.Delete(ctx, callID); err != nil {
		return apperrors.StorageError(err)
	}
	return nil
}
