package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"inspectcall-backend/internal/domain"
)

// locationTTL keeps abandoned snapshots from accumulating; every update
// refreshes it, so a live call never observes the expiry.
const locationTTL = 24 * time.Hour

// LocationRepository stores the latest inspector GPS snapshot per call in
// Redis. Each write overwrites the previous value; no history is kept.
type LocationRepository struct {
	client *redis.Client
}

// NewLocationRepository creates a new LocationRepository
func NewLocationRepository(client *redis.Client) *LocationRepository {
	return &LocationRepository{client: client}
}

func locationKey(callID uuid.UUID) string {
	return fmt.Sprintf("call:%s:location", callID)
}

// Set overwrites the location snapshot for a call
func (r *LocationRepository) Set(ctx context.Context, callID uuid.UUID, location *domain.Location) error {
	payload, err := json.Marshal(location)
	if err != nil {
		return fmt.Errorf("failed to marshal location: %w", err)
	}

	if err := r.client.Set(ctx, locationKey(callID), payload, locationTTL).Err(); err != nil {
		return fmt.Errorf("failed to store location: %w", err)
	}

	return nil
}

// Get returns the latest location snapshot for a call, or nil when none has
// been reported yet.
func (r *LocationRepository) Get(ctx context.Context, callID uuid.UUID) (*domain.Location, error) {
	payload, err := r.client.Get(ctx, locationKey(callID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get location: %w", err)
	}

	location := &domain.Location{}
	if err := json.Unmarshal(payload, location); err != nil {
		return nil, fmt.Errorf("failed to unmarshal location: %w", err)
	}

	return location, nil
}

// Delete removes the snapshot for a call (used when a call is cleaned up)
func (r *LocationRepository) Delete(ctx context.Context, callID uuid.UUID) error {
	if err := r.client.Del(ctx, locationKey(callID)).Err(); err != nil {
		return fmt.Errorf("failed to delete location: %w", err)
	}
	return nil
}
