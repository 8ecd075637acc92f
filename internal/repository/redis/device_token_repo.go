package redis

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DeviceTokenRepository stores push notification device tokens per user in a
// Redis set. Implements push.TokenSource.
type DeviceTokenRepository struct {
	client *redis.Client
}

// NewDeviceTokenRepository creates a new DeviceTokenRepository
func NewDeviceTokenRepository(client *redis.Client) *DeviceTokenRepository {
	return &DeviceTokenRepository{client: client}
}

func tokenKey(userID uuid.UUID) string {
	return fmt.Sprintf("user:%s:push-tokens", userID)
}

// Register adds a device token for a user
func (r *DeviceTokenRepository) Register(ctx context.Context, userID uuid.UUID, token string) error {
	if err := r.client.SAdd(ctx, tokenKey(userID), token).Err(); err != nil {
		return fmt.Errorf("failed to register device token: %w", err)
	}
	return nil
}

// Unregister removes a device token for a user
func (r *DeviceTokenRepository) Unregister(ctx context.Context, userID uuid.UUID, token string) error {
	if err := r.client.SRem(ctx, tokenKey(userID), token).Err(); err != nil {
		return fmt.Errorf("failed to unregister device token: %w", err)
	}
	return nil
}

// GetTokens returns all device tokens registered for a user
func (r *DeviceTokenRepository) GetTokens(ctx context.Context, userID uuid.UUID) ([]string, error) {
	tokens, err := r.client.SMembers(ctx, tokenKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get device tokens: %w", err)
	}
	return tokens, nil
}
