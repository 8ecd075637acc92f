package push

import (
	"fmt"

	"inspectcall-backend/pkg/config"
	"inspectcall-backend/pkg/env"
)

// NewProvider builds the configured push provider. "mock" is the development
// default; production config validation rejects it upstream.
func NewProvider(cfg *config.PushConfig) (Provider, error) {
	switch cfg.Provider {
	case "fcm", "firebase":
		if cfg.FirebaseProjectID == "" {
			return nil, fmt.Errorf("FIREBASE_PROJECT_ID is required for the fcm provider")
		}
		return NewFCMProviderFromEnv(cfg.FirebaseProjectID)

	case "apns":
		return NewAPNsProvider(&APNsConfig{
			KeyPath:    env.GetString("APNS_KEY_PATH", ""),
			KeyID:      env.GetString("APNS_KEY_ID", ""),
			TeamID:     env.GetString("APNS_TEAM_ID", ""),
			BundleID:   cfg.APNsBundleID,
			Production: env.GetBool("APNS_PRODUCTION", false),
		})

	case "mock", "":
		return &MockProvider{}, nil

	default:
		return nil, fmt.Errorf("unknown push provider: %s", cfg.Provider)
	}
}
