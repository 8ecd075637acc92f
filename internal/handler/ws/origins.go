package ws

import (
	"strings"
	"sync"

	"inspectcall-backend/pkg/env"
)

var (
	allowedOriginsOnce sync.Once
	allowedOrigins     map[string]bool
)

// GetAllowedOrigins returns the set of origins allowed to open signaling
// WebSockets. Read from WS_ALLOWED_ORIGINS (comma-separated) once at first
// use.
func GetAllowedOrigins() map[string]bool {
	allowedOriginsOnce.Do(func() {
		allowedOrigins = make(map[string]bool)
		raw := env.GetString("WS_ALLOWED_ORIGINS", "http://localhost:3000")
		for _, origin := range strings.Split(raw, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	})
	return allowedOrigins
}
