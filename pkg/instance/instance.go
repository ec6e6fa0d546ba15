package instance

import (
	"os"

	"github.com/cactilia/cactilia-backend/pkg/env"
)

// GetID returns the identifier of the running process: an explicit
// CACTILIA_INSTANCE_ID, the platform dyno name or the hostname, in that order.
func GetID() string {
	if id := env.First("", "CACTILIA_INSTANCE_ID", "DYNO"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
