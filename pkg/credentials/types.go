package credentials

import "time"

// Credentials represents the stored session credentials in credentials.toml.
type Credentials struct {
	Version  int                          `toml:"version"`
	Gateways map[string]SessionCredential `toml:"gateways"`
}

// SessionCredential holds the bearer token of one signed-in session.
type SessionCredential struct {
	Token   string    `toml:"token"`
	SavedAt time.Time `toml:"saved_at"`
}
