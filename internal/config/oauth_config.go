package config

import "time"

type OAuthConfig interface {
	GetOAuthAppID() string
	GetOAuthSecret() string
	GetScope() string
	GetRefreshPadding() time.Duration
	GetUpstreamTimeout() time.Duration
}

type OAuth struct{}

var _ OAuthConfig = OAuth{}

func (OAuth) GetOAuthAppID() string {
	return GetEnv("OAUTH_APP_ID", "")
}

func (OAuth) GetOAuthSecret() string {
	return GetEnv("OAUTH_SECRET", "")
}

func (OAuth) GetScope() string {
	return GetEnv("SCOPE", "people")
}

// GetRefreshPadding is how close to expiry a token may get before it is
// refreshed ahead of the upstream call. Covers clock skew and in-flight
// request latency.
func (OAuth) GetRefreshPadding() time.Duration {
	return 300 * time.Second
}

// GetUpstreamTimeout is how long any single blocking call to the provider
// may take. Overridable via UPSTREAM_TIMEOUT (a Go duration string).
func (OAuth) GetUpstreamTimeout() time.Duration {
	if raw := GetEnv("UPSTREAM_TIMEOUT", ""); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			return d
		}
	}
	return 15 * time.Second
}
