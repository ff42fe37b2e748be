package config

import "time"

type APIConfig interface {
	GetAPIURL() string
	GetHTTPTimeout() time.Duration
	GetUserAgent() string
}

const defaultAPIURL = "https://api.popo-dev.poapper.club"

type API struct{}

var _ APIConfig = API{}

// GetAPIURL returns the base URL of the reservation API; the session
// credential is scoped to its origin.
func (API) GetAPIURL() string {
	return GetEnv("API_URL", defaultAPIURL)
}

func (API) GetHTTPTimeout() time.Duration {
	return GetDuration("HTTP_TIMEOUT", 30*time.Second)
}

func (API) GetUserAgent() string {
	return GetEnv("HTTP_USER_AGENT", "campus-session/1")
}
