package config

import (
	"strings"
	"time"

	"github.com/jrsteele09/go-campus-session/sessionmodel"
)

type SessionConfig interface {
	GetCookieName() string
	GetInjectionMode() string
	GetLookupTimeout() time.Duration
	GetClearRetries() int
	GetClearBackoff() time.Duration
}

// Injection modes for the credential on outbound requests.
const (
	InjectCookie = "cookie"
	InjectBearer = "bearer"
)

type Session struct{}

var _ SessionConfig = Session{}

func (Session) GetCookieName() string {
	return GetEnv("SESSION_COOKIE_NAME", sessionmodel.DefaultCookieName)
}

func (Session) GetInjectionMode() string {
	mode := strings.ToLower(GetEnv("SESSION_INJECTION", InjectCookie))
	if mode != InjectBearer {
		return InjectCookie
	}
	return mode
}

// GetLookupTimeout bounds each durable store lookup made on the request path.
func (Session) GetLookupTimeout() time.Duration {
	return GetDuration("SESSION_LOOKUP_TIMEOUT", 2*time.Second)
}

func (Session) GetClearRetries() int {
	return GetInt("SESSION_CLEAR_RETRIES", 3)
}

func (Session) GetClearBackoff() time.Duration {
	return GetDuration("SESSION_CLEAR_BACKOFF", 50*time.Millisecond)
}
