// Package jar holds the transport-scoped credential cache. It lives only as
// long as the process and is keyed by target origin.
package jar

import (
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// Attributes are the cookie attributes a credential is stored with.
type Attributes struct {
	Path     string
	Secure   bool
	HTTPOnly bool
}

// DefaultAttributes returns the attributes used for the API origin: path "/",
// HttpOnly, and Secure when the origin is https.
func DefaultAttributes(origin string) Attributes {
	return Attributes{
		Path:     "/",
		Secure:   strings.HasPrefix(strings.ToLower(origin), "https://"),
		HTTPOnly: true,
	}
}

// Jar is the credential jar consulted by every outbound request.
type Jar interface {
	// Get returns the credential stored for origin.
	Get(origin string) (string, bool, error)

	// Set stores credential for origin, replacing any existing one.
	Set(origin, credential string, attrs Attributes) error

	// SetIfAbsent stores credential only when origin has none. It reports
	// whether the credential was written.
	SetIfAbsent(origin, credential string, attrs Attributes) (bool, error)

	// Clear removes the credential for origin.
	Clear(origin string) error

	// ClearAll empties the jar.
	ClearAll() error
}

// Origin reduces a URL to scheme://host[:port].
func Origin(u *url.URL) string {
	if u == nil {
		return ""
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}

// ParseOrigin normalises a raw origin or base URL.
func ParseOrigin(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", errors.Wrapf(err, "invalid origin %q", raw)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", errors.Errorf("origin %q needs a scheme and host", raw)
	}
	return Origin(u), nil
}
