package jar

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"

	"github.com/pkg/errors"
)

var _ Jar = (*CookieJar)(nil)

// CookieJar stores credentials as named cookies in net/http cookie jars, the
// same shape the API sets them in. net/http/cookiejar ignores ports and sends
// non-Secure cookies over https, so each origin gets its own inner jar.
type CookieJar struct {
	name    string
	mu      sync.RWMutex
	origins map[string]*cookiejar.Jar
}

// NewCookieJar creates a jar that keeps credentials in cookies called name.
func NewCookieJar(name string) (*CookieJar, error) {
	if name == "" {
		return nil, errors.New("[NewCookieJar] cookie name is required")
	}
	return &CookieJar{name: name, origins: make(map[string]*cookiejar.Jar)}, nil
}

// CookieName returns the cookie the credential is kept in.
func (j *CookieJar) CookieName() string {
	return j.name
}

func (j *CookieJar) Get(origin string) (string, bool, error) {
	key, u, err := rootURL(origin)
	if err != nil {
		return "", false, err
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	v, ok := j.lookup(j.origins[key], u)
	return v, ok, nil
}

func (j *CookieJar) Set(origin, credential string, attrs Attributes) error {
	key, u, err := rootURL(origin)
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	inner, err := j.jarFor(key)
	if err != nil {
		return err
	}
	inner.SetCookies(u, []*http.Cookie{j.cookie(credential, attrs)})
	return nil
}

func (j *CookieJar) SetIfAbsent(origin, credential string, attrs Attributes) (bool, error) {
	key, u, err := rootURL(origin)
	if err != nil {
		return false, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	inner, err := j.jarFor(key)
	if err != nil {
		return false, err
	}
	if _, ok := j.lookup(inner, u); ok {
		return false, nil
	}
	inner.SetCookies(u, []*http.Cookie{j.cookie(credential, attrs)})
	return true, nil
}

func (j *CookieJar) Clear(origin string) error {
	key, _, err := rootURL(origin)
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.origins, key)
	return nil
}

func (j *CookieJar) ClearAll() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.origins = make(map[string]*cookiejar.Jar)
	return nil
}

// jarFor must be called with the write lock held.
func (j *CookieJar) jarFor(key string) (*cookiejar.Jar, error) {
	if inner, ok := j.origins[key]; ok {
		return inner, nil
	}
	inner, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create cookie jar")
	}
	j.origins[key] = inner
	return inner, nil
}

// lookup must be called with the lock held.
func (j *CookieJar) lookup(inner *cookiejar.Jar, u *url.URL) (string, bool) {
	if inner == nil {
		return "", false
	}
	for _, c := range inner.Cookies(u) {
		if c.Name == j.name && c.Value != "" {
			return c.Value, true
		}
	}
	return "", false
}

func (j *CookieJar) cookie(value string, attrs Attributes) *http.Cookie {
	path := attrs.Path
	if path == "" {
		path = "/"
	}
	return &http.Cookie{
		Name:     j.name,
		Value:    value,
		Path:     path,
		Secure:   attrs.Secure,
		HttpOnly: attrs.HTTPOnly,
	}
}

func rootURL(origin string) (string, *url.URL, error) {
	normalized, err := ParseOrigin(origin)
	if err != nil {
		return "", nil, err
	}
	u, err := url.Parse(normalized + "/")
	if err != nil {
		return "", nil, errors.Wrapf(err, "invalid origin %q", origin)
	}
	return normalized, u, nil
}
