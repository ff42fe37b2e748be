package session

import (
	"io"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/jrsteele09/go-campus-session/internal/config"
	"github.com/jrsteele09/go-campus-session/jar"
	"github.com/jrsteele09/go-campus-session/sessionmodel"
)

// maxDrain caps how much of a rejected response body is read before closing
// it so the connection can be reused.
const maxDrain = 4 << 10

// Transport is the interceptor pipeline. Before a request it resolves and
// injects the credential; after the response it turns an authentication
// failure on an authenticated request into a single session invalidation.
type Transport struct {
	manager *Manager
	base    http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	m := t.manager
	ctx := req.Context()
	flow, isFlow := flowFromContext(ctx)

	var cred resolved
	if jar.Origin(req.URL) == m.origin && (!isFlow || flow.attachCredential) {
		cred = m.resolveCredential(ctx)
	}

	out := req.Clone(ctx)
	m.decorate(out)
	if cred.ok {
		m.inject(out, cred.value)
	}

	resp, err := t.base.RoundTrip(out)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &sessionmodel.NetworkError{Op: req.Method + " " + req.URL.Path, Cause: err}
	}

	if cred.ok && !isFlow && resp.StatusCode == http.StatusUnauthorized {
		_, _ = io.CopyN(io.Discard, resp.Body, maxDrain)
		resp.Body.Close()
		m.handleAuthFailure(detached(ctx), cred)
		return nil, &sessionmodel.AuthExpiredError{
			Method: req.Method,
			URL:    req.URL.Redacted(),
			Status: resp.StatusCode,
		}
	}
	return resp, nil
}

func (m *Manager) decorate(req *http.Request) {
	if req.Header.Get("X-Request-ID") == "" {
		req.Header.Set("X-Request-ID", uuid.NewString())
	}
	if req.Header.Get("User-Agent") == "" && m.userAgent != "" {
		req.Header.Set("User-Agent", m.userAgent)
	}
}

func (m *Manager) inject(req *http.Request, credential string) {
	if m.injection == config.InjectBearer {
		(&oauth2.Token{AccessToken: credential, TokenType: "Bearer"}).SetAuthHeader(req)
		return
	}
	req.AddCookie(&http.Cookie{Name: m.cookieName, Value: credential})
}
