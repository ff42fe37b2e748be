package session

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	"github.com/jrsteele09/go-campus-session/sessionmodel"
)

// TokenSource exposes the session credential as an oauth2.TokenSource for
// clients built outside this package. Each Token call resolves through the
// jar and durable store the same way an intercepted request does.
func (m *Manager) TokenSource() oauth2.TokenSource {
	return tokenSource{manager: m}
}

type tokenSource struct {
	manager *Manager
}

func (ts tokenSource) Token() (*oauth2.Token, error) {
	cred := ts.manager.resolveCredential(context.Background())
	if !cred.ok {
		return nil, errors.Wrap(sessionmodel.ErrAuthExpired, "no session credential")
	}
	return &oauth2.Token{AccessToken: cred.value, TokenType: "Bearer"}, nil
}
