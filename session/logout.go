package session

import "context"

// LogoutResult reports how the server side of a logout went. The local
// session is cleared regardless.
type LogoutResult struct {
	Revoked       bool
	RevocationErr error
}

// Logout asks the server to revoke the session, then clears it locally
// whatever the server said. A revocation failure is a warning in the result,
// never the returned error; the returned error only reports local clears that
// are still pending.
func (m *Manager) Logout(ctx context.Context) (LogoutResult, error) {
	defer m.notify()
	m.flowMu.Lock()
	defer m.flowMu.Unlock()

	var res LogoutResult
	if err := m.api.Logout(withFlow(ctx, true)); err != nil {
		res.RevocationErr = err
		m.logger.Warn().Err(err).Msg("server session revocation failed, clearing locally")
	} else {
		res.Revoked = true
	}

	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	err := m.invalidateLocked(detached(ctx), ReasonLogout)
	m.metrics.RecordLogout(res.Revoked)
	return res, err
}
