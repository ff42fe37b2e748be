package session

import (
	"context"

	"github.com/jrsteele09/go-campus-session/sessionmodel"
)

// Reconcile restores the session at process start. It runs once per Manager;
// later calls return the current state.
//
// When the durable store holds a credential and the authenticated flag, the
// jar is repaired, the cached profile is restored immediately and a profile
// refresh runs in the background. The restored state is optimistic: if the
// refresh fails authentication the transport invalidates the session.
// Anything less than a complete durable session is discarded. Storage
// failures leave the session Anonymous.
func (m *Manager) Reconcile(ctx context.Context) sessionmodel.State {
	m.reconcileOnce.Do(func() {
		if m.reconcile(ctx) {
			m.background.Add(1)
			go func() {
				defer m.background.Done()
				if _, err := m.RefreshProfile(detached(ctx)); err != nil {
					m.logger.Warn().Err(err).Msg("background profile refresh failed")
				}
			}()
		}
	})
	return m.State()
}

// reconcile reports whether a session was restored.
func (m *Manager) reconcile(ctx context.Context) bool {
	defer m.notify()
	m.flowMu.Lock()
	defer m.flowMu.Unlock()
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	if err := m.retryPendingLocked(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("pending session clears still failing")
	}

	lookupCtx, cancel := context.WithTimeout(ctx, m.lookupTimeout)
	defer cancel()

	flag, hasFlag, err := m.durable.Get(lookupCtx, sessionmodel.KeyAuthenticated)
	if err != nil {
		m.storageUnavailableAtStart(err)
		return false
	}
	credential, hasCredential, err := m.durable.Get(lookupCtx, sessionmodel.KeyCredential)
	if err != nil {
		m.storageUnavailableAtStart(err)
		return false
	}
	rawProfile, hasProfile, err := m.durable.Get(lookupCtx, sessionmodel.KeyProfile)
	if err != nil {
		m.metrics.RecordStorageError("store_get")
		m.logger.Warn().Err(err).Msg("cached profile unavailable")
		hasProfile = false
	}

	authenticated := hasFlag && flag == sessionmodel.AuthenticatedValue
	if !authenticated || !hasCredential || credential == "" {
		// Flag without credential, or credential without flag: an interrupted
		// clear or login. Neither is a session.
		if hasFlag || hasCredential || hasProfile {
			m.logger.Info().
				Bool("flag", hasFlag).
				Bool("credential", hasCredential).
				Bool("profile", hasProfile).
				Msg("discarding incomplete durable session")
			if err := m.clearLocked(detached(ctx), clearOrder); err != nil {
				m.logger.Warn().Err(err).Msg("failed to discard incomplete durable session")
			}
			m.metrics.RecordInvalidation(ReasonReconcile)
		}
		return false
	}

	written, err := m.jar.SetIfAbsent(m.origin, credential, m.attributes())
	switch {
	case err != nil:
		m.metrics.RecordStorageError("jar_set")
		m.logger.Warn().Err(err).Msg("jar repair at start failed, requests will repair on demand")
	case written:
		m.metrics.RecordJarRepair()
	}

	var profile sessionmodel.Profile
	if hasProfile {
		if profile, err = sessionmodel.DecodeProfile(rawProfile); err != nil {
			m.logger.Warn().Err(err).Msg("cached profile is unreadable, waiting for refresh")
			profile = sessionmodel.Profile{}
		}
	}
	m.transition(sessionmodel.AuthenticatedState(profile))
	m.logger.Info().Str("user_id", profile.ID).Msg("session restored from durable store")
	return true
}

func (m *Manager) storageUnavailableAtStart(err error) {
	m.metrics.RecordStorageError("store_get")
	m.logger.Warn().Err(err).Msg("durable store unavailable at start, continuing signed out")
}
