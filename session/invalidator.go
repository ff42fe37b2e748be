package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/jrsteele09/go-campus-session/internal/errors"
	"github.com/jrsteele09/go-campus-session/sessionmodel"
)

// clearStep is one of the removals that make up an invalidation.
type clearStep string

const (
	stepJar        clearStep = "jar"
	stepFlag       clearStep = sessionmodel.KeyAuthenticated
	stepCredential clearStep = sessionmodel.KeyCredential
	stepProfile    clearStep = sessionmodel.KeyProfile
)

// clearOrder removes the authenticated flag before the credential so a clear
// interrupted half way is read as logged out on the next start.
var clearOrder = []clearStep{stepJar, stepFlag, stepCredential, stepProfile}

// Invalidate clears the session from every tier and moves to Anonymous. It is
// idempotent. A returned error means some clears are still failing after
// retries; they are retried by the next Invalidate or Reconcile, and the
// session is already Anonymous.
func (m *Manager) Invalidate(ctx context.Context, reason string) error {
	defer m.notify()
	m.flowMu.Lock()
	defer m.flowMu.Unlock()
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	return m.invalidateLocked(detached(ctx), reason)
}

// handleAuthFailure runs for an authentication failure on a request sent with
// cred. The first failure of an epoch claims it by moving the epoch on; the
// others, and failures from older epochs, lose the claim and leave the session
// alone. It never waits for a flow's network call.
func (m *Manager) handleAuthFailure(ctx context.Context, cred resolved) {
	m.metrics.RecordAuthFailure()
	defer m.notify()

	epoch := cred.epoch
	claimed := epoch + 1
	if !m.epoch.CompareAndSwap(epoch, claimed) {
		m.logger.Debug().Uint64("epoch", epoch).Msg("authentication failure for a superseded session, ignoring")
		m.stateMu.Lock()
		defer m.stateMu.Unlock()
		if len(m.pending) > 0 {
			_ = m.retryPendingLocked(ctx)
		}
		return
	}

	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	// A login that finished between the claim and here moved the epoch again;
	// its credential is not the one that failed.
	if m.epoch.Load() != claimed {
		m.logger.Debug().Uint64("epoch", epoch).Msg("session replaced before the failure was handled, ignoring")
		return
	}
	if m.alreadyCleared(cred.value) {
		m.logger.Debug().Uint64("epoch", epoch).Msg("failed credential already cleared, ignoring")
		return
	}
	if err := m.clearSessionLocked(ctx, ReasonAuthExpired); err != nil {
		m.logger.Warn().Err(err).Msg("session invalidated with clears still pending")
	}
}

// alreadyCleared reports whether an earlier invalidation already removed
// credential: the session is Anonymous and the jar no longer holds it. A
// request can pick the credential up from the jar between another failure's
// claim and its clear. The caller holds stateMu.
func (m *Manager) alreadyCleared(credential string) bool {
	if m.state.get().IsAuthenticated() || len(m.pending) > 0 {
		return false
	}
	v, ok, err := m.jar.Get(m.origin)
	return err == nil && (!ok || v != credential)
}

// invalidateLocked moves the epoch on and clears the session. The caller
// holds stateMu.
func (m *Manager) invalidateLocked(ctx context.Context, reason string) error {
	m.epoch.Add(1)
	return m.clearSessionLocked(ctx, reason)
}

func (m *Manager) clearSessionLocked(ctx context.Context, reason string) error {
	eventID := uuid.NewString()

	err := m.clearLocked(ctx, clearOrder)
	m.transition(sessionmodel.AnonymousState())
	m.metrics.RecordInvalidation(reason)

	evt := m.logger.Info()
	if err != nil {
		evt = m.logger.Warn().Err(err)
	}
	evt.Str("event_id", eventID).Str("reason", reason).Int("pending", len(m.pending)).Msg("session invalidated")
	return err
}

// retryPendingLocked reattempts clears that failed earlier.
func (m *Manager) retryPendingLocked(ctx context.Context) error {
	if len(m.pending) == 0 {
		return nil
	}
	steps := make([]clearStep, 0, len(m.pending))
	for _, s := range clearOrder {
		if _, ok := m.pending[s]; ok {
			steps = append(steps, s)
		}
	}
	err := m.clearLocked(ctx, steps)
	if err == nil {
		m.logger.Info().Msg("pending session clears completed")
	}
	return err
}

// clearLocked runs steps in order, retrying each, and never stops at a
// failing one. Repairs stay blocked while any step is pending.
func (m *Manager) clearLocked(ctx context.Context, steps []clearStep) error {
	m.blockRepairs()

	var failed []error
	for _, step := range steps {
		if err := m.clearWithRetry(ctx, step); err != nil {
			m.pending[step] = struct{}{}
			failed = append(failed, &sessionmodel.StorageError{Op: "clear", Key: string(step), Cause: err})
			continue
		}
		delete(m.pending, step)
	}

	// Repairs that read the store before these removals resolved in an older
	// epoch, so moving it on keeps them from writing back once unblocked.
	m.epoch.Add(1)
	if len(m.pending) == 0 {
		m.unblockRepairs()
	}
	return apperrors.Join(failed...)
}

func (m *Manager) clearWithRetry(ctx context.Context, step clearStep) error {
	var err error
	for attempt := 1; attempt <= m.clearRetries; attempt++ {
		if err = m.clearStep(ctx, step); err == nil {
			return nil
		}
		m.metrics.RecordStorageError("clear_" + string(step))
		m.logger.Debug().Err(err).Str("step", string(step)).Int("attempt", attempt).Msg("session clear failed")
		if attempt < m.clearRetries && !sleep(ctx, m.clearBackoff*time.Duration(attempt)) {
			break
		}
	}
	return err
}

func (m *Manager) clearStep(ctx context.Context, step clearStep) error {
	if step == stepJar {
		return m.jar.Clear(m.origin)
	}
	return m.durable.Remove(ctx, string(step))
}

// sleep waits d or until ctx is done, reporting whether the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
