package session

import (
	"context"

	"github.com/jrsteele09/go-campus-session/sessionmodel"
)

// resolved is the credential a request was sent with and the epoch it was
// resolved in.
type resolved struct {
	value string
	epoch uint64
	ok    bool
}

// resolveCredential finds the credential for the API origin: the jar first,
// then the durable store, repairing the jar when only the store has it.
// Lookup failures degrade to an unauthenticated request.
func (m *Manager) resolveCredential(ctx context.Context) resolved {
	// The epoch is read before the jar so a credential can only ever be paired
	// with an epoch at or before the one it was written in. A failure for it
	// then never invalidates a later login.
	r := resolved{epoch: m.epoch.Load()}

	v, ok, err := m.jar.Get(m.origin)
	if err != nil {
		m.metrics.RecordStorageError("jar_get")
		m.logger.Warn().Err(err).Msg("jar lookup failed, sending request unauthenticated")
		return r
	}
	if ok && v != "" {
		r.value, r.ok = v, true
		return r
	}
	return m.repairFromDurable(ctx, r)
}

// repairFromDurable reads the store without holding repairMu so concurrent
// misses overlap. Only the write back is ordered against clears, and it is
// skipped if a clear started or the session changed since the read.
func (m *Manager) repairFromDurable(ctx context.Context, r resolved) resolved {
	if m.repairsBlocked() {
		return r
	}

	lookupCtx, cancel := context.WithTimeout(ctx, m.lookupTimeout)
	defer cancel()
	v, ok, err := m.durable.Get(lookupCtx, sessionmodel.KeyCredential)
	if err != nil {
		m.metrics.RecordStorageError("store_get")
		m.logger.Warn().Err(err).Msg("durable store lookup failed, sending request unauthenticated")
		return r
	}
	if !ok || v == "" {
		return r
	}

	m.repairMu.Lock()
	defer m.repairMu.Unlock()
	if m.repairBlocked || m.epoch.Load() != r.epoch {
		return r
	}

	written, err := m.jar.SetIfAbsent(m.origin, v, m.attributes())
	switch {
	case err != nil:
		m.metrics.RecordStorageError("jar_set")
		m.logger.Warn().Err(err).Msg("jar repair failed, using durable credential for this request")
	case written:
		m.metrics.RecordJarRepair()
		m.logger.Debug().Msg("repaired jar from durable store")
	default:
		// A concurrent login filled the jar first; its credential is fresher.
		if cur, ok, err := m.jar.Get(m.origin); err == nil && ok && cur != "" {
			v = cur
		}
	}
	r.value, r.ok = v, true
	return r
}

func (m *Manager) repairsBlocked() bool {
	m.repairMu.Lock()
	defer m.repairMu.Unlock()
	return m.repairBlocked
}

// blockRepairs stops the repair path until unblockRepairs. It is called
// before the jar is cleared.
func (m *Manager) blockRepairs() {
	m.repairMu.Lock()
	m.repairBlocked = true
	m.repairMu.Unlock()
}

func (m *Manager) unblockRepairs() {
	m.repairMu.Lock()
	m.repairBlocked = false
	m.repairMu.Unlock()
}
