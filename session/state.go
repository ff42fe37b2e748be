package session

import (
	"reflect"
	"sync"

	"github.com/jrsteele09/go-campus-session/sessionmodel"
)

// stateHolder owns the one SessionState value. Only the manager's flows move
// it between states.
type stateHolder struct {
	mu    sync.RWMutex
	state sessionmodel.State
}

func newStateHolder() *stateHolder {
	return &stateHolder{state: sessionmodel.AnonymousState()}
}

func (h *stateHolder) get() sessionmodel.State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// set stores next and reports whether the presentation layer needs to hear
// about it: the kind changed, or an authenticated profile snapshot changed.
func (h *stateHolder) set(next sessionmodel.State) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	prev := h.state
	h.state = next
	if prev.Kind != next.Kind {
		return true
	}
	return next.IsAuthenticated() && !reflect.DeepEqual(prev.Profile, next.Profile)
}
