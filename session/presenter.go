package session

import (
	"sync"

	"github.com/jrsteele09/go-campus-session/sessionmodel"
)

// Presenter is the presentation layer collaborator. It is told about every
// session state transition and owns all rendering.
//
// OnSessionStateChanged is called after the manager has released its locks,
// in transition order and never concurrently. It may use the manager,
// including Client; transitions it causes are delivered after it returns.
type Presenter interface {
	OnSessionStateChanged(state sessionmodel.State)
}

// PresenterFunc adapts a function to the Presenter interface.
type PresenterFunc func(state sessionmodel.State)

func (f PresenterFunc) OnSessionStateChanged(state sessionmodel.State) {
	f(state)
}

type noopPresenter struct{}

func (noopPresenter) OnSessionStateChanged(sessionmodel.State) {}

// signalQueue delivers transitions to the presenter in the order they were
// pushed. Whoever finds the queue idle drains it; everyone else only pushes,
// so a presenter that triggers another transition does not wait on itself.
type signalQueue struct {
	presenter Presenter

	mu         sync.Mutex
	queue      []sessionmodel.State
	delivering bool
}

func (q *signalQueue) push(state sessionmodel.State) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queue = append(q.queue, state)
}

func (q *signalQueue) flush() {
	q.mu.Lock()
	if q.delivering {
		q.mu.Unlock()
		return
	}
	q.delivering = true
	for len(q.queue) > 0 {
		next := q.queue[0]
		q.queue = q.queue[1:]
		q.mu.Unlock()
		q.presenter.OnSessionStateChanged(next)
		q.mu.Lock()
	}
	q.delivering = false
	q.mu.Unlock()
}
