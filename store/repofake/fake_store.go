package repofake

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jrsteele09/go-campus-session/store"
)

var _ store.Store = (*FakeStore)(nil)

// ErrInjected is the cause of failures scheduled with Fail.
var ErrInjected = errors.New("injected failure")

type fault struct {
	op        store.Op
	key       string
	remaining int
}

// FakeStore is an in-memory store.Store with scheduled failures.
type FakeStore struct {
	values map[string]string
	faults []*fault
	calls  map[store.Op]int
	delay  time.Duration
	lock   sync.RWMutex
}

func NewFakeStore() *FakeStore {
	return &FakeStore{
		values: make(map[string]string),
		calls:  make(map[store.Op]int),
	}
}

// Fail makes the next n calls of op on key fail. An empty key matches any key
// and n < 0 fails forever.
func (fs *FakeStore) Fail(op store.Op, key string, n int) {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.faults = append(fs.faults, &fault{op: op, key: key, remaining: n})
}

// SetDelay makes every Get wait d before answering, or until ctx is done.
func (fs *FakeStore) SetDelay(d time.Duration) {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.delay = d
}

// Heal removes every scheduled failure.
func (fs *FakeStore) Heal() {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.faults = nil
}

// Calls returns how many times op was attempted.
func (fs *FakeStore) Calls(op store.Op) int {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	return fs.calls[op]
}

// Snapshot returns a copy of the stored values.
func (fs *FakeStore) Snapshot() map[string]string {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	out := make(map[string]string, len(fs.values))
	for k, v := range fs.values {
		out[k] = v
	}
	return out
}

// Len returns the number of stored keys.
func (fs *FakeStore) Len() int {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	return len(fs.values)
}

func (fs *FakeStore) Get(ctx context.Context, key string) (string, bool, error) {
	fs.lock.RLock()
	delay := fs.delay
	fs.lock.RUnlock()
	if delay > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(delay):
		}
	}

	fs.lock.Lock()
	defer fs.lock.Unlock()
	if err := fs.check(ctx, store.OpGet, key); err != nil {
		return "", false, err
	}
	v, ok := fs.values[key]
	return v, ok, nil
}

func (fs *FakeStore) Set(ctx context.Context, key, value string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	if err := fs.check(ctx, store.OpSet, key); err != nil {
		return err
	}
	fs.values[key] = value
	return nil
}

func (fs *FakeStore) Remove(ctx context.Context, key string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	if err := fs.check(ctx, store.OpRemove, key); err != nil {
		return err
	}
	delete(fs.values, key)
	return nil
}

// check must be called with the lock held.
func (fs *FakeStore) check(ctx context.Context, op store.Op, key string) error {
	fs.calls[op]++
	if err := ctx.Err(); err != nil {
		return store.Wrap(op, key, err)
	}
	for _, f := range fs.faults {
		if f.op != op || (f.key != "" && f.key != key) || f.remaining == 0 {
			continue
		}
		if f.remaining > 0 {
			f.remaining--
		}
		return store.Wrap(op, key, ErrInjected)
	}
	return nil
}
