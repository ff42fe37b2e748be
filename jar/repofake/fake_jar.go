package repofake

import (
	"errors"
	"sync"

	"github.com/jrsteele09/go-campus-session/jar"
)

var _ jar.Jar = (*FakeJar)(nil)

// ErrInjected is the cause of failures scheduled with Fail.
var ErrInjected = errors.New("injected jar failure")

// Op names a jar operation for fault injection.
type Op string

const (
	OpGet   Op = "get"
	OpSet   Op = "set"
	OpClear Op = "clear"
)

// FakeJar is an in-memory jar.Jar whose operations can be made to fail, the
// way a native cookie bridge sometimes does.
type FakeJar struct {
	values map[string]string
	attrs  map[string]jar.Attributes
	fails  map[Op]int
	calls  map[Op]int
	lock   sync.Mutex
}

func NewFakeJar() *FakeJar {
	return &FakeJar{
		values: make(map[string]string),
		attrs:  make(map[string]jar.Attributes),
		fails:  make(map[Op]int),
		calls:  make(map[Op]int),
	}
}

// Fail makes the next n calls of op fail; n < 0 fails forever.
func (fj *FakeJar) Fail(op Op, n int) {
	fj.lock.Lock()
	defer fj.lock.Unlock()
	fj.fails[op] = n
}

// Calls returns how many times op was attempted.
func (fj *FakeJar) Calls(op Op) int {
	fj.lock.Lock()
	defer fj.lock.Unlock()
	return fj.calls[op]
}

// Attributes returns the attributes the credential for origin was set with.
func (fj *FakeJar) Attributes(origin string) (jar.Attributes, bool) {
	fj.lock.Lock()
	defer fj.lock.Unlock()
	a, ok := fj.attrs[origin]
	return a, ok
}

// Len returns the number of origins holding a credential.
func (fj *FakeJar) Len() int {
	fj.lock.Lock()
	defer fj.lock.Unlock()
	return len(fj.values)
}

func (fj *FakeJar) Get(origin string) (string, bool, error) {
	fj.lock.Lock()
	defer fj.lock.Unlock()
	if err := fj.check(OpGet); err != nil {
		return "", false, err
	}
	v, ok := fj.values[origin]
	return v, ok, nil
}

func (fj *FakeJar) Set(origin, credential string, attrs jar.Attributes) error {
	fj.lock.Lock()
	defer fj.lock.Unlock()
	if err := fj.check(OpSet); err != nil {
		return err
	}
	fj.values[origin] = credential
	fj.attrs[origin] = attrs
	return nil
}

func (fj *FakeJar) SetIfAbsent(origin, credential string, attrs jar.Attributes) (bool, error) {
	fj.lock.Lock()
	defer fj.lock.Unlock()
	if err := fj.check(OpSet); err != nil {
		return false, err
	}
	if _, ok := fj.values[origin]; ok {
		return false, nil
	}
	fj.values[origin] = credential
	fj.attrs[origin] = attrs
	return true, nil
}

func (fj *FakeJar) Clear(origin string) error {
	fj.lock.Lock()
	defer fj.lock.Unlock()
	if err := fj.check(OpClear); err != nil {
		return err
	}
	delete(fj.values, origin)
	delete(fj.attrs, origin)
	return nil
}

func (fj *FakeJar) ClearAll() error {
	fj.lock.Lock()
	defer fj.lock.Unlock()
	if err := fj.check(OpClear); err != nil {
		return err
	}
	fj.values = make(map[string]string)
	fj.attrs = make(map[string]jar.Attributes)
	return nil
}

// check must be called with the lock held.
func (fj *FakeJar) check(op Op) error {
	fj.calls[op]++
	n := fj.fails[op]
	if n == 0 {
		return nil
	}
	if n > 0 {
		fj.fails[op] = n - 1
	}
	return ErrInjected
}
