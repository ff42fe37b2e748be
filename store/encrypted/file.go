// Package encrypted implements store.Store as a single sealed file on disk.
package encrypted

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	apperrors "github.com/jrsteele09/go-campus-session/internal/errors"
	"github.com/jrsteele09/go-campus-session/store"
)

var fileMagic = []byte("CSS1")

var _ store.Store = (*FileStore)(nil)

// FileStore keeps every key in one XChaCha20-Poly1305 sealed JSON document.
// Writes go to a temporary file that replaces the original, so a crash never
// leaves a half written store behind.
type FileStore struct {
	path   string
	salt   []byte
	cipher *Cipher
	values map[string]string
	mu     sync.RWMutex
}

// FileStoreOption customises a FileStore.
type FileStoreOption func(*fileStoreOptions)

type fileStoreOptions struct {
	kdf KDFParams
}

// WithKDFParams overrides the Argon2id parameters. Tests use cheap values.
func WithKDFParams(params KDFParams) FileStoreOption {
	return func(o *fileStoreOptions) {
		o.kdf = params
	}
}

// Open loads the store at path, creating it when it does not exist.
// A passphrase that does not match the existing file is reported as
// store.ErrUnavailable wrapping ErrWrongKey.
func Open(path, passphrase string, options ...FileStoreOption) (*FileStore, error) {
	if path == "" {
		return nil, errors.Wrap(apperrors.ErrInvalidConfig, "[encrypted.Open] path is required")
	}
	opts := fileStoreOptions{kdf: DefaultKDFParams()}
	for _, opt := range options {
		opt(&opts)
	}

	fs := &FileStore{path: path, values: make(map[string]string)}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if fs.salt, err = NewSalt(); err != nil {
			return nil, store.Wrap(store.OpOpen, "", err)
		}
		if fs.cipher, err = NewCipher(passphrase, fs.salt, opts.kdf); err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, store.Wrap(store.OpOpen, "", err)
		}
		if err := fs.persist(fs.values); err != nil {
			return nil, store.Wrap(store.OpOpen, "", err)
		}
		return fs, nil
	case err != nil:
		return nil, store.Wrap(store.OpOpen, "", err)
	}

	headerLen := len(fileMagic) + SaltSize
	if len(data) < headerLen || !bytes.Equal(data[:len(fileMagic)], fileMagic) {
		return nil, store.Wrap(store.OpOpen, "", apperrors.ErrCorruptStore)
	}
	fs.salt = append([]byte(nil), data[len(fileMagic):headerLen]...)
	if fs.cipher, err = NewCipher(passphrase, fs.salt, opts.kdf); err != nil {
		return nil, err
	}
	plaintext, err := fs.cipher.Open(data[headerLen:], data[:headerLen])
	if err != nil {
		return nil, store.Wrap(store.OpOpen, "", err)
	}
	if err := json.Unmarshal(plaintext, &fs.values); err != nil {
		return nil, store.Wrap(store.OpOpen, "", apperrors.ErrCorruptStore)
	}
	if fs.values == nil {
		fs.values = make(map[string]string)
	}
	return fs, nil
}

// Path returns the file backing the store.
func (fs *FileStore) Path() string {
	return fs.path
}

func (fs *FileStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, store.Wrap(store.OpGet, key, err)
	}
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	v, ok := fs.values[key]
	return v, ok, nil
}

func (fs *FileStore) Set(ctx context.Context, key, value string) error {
	return fs.mutate(ctx, store.OpSet, key, func(m map[string]string) {
		m[key] = value
	})
}

func (fs *FileStore) Remove(ctx context.Context, key string) error {
	fs.mu.RLock()
	_, ok := fs.values[key]
	fs.mu.RUnlock()
	if !ok {
		return nil
	}
	return fs.mutate(ctx, store.OpRemove, key, func(m map[string]string) {
		delete(m, key)
	})
}

func (fs *FileStore) mutate(ctx context.Context, op store.Op, key string, apply func(map[string]string)) error {
	if err := ctx.Err(); err != nil {
		return store.Wrap(op, key, err)
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	next := make(map[string]string, len(fs.values)+1)
	for k, v := range fs.values {
		next[k] = v
	}
	apply(next)
	if err := fs.persist(next); err != nil {
		return store.Wrap(op, key, err)
	}
	fs.values = next
	return nil
}

func (fs *FileStore) persist(values map[string]string) error {
	plaintext, err := json.Marshal(values)
	if err != nil {
		return err
	}
	header := append(append([]byte(nil), fileMagic...), fs.salt...)
	sealed, err := fs.cipher.Seal(plaintext, header)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(fs.path), ".session-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(append(header, sealed...)); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, fs.path)
}
