// Package sqlstore implements store.Store on an SQLite database. Values are
// sealed with the encrypted package's cipher before they reach the database.
package sqlstore

import (
	"context"
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	apperrors "github.com/jrsteele09/go-campus-session/internal/errors"
	"github.com/jrsteele09/go-campus-session/store"
	"github.com/jrsteele09/go-campus-session/store/encrypted"
)

const schema = `
CREATE TABLE IF NOT EXISTS session_meta (
	name  TEXT PRIMARY KEY,
	value BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS session_kv (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);`

const saltName = "salt"

var _ store.Store = (*SQLiteStore)(nil)

// SQLiteStore is a durable store backed by one SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	cipher *encrypted.Cipher
}

// Open opens or creates the database at path.
func Open(ctx context.Context, path, passphrase string, params encrypted.KDFParams) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.Wrap(apperrors.ErrInvalidConfig, "[sqlstore.Open] path is required")
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, store.Wrap(store.OpOpen, "", err)
	}
	db.SetMaxOpenConns(1)

	s, err := newStore(ctx, db, passphrase, params)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func newStore(ctx context.Context, db *sql.DB, passphrase string, params encrypted.KDFParams) (*SQLiteStore, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, store.Wrap(store.OpOpen, "", err)
	}

	var salt []byte
	err := db.QueryRowContext(ctx, `SELECT value FROM session_meta WHERE name = ?`, saltName).Scan(&salt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if salt, err = encrypted.NewSalt(); err != nil {
			return nil, store.Wrap(store.OpOpen, "", err)
		}
		if _, err := db.ExecContext(ctx, `INSERT INTO session_meta (name, value) VALUES (?, ?)`, saltName, salt); err != nil {
			return nil, store.Wrap(store.OpOpen, "", err)
		}
	case err != nil:
		return nil, store.Wrap(store.OpOpen, "", err)
	}

	c, err := encrypted.NewCipher(passphrase, salt, params)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db, cipher: c}
	if err := s.verifyKey(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// verifyKey opens one sealed row so a wrong passphrase fails at Open rather
// than on the first read.
func (s *SQLiteStore) verifyKey(ctx context.Context) error {
	var key string
	var sealed []byte
	err := s.db.QueryRowContext(ctx, `SELECT key, value FROM session_kv LIMIT 1`).Scan(&key, &sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return store.Wrap(store.OpOpen, "", err)
	}
	if _, err := s.cipher.Open(sealed, []byte(key)); err != nil {
		return store.Wrap(store.OpOpen, key, err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	var sealed []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM session_kv WHERE key = ?`, key).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, store.Wrap(store.OpGet, key, err)
	}
	plaintext, err := s.cipher.Open(sealed, []byte(key))
	if err != nil {
		return "", false, store.Wrap(store.OpGet, key, err)
	}
	return string(plaintext), true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	sealed, err := s.cipher.Seal([]byte(value), []byte(key))
	if err != nil {
		return store.Wrap(store.OpSet, key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO session_kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, sealed)
	return store.Wrap(store.OpSet, key, err)
}

func (s *SQLiteStore) Remove(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM session_kv WHERE key = ?`, key)
	return store.Wrap(store.OpRemove, key, err)
}
