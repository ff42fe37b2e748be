package sqlstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/jrsteele09/go-campus-session/internal/errors"
	"github.com/jrsteele09/go-campus-session/store"
	"github.com/jrsteele09/go-campus-session/store/encrypted"
	"github.com/jrsteele09/go-campus-session/store/sqlstore"
)

var testKDF = encrypted.KDFParams{Time: 1, Memory: 1024, Threads: 1}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()

	t.Run("set, get, overwrite and remove", func(t *testing.T) {
		s, err := sqlstore.Open(ctx, filepath.Join(t.TempDir(), "session.sqlite"), "pass", testKDF)
		require.NoError(t, err)
		defer s.Close()

		_, ok, err := s.Get(ctx, "auth_token")
		require.NoError(t, err)
		require.False(t, ok)

		require.NoError(t, s.Set(ctx, "auth_token", "tok1"))
		require.NoError(t, s.Set(ctx, "auth_token", "tok2"))
		v, ok, err := s.Get(ctx, "auth_token")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "tok2", v)

		require.NoError(t, s.Remove(ctx, "auth_token"))
		require.NoError(t, s.Remove(ctx, "auth_token"))
		_, ok, err = s.Get(ctx, "auth_token")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("reopen keeps values", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.sqlite")
		s, err := sqlstore.Open(ctx, path, "pass", testKDF)
		require.NoError(t, err)
		require.NoError(t, s.Set(ctx, "isAuthenticated", "true"))
		require.NoError(t, s.Close())

		s, err = sqlstore.Open(ctx, path, "pass", testKDF)
		require.NoError(t, err)
		defer s.Close()
		v, ok, err := s.Get(ctx, "isAuthenticated")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "true", v)
	})

	t.Run("wrong passphrase fails at open", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.sqlite")
		s, err := sqlstore.Open(ctx, path, "pass", testKDF)
		require.NoError(t, err)
		require.NoError(t, s.Set(ctx, "auth_token", "tok1"))
		require.NoError(t, s.Close())

		_, err = sqlstore.Open(ctx, path, "other", testKDF)
		require.ErrorIs(t, err, store.ErrUnavailable)
		require.ErrorIs(t, err, apperrors.ErrWrongKey)
	})

	t.Run("path is required", func(t *testing.T) {
		_, err := sqlstore.Open(ctx, "", "pass", testKDF)
		require.ErrorIs(t, err, apperrors.ErrInvalidConfig)
	})
}
