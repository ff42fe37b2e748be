package config

import (
	"os"
	"path/filepath"
	"strings"
)

type StoreConfig interface {
	GetStoreDriver() string
	GetStorePath() string
	GetStoreKey() string
}

// Store drivers.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

type Store struct{}

var _ StoreConfig = Store{}

func (Store) GetStoreDriver() string {
	return strings.ToLower(GetEnv("SESSION_STORE_DRIVER", DriverFile))
}

// GetStorePath defaults to a file under the user's config directory.
func (s Store) GetStorePath() string {
	if p := os.Getenv("SESSION_STORE_PATH"); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	name := "session.db"
	if s.GetStoreDriver() == DriverSQLite {
		name = "session.sqlite"
	}
	return filepath.Join(dir, "campus-session", name)
}

// GetStoreKey is the passphrase the durable store is sealed with.
func (Store) GetStoreKey() string {
	return GetEnv("SESSION_STORE_KEY", "")
}
