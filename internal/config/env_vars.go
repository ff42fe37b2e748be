package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	appNameVar  = "APP_NAME"
	envVar      = "ENV"
	logLevelVar = "LOG_LEVEL"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Campus Session")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv(envVar)
	if env == "" {
		return "DEV"
	}
	return env
}

func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, "info")
}

// Load reads the given .env files into the process environment without
// overriding variables that are already set. Missing files are skipped so a
// release build can run on the environment alone.
func Load(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return err
		}
		log.Debug().Str("file", f).Msg("loaded environment file")
	}
	return nil
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetDuration parses a Go duration, falling back to defaultValue when the
// variable is unset or invalid.
func GetDuration(envVar string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		log.Warn().Str("var", envVar).Str("value", value).Msg("invalid duration, using default")
		return defaultValue
	}
	return d
}

// GetInt parses an integer, falling back to defaultValue when the variable is
// unset or invalid.
func GetInt(envVar string, defaultValue int) int {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		log.Warn().Str("var", envVar).Str("value", value).Msg("invalid integer, using default")
		return defaultValue
	}
	return n
}
