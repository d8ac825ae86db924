package cli

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/aigate/aigate/internal/store"
)

// resolveDBPath returns the key database path from the --db flag,
// the AIGATE_DB env var, the config file, or the default.
func resolveDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	if envPath := os.Getenv("AIGATE_DB"); envPath != "" {
		return envPath
	}
	if cfgPath := viper.GetString("store.path"); cfgPath != "" {
		return cfgPath
	}
	return "./data/api_keys.db"
}

// openStore opens the SQLite key store at the resolved path, creating the
// database and running migrations if needed.
func openStore() (*store.Store, error) {
	return store.Open(resolveDBPath())
}

// cliLogger returns a quiet logger for one-shot CLI commands. Store and
// service internals log through it without drowning the command output.
func cliLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
