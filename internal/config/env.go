package config

import (
	"log/slog"
	"path/filepath"

	"github.com/joho/godotenv"
)

// loadEnvFiles loads KEY=VALUE pairs from .env/.env.local next to the
// manifest. The first file that parses wins; existing process environment
// variables are never overwritten.
func loadEnvFiles(dir string) {
	for _, name := range []string{".env", ".env.local"} {
		path := filepath.Join(dir, name)
		if err := godotenv.Load(path); err == nil {
			slog.Debug("Loaded environment variables", "path", path)
			return
		}
	}
}
