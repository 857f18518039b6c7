package config

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// loadEnvFiles loads .env/.env.local from the working directory and from the
// config file's directory. Existing process environment variables win.
func loadEnvFiles(configDir string) {
	seen := map[string]bool{}
	for _, dir := range []string{".", configDir} {
		for _, name := range []string{".env", ".env.local"} {
			path := filepath.Clean(filepath.Join(dir, name))
			if seen[path] {
				continue
			}
			seen[path] = true
			if _, err := os.Stat(path); err != nil {
				continue
			}
			if err := godotenv.Load(path); err != nil {
				slog.Warn("Failed to load environment file", "path", path, "error", err)
				continue
			}
			slog.Debug("Loaded environment variables", "path", path)
		}
	}
}
