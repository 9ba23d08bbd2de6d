package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadEnvFile loads KEY=VALUE pairs from a .env file placed next to the
// resolved config path. Variables already present in the environment win.
// A missing file is not an error.
func LoadEnvFile(configPath string) error {
	if configPath == "" {
		return nil
	}
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if err := godotenv.Load(envPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", envPath, err)
	}
	return nil
}

// LoadWithEnv resolves the config path, applies the adjacent .env file, and
// then loads the configuration so secrets from the file reach normalize.
func LoadWithEnv(path string) (*Config, string, bool, error) {
	resolved, _, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}
	if err := LoadEnvFile(resolved); err != nil {
		return nil, "", false, err
	}
	return Load(path)
}
