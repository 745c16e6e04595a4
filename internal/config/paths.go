package config

import (
	"os"
	"path/filepath"
)

func GetUserConfigDir() (string, error) {
	if dir := os.Getenv("DW_HOME"); dir != "" {
		return dir, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(homeDir, ".droidweekly"), nil
}

// DefaultPath is the config file location used when --config is not given.
func DefaultPath() string {
	dir, err := GetUserConfigDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(dir, "config.yaml")
}

func EnsureConfigDirs(userConfigDir string) error {
	return os.MkdirAll(userConfigDir, 0755)
}
