package conf

import (
	"os"
	"path/filepath"

	"github.com/tphakala/pulsebridge/internal/errors"
)

const appDir = "pulsebridge"

// GetDefaultConfigPaths returns the directories searched for config.yaml:
// the working directory, the user's config directory and /etc. If one of
// them holds a config.yaml only that directory is returned.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategorySystem).
			Context("operation", "get-home-directory").
			Build()
	}

	configPaths := []string{
		".",
		filepath.Join(homeDir, ".config", appDir),
		filepath.Join("/etc", appDir),
	}

	for _, path := range configPaths {
		if _, err := os.Stat(filepath.Join(path, "config.yaml")); err == nil {
			return []string{path}, nil
		}
	}

	return configPaths, nil
}
