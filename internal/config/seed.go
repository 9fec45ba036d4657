package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"horoscope/internal/models"
)

// SeedFile is the structure of the optional horoscope seed file.
type SeedFile struct {
	Horoscopes []models.HoroscopeInput `yaml:"horoscopes"`
}

// LoadSeedFile reads the YAML seed file at path.
// Returns nil without error if path is empty or the file doesn't exist.
func LoadSeedFile(path string) (*SeedFile, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Seed file is optional
			return nil, nil
		}
		return nil, err
	}

	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}

	return &seed, nil
}
