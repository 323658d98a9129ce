package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"ephemcp/pkg/logging"

	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".config/ephemcp"
	configFileName = "config.yaml"
)

// GetDefaultConfigPathOrPanic returns ~/.config/ephemcp.
func GetDefaultConfigPathOrPanic() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		panic(fmt.Errorf("could not determine user config directory: %w", err))
	}

	return filepath.Join(homeDir, userConfigDir)
}

// LoadConfig reads config.yaml from configPath on top of the defaults and
// validates the result.
func LoadConfig(configPath string) (Config, error) {
	configFilePath := filepath.Join(configPath, configFileName)
	cfg := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
			return cfg, nil
		}
		return Config{}, fmt.Errorf("failed to read config from %s: %w", configFilePath, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("error loading config from %s: %w", configFilePath, err)
	}

	if errs := Validate(cfg); errs.HasErrors() {
		return Config{}, fmt.Errorf("invalid config in %s: %w", configFilePath, errs)
	}

	logging.Info("ConfigLoader", "Loaded configuration from %s", configFilePath)
	return cfg, nil
}
