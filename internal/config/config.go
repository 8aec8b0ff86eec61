package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"luascript-server/internal/types"
)

// LoadDevicesYAML loads the device configuration
func LoadDevicesYAML(path string) (*types.DevicesConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg types.DevicesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}

// LoadRulesYAML loads the rule configuration. A missing file is not an
// error; it yields an empty rule set.
func LoadRulesYAML(path string) (*types.RulesConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &types.RulesConfig{}, nil
		}
		return nil, fmt.Errorf("failed to read rules: %w", err)
	}

	var cfg types.RulesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}

	return &cfg, nil
}
