package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// For mocking in tests
var osUserHomeDir = os.UserHomeDir
var osGetwd = os.Getwd

const (
	userConfigDir    = ".config/e2ectl"
	projectConfigDir = ".e2ectl"
	configFileName   = "config.yaml"
)

// LoadConfig loads the harness configuration by layering default, user, and
// project settings. When explicitPath is non-empty that file is layered last
// and must exist.
func LoadConfig(explicitPath string) (HarnessConfig, error) {
	// 1. Start with the default configuration
	config := GetDefaultConfig()

	// 2. Overlay user-specific configuration, if present
	userConfigPath, err := getUserConfigPath()
	if err != nil {
		// User config is optional; report and continue.
		fmt.Fprintf(os.Stderr, "Warning: Could not determine user config path: %v\n", err)
	} else {
		if _, err := os.Stat(userConfigPath); !os.IsNotExist(err) {
			userConfig, err := loadConfigFromFile(userConfigPath)
			if err != nil {
				return HarnessConfig{}, fmt.Errorf("error loading user config from %s: %w", userConfigPath, err)
			}
			config = mergeConfigs(config, userConfig)
		}
	}

	// 3. Overlay project-specific configuration, if present
	projectConfigPath, err := getProjectConfigPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not determine project config path: %v\n", err)
	} else {
		if _, err := os.Stat(projectConfigPath); !os.IsNotExist(err) {
			projectConfig, err := loadConfigFromFile(projectConfigPath)
			if err != nil {
				return HarnessConfig{}, fmt.Errorf("error loading project config from %s: %w", projectConfigPath, err)
			}
			config = mergeConfigs(config, projectConfig)
		}
	}

	// 4. Overlay the explicitly requested file, which is not optional
	if explicitPath != "" {
		explicitConfig, err := loadConfigFromFile(explicitPath)
		if err != nil {
			return HarnessConfig{}, fmt.Errorf("error loading config from %s: %w", explicitPath, err)
		}
		config = mergeConfigs(config, explicitConfig)
	}

	return config, nil
}

var getUserConfigPath = func() (string, error) {
	homeDir, err := osUserHomeDir() // Use mockable variable
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

var getProjectConfigPath = func() (string, error) {
	wd, err := osGetwd() // Use mockable variable
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, projectConfigDir, configFileName), nil
}

// loadConfigFromFile loads a HarnessConfig from a YAML file.
func loadConfigFromFile(filePath string) (HarnessConfig, error) {
	var config HarnessConfig
	data, err := os.ReadFile(filePath)
	if err != nil {
		return HarnessConfig{}, err
	}
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return HarnessConfig{}, err
	}
	return config, nil
}

// mergeConfigs merges 'overlay' config into 'base' config. Strings overlay
// when non-empty, durations when non-zero, slices replace wholesale.
func mergeConfigs(base, overlay HarnessConfig) HarnessConfig {
	merged := base

	if overlay.Service.Dir != "" {
		merged.Service.Dir = overlay.Service.Dir
	}
	if overlay.Service.Binary != "" {
		merged.Service.Binary = overlay.Service.Binary
	}
	if overlay.Service.ProviderConfigDir != "" {
		merged.Service.ProviderConfigDir = overlay.Service.ProviderConfigDir
	}
	if overlay.Service.SocketPath != "" {
		merged.Service.SocketPath = overlay.Service.SocketPath
	}
	if overlay.Service.MappingsDir != "" {
		merged.Service.MappingsDir = overlay.Service.MappingsDir
	}

	if overlay.Environment.LogLevel != "" {
		merged.Environment.LogLevel = overlay.Environment.LogLevel
	}
	if overlay.Environment.StressLogLevel != "" {
		merged.Environment.StressLogLevel = overlay.Environment.StressLogLevel
	}
	if overlay.Environment.Backtrace != "" {
		merged.Environment.Backtrace = overlay.Environment.Backtrace
	}

	if overlay.Timing.EmulatorStartWait != 0 {
		merged.Timing.EmulatorStartWait = overlay.Timing.EmulatorStartWait
	}
	if overlay.Timing.ServiceStartWait != 0 {
		merged.Timing.ServiceStartWait = overlay.Timing.ServiceStartWait
	}
	if overlay.Timing.ReloadWait != 0 {
		merged.Timing.ReloadWait = overlay.Timing.ReloadWait
	}
	if overlay.Timing.StopGrace != 0 {
		merged.Timing.StopGrace = overlay.Timing.StopGrace
	}
	if overlay.Timing.ReadyTimeout != 0 {
		merged.Timing.ReadyTimeout = overlay.Timing.ReadyTimeout
	}
	if overlay.Timing.ReadyInterval != 0 {
		merged.Timing.ReadyInterval = overlay.Timing.ReadyInterval
	}

	if overlay.Emulator.Binary != "" {
		merged.Emulator.Binary = overlay.Emulator.Binary
	}
	if overlay.Emulator.StateDir != "" {
		merged.Emulator.StateDir = overlay.Emulator.StateDir
	}
	if overlay.Emulator.StateFile != "" {
		merged.Emulator.StateFile = overlay.Emulator.StateFile
	}
	if overlay.Emulator.InitCommands != nil {
		merged.Emulator.InitCommands = overlay.Emulator.InitCommands
	}

	if overlay.PKCS11.Tool != "" {
		merged.PKCS11.Tool = overlay.PKCS11.Tool
	}
	if overlay.PKCS11.InitTokenArgs != nil {
		merged.PKCS11.InitTokenArgs = overlay.PKCS11.InitTokenArgs
	}

	if overlay.Fixture.AppName != "" {
		merged.Fixture.AppName = overlay.Fixture.AppName
	}
	if overlay.Fixture.KeyName != "" {
		merged.Fixture.KeyName = overlay.Fixture.KeyName
	}
	if overlay.Fixture.KeyID != 0 {
		merged.Fixture.KeyID = overlay.Fixture.KeyID
	}

	if overlay.Reports.Dir != "" {
		merged.Reports.Dir = overlay.Reports.Dir
	}

	return merged
}
