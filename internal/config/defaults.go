package config

import "time"

// GetDefaultConfig returns the compiled-in configuration. It assumes e2ectl
// runs from the root of the service checkout, which is how CI invokes it.
func GetDefaultConfig() HarnessConfig {
	return HarnessConfig{
		Service: ServiceSettings{
			Dir:               ".",
			Binary:            "target/debug/keyhavend",
			ProviderConfigDir: "e2e/provider_cfg",
			SocketPath:        "/tmp/keyhaven.sock",
			MappingsDir:       "mappings",
		},
		Environment: EnvironmentSettings{
			LogLevel:       "info",
			StressLogLevel: "error",
			Backtrace:      "1",
		},
		Timing: TimingSettings{
			EmulatorStartWait: 5 * time.Second,
			ServiceStartWait:  5 * time.Second,
			ReloadWait:        5 * time.Second,
			StopGrace:         10 * time.Second,
			ReadyTimeout:      30 * time.Second,
			ReadyInterval:     500 * time.Millisecond,
		},
		Emulator: EmulatorSettings{
			Binary:    "tpm_server",
			StateFile: "NVChip",
			InitCommands: [][]string{
				{"tpm2_startup", "-c", "-T", "mssim"},
				{"tpm2_takeownership", "-o", "tpm_pass", "-T", "mssim"},
			},
		},
		PKCS11: PKCS11Settings{
			Tool: "softhsm2-util",
		},
		Fixture: FixtureSettings{
			AppName: "persistence-client",
			KeyName: "stale-key",
			KeyID:   1,
		},
	}
}
