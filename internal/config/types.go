package config

import (
	"os"
	"path/filepath"
	"time"
)

// HarnessConfig is the top-level configuration structure for e2ectl.
// Every field has a compiled-in default; user and project configuration
// files only need to state what differs.
type HarnessConfig struct {
	Service     ServiceSettings     `yaml:"service"`
	Environment EnvironmentSettings `yaml:"environment"`
	Timing      TimingSettings      `yaml:"timing"`
	Emulator    EmulatorSettings    `yaml:"emulator"`
	PKCS11      PKCS11Settings      `yaml:"pkcs11"`
	Fixture     FixtureSettings     `yaml:"fixture"`
	Reports     ReportSettings      `yaml:"reports"`
}

// ServiceSettings locates the service under test and the files it owns.
type ServiceSettings struct {
	// Dir is the checkout of the service under test; cargo and the service
	// binary run with this as their working directory.
	Dir string `yaml:"dir,omitempty"`
	// Binary is the built service binary, relative to Dir unless absolute.
	Binary string `yaml:"binary,omitempty"`
	// ProviderConfigDir holds one config.toml per provider token,
	// relative to Dir unless absolute.
	ProviderConfigDir string `yaml:"providerConfigDir,omitempty"`
	// SocketPath is the domain socket the service listens on. When set, the
	// readiness probe dials it; when empty only PID liveness is checked.
	SocketPath string `yaml:"socketPath,omitempty"`
	// MappingsDir is the service's on-disk key info store, relative to Dir
	// unless absolute. Fixtures are injected under it and it is removed on
	// cleanup.
	MappingsDir string `yaml:"mappingsDir,omitempty"`
}

// EnvironmentSettings are defaults for environment passed through to child
// processes. Values already present in the caller's environment win; the
// orchestrator never interprets them itself.
type EnvironmentSettings struct {
	LogLevel       string `yaml:"logLevel,omitempty"`
	StressLogLevel string `yaml:"stressLogLevel,omitempty"`
	Backtrace      string `yaml:"backtrace,omitempty"`
}

// TimingSettings hold the fixed waits and probe pacing.
type TimingSettings struct {
	// EmulatorStartWait and ServiceStartWait are minimum waits after spawning
	// before the readiness probe may declare the process ready.
	EmulatorStartWait time.Duration `yaml:"emulatorStartWait,omitempty"`
	ServiceStartWait  time.Duration `yaml:"serviceStartWait,omitempty"`
	// ReloadWait is how long the sequencer blocks after delivering the reload
	// signal before running the next phase.
	ReloadWait time.Duration `yaml:"reloadWait,omitempty"`
	// StopGrace is how long a process gets between SIGTERM and SIGKILL.
	StopGrace time.Duration `yaml:"stopGrace,omitempty"`
	// ReadyTimeout and ReadyInterval pace the readiness probe loop.
	ReadyTimeout  time.Duration `yaml:"readyTimeout,omitempty"`
	ReadyInterval time.Duration `yaml:"readyInterval,omitempty"`
}

// EmulatorSettings describe the TPM simulator used by the tpm provider run.
type EmulatorSettings struct {
	Binary string `yaml:"binary,omitempty"`
	// StateDir is where the simulator runs and drops its state file;
	// defaults to the service dir when empty.
	StateDir  string `yaml:"stateDir,omitempty"`
	StateFile string `yaml:"stateFile,omitempty"`
	// InitCommands run once against the fresh simulator, in order.
	InitCommands [][]string `yaml:"initCommands,omitempty"`
}

// PKCS11Settings describe the PKCS#11 utility used for slot discovery.
type PKCS11Settings struct {
	Tool string `yaml:"tool,omitempty"`
	// InitTokenArgs, when non-empty, are passed to the tool before slot
	// discovery to initialize a fresh token (CI images usually pre-provision
	// one, so the default is empty).
	InitTokenArgs []string `yaml:"initTokenArgs,omitempty"`
}

// FixtureSettings identify the synthetic persisted key injected mid-run.
type FixtureSettings struct {
	AppName string `yaml:"appName,omitempty"`
	KeyName string `yaml:"keyName,omitempty"`
	KeyID   uint32 `yaml:"keyID,omitempty"`
}

// ReportSettings control the optional run report file.
type ReportSettings struct {
	// Dir receives one YAML report per run; empty disables report files.
	Dir string `yaml:"dir,omitempty"`
}

// BinaryPath returns the service binary path, anchored at Dir when relative.
func (s ServiceSettings) BinaryPath() string {
	return s.anchored(s.Binary)
}

// MappingsPath returns the key info store path, anchored at Dir when relative.
func (s ServiceSettings) MappingsPath() string {
	return s.anchored(s.MappingsDir)
}

// ProviderConfigPath returns the provider config file for a provider token,
// anchored at Dir when relative.
func (s ServiceSettings) ProviderConfigPath(token string) string {
	return s.anchored(filepath.Join(s.ProviderConfigDir, token, "config.toml"))
}

func (s ServiceSettings) anchored(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.Dir, path)
}

// ChildEnv returns the default environment entries for child processes.
// Entries are only added for variables the caller's environment leaves
// unset, so explicit RUST_LOG/RUST_BACKTRACE values pass through untouched.
func (e EnvironmentSettings) ChildEnv() []string {
	var env []string
	if _, ok := os.LookupEnv("RUST_LOG"); !ok && e.LogLevel != "" {
		env = append(env, "RUST_LOG="+e.LogLevel)
	}
	if _, ok := os.LookupEnv("RUST_BACKTRACE"); !ok && e.Backtrace != "" {
		env = append(env, "RUST_BACKTRACE="+e.Backtrace)
	}
	return env
}

// StressEnv returns the child environment for the stress restart. The stress
// suite hammers the service hard enough that normal verbosity drowns the
// run, so the reduced level is forced regardless of the caller's environment.
func (e EnvironmentSettings) StressEnv() []string {
	env := e.ChildEnv()
	if e.StressLogLevel != "" {
		env = append(env, "RUST_LOG="+e.StressLogLevel)
	}
	return env
}

// StateDirOrDefault returns the emulator state dir, falling back to the
// service dir.
func (e EmulatorSettings) StateDirOrDefault(serviceDir string) string {
	if e.StateDir != "" {
		return e.StateDir
	}
	return serviceDir
}

// StateFilePath returns the absolute-or-service-relative path of the
// emulator state file.
func (e EmulatorSettings) StateFilePath(serviceDir string) string {
	return filepath.Join(e.StateDirOrDefault(serviceDir), e.StateFile)
}
