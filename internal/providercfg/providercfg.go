// Package providercfg models the service's TOML configuration file.
//
// The harness uses the model for validation only. The one mutation it ever
// performs, appending a discovered slot_number line for the PKCS#11 provider,
// is textual so that the file the service reads stays byte-identical to what
// the repository ships plus exactly one appended line.
package providercfg

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"e2ectl/pkg/logging"
)

// Config mirrors the top level of the service configuration. Only fields the
// harness inspects are modelled; unknown keys are ignored.
type Config struct {
	CoreSettings CoreSettings `toml:"core_settings"`
	Listener     Listener     `toml:"listener"`
	KeyManagers  []KeyManager `toml:"key_manager"`
	Providers    []Provider   `toml:"provider"`
}

// CoreSettings holds service-wide switches.
type CoreSettings struct {
	LogLevel        string `toml:"log_level"`
	LogErrorDetails bool   `toml:"log_error_details"`
	AllowRoot       bool   `toml:"allow_root"`
}

// Listener describes the service's IPC front end.
type Listener struct {
	ListenerType string `toml:"listener_type"`
	Timeout      int64  `toml:"timeout"`
	SocketPath   string `toml:"socket_path"`
}

// KeyManager describes one key info store.
type KeyManager struct {
	Name        string `toml:"name"`
	ManagerType string `toml:"manager_type"`
	StorePath   string `toml:"store_path"`
}

// Provider is one [[provider]] block. The type-specific fields are flattened;
// which ones matter depends on ProviderType.
type Provider struct {
	ProviderType   string `toml:"provider_type"`
	KeyInfoManager string `toml:"key_info_manager"`

	// PKCS#11 backend fields.
	LibraryPath string `toml:"library_path"`
	SlotNumber  *int   `toml:"slot_number"`
	UserPin     string `toml:"user_pin"`

	// TPM backend fields.
	TCTI               string `toml:"tcti"`
	OwnerHierarchyAuth string `toml:"owner_hierarchy_auth"`
}

// Load reads and parses the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read provider config %s: %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse provider config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks that cfg declares a usable [[provider]] block for every
// wanted provider_type. A PKCS#11 block must carry a library path and a slot
// number (the slot is appended by the harness before the service starts), a
// TPM block must carry a TCTI. Every block must reference a declared key
// manager.
func Validate(cfg *Config, wantTypes []string) error {
	managers := make(map[string]bool, len(cfg.KeyManagers))
	for _, km := range cfg.KeyManagers {
		managers[km.Name] = true
	}

	byType := make(map[string]Provider, len(cfg.Providers))
	for _, p := range cfg.Providers {
		if p.KeyInfoManager != "" && !managers[p.KeyInfoManager] {
			return fmt.Errorf("provider %q references undeclared key manager %q", p.ProviderType, p.KeyInfoManager)
		}
		byType[p.ProviderType] = p
	}

	for _, want := range wantTypes {
		p, ok := byType[want]
		if !ok {
			return fmt.Errorf("provider config declares no %q provider block", want)
		}
		switch want {
		case "Pkcs11":
			if p.LibraryPath == "" {
				return fmt.Errorf("Pkcs11 provider block is missing library_path")
			}
			if p.SlotNumber == nil {
				return fmt.Errorf("Pkcs11 provider block is missing slot_number (slot resolution did not run?)")
			}
		case "Tpm":
			if p.TCTI == "" {
				return fmt.Errorf("Tpm provider block is missing tcti")
			}
		}
	}
	return nil
}

var slotLinePattern = regexp.MustCompile(`^\s*slot_number\s*=\s*\d+\s*$`)

// AppendSlotNumber appends a slot_number line for a discovered slot to the
// configuration file. The line is later removed by StripSlotNumbers.
func AppendSlotNumber(path string, slot int) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return fmt.Errorf("failed to open provider config %s: %w", path, err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "slot_number = %d\n", slot); err != nil {
		return fmt.Errorf("failed to append slot number to %s: %w", path, err)
	}

	logging.Debug("ProviderCfg", "Appended slot_number = %d to %s", slot, path)
	return nil
}

// StripSlotNumbers removes every slot_number line from the configuration
// file and reports how many were removed. A missing file or a file without
// such lines is not an error, so cleanup can call this unconditionally.
func StripSlotNumbers(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read provider config %s: %w", path, err)
	}

	lines := strings.Split(string(data), "\n")
	kept := lines[:0]
	removed := 0
	for _, line := range lines {
		if slotLinePattern.MatchString(line) {
			removed++
			continue
		}
		kept = append(kept, line)
	}
	if removed == 0 {
		return 0, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat provider config %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(strings.Join(kept, "\n")), info.Mode().Perm()); err != nil {
		return 0, fmt.Errorf("failed to rewrite provider config %s: %w", path, err)
	}

	logging.Debug("ProviderCfg", "Stripped %d slot_number line(s) from %s", removed, path)
	return removed, nil
}
