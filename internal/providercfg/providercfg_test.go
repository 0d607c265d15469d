package providercfg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pkcs11Config = `[core_settings]
log_level = "info"
log_error_details = true

[listener]
listener_type = "DomainSocket"
timeout = 100

[[key_manager]]
name = "on-disk-manager"
manager_type = "OnDisk"
store_path = "./mappings"

[[provider]]
provider_type = "Pkcs11"
key_info_manager = "on-disk-manager"
library_path = "/usr/local/lib/softhsm/libsofthsm2.so"
user_pin = "123456"
`

const combinedConfig = `[core_settings]
log_level = "info"

[listener]
listener_type = "DomainSocket"
timeout = 100

[[key_manager]]
name = "on-disk-manager"
manager_type = "OnDisk"
store_path = "./mappings"

[[provider]]
provider_type = "SoftwareKeyStore"
key_info_manager = "on-disk-manager"

[[provider]]
provider_type = "Pkcs11"
key_info_manager = "on-disk-manager"
library_path = "/usr/local/lib/softhsm/libsofthsm2.so"
user_pin = "123456"
slot_number = 785406810

[[provider]]
provider_type = "Tpm"
key_info_manager = "on-disk-manager"
tcti = "mssim"
owner_hierarchy_auth = "tpm_pass"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, combinedConfig)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.CoreSettings.LogLevel)
	assert.Equal(t, "DomainSocket", cfg.Listener.ListenerType)
	require.Len(t, cfg.KeyManagers, 1)
	assert.Equal(t, "OnDisk", cfg.KeyManagers[0].ManagerType)
	assert.Equal(t, "./mappings", cfg.KeyManagers[0].StorePath)
	require.Len(t, cfg.Providers, 3)

	pkcs11 := cfg.Providers[1]
	assert.Equal(t, "Pkcs11", pkcs11.ProviderType)
	require.NotNil(t, pkcs11.SlotNumber)
	assert.Equal(t, 785406810, *pkcs11.SlotNumber)

	tpm := cfg.Providers[2]
	assert.Equal(t, "mssim", tpm.TCTI)
	assert.Equal(t, "tpm_pass", tpm.OwnerHierarchyAuth)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	path := writeConfig(t, "[[provider]\nbroken")
	_, err = Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	path := writeConfig(t, combinedConfig)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.NoError(t, Validate(cfg, []string{"SoftwareKeyStore"}))
	assert.NoError(t, Validate(cfg, []string{"Pkcs11"}))
	assert.NoError(t, Validate(cfg, []string{"Tpm"}))
	assert.NoError(t, Validate(cfg, []string{"SoftwareKeyStore", "Pkcs11", "Tpm"}))

	err = Validate(cfg, []string{"CloudHSM"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no \"CloudHSM\" provider block")
}

func TestValidatePkcs11RequiresSlotNumber(t *testing.T) {
	path := writeConfig(t, pkcs11Config)
	cfg, err := Load(path)
	require.NoError(t, err)

	err = Validate(cfg, []string{"Pkcs11"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slot_number")

	// Appending the discovered slot makes the same file valid.
	require.NoError(t, AppendSlotNumber(path, 42))
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.NoError(t, Validate(cfg, []string{"Pkcs11"}))
}

func TestValidateRejectsUndeclaredKeyManager(t *testing.T) {
	content := `[[provider]]
provider_type = "SoftwareKeyStore"
key_info_manager = "nonexistent-manager"
`
	cfg, err := Load(writeConfig(t, content))
	require.NoError(t, err)

	err = Validate(cfg, []string{"SoftwareKeyStore"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undeclared key manager")
}

func TestAppendAndStripSlotNumbers(t *testing.T) {
	path := writeConfig(t, pkcs11Config)

	require.NoError(t, AppendSlotNumber(path, 785406810))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "slot_number = 785406810\n")

	removed, err := StripSlotNumbers(path)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	restored, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, pkcs11Config, string(restored), "stripping should restore the original file")
}

func TestStripSlotNumbersIsIdempotent(t *testing.T) {
	path := writeConfig(t, pkcs11Config)
	require.NoError(t, AppendSlotNumber(path, 7))
	require.NoError(t, AppendSlotNumber(path, 9))

	removed, err := StripSlotNumbers(path)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	removed, err = StripSlotNumbers(path)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, pkcs11Config, string(data))
}

func TestStripSlotNumbersPreservesOtherLines(t *testing.T) {
	content := pkcs11Config + "# slot_number = 1 in a comment stays\n"
	path := writeConfig(t, content)
	require.NoError(t, AppendSlotNumber(path, 5))

	removed, err := StripSlotNumbers(path)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
}

func TestStripSlotNumbersMissingFile(t *testing.T) {
	removed, err := StripSlotNumbers(filepath.Join(t.TempDir(), "gone.toml"))
	assert.NoError(t, err)
	assert.Equal(t, 0, removed)
}
