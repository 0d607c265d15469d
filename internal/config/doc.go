// Package config provides configuration management for e2ectl.
//
// This package implements a layered configuration system that allows users to
// customize the harness through YAML files. Configuration is loaded from
// multiple sources and merged in a specific order, with later sources
// overriding earlier ones.
//
// # Configuration Layers
//
// Configuration is loaded and merged in the following order:
//
//  1. Default Configuration (embedded in binary)
//     - Provides sensible defaults for all settings
//     - Ensures e2ectl works out-of-the-box from a service checkout
//
//  2. User Configuration (~/.config/e2ectl/config.yaml)
//     - User-specific settings that apply to all checkouts
//
//  3. Project Configuration (./.e2ectl/config.yaml)
//     - Settings for the current checkout, shareable via version control
//
//  4. Explicit file (--config flag)
//     - Layered last; unlike the other layers it must exist
//
// # Configuration Structure
//
//	service:
//	  dir: "."
//	  binary: "target/debug/keyhavend"
//	  providerConfigDir: "e2e/provider_cfg"
//	  socketPath: "/tmp/keyhaven.sock"
//	  mappingsDir: "mappings"
//
//	environment:
//	  logLevel: info        # RUST_LOG default when the caller leaves it unset
//	  stressLogLevel: error # RUST_LOG used for the stress-test restart
//	  backtrace: "1"        # RUST_BACKTRACE default
//
//	timing:
//	  emulatorStartWait: 5s
//	  serviceStartWait: 5s
//	  reloadWait: 5s
//	  stopGrace: 10s
//	  readyTimeout: 30s
//	  readyInterval: 500ms
//
//	emulator:
//	  binary: tpm_server
//	  stateFile: NVChip
//	  initCommands:
//	    - [tpm2_startup, -c, -T, mssim]
//	    - [tpm2_takeownership, -o, tpm_pass, -T, mssim]
//
//	pkcs11:
//	  tool: softhsm2-util
//
//	fixture:
//	  appName: persistence-client
//	  keyName: stale-key
//	  keyID: 1
//
//	reports:
//	  dir: ""  # empty disables report files
//
// Relative paths inside the service section are anchored at service.dir, so a
// single dir override is enough to point the harness at another checkout.
package config
