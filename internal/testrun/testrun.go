package testrun

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"e2ectl/internal/config"
)

// Provider identifies which backend of the service under test a run
// exercises.
type Provider string

const (
	// ProviderSoftware is the pure software key store backend.
	ProviderSoftware Provider = "software"
	// ProviderPKCS11 is the PKCS#11 hardware security module backend.
	ProviderPKCS11 Provider = "pkcs11"
	// ProviderTPM is the TPM backend, run against a simulator.
	ProviderTPM Provider = "tpm"
	// ProviderAll builds every backend in and runs the combined suite.
	ProviderAll Provider = "all"
)

// Providers lists the accepted provider tokens in display order.
func Providers() []Provider {
	return []Provider{ProviderSoftware, ProviderPKCS11, ProviderTPM, ProviderAll}
}

// NeedsEmulator reports whether the provider requires the hardware simulator
// to be running before the service starts. The combined selection builds the
// TPM backend in, so it needs the simulator too.
func (p Provider) NeedsEmulator() bool {
	return p == ProviderTPM || p == ProviderAll
}

// NeedsSlotResolution reports whether the provider requires a slot number to
// be discovered and appended to its configuration file.
func (p Provider) NeedsSlotResolution() bool {
	return p == ProviderPKCS11
}

// MappingSlot returns the numeric directory the service's on-disk key info
// store uses for this provider family. Zero for selections that never
// receive an injected mapping.
func (p Provider) MappingSlot() int {
	switch p {
	case ProviderSoftware:
		return 1
	case ProviderPKCS11:
		return 2
	case ProviderTPM:
		return 3
	default:
		return 0
	}
}

// ServiceTypes returns the provider_type values the service configuration
// must declare for this selection.
func (p Provider) ServiceTypes() []string {
	switch p {
	case ProviderSoftware:
		return []string{"SoftwareKeyStore"}
	case ProviderPKCS11:
		return []string{"Pkcs11"}
	case ProviderTPM:
		return []string{"Tpm"}
	case ProviderAll:
		return []string{"SoftwareKeyStore", "Pkcs11", "Tpm"}
	default:
		return nil
	}
}

// featureGates returns the cargo feature set the provider selection builds
// with.
func (p Provider) featureGates() []string {
	switch p {
	case ProviderSoftware:
		return []string{"software-provider"}
	case ProviderPKCS11:
		return []string{"pkcs11-provider"}
	case ProviderTPM:
		return []string{"tpm-provider"}
	case ProviderAll:
		return []string{"software-provider", "pkcs11-provider", "tpm-provider"}
	default:
		return nil
	}
}

// UsageError reports malformed command-line input. It is raised before any
// resource is acquired, so the caller prints usage and exits without running
// cleanup.
type UsageError struct {
	Reason string
}

func (e *UsageError) Error() string {
	return e.Reason
}

// IsUsageError reports whether err is (or wraps) a UsageError.
func IsUsageError(err error) bool {
	var usageErr *UsageError
	return errors.As(err, &usageErr)
}

// TestRun is the validated, immutable description of one orchestration run.
type TestRun struct {
	// ID uniquely identifies the run in logs and reports.
	ID string
	// Provider is the validated provider selection.
	Provider Provider
	// StressEnabled gates the service-restart + stress-test tail of the run.
	// Always false for the combined selection, which has no stress phase.
	StressEnabled bool
	// CleanOnExit gates the build-artifact purge during cleanup.
	CleanOnExit bool
	// ConfigPath is the provider configuration file handed to the service.
	ConfigPath string
	// FeatureGates is the cargo feature set the service is built with.
	FeatureGates []string
}

// FeatureList renders the gates in the comma-joined form cargo expects.
func (r *TestRun) FeatureList() string {
	return strings.Join(r.FeatureGates, ",")
}

// Resolve validates the positional arguments and maps them onto a TestRun.
// Exactly one provider token must be present; zero, several, or an unknown
// token is a UsageError. Resolve is a pure mapping and must run before any
// child process is started.
func Resolve(args []string, svc config.ServiceSettings, noCargoClean, noStressTest bool) (*TestRun, error) {
	if len(args) == 0 {
		return nil, &UsageError{Reason: fmt.Sprintf("a provider must be specified (one of: %s)", providerList())}
	}
	if len(args) > 1 {
		return nil, &UsageError{Reason: fmt.Sprintf("exactly one provider may be specified, got %d: %s", len(args), strings.Join(args, ", "))}
	}

	provider := Provider(args[0])
	gates := provider.featureGates()
	if gates == nil {
		return nil, &UsageError{Reason: fmt.Sprintf("unknown provider %q (expected one of: %s)", args[0], providerList())}
	}

	return &TestRun{
		ID:            uuid.NewString(),
		Provider:      provider,
		StressEnabled: !noStressTest && provider != ProviderAll,
		CleanOnExit:   !noCargoClean,
		ConfigPath:    svc.ProviderConfigPath(string(provider)),
		FeatureGates:  gates,
	}, nil
}

func providerList() string {
	tokens := make([]string, 0, len(Providers()))
	for _, p := range Providers() {
		tokens = append(tokens, string(p))
	}
	return strings.Join(tokens, ", ")
}
