package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsetenv clears a variable for the duration of the test while still
// restoring the original value afterwards.
func unsetenv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func TestChildEnvFillsUnsetVariables(t *testing.T) {
	unsetenv(t, "RUST_LOG")
	unsetenv(t, "RUST_BACKTRACE")

	env := EnvironmentSettings{LogLevel: "info", StressLogLevel: "error", Backtrace: "1"}
	assert.Equal(t, []string{"RUST_LOG=info", "RUST_BACKTRACE=1"}, env.ChildEnv())
}

func TestChildEnvRespectsCallerEnvironment(t *testing.T) {
	t.Setenv("RUST_LOG", "trace")
	unsetenv(t, "RUST_BACKTRACE")

	env := EnvironmentSettings{LogLevel: "info", Backtrace: "1"}
	assert.Equal(t, []string{"RUST_BACKTRACE=1"}, env.ChildEnv())
}

func TestStressEnvForcesReducedLevel(t *testing.T) {
	t.Setenv("RUST_LOG", "trace")
	t.Setenv("RUST_BACKTRACE", "full")

	env := EnvironmentSettings{LogLevel: "info", StressLogLevel: "error", Backtrace: "1"}

	got := env.StressEnv()
	assert.Equal(t, []string{"RUST_LOG=error"}, got, "the stress entry must be appended so it wins over inherited values")
}
