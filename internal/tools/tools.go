// Package tools wraps the external programs the harness drives: the
// service's cargo build and test tooling, the PKCS#11 administration tool
// used for slot discovery, and the TPM emulator's one-time initialization
// commands.
//
// Every invocation captures stdout and stderr; failures carry the captured
// stderr because the tool output is the primary diagnostic for a failing
// phase.
package tools

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"e2ectl/pkg/logging"
)

// execCommandContext is swapped out by tests.
var execCommandContext = exec.CommandContext

// Output is the captured output of a finished tool invocation.
type Output struct {
	Stdout string
	Stderr string
}

// Combined renders both streams for phase diagnostics.
func (o Output) Combined() string {
	combined := ""
	if o.Stdout != "" {
		combined += o.Stdout
	}
	if o.Stderr != "" {
		if combined != "" && !strings.HasSuffix(combined, "\n") {
			combined += "\n"
		}
		combined += o.Stderr
	}
	return combined
}

// runCommand executes a program with output capture. dir and env may be
// empty; env entries are appended to the inherited environment so they win
// over inherited values.
func runCommand(ctx context.Context, dir string, env []string, name string, args ...string) (Output, error) {
	cmd := execCommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), env...)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	logging.Debug("Tools", "Running '%s %s'", name, strings.Join(args, " "))
	runErr := cmd.Run()

	out := Output{
		Stdout: stdoutBuf.String(),
		Stderr: stderrBuf.String(),
	}
	if runErr != nil {
		return out, fmt.Errorf("failed to execute '%s %s': %w. Stderr: %s", name, strings.Join(args, " "), runErr, out.Stderr)
	}
	return out, nil
}
