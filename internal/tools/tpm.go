package tools

import (
	"context"
	"fmt"

	"e2ectl/pkg/logging"
)

// InitEmulator runs the one-time TPM initialization commands against a
// freshly started emulator, in order, from the emulator's state directory.
// These commands must run exactly once per run; the first failure aborts the
// remainder.
func InitEmulator(ctx context.Context, dir string, commands [][]string) error {
	for _, argv := range commands {
		if len(argv) == 0 {
			continue
		}

		logging.Info("Tools", "Initializing emulator: %v", argv)
		if _, err := runCommand(ctx, dir, nil, argv[0], argv[1:]...); err != nil {
			return fmt.Errorf("emulator init command %q failed: %w", argv[0], err)
		}
	}
	return nil
}
