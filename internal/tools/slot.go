package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"e2ectl/pkg/logging"
)

// InitToken runs the PKCS#11 administration tool with the configured
// token-initialization arguments. Callers skip this when no arguments are
// configured.
func InitToken(ctx context.Context, tool string, args []string) (Output, error) {
	return runCommand(ctx, "", nil, tool, args...)
}

// DiscoverSlot asks the PKCS#11 administration tool for its slot listing and
// returns the first slot number it reports.
func DiscoverSlot(ctx context.Context, tool string) (int, error) {
	out, err := runCommand(ctx, "", nil, tool, "--show-slots")
	if err != nil {
		return 0, err
	}

	slot, err := ParseSlot(out.Stdout)
	if err != nil {
		return 0, err
	}

	logging.Info("Tools", "Discovered PKCS#11 slot %d", slot)
	return slot, nil
}

// ParseSlot extracts the first slot number from a slot listing. The tool
// prints one "Slot N" header line per slot followed by indented detail
// lines.
func ParseSlot(listing string) (int, error) {
	for _, line := range strings.Split(listing, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[0] != "Slot" {
			continue
		}
		slot, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		return slot, nil
	}
	return 0, fmt.Errorf("no slot found in tool output: %q", strings.TrimSpace(listing))
}
