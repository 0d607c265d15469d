package fixture

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"e2ectl/pkg/logging"
)

const (
	// RecordSize is the exact on-disk size of a key mapping record.
	RecordSize = 34

	// keyIDSize is the value of the record's leading length field. The
	// service stores key identifiers as 4-byte blobs.
	keyIDSize = 4

	flagsSize = RecordSize - 8 - keyIDSize
)

// DefaultFlags is the provider attribute block the persistence suite expects
// the injected key to carry: an exportable 1024-bit signing key.
var DefaultFlags = [flagsSize]byte{
	0x01, 0x00, 0x00, 0x00,
	0x00, 0x04, 0x00, 0x00,
	0x01, 0x01, 0x00, 0x00,
	0x01, 0x00, 0x00, 0x00,
	0x00, 0x01, 0x00, 0x00,
	0x05, 0x00,
}

// Record is the fixed-layout payload of one key mapping file. The layout the
// service reads back is a u64 little-endian length field fixed at 4, a u32
// little-endian key identifier, and 22 attribute flag bytes.
type Record struct {
	KeyID uint32
	Flags [flagsSize]byte
}

// MarshalBinary emits the full record in one pass.
func (r Record) MarshalBinary() ([]byte, error) {
	buf := make([]byte, RecordSize)
	binary.LittleEndian.PutUint64(buf[0:8], keyIDSize)
	binary.LittleEndian.PutUint32(buf[8:12], r.KeyID)
	copy(buf[12:], r.Flags[:])
	return buf, nil
}

// UnmarshalBinary parses data produced by MarshalBinary. Any other size, or a
// length field that is not 4, is rejected.
func (r *Record) UnmarshalBinary(data []byte) error {
	if len(data) != RecordSize {
		return fmt.Errorf("mapping record is %d bytes, want %d", len(data), RecordSize)
	}
	if got := binary.LittleEndian.Uint64(data[0:8]); got != keyIDSize {
		return fmt.Errorf("mapping record length field is %d, want %d", got, keyIDSize)
	}
	r.KeyID = binary.LittleEndian.Uint32(data[8:12])
	copy(r.Flags[:], data[12:])
	return nil
}

// Mapping identifies one injected key: which application owns it, which
// provider slot directory it lives under, and the record payload.
type Mapping struct {
	AppName string
	KeyName string
	Slot    int
	Record  Record
}

// Injector writes key mappings into the service's on-disk store and tracks
// the application directories it creates so cleanup can remove exactly those.
type Injector struct {
	root    string
	created []string
}

// NewInjector returns an Injector rooted at the service's mappings directory.
func NewInjector(root string) *Injector {
	return &Injector{root: root}
}

// Inject writes the mapping file for m, creating parent directories as
// needed, and returns the file path. Re-injecting the same identifiers
// overwrites the prior file without error.
func (i *Injector) Inject(m Mapping) (string, error) {
	appDir := filepath.Join(i.root, encodeName(m.AppName))
	slotDir := filepath.Join(appDir, strconv.Itoa(m.Slot))
	if err := os.MkdirAll(slotDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create mapping directory %s: %w", slotDir, err)
	}
	i.track(appDir)

	payload, err := m.Record.MarshalBinary()
	if err != nil {
		return "", err
	}

	path := filepath.Join(slotDir, encodeName(m.KeyName))
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", fmt.Errorf("failed to write mapping file %s: %w", path, err)
	}

	logging.Debug("Fixture", "Injected mapping for app %q key %q at %s", m.AppName, m.KeyName, path)
	return path, nil
}

// CreatedDirs returns the application directories this injector has created,
// in injection order.
func (i *Injector) CreatedDirs() []string {
	dirs := make([]string, len(i.created))
	copy(dirs, i.created)
	return dirs
}

// RemoveAll deletes every directory this injector created. Directories that
// are already gone are not an error. All removals are attempted even when an
// earlier one fails.
func (i *Injector) RemoveAll() error {
	var errs []error
	for _, dir := range i.created {
		if err := os.RemoveAll(dir); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove %s: %w", dir, err))
		}
	}
	i.created = nil
	return errors.Join(errs...)
}

func (i *Injector) track(dir string) {
	for _, existing := range i.created {
		if existing == dir {
			return
		}
	}
	i.created = append(i.created, dir)
}

// encodeName converts an application or key name to the padded URL-safe
// base64 form the service uses for directory and file names.
func encodeName(name string) string {
	return base64.URLEncoding.EncodeToString([]byte(name))
}
