// Package perms provides the file permission modes used by mcprt
// and checks for files that should not be readable by other users.
package perms

import (
	"fmt"
	"os"
)

// File permission constants for different security contexts.
const (
	// RegularFile permissions for standard files (configuration, logs).
	// Mode 0644: owner read/write, group read, others read.
	RegularFile os.FileMode = 0o644

	// SecureFile permissions for files carrying credentials.
	// Mode 0600: owner read/write only, no group or other access.
	SecureFile os.FileMode = 0o600
)

// Exposed reports whether mode grants any access to group or other users.
func Exposed(mode os.FileMode) bool {
	return mode.Perm()&0o077 != 0
}

// CheckPrivate returns the permission bits of the file at path and whether
// the file is accessible only by its owner.
func CheckPrivate(path string) (os.FileMode, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, false, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	mode := info.Mode().Perm()
	return mode, !Exposed(mode), nil
}
