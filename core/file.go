package core

import (
	"fmt"
	"os"
)

// syncDir fsyncs a directory so the renames and unlinks inside it are
// committed to disk before a swap is considered done. Rename atomicity alone
// keeps the data consistent; the fsync narrows the window where a crash
// forgets the swap happened.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open dir %q: %w", dir, err)
	}
	defer d.Close() // nolint:errcheck

	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync dir %q: %w", dir, err)
	}
	return nil
}
