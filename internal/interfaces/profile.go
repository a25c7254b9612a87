package interfaces

import "context"

// ProfileStore manages the master profile directory and disposable clones.
// The master directory is single-writer; clone directories are single-owner
// per job.
type ProfileStore interface {
	// Clone copies the master profile into destDir, skipping lock files and
	// oversized cache files. Unreadable non-critical files are logged and
	// skipped, never fatal.
	Clone(ctx context.Context, masterDir, destDir string) (ProfileLayout, error)

	// Delete recursively removes a directory. Idempotent; not-found is not an
	// error.
	Delete(dir string) error

	// Backup moves the directory to a timestamp-suffixed sibling and returns
	// the backup path.
	Backup(dir string) (string, error)

	// Restore is the inverse of Backup, used only when nuclear recovery's
	// fresh login fails.
	Restore(backupPath, dir string) error
}
