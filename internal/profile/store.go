// -----------------------------------------------------------------------
// Profile Store - master profile directory and disposable clones
// -----------------------------------------------------------------------

package profile

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/interfaces"
	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/models"
)

// profileSubdir is the Chrome profile directory inside user-data-dir
const profileSubdir = "Default"

// Store manages profile directories on disk. The clone path is hot (one clone
// per job) so lock files and oversized caches are skipped rather than copied.
type Store struct {
	skipSize int64
	logger   arbor.ILogger
}

// NewStore creates a profile store. skipSize is the cache threshold in bytes;
// files larger than it are not cloned.
func NewStore(skipSize int64, logger arbor.ILogger) *Store {
	if skipSize <= 0 {
		skipSize = 25 * 1024 * 1024
	}
	return &Store{
		skipSize: skipSize,
		logger:   logger,
	}
}

// Clone performs a best-effort recursive copy of the master profile.
// Unreadable or locked files are logged and skipped; the clone validator
// downstream catches any resulting inconsistency.
func (s *Store) Clone(ctx context.Context, masterDir, destDir string) (interfaces.ProfileLayout, error) {
	layout := interfaces.ProfileLayout{
		UserDataDir:   destDir,
		ProfileSubdir: profileSubdir,
		FullPath:      filepath.Join(destDir, profileSubdir),
	}

	if _, err := os.Stat(masterDir); err != nil {
		return layout, models.NewFailure(models.KindProfileIO, "master profile directory not readable", err)
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return layout, models.NewFailure(models.KindProfileIO, "failed to create clone directory", err)
	}

	start := time.Now()
	copied := 0
	skipped := 0

	err := filepath.WalkDir(masterDir, func(path string, d os.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			// Unreadable subtree: skip it, the clone stays best-effort
			s.logger.Warn().Err(walkErr).Str("path", path).Msg("Skipping unreadable profile entry")
			skipped++
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(masterDir, path)
		if err != nil {
			return err
		}
		target := filepath.Join(destDir, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}

		// Lock files belong to the still-running master driver
		if strings.Contains(strings.ToLower(d.Name()), "lock") {
			skipped++
			return nil
		}

		info, err := d.Info()
		if err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("Skipping unstatable profile file")
			skipped++
			return nil
		}
		if info.Size() > s.skipSize {
			skipped++
			return nil
		}

		if err := copyFile(path, target); err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("Skipping uncopyable profile file")
			skipped++
			return nil
		}
		copied++
		return nil
	})
	if err != nil {
		return layout, models.NewFailure(models.KindProfileIO, "profile clone aborted", err)
	}

	s.logger.Debug().
		Str("master", masterDir).
		Str("clone", destDir).
		Int("copied", copied).
		Int("skipped", skipped).
		Dur("duration", time.Since(start)).
		Msg("Profile cloned")

	return layout, nil
}

// Delete recursively removes a directory. Idempotent; missing directories are
// not an error.
func (s *Store) Delete(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return models.NewFailure(models.KindProfileIO, fmt.Sprintf("failed to delete directory %s", dir), err)
	}
	return nil
}

// Backup moves the directory to a timestamp-suffixed sibling and returns the
// backup path. Falls back to a full copy when rename crosses devices.
func (s *Store) Backup(dir string) (string, error) {
	backupPath := fmt.Sprintf("%s-backup-%s", strings.TrimRight(dir, string(os.PathSeparator)), time.Now().Format("20060102-150405"))

	if err := os.Rename(dir, backupPath); err == nil {
		s.logger.Info().Str("dir", dir).Str("backup", backupPath).Msg("Profile backed up via rename")
		return backupPath, nil
	}

	if err := copyTree(dir, backupPath); err != nil {
		return "", models.NewFailure(models.KindProfileIO, "profile backup failed", err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return "", models.NewFailure(models.KindProfileIO, "failed to remove original after backup copy", err)
	}

	s.logger.Info().Str("dir", dir).Str("backup", backupPath).Msg("Profile backed up via copy")
	return backupPath, nil
}

// Restore puts a backup created by Backup back in place of dir
func (s *Store) Restore(backupPath, dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return models.NewFailure(models.KindProfileIO, "failed to clear directory before restore", err)
	}
	if err := os.Rename(backupPath, dir); err == nil {
		s.logger.Info().Str("backup", backupPath).Str("dir", dir).Msg("Profile restored via rename")
		return nil
	}
	if err := copyTree(backupPath, dir); err != nil {
		return models.NewFailure(models.KindProfileIO, "profile restore failed", err)
	}
	s.logger.Info().Str("backup", backupPath).Str("dir", dir).Msg("Profile restored via copy")
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

// copyTree copies an entire directory tree preserving all files (no skip
// rules; used for backup/restore where fidelity matters).
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		return copyFile(path, target)
	})
}
