package mirror

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"

	"github.com/core-tools/hsu-mcservice/pkg/errors"
	"github.com/core-tools/hsu-mcservice/pkg/logging"

	"golang.org/x/sync/errgroup"
)

// Stats summarizes one mirror pass.
type Stats struct {
	Copied  int64
	Skipped int64
	Links   int64
	Removed int64
}

// Engine makes a destination tree identical to a source tree: files missing
// from the source are deleted, permission bits and modification times are
// carried over, and symlinks are recreated rather than followed. A file whose
// size and modification time already match is left alone.
type Engine struct {
	workers int
	logger  logging.Logger
}

func NewEngine(workers int, logger logging.Logger) *Engine {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Engine{
		workers: workers,
		logger:  logger,
	}
}

type directory struct {
	path string
	info fs.FileInfo
}

func (e *Engine) Mirror(ctx context.Context, src, dst string) (Stats, error) {
	var stats Stats

	rootInfo, err := os.Stat(src)
	if err != nil {
		return stats, errors.NewIOError("failed to stat mirror source", err).WithContext("path", src)
	}
	if !rootInfo.IsDir() {
		return stats, errors.NewIOError("mirror source is not a directory", nil).WithContext("path", src)
	}
	if err := os.MkdirAll(dst, rootInfo.Mode().Perm()); err != nil {
		return stats, errors.NewIOError("failed to create mirror destination", err).WithContext("path", dst)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.workers)

	seen := make(map[string]struct{})
	directories := []directory{{path: dst, info: rootInfo}}

	walkErr := filepath.WalkDir(src, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return vanished(err)
		}
		if err := groupCtx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return vanished(err)
		}
		seen[rel] = struct{}{}
		target := filepath.Join(dst, rel)

		switch {
		case info.IsDir():
			if err := ensureDirectory(target, info); err != nil {
				return err
			}
			directories = append(directories, directory{path: target, info: info})

		case info.Mode()&fs.ModeSymlink != 0:
			created, err := syncSymlink(path, target)
			if err != nil {
				return err
			}
			if created {
				atomic.AddInt64(&stats.Links, 1)
			}

		case info.Mode().IsRegular():
			if upToDate(target, info) {
				atomic.AddInt64(&stats.Skipped, 1)
				return nil
			}
			group.Go(func() error {
				if err := groupCtx.Err(); err != nil {
					return err
				}
				if err := copyFile(path, target, info); err != nil {
					return vanished(err)
				}
				atomic.AddInt64(&stats.Copied, 1)
				return nil
			})

		default:
			e.logger.Debugf("Skipping special file: %s", path)
		}
		return nil
	})

	// a failed copy cancels the walk, so its error is the more useful one
	if copyErr := group.Wait(); copyErr != nil {
		return stats, errors.NewIOError("failed to copy file", copyErr).WithContext("destination", dst)
	}
	if walkErr != nil {
		return stats, errors.NewIOError("failed to walk mirror source", walkErr).WithContext("path", src)
	}

	removed, err := removeExtraneous(dst, seen)
	stats.Removed = removed
	if err != nil {
		return stats, errors.NewIOError("failed to delete extraneous files", err).WithContext("path", dst)
	}

	// children first, so copying into a directory does not bump its time again
	for i := len(directories) - 1; i >= 0; i-- {
		dir := directories[i]
		if err := os.Chmod(dir.path, dir.info.Mode().Perm()); err != nil {
			return stats, errors.NewIOError("failed to set directory mode", err).WithContext("path", dir.path)
		}
		if err := os.Chtimes(dir.path, dir.info.ModTime(), dir.info.ModTime()); err != nil {
			return stats, errors.NewIOError("failed to set directory times", err).WithContext("path", dir.path)
		}
	}

	e.logger.Debugf("Mirrored %s to %s, copied: %d, skipped: %d, links: %d, removed: %d",
		src, dst, stats.Copied, stats.Skipped, stats.Links, stats.Removed)
	return stats, nil
}

// Clear removes everything inside dir but keeps dir, which may be a mount
// point.
func Clear(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.NewIOError("failed to list directory", err).WithContext("path", dir)
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return errors.NewIOError("failed to remove directory entry", err).WithContext("path", dir)
		}
	}
	return nil
}

func ensureDirectory(target string, info fs.FileInfo) error {
	existing, err := os.Lstat(target)
	if err == nil && existing.IsDir() {
		if existing.Mode().Perm()&0200 == 0 {
			return os.Chmod(target, existing.Mode().Perm()|0700)
		}
		return nil
	}
	if err == nil {
		if err := os.RemoveAll(target); err != nil {
			return err
		}
	} else if !os.IsNotExist(err) {
		return err
	}
	// owner write is needed until the final chmod pass
	return os.Mkdir(target, info.Mode().Perm()|0700)
}

func syncSymlink(path, target string) (bool, error) {
	link, err := os.Readlink(path)
	if err != nil {
		return false, err
	}

	existing, err := os.Lstat(target)
	if err == nil && existing.Mode()&fs.ModeSymlink != 0 {
		if current, err := os.Readlink(target); err == nil && current == link {
			return false, nil
		}
	}
	if err == nil {
		if err := os.RemoveAll(target); err != nil {
			return false, err
		}
	} else if !os.IsNotExist(err) {
		return false, err
	}

	return true, os.Symlink(link, target)
}

// vanished drops errors for files deleted while the pass was running.
func vanished(err error) error {
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func upToDate(target string, info fs.FileInfo) bool {
	existing, err := os.Lstat(target)
	if err != nil || !existing.Mode().IsRegular() {
		return false
	}
	return existing.Size() == info.Size() &&
		existing.ModTime().Equal(info.ModTime()) &&
		existing.Mode().Perm() == info.Mode().Perm()
}

// copyFile writes into a temporary file next to target and renames it into
// place, so target is either the old or the new content.
func copyFile(path, target string, info fs.FileInfo) error {
	source, err := os.Open(path)
	if err != nil {
		return err
	}
	defer source.Close()

	temp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*")
	if err != nil {
		return err
	}
	tempPath := temp.Name()
	cleanup := func(err error) error {
		temp.Close()
		os.Remove(tempPath)
		return err
	}

	if _, err := io.Copy(temp, source); err != nil {
		return cleanup(err)
	}
	if err := temp.Sync(); err != nil {
		return cleanup(err)
	}
	if err := temp.Close(); err != nil {
		os.Remove(tempPath)
		return err
	}
	if err := os.Chmod(tempPath, info.Mode().Perm()); err != nil {
		os.Remove(tempPath)
		return err
	}
	if err := os.Chtimes(tempPath, info.ModTime(), info.ModTime()); err != nil {
		os.Remove(tempPath)
		return err
	}

	if existing, err := os.Lstat(target); err == nil && existing.IsDir() {
		if err := os.RemoveAll(target); err != nil {
			os.Remove(tempPath)
			return err
		}
	}
	if err := os.Rename(tempPath, target); err != nil {
		os.Remove(tempPath)
		return err
	}
	return nil
}

func removeExtraneous(dst string, seen map[string]struct{}) (int64, error) {
	var removed int64

	err := filepath.WalkDir(dst, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}

		rel, err := filepath.Rel(dst, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if _, ok := seen[rel]; ok {
			return nil
		}

		if err := os.RemoveAll(path); err != nil {
			return err
		}
		removed++
		if entry.IsDir() {
			return filepath.SkipDir
		}
		return nil
	})

	return removed, err
}
