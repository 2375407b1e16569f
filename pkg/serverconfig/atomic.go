package serverconfig

import (
	"os"
	"path/filepath"

	"github.com/core-tools/hsu-mcservice/pkg/errors"
)

// writeFileAtomic replaces path with data so readers never observe a partial
// file.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	temp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.NewIOError("failed to create temporary file", err).WithContext("path", path)
	}
	tempPath := temp.Name()

	if _, err := temp.Write(data); err != nil {
		temp.Close()
		os.Remove(tempPath)
		return errors.NewIOError("failed to write temporary file", err).WithContext("path", tempPath)
	}
	if err := temp.Sync(); err != nil {
		temp.Close()
		os.Remove(tempPath)
		return errors.NewIOError("failed to flush temporary file", err).WithContext("path", tempPath)
	}
	if err := temp.Close(); err != nil {
		os.Remove(tempPath)
		return errors.NewIOError("failed to close temporary file", err).WithContext("path", tempPath)
	}
	if err := os.Chmod(tempPath, perm); err != nil {
		os.Remove(tempPath)
		return errors.NewIOError("failed to set file mode", err).WithContext("path", tempPath)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return errors.NewIOError("failed to replace file", err).WithContext("path", path)
	}
	return nil
}
