package system

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/nace/ddrmount/internal/fault"
)

// ResolveImagePath returns the absolute, symlink-free path of a disk image.
// The image must exist and must not be a directory.
func ResolveImagePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fault.New(fault.FileNotFound, "Unable to find image file %s: %w", path, err)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fault.New(fault.FileNotFound, "Unable to find image file %s", path)
		}
		return "", fault.New(fault.Unknown, "Unknown error while reading %s: %w", path, err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", fault.New(fault.Unknown, "Unknown error while reading %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fault.New(fault.FileNotFound, "Unable to find image file %s: is a directory", path)
	}

	return resolved, nil
}
