package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// remoteFilesystems lists filesystem types on which SQLite file locking is
// unreliable. The record store refuses to open there.
var remoteFilesystems = map[string]bool{
	"afpfs":  true,
	"cifs":   true,
	"nfs":    true,
	"smbfs":  true,
	"smb2":   true,
	"webdav": true,
}

type fsDetector func(path string) (string, error)

// checkLocalFilesystem resolves the closest existing ancestor of path and
// rejects it when detect reports a network filesystem.
func checkLocalFilesystem(path string, detect fsDetector) error {
	if path == "" {
		return fmt.Errorf("sqlite path is empty")
	}

	existing, err := closestExisting(path)
	if err != nil {
		return fmt.Errorf("resolve record store path %q: %w", path, err)
	}

	fsType, err := detect(existing)
	if err != nil {
		return fmt.Errorf("detect filesystem for %q: %w", existing, err)
	}

	if remoteFilesystems[strings.ToLower(strings.TrimSpace(fsType))] {
		return fmt.Errorf("record store %q is on network filesystem %q; SQLite needs a local disk, set store.path to a local file", path, fsType)
	}
	return nil
}

func closestExisting(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}

	for dir := abs; ; {
		_, err := os.Stat(dir)
		switch {
		case err == nil:
			return dir, nil
		case !errors.Is(err, os.ErrNotExist):
			return "", fmt.Errorf("stat %q: %w", dir, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no existing parent for %q", abs)
		}
		dir = parent
	}
}
