package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// ChecksumFile is the manifest name, written next to the config file.
const ChecksumFile = ".checksums"

// ChecksumManifest records the expected BLAKE3 hash of each locked file,
// keyed by file name relative to the manifest.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// LockReport describes a written manifest.
type LockReport struct {
	ChecksumPath string
	Filename     string
	Hash         string
}

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// Lock hashes the config file and writes the .checksums manifest beside it.
func Lock(configPath string) (*LockReport, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}
	hash, err := ComputeBlake3Hash(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to hash %s: %w", absPath, err)
	}

	name := filepath.Base(absPath)
	manifest := ChecksumManifest{
		Version:     1,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Hashes:      map[string]string{name: hash},
	}
	data, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checksums: %w", err)
	}

	report := &LockReport{
		ChecksumPath: filepath.Join(filepath.Dir(absPath), ChecksumFile),
		Filename:     name,
		Hash:         hash,
	}
	// Restrictive permissions: the manifest gates what Load accepts.
	if err := os.WriteFile(report.ChecksumPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write checksums: %w", err)
	}
	return report, nil
}

// LoadChecksums reads the .checksums manifest from dir.
func LoadChecksums(dir string) (*ChecksumManifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ChecksumFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("checksums file not found (run 'cellhook config lock'): %w", err)
		}
		return nil, fmt.Errorf("failed to read checksums: %w", err)
	}

	var manifest ChecksumManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse checksums: %w", err)
	}
	if manifest.Version != 1 {
		return nil, fmt.Errorf("unsupported checksums version: %d", manifest.Version)
	}
	return &manifest, nil
}

// verifyConfigHash checks the config against its manifest. A missing
// manifest disables the check.
func verifyConfigHash(absPath string) error {
	manifest, err := LoadChecksums(filepath.Dir(absPath))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	name := filepath.Base(absPath)
	expected, ok := manifest.Hashes[name]
	if !ok {
		return fmt.Errorf("%s has no hash in %s (run 'cellhook config lock')", name, ChecksumFile)
	}
	actual, err := ComputeBlake3Hash(absPath)
	if err != nil {
		return fmt.Errorf("failed to compute hash: %w", err)
	}
	if actual != expected {
		return fmt.Errorf("hash mismatch for %s: expected %s, got %s\n"+
			"If you edited this file intentionally, run: cellhook config lock", name, expected, actual)
	}
	return nil
}
