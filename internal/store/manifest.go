package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
)

const manifestName = "manifest.json"

// FormatVersion is bumped when the bucket file format changes
// incompatibly. Version 1 covers both the binary form and the legacy text
// form it migrates from.
const FormatVersion = 1

// ErrManifestMismatch means the data directory was written with an
// incompatible configuration. Opening it anyway would misroute keys, so
// callers must treat this as fatal.
var ErrManifestMismatch = errors.New("manifest mismatch")

// Manifest pins the parameters a data directory was created with. The
// bucket count and hash algorithm decide which file a key lives in, so
// they must never drift between runs.
type Manifest struct {
	FormatVersion int    `json:"format_version"`
	Buckets       int    `json:"buckets"`
	Hash          string `json:"hash"`
}

// EnsureManifest verifies the directory's manifest against want, writing
// it on first use. A directory created with a different bucket count or
// hash is rejected with ErrManifestMismatch.
func (s *Store) EnsureManifest(want Manifest) error {
	path := filepath.Join(s.dir, manifestName)

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		out, err := json.Marshal(want)
		if err != nil {
			return fmt.Errorf("encoding manifest: %w", err)
		}
		if err := os.WriteFile(path, append(out, '\n'), 0644); err != nil {
			return fmt.Errorf("writing manifest: %w", err)
		}
		logger.Info("created manifest", "buckets", want.Buckets, "hash", want.Hash)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading manifest: %w", err)
	}

	var have Manifest
	if err := json.Unmarshal(data, &have); err != nil {
		return fmt.Errorf("parsing manifest: %w", err)
	}
	if have.FormatVersion != want.FormatVersion {
		return fmt.Errorf("%w: data dir has format version %d, this build expects %d",
			ErrManifestMismatch, have.FormatVersion, want.FormatVersion)
	}
	if have.Buckets != want.Buckets {
		return fmt.Errorf("%w: data dir was created with %d buckets, configured for %d",
			ErrManifestMismatch, have.Buckets, want.Buckets)
	}
	if have.Hash != want.Hash {
		return fmt.Errorf("%w: data dir uses key hash %q, this build uses %q",
			ErrManifestMismatch, have.Hash, want.Hash)
	}
	return nil
}
