package engine

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/akumuli/akumulid-edge/internal/model"
)

const manifestName = "db.akumuli"

func manifestPath(path string) string {
	return filepath.Join(path, manifestName)
}

// ManifestExists reports whether a db.akumuli manifest is present at path.
func ManifestExists(path string) bool {
	_, err := os.Stat(manifestPath(path))
	return err == nil
}

// Create creates database files at path per the CLI --create command
// (spec.md §6). It refuses to create if the manifest already exists. When
// allocate is true the volume is preallocated on disk; volumeSize governs
// the size (the --CI flag passes a 2 MiB test volume size).
func Create(path string, wal model.WALSettings, allocate bool, volumeSize int64) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("engine: create data dir: %w", err)
	}
	if ManifestExists(path) {
		return fmt.Errorf("engine: database already exists at %s", path)
	}

	manifest := fmt.Sprintf("akumuli-edge-manifest-v1\nvolume_size=%d\nwal_enabled=%t\n", volumeSize, wal.Enabled())
	if err := os.WriteFile(manifestPath(path), []byte(manifest), 0o644); err != nil {
		return fmt.Errorf("engine: write manifest: %w", err)
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s", dataFile(path)))
	if err != nil {
		return fmt.Errorf("engine: create sqlite file: %w", err)
	}
	defer db.Close()

	conn := &Connection{path: path, db: db}
	if err := conn.migrate(); err != nil {
		return fmt.Errorf("engine: initial schema: %w", err)
	}

	if allocate {
		if err := preallocateVolume(path, volumeSize); err != nil {
			return fmt.Errorf("engine: preallocate volume: %w", err)
		}
	}
	return nil
}

// Delete removes database files at path per the CLI --delete command. It
// refuses to delete if no manifest is present.
func Delete(path string) error {
	if !ManifestExists(path) {
		return fmt.Errorf("engine: no database at %s", path)
	}
	return os.RemoveAll(path)
}

// preallocateVolume writes a sparse file of the given size, standing in
// for the engine's real volume preallocation (out of scope per spec.md
// §1 Non-goals — this only demonstrates the --allocate CLI contract).
func preallocateVolume(path string, size int64) error {
	f, err := os.Create(filepath.Join(path, "volume.0"))
	if err != nil {
		return err
	}
	defer f.Close()
	if size <= 0 {
		return nil
	}
	return f.Truncate(size)
}
