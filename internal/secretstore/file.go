package secretstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Owner-only permission profiles for stored files.
const (
	// ModeOwnerReadWrite allows the owner to read and rewrite the file (rw-------).
	ModeOwnerReadWrite fs.FileMode = 0600
	// ModeOwnerReadOnly allows the owner to read the file only (r--------).
	ModeOwnerReadOnly fs.FileMode = 0400
)

// FileStore provides atomic file-based storage with owner-only permissions.
// Writes use temp file + rename for crash safety, which also replaces files
// that were left read-only by a previous write.
type FileStore struct {
	filePath string
	mode     fs.FileMode
}

// Compile-time check to ensure FileStore implements Store
var _ Store = (*FileStore)(nil)

// NewFileStore creates a FileStore for the given path, creating parent directories
// with 0700 permissions if they don't exist. mode must grant no group or other access.
func NewFileStore(filePath string, mode fs.FileMode) (*FileStore, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}
	if mode&0077 != 0 || mode&0400 == 0 {
		return nil, fmt.Errorf("file mode %04o is not owner-only", mode)
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	return &FileStore{
		filePath: filePath,
		mode:     mode,
	}, nil
}

// Path returns the location of the backing file.
func (f *FileStore) Path() string {
	return f.filePath
}

// Read returns the stored value after trimming whitespace. Returns ErrNotFound if the
// file doesn't exist or is empty. Permissions wider than owner-only are tightened
// back to the configured mode before reading.
func (f *FileStore) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	info, err := os.Stat(f.filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		slog.WarnContext(ctx, "tightening insecure file permissions",
			"path", f.filePath, "found", fmt.Sprintf("%04o", perm), "expected", fmt.Sprintf("%04o", f.mode))
		if err := os.Chmod(f.filePath, f.mode); err != nil {
			return "", err
		}
	}

	data, err := os.ReadFile(f.filePath)
	if err != nil {
		return "", err
	}

	value := strings.TrimSpace(string(data))
	if value == "" {
		return "", ErrNotFound
	}
	return value, nil
}

// Write atomically saves the value using temp file + rename for crash safety.
// The configured owner-only mode is applied immediately after the rename.
func (f *FileStore) Write(ctx context.Context, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Create secure temp file in same directory for atomic rename
	dir := filepath.Dir(f.filePath)
	tempFile, err := os.CreateTemp(dir, ".*.tmp")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()
	// Cleanup deferred for all exit paths
	defer func() { _ = os.Remove(tempName) }()
	defer func() { _ = tempFile.Close() }()

	if _, err := tempFile.WriteString(strings.TrimSpace(value)); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}

	if err := os.Rename(tempName, f.filePath); err != nil {
		return err
	}

	return os.Chmod(f.filePath, f.mode)
}

// Delete removes the backing file. A missing file is not an error.
func (f *FileStore) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Remove(f.filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
