package secretstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Read when no value is stored or the stored value is empty.
var ErrNotFound = errors.New("secret not found")

// Store reads, writes and deletes a single secret value in persistent storage.
type Store interface {
	// Read returns the stored value. Returns ErrNotFound if the value is missing or empty.
	Read(ctx context.Context) (string, error)

	// Write persists the value to storage. Returns error if storage backend
	// is read-only (e.g., environment variables) or if write operation fails.
	Write(ctx context.Context, value string) error

	// Delete removes the stored value. Deleting a missing value is not an error.
	Delete(ctx context.Context) error
}
