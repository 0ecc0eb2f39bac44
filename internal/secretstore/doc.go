// Package secretstore provides persistent storage for the two local credentials:
// the generated secret (key material) and the encrypted bearer token.
//
// Supports three storage backends with different security and deployment tradeoffs:
//   - File: Local filesystem storage with atomic writes and owner-only permissions
//   - Env: Read-only environment variable access (requires external secret management)
//   - Keyring: OS-native credential storage (macOS Keychain, Windows Credential Manager, etc.)
//
// A missing or empty value is reported as ErrNotFound so callers can tell
// "first run" apart from I/O failure.
package secretstore
