package app

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/florianilch/devbadge/internal/keyderive"
	"github.com/florianilch/devbadge/internal/secretstore"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
	LogFormatOTel LogFormat = "otel"
)

// SecretStorageType represents the different storage types supported for the local secret.
type SecretStorageType string

const (
	SecretStorageTypeFile    SecretStorageType = "file"
	SecretStorageTypeEnv     SecretStorageType = "env"
	SecretStorageTypeKeyring SecretStorageType = "keyring"
)

// SecretMode selects the permission profile of the secret file.
type SecretMode string

const (
	// SecretModeStrict leaves the secret file owner read-only.
	SecretModeStrict SecretMode = "strict"
	// SecretModeStandard leaves the secret file owner read-write.
	SecretModeStandard SecretMode = "standard"
)

// Default configuration values
const (
	DefaultConfigLogFormat       = LogFormatText
	DefaultConfigSecretStorage   = SecretStorageTypeFile
	DefaultConfigSecretFile      = ".master"
	DefaultConfigSecretMode      = SecretModeStrict
	DefaultConfigTokenFile       = ".token"
	DefaultConfigKDFProfile      = keyderive.ProfilePBKDF2
	DefaultConfigKDFIterations   = keyderive.MinPBKDF2Iterations
	DefaultConfigShutdownTimeout = 5 * time.Second
	DefaultConfigStatusAddress   = "127.0.0.1:4100"
)

// keyringService identifies the secret in the OS keyring.
const keyringService = "devbadge-secret"

// SecretConfig describes where the local secret (key material) lives.
type SecretConfig struct {
	Storage SecretStorageType `json:"storage" validate:"required,oneof=file env keyring"`

	// Storage-specific settings (mutually exclusive based on Storage type)
	File        string     `json:"file,omitempty"`         // For file storage: path to secret file
	Mode        SecretMode `json:"mode,omitempty"`         // For file storage: permission profile
	EnvKey      string     `json:"env_key,omitempty"`      // For env storage: environment variable name
	KeyringUser string     `json:"keyring_user,omitempty"` // For keyring storage: user identifier
}

// FileMode returns the permission bits applied to the secret file.
func (s *SecretConfig) FileMode() fs.FileMode {
	if s.Mode == SecretModeStandard {
		return secretstore.ModeOwnerReadWrite
	}
	return secretstore.ModeOwnerReadOnly
}

// NewStore creates the secret store described by the configuration.
func (s *SecretConfig) NewStore() (secretstore.Store, error) {
	switch s.Storage {
	case SecretStorageTypeFile:
		return secretstore.NewFileStore(s.File, s.FileMode())
	case SecretStorageTypeEnv:
		return secretstore.NewEnvStore(s.EnvKey)
	case SecretStorageTypeKeyring:
		return secretstore.NewKeyringStore(keyringService, s.KeyringUser)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", s.Storage)
	}
}

// TokenConfig describes where the encrypted token lives.
type TokenConfig struct {
	File string `json:"file" validate:"required"`
}

// NewStore creates the token file store.
func (t *TokenConfig) NewStore() (*secretstore.FileStore, error) {
	return secretstore.NewFileStore(t.File, secretstore.ModeOwnerReadWrite)
}

// KDFConfig selects the key derivation profile.
type KDFConfig struct {
	Profile    keyderive.Profile `json:"profile" validate:"required,oneof=legacy pbkdf2 scrypt"`
	Iterations int               `json:"iterations" validate:"gte=0"`
}

// ShutdownConfig holds shutdown behavior configuration.
type ShutdownConfig struct {
	// Timeout bounds the drain of background work.
	Timeout time.Duration `json:"timeout" validate:"gt=0"`
}

// GatewayConfig holds the Discord gateway settings.
type GatewayConfig struct {
	// GuildID restricts command registration to one guild (optional).
	GuildID string `json:"guild_id,omitempty" validate:"omitempty,numeric"`
	// MessageContent requests the privileged message content intent.
	MessageContent *bool `json:"message_content,omitempty"`
}

// StatusConfig configures the optional health endpoint.
type StatusConfig struct {
	Enabled bool   `json:"enabled"`
	Address string `json:"address" validate:"required,hostname_port"`
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel  slog.Level     `json:"log_level"`
	LogFormat LogFormat      `json:"log_format" validate:"oneof=text json otel"`
	Secret    SecretConfig   `json:"secret"`
	Token     TokenConfig    `json:"token"`
	KDF       KDFConfig      `json:"kdf"`
	Shutdown  ShutdownConfig `json:"shutdown"`
	Gateway   GatewayConfig  `json:"gateway"`
	Status    StatusConfig   `json:"status"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.Secret.Storage == "" {
		c.Secret.Storage = DefaultConfigSecretStorage
	}
	if c.Token.File == "" {
		c.Token.File = DefaultConfigTokenFile
	}
	if c.KDF.Profile == "" {
		c.KDF.Profile = DefaultConfigKDFProfile
	}
	if c.KDF.Iterations == 0 && c.KDF.Profile == keyderive.ProfilePBKDF2 {
		c.KDF.Iterations = DefaultConfigKDFIterations
	}
	if c.Shutdown.Timeout == 0 {
		c.Shutdown.Timeout = DefaultConfigShutdownTimeout
	}
	if c.Gateway.MessageContent == nil {
		enabled := true
		c.Gateway.MessageContent = &enabled
	}
	if c.Status.Address == "" {
		c.Status.Address = DefaultConfigStatusAddress
	}

	// Dynamic defaults based on storage type
	switch c.Secret.Storage {
	case SecretStorageTypeFile:
		if c.Secret.File == "" {
			c.Secret.File = DefaultConfigSecretFile
		}
		if c.Secret.Mode == "" {
			c.Secret.Mode = DefaultConfigSecretMode
		}
	case SecretStorageTypeKeyring:
		if c.Secret.KeyringUser == "" {
			currentUser, err := user.Current()
			if err != nil {
				return fmt.Errorf("secret.keyring_user required (auto-detect failed: %w)", err)
			}
			c.Secret.KeyringUser = currentUser.Username
		}
	case SecretStorageTypeEnv:
		// env_key must be explicitly configured (no sensible default)
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	if c.KDF.Profile == keyderive.ProfilePBKDF2 && c.KDF.Iterations < keyderive.MinPBKDF2Iterations {
		return fmt.Errorf("kdf.iterations must be at least %d for pbkdf2", keyderive.MinPBKDF2Iterations)
	}

	switch c.Secret.Storage {
	case SecretStorageTypeFile:
		if c.Secret.File == "" {
			return errors.New("file path required for file storage")
		}
		same, err := samePath(c.Secret.File, c.Token.File)
		if err != nil {
			return fmt.Errorf("resolving secret and token paths: %w", err)
		}
		if same {
			return errors.New("secret.file and token.file must differ")
		}
		if c.Secret.Mode != SecretModeStrict && c.Secret.Mode != SecretModeStandard {
			return fmt.Errorf("unsupported secret mode: %s", c.Secret.Mode)
		}
	case SecretStorageTypeEnv:
		if c.Secret.EnvKey == "" {
			return errors.New("env_key required for env storage")
		}
	case SecretStorageTypeKeyring:
		if c.Secret.KeyringUser == "" {
			return errors.New("keyring_user required for keyring storage")
		}
	}

	return nil
}

// samePath reports whether a and b name the same file, either after resolving
// them against the working directory or, when both exist, on disk (hard links).
func samePath(a, b string) (bool, error) {
	absA, err := filepath.Abs(a)
	if err != nil {
		return false, err
	}
	absB, err := filepath.Abs(b)
	if err != nil {
		return false, err
	}
	if absA == absB {
		return true, nil
	}

	infoA, errA := os.Stat(absA)
	infoB, errB := os.Stat(absB)
	if errA != nil || errB != nil {
		return false, nil
	}
	return os.SameFile(infoA, infoB), nil
}
