package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/devbadge/internal/keyderive"
	"github.com/florianilch/devbadge/internal/secretstore"
)

func TestDefault(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	assert.Equal(t, LogFormatText, cfg.LogFormat)
	assert.Equal(t, SecretStorageTypeFile, cfg.Secret.Storage)
	assert.Equal(t, ".master", cfg.Secret.File)
	assert.Equal(t, SecretModeStrict, cfg.Secret.Mode)
	assert.Equal(t, secretstore.ModeOwnerReadOnly, cfg.Secret.FileMode())
	assert.Equal(t, ".token", cfg.Token.File)
	assert.Equal(t, keyderive.ProfilePBKDF2, cfg.KDF.Profile)
	assert.Equal(t, keyderive.MinPBKDF2Iterations, cfg.KDF.Iterations)
	assert.Equal(t, DefaultConfigShutdownTimeout, cfg.Shutdown.Timeout)
	require.NotNil(t, cfg.Gateway.MessageContent)
	assert.True(t, *cfg.Gateway.MessageContent)
	assert.False(t, cfg.Status.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name:   "unknown kdf profile",
			mutate: func(c *Config) { c.KDF.Profile = "md5" },
		},
		{
			name:   "pbkdf2 below minimum iterations",
			mutate: func(c *Config) { c.KDF.Iterations = 1000 },
		},
		{
			name:   "secret and token share a file",
			mutate: func(c *Config) { c.Token.File = c.Secret.File },
		},
		{
			name: "secret and token resolve to the same file",
			mutate: func(c *Config) {
				c.Secret.File = "./state"
				abs, err := filepath.Abs("state")
				if err != nil {
					panic(err)
				}
				c.Token.File = abs
			},
		},
		{
			name:   "unknown log format",
			mutate: func(c *Config) { c.LogFormat = "xml" },
		},
		{
			name: "env storage without key",
			mutate: func(c *Config) {
				c.Secret.Storage = SecretStorageTypeEnv
				c.Secret.EnvKey = ""
			},
		},
		{
			name:   "non-numeric guild id",
			mutate: func(c *Config) { c.Gateway.GuildID = "my-guild" },
		},
		{
			name:   "unknown secret mode",
			mutate: func(c *Config) { c.Secret.Mode = "loose" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Default()
			require.NoError(t, err)

			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSecretConfig_StandardMode(t *testing.T) {
	s := SecretConfig{Mode: SecretModeStandard}
	assert.Equal(t, secretstore.ModeOwnerReadWrite, s.FileMode())
}

func TestValidate_HardLinkedSecretAndToken(t *testing.T) {
	dir := t.TempDir()
	secretFile := filepath.Join(dir, "master")
	tokenFile := filepath.Join(dir, "token")
	require.NoError(t, os.WriteFile(secretFile, []byte("secret"), 0600))
	require.NoError(t, os.Link(secretFile, tokenFile))

	cfg, err := Default()
	require.NoError(t, err)
	cfg.Secret.File = secretFile
	cfg.Token.File = tokenFile

	assert.ErrorContains(t, cfg.Validate(), "must differ")
}
