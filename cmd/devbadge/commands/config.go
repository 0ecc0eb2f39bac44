package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/urfave/cli/v3"

	"github.com/florianilch/devbadge/internal/app"
)

// envPrefix is stripped from environment variables during config loading (e.g., DEVBADGE_SECRET__STORAGE → secret.storage)
const envPrefix = "DEVBADGE_"

// defaultConfigFile is picked up from the working directory when --config is not given.
const defaultConfigFile = "devbadge.toml"

// loadConfig merges configuration sources, later ones winning:
// config file → environment variables → CLI flags → defaults for anything still unset
func loadConfig(configPath string, cmd *cli.Command, environFunc func() []string) (*app.Config, error) {
	k := koanf.New(".")

	path, err := resolveConfigPath(configPath)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			stripped := strings.TrimPrefix(key, envPrefix)
			return strings.ToLower(strings.ReplaceAll(stripped, "__", ".")), value
		},
		EnvironFunc: environFunc,
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	if cmd != nil {
		if err := k.Load(confmap.Provider(flagValues(cmd), "."), nil); err != nil {
			return nil, fmt.Errorf("loading CLI flags: %w", err)
		}
	}

	config := &app.Config{}
	if err := k.UnmarshalWithConf("", config, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := config.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// resolveConfigPath returns the explicit path, or defaultConfigFile if it exists,
// or "" when no config file should be loaded.
func resolveConfigPath(configPath string) (string, error) {
	if configPath != "" {
		return configPath, nil
	}

	_, err := os.Stat(defaultConfigFile)
	switch {
	case err == nil:
		return defaultConfigFile, nil
	case errors.Is(err, fs.ErrNotExist):
		return "", nil
	default:
		return "", fmt.Errorf("checking %s: %w", defaultConfigFile, err)
	}
}

// flagValues maps explicitly set flags, including those inherited from parent
// commands, onto config keys: --secret--env-key → secret.env_key, --log-level → log_level.
// Unset flags are skipped so they cannot shadow file or environment values.
func flagValues(cmd *cli.Command) map[string]any {
	values := make(map[string]any)

	for _, name := range cmd.FlagNames() {
		if !cmd.IsSet(name) {
			continue
		}

		value := cmd.Value(name)
		if value == nil {
			continue
		}

		key := strings.ReplaceAll(strings.ReplaceAll(name, "--", "."), "-", "_")
		values[key] = value
	}

	return values
}
