package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes environment overrides: QUERYTREE_LOG_LEVEL sets
// log_level.
const EnvPrefix = "QUERYTREE_"

// FlagConfig names the flag holding the config file path. It is not a
// config key.
const FlagConfig = "config"

// BindFlags registers the flags Load understands on fs.
func BindFlags(fs *pflag.FlagSet) {
	fs.String(FlagConfig, "", "config file (default querytree.yaml in the working directory)")
	fs.String("engine", "", "database engine: postgres, mysql or sqlite")
	fs.String("dsn", "", "data source name for the engine")
	fs.String("dialect", "", "SQL dialect (defaults to the engine's)")
	fs.String("log-level", "", "log level: debug, info, warn or error")
	fs.Bool("pretty", false, "pretty-print SQL")
	fs.Bool("strict", true, "bind constants as parameters instead of inlining them")
	fs.Int("max-rows", 0, "maximum rows shown by exec")
}

func findFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range FileNames {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// Load resolves the configuration. Precedence, highest first: flags that
// were set, environment, config file, defaults. path may be empty; flags may
// be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(map[string]any{
		"engine":    DefaultEngine,
		"dialect":   "",
		"log_level": DefaultLogLevel,
		"pretty":    false,
		"strict":    true,
		"max_rows":  DefaultMaxRows,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" && flags != nil {
		path, _ = flags.GetString(FlagConfig)
	}
	used := findFile(path)
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", used, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed || f.Name == FlagConfig {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.File = used
	cfg.Engine = strings.ToLower(cfg.Engine)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
