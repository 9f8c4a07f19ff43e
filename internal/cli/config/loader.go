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

// Config file names, looked up in the working directory.
const (
	ConfigFileName    = "marketpivot.yaml"
	ConfigFileNameAlt = "marketpivot.yml"
)

// findConfigFile returns the config file to use.
// Priority: explicit path > marketpivot.yaml > marketpivot.yml.
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// Load loads configuration with precedence (highest to lowest):
// flags > environment > config file > defaults.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults.
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"state_path":       DefaultStateFile,
		"database":         DefaultDatabase,
		"raw_table":        DefaultRawTable,
		"long_table":       DefaultLongTable,
		"page_size":        DefaultPageSize,
		"sink_max_retries": DefaultRetries,
		"listen_addr":      DefaultListenAddr,
		"verbose":          false,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file, if present.
	configFile := findConfigFile(cfgFile)
	if configFile != "" {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	}

	// 3. Environment variables: MARKETPIVOT_PAGE_SIZE -> page_size.
	if err := k.Load(env.Provider("MARKETPIVOT_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "MARKETPIVOT_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags that were explicitly set.
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
