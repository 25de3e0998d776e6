package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/vk/stdattr/internal/fsutil"
)

// EnvPrefix prefixes the environment variables overriding configuration
// keys, for example STDATTR_CACHE_DIR.
const EnvPrefix = "STDATTR"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// CacheDir holds persisted compiled conventions. Empty disables the
	// cache.
	CacheDir string `mapstructure:"cache_dir"`
	// SpecPaths are spec files or directories compiled at startup.
	SpecPaths   []string `mapstructure:"spec_paths"`
	SpecPattern string   `mapstructure:"spec_pattern"`
	// ActiveConvention is activated after startup compilation. Empty leaves
	// the manager inactive.
	ActiveConvention      string        `mapstructure:"active_convention"`
	IgnoreAttributeErrors bool          `mapstructure:"ignore_attribute_errors"`
	LogLevel              string        `mapstructure:"log_level"`
	LogFormat             string        `mapstructure:"log_format"`
	ReachabilityTimeout   time.Duration `mapstructure:"reachability_timeout"`
	// Watch recompiles spec directories when their files change.
	Watch bool `mapstructure:"watch"`
}

var validLogFormats = map[string]bool{"text": true, "json": true}

// NewConfig validates cfg and fills in defaults for empty fields.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.SpecPattern == "" {
		cfg.SpecPattern = fsutil.DefaultSpecPattern
	}
	if cfg.ReachabilityTimeout == 0 {
		cfg.ReachabilityTimeout = 5 * time.Second
	}

	var problems []string
	if _, ok := logLevels[cfg.LogLevel]; !ok {
		problems = append(problems, fmt.Sprintf("log_level '%s' must be one of debug, info, warn, error", cfg.LogLevel))
	}
	if !validLogFormats[cfg.LogFormat] {
		problems = append(problems, fmt.Sprintf("log_format '%s' must be text or json", cfg.LogFormat))
	}
	if cfg.ReachabilityTimeout < 0 {
		problems = append(problems, "reachability_timeout must not be negative")
	}
	if cfg.Watch && len(cfg.SpecPaths) == 0 {
		problems = append(problems, "watch requires at least one entry in spec_paths")
	}
	if len(problems) > 0 {
		return nil, errors.New("invalid configuration:\n- " + strings.Join(problems, "\n- "))
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cache_dir", "")
	v.SetDefault("spec_paths", []string{})
	v.SetDefault("spec_pattern", fsutil.DefaultSpecPattern)
	v.SetDefault("active_convention", "")
	v.SetDefault("ignore_attribute_errors", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("reachability_timeout", "5s")
	v.SetDefault("watch", false)
}

// LoadConfig reads the configuration from defaults, the optional YAML file
// at path and STDATTR_* environment variables, in increasing precedence.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config from %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return NewConfig(cfg)
}
