package config

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

// Config is the clrmeta configuration, read from clrmeta.yaml and
// CLRMETA_* environment variables.
type Config struct {
	Diagnostics DiagnosticsConfig `mapstructure:"diagnostics"`
	Log         LogConfig         `mapstructure:"log"`
	Resolve     ResolveConfig     `mapstructure:"resolve"`
	NFS         NFSConfig         `mapstructure:"nfs"`
	Graph       GraphConfig       `mapstructure:"graph"`
}

// DiagnosticsConfig selects how malformed metadata is handled.
type DiagnosticsConfig struct {
	// Mode is "collect" (report and continue), "strict" (halt on the
	// first bad-image error) or "discard".
	Mode string `mapstructure:"mode"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type ResolveConfig struct {
	Workers int `mapstructure:"workers"`
}

type NFSConfig struct {
	Listen string `mapstructure:"listen"`
	// MountOptionsReadonly are appended to the read-only mount options.
	MountOptionsReadonly []string `mapstructure:"mount_options_readonly"`
}

type GraphConfig struct {
	CacheSize int `mapstructure:"cache_size"`
}

const (
	ModeCollect = "collect"
	ModeStrict  = "strict"
	ModeDiscard = "discard"
)

// New returns a viper instance with defaults, search paths and env
// binding set up. Callers may bind flags before Load.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("diagnostics.mode", ModeCollect)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("resolve.workers", 4)
	v.SetDefault("nfs.listen", "127.0.0.1:0")
	v.SetDefault("nfs.mount_options_readonly", []string{})
	v.SetDefault("graph.cache_size", 1024)

	v.SetConfigName("clrmeta")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/clrmeta")

	v.SetEnvPrefix("CLRMETA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file named by path, or searches the default
// locations when path is empty, and decodes the result. A missing config
// file in the search paths is not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	switch cfg.Diagnostics.Mode {
	case ModeCollect, ModeStrict, ModeDiscard:
	default:
		return errors.Newf("diagnostics.mode must be one of %q, %q, %q; got %q",
			ModeCollect, ModeStrict, ModeDiscard, cfg.Diagnostics.Mode)
	}
	if cfg.Resolve.Workers < 1 {
		return errors.Newf("resolve.workers must be positive, got %d", cfg.Resolve.Workers)
	}
	if cfg.Graph.CacheSize < 1 {
		return errors.Newf("graph.cache_size must be positive, got %d", cfg.Graph.CacheSize)
	}
	return nil
}
