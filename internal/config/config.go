// Package config loads boot-time and host-tool configuration: frame-pool
// size, block-cache capacity, default task priority, and the on-disk image
// path. It is read via viper with one precedence order (flag > env >
// config file > default) the way gcsfuse's own config loader does;
// cmd/rvos-sim is the only binary that loads it, with github.com/pelletier/go-toml/v2 as the
// concrete file codec viper delegates to for ".toml" files.
package config

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

/// Config_t is the resolved boot configuration for a cmd/ binary.
type Config_t struct {
	// FramePages is how many simulated 4KiB physical frames mem.Phys_init
	// reserves (§4.1).
	FramePages int `mapstructure:"frame_pages"`
	// CacheBlocks is an EasyFS block-cache capacity (§4.7). It is loaded
	// but not read: fs sizes its cache from the image's block count.
	CacheBlocks int `mapstructure:"cache_blocks"`
	// DefaultPriority is a task priority (§4.3). It is loaded but not
	// read: tasks start at proc.DefaultPriority.
	DefaultPriority int `mapstructure:"default_priority"`
	// DiskPath is the host file backing the EasyFS image (§6.1). It is
	// loaded but not read by cmd/rvos-sim.
	DiskPath string `mapstructure:"disk_path"`
	// LogLevel is the klog level name ("debug", "info", "warn", "error").
	LogLevel string `mapstructure:"log_level"`
}

/// Defaults returns the configuration used when no file, flag, or
/// environment variable overrides a setting.
func Defaults() Config_t {
	return Config_t{
		FramePages:      4096,
		CacheBlocks:     64,
		DefaultPriority: 16,
		DiskPath:        "rvos.img",
		LogLevel:        "info",
	}
}

/// BindFlags registers the standard --config/--disk/--log-level flags a
/// cmd/ binary exposes, via pflag so they compose with cobra's own flag
/// parsing (SPEC_FULL's ambient stack: viper + pflag + cobra).
func BindFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "path to a TOML configuration file")
	flags.String("disk", "", "path to the EasyFS disk image")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
}

/// Load resolves a Config_t from defaults, an optional TOML file, the
/// process environment (RVOS_* prefix), and bound flags, in that order of
/// increasing precedence.
func Load(flags *pflag.FlagSet) (Config_t, error) {
	v := viper.New()
	d := Defaults()
	v.SetDefault("frame_pages", d.FramePages)
	v.SetDefault("cache_blocks", d.CacheBlocks)
	v.SetDefault("default_priority", d.DefaultPriority)
	v.SetDefault("disk_path", d.DiskPath)
	v.SetDefault("log_level", d.LogLevel)

	v.SetEnvPrefix("RVOS")
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config_t{}, fmt.Errorf("config: bind flags: %w", err)
		}
		if p, _ := flags.GetString("config"); p != "" {
			v.SetConfigFile(p)
			v.SetConfigType("toml")
			if err := v.ReadInConfig(); err != nil {
				return Config_t{}, fmt.Errorf("config: read %s: %w", p, err)
			}
		}
		if p, _ := flags.GetString("disk"); p != "" {
			v.Set("disk_path", p)
		}
		if lvl, _ := flags.GetString("log-level"); lvl != "" {
			v.Set("log_level", lvl)
		}
	}

	var out Config_t
	if err := v.Unmarshal(&out); err != nil {
		return Config_t{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return out, nil
}
