// Package stackconfig loads the daemon's runtime configuration via viper,
// grounded on firestige-Otus/internal/config's Load/setDefaults pattern:
// a single YAML file, environment overrides with a key replacer, and
// defaults applied for everything spec.md doesn't require the operator to
// set explicitly.
package stackconfig

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config is the daemon's full runtime configuration (spec.md §6 config
// keys plus the additional identity/addressing keys a runnable binary
// needs).
type Config struct {
	TapName            string `mapstructure:"tap_name"`
	TapMTU             int    `mapstructure:"tap_mtu"`
	RxRingCapacity     int    `mapstructure:"rx_ring_capacity"`
	TxRingCapacity     int    `mapstructure:"tx_ring_capacity"`
	LogLevel           string `mapstructure:"log_level"`
	LocalMAC           string `mapstructure:"local_mac"`
	LocalIPv4          string `mapstructure:"local_ipv4"`
	LocalIPv6          string `mapstructure:"local_ipv6"`
	SubnetMaskIPv4     string `mapstructure:"subnet_mask_ipv4"`
	DefaultGatewayIPv4 string `mapstructure:"default_gateway_ipv4"`
	DefaultGatewayIPv6 string `mapstructure:"default_gateway_ipv6"`

	IP6Reassembly IP6ReassemblyConfig `mapstructure:"ip6_reassembly"`

	LogFile LogFileConfig `mapstructure:"log_file"`
}

// IP6ReassemblyConfig configures the IPv6 fragmentation engine (spec.md
// §4.7 / SPEC_FULL.md §4.7).
type IP6ReassemblyConfig struct {
	TimeoutMS  int `mapstructure:"timeout_ms"`
	MaxEntries int `mapstructure:"max_entries"`
	MaxBytes   int `mapstructure:"max_bytes"`
}

// Timeout converts TimeoutMS to a time.Duration.
func (c IP6ReassemblyConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// LogFileConfig configures daemon-mode log rotation (cmd/usertcpipd, via
// lumberjack).
type LogFileConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("tap_name", "tap0")
	v.SetDefault("tap_mtu", 1500)
	v.SetDefault("rx_ring_capacity", 256)
	v.SetDefault("tx_ring_capacity", 256)
	v.SetDefault("log_level", "info")
	v.SetDefault("local_mac", "02:00:00:00:00:01")
	v.SetDefault("local_ipv4", "10.0.0.1")
	v.SetDefault("subnet_mask_ipv4", "255.255.255.0")
	v.SetDefault("local_ipv6", "fe80::1")

	v.SetDefault("ip6_reassembly.timeout_ms", 30000)
	v.SetDefault("ip6_reassembly.max_entries", 256)
	v.SetDefault("ip6_reassembly.max_bytes", 1<<20)

	v.SetDefault("log_file.enabled", false)
	v.SetDefault("log_file.path", "/var/log/usertcpipd/usertcpipd.log")
	v.SetDefault("log_file.max_size_mb", 100)
	v.SetDefault("log_file.max_age_days", 30)
	v.SetDefault("log_file.max_backups", 5)
	v.SetDefault("log_file.compress", true)
}

// Loader wraps a *viper.Viper bound to one config file, letting the
// daemon register a reload callback that fires on write via fsnotify
// (viper's WatchConfig) without the caller needing viper in its import
// list.
type Loader struct {
	v *viper.Viper
}

// Load reads path (YAML) with environment override support
// (USERTCPIPD_-prefixed, "." replaced with "_"), applies defaults for
// every key not set, and returns the resulting Config plus the Loader for
// live-reload registration.
func Load(path string) (*Config, *Loader, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetEnvPrefix("USERTCPIPD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, &Loader{v: v}, nil
}

// OnReload re-unmarshals the config file into a fresh Config and invokes
// fn whenever the underlying file changes on disk, using viper's fsnotify
// watch. fn receives the new Config; it is the caller's job to decide
// which fields can actually be hot-swapped (spec.md doesn't require the
// core rings to support live reconfiguration, so usertcpipd only reloads
// its log level via this path today).
func (l *Loader) OnReload(fn func(*Config)) {
	l.v.OnConfigChange(func(_ fsnotify.Event) {
		var cfg Config
		if err := l.v.Unmarshal(&cfg); err != nil {
			return
		}
		fn(&cfg)
	})
	l.v.WatchConfig()
}
