package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the VRT bridge.
type Config struct {
	Listener  ListenerConfig  `yaml:"listener"  mapstructure:"listener"`
	Mapping   MappingConfig   `yaml:"mapping"   mapstructure:"mapping"`
	Directory DirectoryConfig `yaml:"directory" mapstructure:"directory"`
	Input     InputConfig     `yaml:"input"     mapstructure:"input"`
	Stream    StreamConfig    `yaml:"stream"    mapstructure:"stream"`
	Logging   LoggingConfig   `yaml:"logging"   mapstructure:"logging"`
	Stats     StatsConfig     `yaml:"stats"     mapstructure:"stats"`
	Metrics   MetricsConfig   `yaml:"metrics"   mapstructure:"metrics"`
}

type ListenerConfig struct {
	Address string `yaml:"address" mapstructure:"address"`
	Port    int    `yaml:"port"    mapstructure:"port"`
}

type MappingConfig struct {
	File            string `yaml:"file"             mapstructure:"file"`
	StrictDirection bool   `yaml:"strict_direction" mapstructure:"strict_direction"`
	Workers         int    `yaml:"workers"          mapstructure:"workers"`
}

type DirectoryConfig struct {
	File string `yaml:"file" mapstructure:"file"`
}

type InputConfig struct {
	PcapFile string `yaml:"pcap_file" mapstructure:"pcap_file"`
	Port     int    `yaml:"port"      mapstructure:"port"`
}

type StreamConfig struct {
	IdleTimeoutMs int `yaml:"idle_timeout_ms" mapstructure:"idle_timeout_ms"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"        mapstructure:"level"`
	File       string `yaml:"file"         mapstructure:"file"`
	Console    bool   `yaml:"console"      mapstructure:"console"`
	MaxSizeMB  int    `yaml:"max_size_mb"  mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"  mapstructure:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days"`
}

type StatsConfig struct {
	Enabled           bool   `yaml:"enabled"             mapstructure:"enabled"`
	ReportIntervalSec int    `yaml:"report_interval_sec" mapstructure:"report_interval_sec"`
	ExportFile        string `yaml:"export_file"         mapstructure:"export_file"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Address string `yaml:"address" mapstructure:"address"`
}

// SetDefaults configures default values for the configuration.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("listener.address", "0.0.0.0")
	v.SetDefault("listener.port", 4991)
	v.SetDefault("mapping.file", "vrt_mapping.conf")
	v.SetDefault("mapping.strict_direction", false)
	v.SetDefault("mapping.workers", 1)
	v.SetDefault("input.port", 4991)
	v.SetDefault("stream.idle_timeout_ms", 5000)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)
	v.SetDefault("stats.enabled", true)
	v.SetDefault("stats.report_interval_sec", 10)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.address", ":9091")
}

// Load reads configuration from a YAML file and returns a Config.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	return LoadWithViper(v)
}

// LoadWithViper reads configuration using an existing viper instance (for CLI flag binding).
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Summary returns a human-readable summary of the configuration.
func (c *Config) Summary() string {
	var sb strings.Builder
	sb.WriteString("Configuration:\n")
	sb.WriteString(fmt.Sprintf("  Listener:      %s:%d\n", c.Listener.Address, c.Listener.Port))
	sb.WriteString(fmt.Sprintf("  Mapping:       %s (workers: %d, strict direction: %v)\n",
		c.Mapping.File, c.Mapping.Workers, c.Mapping.StrictDirection))
	if c.Directory.File != "" {
		sb.WriteString(fmt.Sprintf("  Directory:     %s\n", c.Directory.File))
	}
	if c.Input.PcapFile != "" {
		sb.WriteString(fmt.Sprintf("  PCAP:          %s (port %d)\n", c.Input.PcapFile, c.Input.Port))
	}
	sb.WriteString(fmt.Sprintf("  Idle Timeout:  %dms\n", c.Stream.IdleTimeoutMs))
	sb.WriteString(fmt.Sprintf("  Log Level:     %s\n", c.Logging.Level))
	if c.Metrics.Enabled {
		sb.WriteString(fmt.Sprintf("  Metrics:       %s\n", c.Metrics.Address))
	}
	return sb.String()
}
