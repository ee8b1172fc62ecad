package config

import (
	"fmt"
	"net"
	"os"
	"strings"
)

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var errs []string

	if net.ParseIP(c.Listener.Address) == nil {
		errs = append(errs, fmt.Sprintf("listener.address must be a valid IP address, got %q", c.Listener.Address))
	}

	// 0 lets the kernel pick a port
	if c.Listener.Port < 0 || c.Listener.Port > 65535 {
		errs = append(errs, fmt.Sprintf("listener.port must be between 0 and 65535, got %d", c.Listener.Port))
	}

	if c.Mapping.File == "" {
		errs = append(errs, "mapping.file must be specified")
	} else if _, err := os.Stat(c.Mapping.File); os.IsNotExist(err) {
		errs = append(errs, fmt.Sprintf("mapping file not found: %s", c.Mapping.File))
	}

	if c.Mapping.Workers < 1 {
		errs = append(errs, fmt.Sprintf("mapping.workers must be >= 1, got %d", c.Mapping.Workers))
	}

	if c.Directory.File != "" {
		if _, err := os.Stat(c.Directory.File); os.IsNotExist(err) {
			errs = append(errs, fmt.Sprintf("directory file not found: %s", c.Directory.File))
		}
	}

	if c.Input.PcapFile != "" {
		if _, err := os.Stat(c.Input.PcapFile); os.IsNotExist(err) {
			errs = append(errs, fmt.Sprintf("pcap file not found: %s", c.Input.PcapFile))
		}
	}

	if c.Input.Port < 0 || c.Input.Port > 65535 {
		errs = append(errs, fmt.Sprintf("input.port must be between 0 and 65535, got %d", c.Input.Port))
	}

	if c.Stream.IdleTimeoutMs < 0 {
		errs = append(errs, "stream.idle_timeout_ms must be >= 0")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		errs = append(errs, fmt.Sprintf("logging.level must be one of debug/info/warn/error, got %q", c.Logging.Level))
	}

	if c.Logging.File != "" && c.Logging.MaxSizeMB <= 0 {
		errs = append(errs, "logging.max_size_mb must be > 0")
	}

	if c.Stats.ReportIntervalSec < 0 {
		errs = append(errs, "stats.report_interval_sec must be >= 0")
	}

	if c.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(c.Metrics.Address); err != nil {
			errs = append(errs, fmt.Sprintf("metrics.address must be host:port, got %q", c.Metrics.Address))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
