package main

import (
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"vrt-bridge/internal/config"
)

var (
	version = "1.0.0"
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "vrt-bridge",
		Short: "VRT Bridge - apply VITA-49 context packets to hardware attributes",
		Long: `Receives VITA-49.2 (VRT) packets over UDP or from capture files, decodes the
CIF0 context fields of IF context packets, and routes them to device, channel and
debug attributes through a stream mapping file.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Configuration file path (default: ./config.yaml if present)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().String("log-file", "", "Log file path (rotated)")
	rootCmd.PersistentFlags().String("mapping", "", "Stream mapping file")
	rootCmd.PersistentFlags().String("directory", "", "Device directory snapshot (YAML)")
	rootCmd.PersistentFlags().Bool("strict-direction", false, "Do not fall back to the opposite channel direction")
	rootCmd.PersistentFlags().Int("workers", 0, "Concurrent mapping validation workers")

	rootCmd.AddCommand(
		newValidateCmd(),
		newExamineCmd(),
		newListenCmd(),
		newReplayCmd(),
		newSendCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig merges defaults, the config file and command-line overrides,
// then configures logging.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if cfgFile != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK if using CLI flags
		log.Debug("No config file found, using defaults and CLI flags")
	}

	bindViperFlags(v, cmd)

	cfg, err := config.LoadWithViper(v)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	setupLogging(cfg)
	return cfg, nil
}

func setupLogging(cfg *config.Config) {
	level, err := log.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})

	if cfg.Logging.File == "" {
		return
	}

	var out io.Writer = &lumberjack.Logger{
		Filename:   cfg.Logging.File,
		MaxSize:    cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAgeDays,
		Compress:   true,
	}
	if cfg.Logging.Console {
		out = io.MultiWriter(os.Stderr, out)
	}
	log.SetOutput(out)
}

// flagBinding maps a command-line flag onto a config key.
type flagBinding struct {
	flag string
	key  string
}

var flagBindings = []flagBinding{
	{"log-level", "logging.level"},
	{"log-file", "logging.file"},
	{"mapping", "mapping.file"},
	{"directory", "directory.file"},
	{"strict-direction", "mapping.strict_direction"},
	{"workers", "mapping.workers"},
	{"address", "listener.address"},
	{"port", "listener.port"},
	{"idle-timeout", "stream.idle_timeout_ms"},
	{"pcap", "input.pcap_file"},
	{"pcap-port", "input.port"},
	{"stats-interval", "stats.report_interval_sec"},
	{"stats-export", "stats.export_file"},
	{"metrics", "metrics.enabled"},
	{"metrics-address", "metrics.address"},
}

// bindViperFlags copies explicitly set flags over config file values.
func bindViperFlags(v *viper.Viper, cmd *cobra.Command) {
	flags := cmd.Flags()
	for _, b := range flagBindings {
		f := flags.Lookup(b.flag)
		if f == nil || !f.Changed {
			continue
		}
		switch f.Value.Type() {
		case "bool":
			val, _ := flags.GetBool(b.flag)
			v.Set(b.key, val)
		case "int":
			val, _ := flags.GetInt(b.flag)
			v.Set(b.key, val)
		default:
			v.Set(b.key, f.Value.String())
		}
	}
}
