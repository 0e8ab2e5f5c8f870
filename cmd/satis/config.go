package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tinytelemetry/satis/internal/logging"
	"github.com/tinytelemetry/satis/internal/model"
	"github.com/tinytelemetry/satis/internal/snapshot"
	"github.com/tinytelemetry/satis/internal/timeline"
)

const (
	defaultScanWorkers      = 1
	defaultQueryTimeout     = 30 * time.Second
	defaultHistoryRetention = 90 // days, 0 = keep forever
	defaultArchiveKeep      = 30
	defaultServeAddr        = "127.0.0.1:8000"
	defaultLogLevel         = "info"
	defaultLogFormat        = "console"
)

// appConfig is the resolved configuration of one invocation. Keys match the
// command-line flags and the config file.
type appConfig struct {
	LogDir         string `mapstructure:"log-dir"`
	FilePattern    string `mapstructure:"file-pattern"`
	Output         string `mapstructure:"output"`
	SnapshotFormat string `mapstructure:"snapshot-format"`
	ScanWorkers    int    `mapstructure:"scan-workers"`

	GapThreshold    time.Duration `mapstructure:"gap-threshold"`
	SessionGrace    time.Duration `mapstructure:"session-grace"`
	SessionMin      time.Duration `mapstructure:"session-min"`
	SessionMaxLink  time.Duration `mapstructure:"session-max-link"`
	SessionIsolated time.Duration `mapstructure:"session-isolated"`
	SessionFinal    time.Duration `mapstructure:"session-final"`

	ErrorTail      int `mapstructure:"error-tail"`
	ConnectionTail int `mapstructure:"connection-tail"`
	MessageLimit   int `mapstructure:"message-limit"`

	HistoryEnabled   bool          `mapstructure:"history-enabled"`
	DBPath           string        `mapstructure:"db-path"`
	QueryTimeout     time.Duration `mapstructure:"query-timeout"`
	HistoryRetention int           `mapstructure:"history-retention"`

	ArchiveDir            string `mapstructure:"archive-dir"`
	ArchiveKeep           int    `mapstructure:"archive-keep"`
	ArchiveHistory        bool   `mapstructure:"archive-history"`
	ArchiveBucketURL      string `mapstructure:"archive-bucket-url"`
	ArchiveS3Endpoint     string `mapstructure:"archive-s3-endpoint"`
	ArchiveS3Region       string `mapstructure:"archive-s3-region"`
	ArchiveS3AccessKey    string `mapstructure:"archive-s3-access-key"`
	ArchiveS3SecretKey    string `mapstructure:"archive-s3-secret-key"`
	ArchiveS3SessionToken string `mapstructure:"archive-s3-session-token"`
	ArchiveS3UseSSL       bool   `mapstructure:"archive-s3-use-ssl"`

	MetricsTextfile string `mapstructure:"metrics-textfile"`
	GeoIPDB         string `mapstructure:"geoip-db"`

	LogLevel  string `mapstructure:"log-level"`
	LogFormat string `mapstructure:"log-format"`
	LogFile   string `mapstructure:"log-file"`

	ServeAddr    string `mapstructure:"serve-addr"`
	DashboardDir string `mapstructure:"dashboard-dir"`

	ConfigPath string `mapstructure:"-"` // not from config file
}

func (c appConfig) sessionPolicy() timeline.SessionPolicy {
	return timeline.SessionPolicy{
		Grace:    c.SessionGrace,
		Min:      c.SessionMin,
		MaxLink:  c.SessionMaxLink,
		Isolated: c.SessionIsolated,
		Final:    c.SessionFinal,
	}
}

// registerFlags declares the command-line overrides. Every flag name is also
// a config key.
func registerFlags(fs *pflag.FlagSet) {
	fs.String("log-dir", ".", "directory containing the server log files")
	fs.String("file-pattern", model.DefaultFilePattern, "glob matched against log file names")
	fs.StringP("output", "o", model.DefaultOutput, "snapshot output path")
	fs.String("snapshot-format", snapshot.FormatJSON, "snapshot format: json or yaml")
	fs.Int("scan-workers", defaultScanWorkers, "files scanned concurrently")
	fs.Bool("history-enabled", false, "record each run in the DuckDB history store")
	fs.String("db-path", "", "DuckDB history database path")
	fs.String("archive-dir", "", "keep timestamped snapshot copies in this directory")
	fs.String("metrics-textfile", "", "write Prometheus run metrics to this file")
	fs.String("geoip-db", "", "MaxMind country database for connection origins")
	fs.String("log-level", defaultLogLevel, "log level: debug, info, warn, error")
	fs.String("log-format", defaultLogFormat, "log format: console or json")
	fs.String("log-file", "", "also write JSON logs to this rotating file")
	fs.String("serve-addr", defaultServeAddr, "dashboard server listen address")
	fs.String("dashboard-dir", "", "static dashboard directory (default: snapshot directory)")
}

func loadConfig(configPath string, flags *pflag.FlagSet) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("SATIS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("log-dir", ".")
	v.SetDefault("file-pattern", model.DefaultFilePattern)
	v.SetDefault("output", model.DefaultOutput)
	v.SetDefault("snapshot-format", snapshot.FormatJSON)
	v.SetDefault("scan-workers", defaultScanWorkers)
	v.SetDefault("gap-threshold", model.DefaultGapThreshold)
	v.SetDefault("session-grace", model.DefaultSessionGrace)
	v.SetDefault("session-min", model.DefaultSessionMin)
	v.SetDefault("session-max-link", model.DefaultSessionMaxLink)
	v.SetDefault("session-isolated", model.DefaultSessionIsolated)
	v.SetDefault("session-final", model.DefaultSessionFinal)
	v.SetDefault("error-tail", model.DefaultErrorTail)
	v.SetDefault("connection-tail", model.DefaultConnectionTail)
	v.SetDefault("message-limit", model.DefaultMessageLimit)
	v.SetDefault("history-enabled", false)
	v.SetDefault("db-path", filepath.Join(home, ".local", "share", "satis", "satis.duckdb"))
	v.SetDefault("query-timeout", defaultQueryTimeout)
	v.SetDefault("history-retention", defaultHistoryRetention)
	v.SetDefault("archive-keep", defaultArchiveKeep)
	v.SetDefault("archive-history", false)
	v.SetDefault("archive-s3-use-ssl", true)
	v.SetDefault("log-level", defaultLogLevel)
	v.SetDefault("log-format", defaultLogFormat)
	v.SetDefault("serve-addr", defaultServeAddr)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return cfg, fmt.Errorf("binding flags: %w", err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "satis", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	cfg.ConfigPath = v.ConfigFileUsed()

	cfg.DBPath = expandHome(cfg.DBPath, home)
	cfg.LogFile = expandHome(cfg.LogFile, home)
	cfg.LogDir = expandHome(cfg.LogDir, home)
	cfg.ArchiveDir = expandHome(cfg.ArchiveDir, home)
	cfg.GeoIPDB = expandHome(cfg.GeoIPDB, home)

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *appConfig) validate() error {
	format, err := snapshot.ParseFormat(c.SnapshotFormat)
	if err != nil {
		return err
	}
	c.SnapshotFormat = format

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log-format: %q", c.LogFormat)
	}

	if c.ScanWorkers < 1 {
		return fmt.Errorf("invalid scan-workers: %d", c.ScanWorkers)
	}
	if strings.TrimSpace(c.Output) == "" {
		return fmt.Errorf("output must not be empty")
	}

	positiveDurations := map[string]time.Duration{
		"gap-threshold":    c.GapThreshold,
		"session-min":      c.SessionMin,
		"session-max-link": c.SessionMaxLink,
		"session-isolated": c.SessionIsolated,
		"session-final":    c.SessionFinal,
		"query-timeout":    c.QueryTimeout,
	}
	for key, d := range positiveDurations {
		if d <= 0 {
			return fmt.Errorf("invalid %s: %s", key, d)
		}
	}
	if c.SessionGrace < 0 {
		return fmt.Errorf("invalid session-grace: %s", c.SessionGrace)
	}

	positiveInts := map[string]int{
		"error-tail":      c.ErrorTail,
		"connection-tail": c.ConnectionTail,
		"message-limit":   c.MessageLimit,
	}
	for key, n := range positiveInts {
		if n <= 0 {
			return fmt.Errorf("invalid %s: %d", key, n)
		}
	}
	if c.HistoryRetention < 0 {
		return fmt.Errorf("invalid history-retention: %d", c.HistoryRetention)
	}
	if c.ArchiveKeep < 0 {
		return fmt.Errorf("invalid archive-keep: %d", c.ArchiveKeep)
	}
	if c.HistoryEnabled && strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("db-path is required when history is enabled")
	}
	return nil
}

func expandHome(path, home string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
