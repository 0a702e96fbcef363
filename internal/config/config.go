package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// FileName is the configuration file looked up in the config directory.
const FileName = "touchfly.cfg.json"

// LogConfig controls the log file, its rotation and the optional GELF sink.
type LogConfig struct {
	Level          string `json:"logLevel" mapstructure:"logLevel"`
	Dir            string `json:"logsDir" mapstructure:"logsDir"`
	MaxSizeMB      int    `json:"maxSizeMB" mapstructure:"maxSizeMB"`
	MaxBackups     int    `json:"maxBackups" mapstructure:"maxBackups"`
	MaxAgeDays     int    `json:"maxAgeDays" mapstructure:"maxAgeDays"`
	GraylogEnabled bool   `json:"graylogEnabled" mapstructure:"graylogEnabled"`
	GraylogAddress string `json:"graylogAddress" mapstructure:"graylogAddress"`
}

// GuidanceConfig holds the target defaults and vehicle rates.
type GuidanceConfig struct {
	DefaultAltitude  float64 `json:"defaultAltitude" mapstructure:"defaultAltitude"`
	POIAltitude      float64 `json:"poiAltitude" mapstructure:"poiAltitude"`
	DefaultSpeed     float64 `json:"defaultSpeed" mapstructure:"defaultSpeed"`
	VerticalSpeed    float64 `json:"verticalSpeed" mapstructure:"verticalSpeed"`
	YawRotationSpeed float64 `json:"yawRotationSpeed" mapstructure:"yawRotationSpeed"`
	MailboxSize      int     `json:"mailboxSize" mapstructure:"mailboxSize"`
}

// CameraConfig holds the default projector parameters.
type CameraConfig struct {
	HorizontalFOV float64 `json:"horizontalFov" mapstructure:"horizontalFov"`
	AspectRatio   float64 `json:"aspectRatio" mapstructure:"aspectRatio"`
	MaxRange      float64 `json:"maxRange" mapstructure:"maxRange"`
}

// SQLiteConfig holds settings for the SQLite journal.
type SQLiteConfig struct {
	Path         string        `json:"path" mapstructure:"path"`
	DumpPath     string        `json:"dumpPath" mapstructure:"dumpPath"`
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
}

// PostgresConfig holds connection settings for the Postgres journal.
type PostgresConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// JournalConfig selects and configures the session journal backend.
type JournalConfig struct {
	Type     string         `json:"type" mapstructure:"type"`
	Capacity int            `json:"capacity" mapstructure:"capacity"`
	SQLite   SQLiteConfig   `json:"sqlite" mapstructure:"sqlite"`
	Postgres PostgresConfig `json:"postgres" mapstructure:"postgres"`
}

// InfluxConfig holds the flight metrics sink settings.
type InfluxConfig struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	Host      string `json:"host" mapstructure:"host"`
	Port      string `json:"port" mapstructure:"port"`
	Protocol  string `json:"protocol" mapstructure:"protocol"`
	Token     string `json:"token" mapstructure:"token"`
	Org       string `json:"org" mapstructure:"org"`
	Bucket    string `json:"bucket" mapstructure:"bucket"`
	BackupDir string `json:"backupDir" mapstructure:"backupDir"`
}

// URL returns the server address built from protocol, host and port.
func (c InfluxConfig) URL() string {
	return fmt.Sprintf("%s://%s:%s", c.Protocol, c.Host, c.Port)
}

// MonitorConfig controls the status sampler.
type MonitorConfig struct {
	Interval   time.Duration `json:"interval" mapstructure:"interval"`
	StatusFile string        `json:"statusFile" mapstructure:"statusFile"`
}

// StreamConfig controls the WebSocket status stream.
type StreamConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	URL     string `json:"url" mapstructure:"url"`
	Secret  string `json:"secret" mapstructure:"secret"`
	Vehicle string `json:"vehicle" mapstructure:"vehicle"`
}

// OTelConfig controls the OpenTelemetry metric export.
type OTelConfig struct {
	Enabled     bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName string        `json:"serviceName" mapstructure:"serviceName"`
	Interval    time.Duration `json:"interval" mapstructure:"interval"`
	File        string        `json:"file" mapstructure:"file"`
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	setDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./touchflylogs")
	viper.SetDefault("logs.maxSizeMB", 32)
	viper.SetDefault("logs.maxBackups", 3)
	viper.SetDefault("logs.maxAgeDays", 14)

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("guidance.defaultAltitude", 20.0)
	viper.SetDefault("guidance.poiAltitude", 0.0)
	viper.SetDefault("guidance.defaultSpeed", 5.0)
	viper.SetDefault("guidance.verticalSpeed", 2.0)
	viper.SetDefault("guidance.yawRotationSpeed", 45.0)
	viper.SetDefault("guidance.mailboxSize", 1024)

	viper.SetDefault("camera.horizontalFov", 69.0)
	viper.SetDefault("camera.aspectRatio", 16.0/9.0)
	viper.SetDefault("camera.maxRange", 2000.0)

	viper.SetDefault("journal.type", "memory")
	viper.SetDefault("journal.capacity", 256)
	viper.SetDefault("journal.sqlite.path", "")
	viper.SetDefault("journal.sqlite.dumpPath", "./touchfly_journal.db")
	viper.SetDefault("journal.sqlite.dumpInterval", "3m")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "touchfly")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "touchfly")
	viper.SetDefault("influx.bucket", "flight")
	viper.SetDefault("influx.backupDir", "./touchflylogs")

	viper.SetDefault("monitor.interval", "1s")
	viper.SetDefault("monitor.statusFile", "")

	viper.SetDefault("stream.enabled", false)
	viper.SetDefault("stream.url", "ws://localhost:5000/api/v1/stream")
	viper.SetDefault("stream.secret", "")
	viper.SetDefault("stream.vehicle", "touchfly")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "touchfly")
	viper.SetDefault("otel.interval", "30s")
	viper.SetDefault("otel.file", "")
}

// GetLogConfig returns the logging settings.
func GetLogConfig() LogConfig {
	return LogConfig{
		Level:          viper.GetString("logLevel"),
		Dir:            viper.GetString("logsDir"),
		MaxSizeMB:      viper.GetInt("logs.maxSizeMB"),
		MaxBackups:     viper.GetInt("logs.maxBackups"),
		MaxAgeDays:     viper.GetInt("logs.maxAgeDays"),
		GraylogEnabled: viper.GetBool("graylog.enabled"),
		GraylogAddress: viper.GetString("graylog.address"),
	}
}

// GetGuidanceConfig returns the guidance settings.
func GetGuidanceConfig() GuidanceConfig {
	return GuidanceConfig{
		DefaultAltitude:  viper.GetFloat64("guidance.defaultAltitude"),
		POIAltitude:      viper.GetFloat64("guidance.poiAltitude"),
		DefaultSpeed:     viper.GetFloat64("guidance.defaultSpeed"),
		VerticalSpeed:    viper.GetFloat64("guidance.verticalSpeed"),
		YawRotationSpeed: viper.GetFloat64("guidance.yawRotationSpeed"),
		MailboxSize:      viper.GetInt("guidance.mailboxSize"),
	}
}

// GetCameraConfig returns the projector settings.
func GetCameraConfig() CameraConfig {
	return CameraConfig{
		HorizontalFOV: viper.GetFloat64("camera.horizontalFov"),
		AspectRatio:   viper.GetFloat64("camera.aspectRatio"),
		MaxRange:      viper.GetFloat64("camera.maxRange"),
	}
}

// GetJournalConfig returns the journal settings. Postgres connection
// details come from the shared db.* keys.
func GetJournalConfig() JournalConfig {
	return JournalConfig{
		Type:     viper.GetString("journal.type"),
		Capacity: viper.GetInt("journal.capacity"),
		SQLite: SQLiteConfig{
			Path:         viper.GetString("journal.sqlite.path"),
			DumpPath:     viper.GetString("journal.sqlite.dumpPath"),
			DumpInterval: viper.GetDuration("journal.sqlite.dumpInterval"),
		},
		Postgres: PostgresConfig{
			Host:     viper.GetString("db.host"),
			Port:     viper.GetString("db.port"),
			Username: viper.GetString("db.username"),
			Password: viper.GetString("db.password"),
			Database: viper.GetString("db.database"),
		},
	}
}

// GetInfluxConfig returns the metrics sink settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:   viper.GetBool("influx.enabled"),
		Host:      viper.GetString("influx.host"),
		Port:      viper.GetString("influx.port"),
		Protocol:  viper.GetString("influx.protocol"),
		Token:     viper.GetString("influx.token"),
		Org:       viper.GetString("influx.org"),
		Bucket:    viper.GetString("influx.bucket"),
		BackupDir: viper.GetString("influx.backupDir"),
	}
}

// GetMonitorConfig returns the status sampler settings.
func GetMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Interval:   viper.GetDuration("monitor.interval"),
		StatusFile: viper.GetString("monitor.statusFile"),
	}
}

// GetStreamConfig returns the WebSocket stream settings.
func GetStreamConfig() StreamConfig {
	return StreamConfig{
		Enabled: viper.GetBool("stream.enabled"),
		URL:     viper.GetString("stream.url"),
		Secret:  viper.GetString("stream.secret"),
		Vehicle: viper.GetString("stream.vehicle"),
	}
}

// GetOTelConfig returns the metric export settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:     viper.GetBool("otel.enabled"),
		ServiceName: viper.GetString("otel.serviceName"),
		Interval:    viper.GetDuration("otel.interval"),
		File:        viper.GetString("otel.file"),
	}
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}
