package domain

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

const (
	KiB int64 = 1024
	MiB       = 1024 * KiB
	GiB       = 1024 * MiB
)

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Download     DownloadConfig     `mapstructure:"download"`
	Progress     ProgressConfig     `mapstructure:"progress"`
	Swarm        SwarmConfig        `mapstructure:"swarm"`
	Extractor    ExtractorConfig    `mapstructure:"extractor"`
	Classifier   ClassifierConfig   `mapstructure:"classifier"`
	Registry     RegistryConfig     `mapstructure:"registry"`
	Telegram     TelegramConfig     `mapstructure:"telegram"`
	Notification NotificationConfig `mapstructure:"notification"`
	Journal      JournalConfig      `mapstructure:"journal"`
	Janitor      JanitorConfig      `mapstructure:"janitor"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DownloadConfig contains direct-fetch configuration
type DownloadConfig struct {
	Dir            string        `mapstructure:"dir"`
	MaxFileSize    int64         `mapstructure:"max_file_size"` // bytes
	ChunkSize      int           `mapstructure:"chunk_size"`    // bytes per disk write
	SpeedLimit     int64         `mapstructure:"speed_limit"`   // bytes/s, 0 = unlimited
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"` // idle time allowed between chunks
	UserAgent      string        `mapstructure:"user_agent"`
}

// ProgressConfig controls progress emission throttling
type ProgressConfig struct {
	MinInterval time.Duration `mapstructure:"min_interval"`
	PctStep     float64       `mapstructure:"pct_step"`
}

// SwarmConfig contains peer-to-peer configuration
type SwarmConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	TorrentDir      string        `mapstructure:"torrent_dir"`
	MetadataTimeout time.Duration `mapstructure:"metadata_timeout"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	EmitInterval    time.Duration `mapstructure:"emit_interval"`
	ProgressStep    float64       `mapstructure:"progress_step"`
	UploadLimit     int64         `mapstructure:"upload_limit"` // bytes/s
	ListenPort      int           `mapstructure:"listen_port"`
}

// ExtractorConfig contains media extractor configuration
type ExtractorConfig struct {
	Workers     int    `mapstructure:"workers"`
	Format      string `mapstructure:"format"`
	MergeFormat string `mapstructure:"merge_format"`
	AutoInstall bool   `mapstructure:"auto_install"`
}

// ClassifierConfig contains locator classification configuration
type ClassifierConfig struct {
	MediaDomains []string `mapstructure:"media_domains"`
}

// RegistryConfig contains task registry configuration
type RegistryConfig struct {
	Cooldown time.Duration `mapstructure:"cooldown"` // 0 disables
}

// TelegramConfig contains Telegram Bot API configuration
type TelegramConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token"`
}

// NotificationConfig contains notification-related configuration
type NotificationConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Method  string `mapstructure:"method"`  // log, telegram
	ChatID  int64  `mapstructure:"chat_id"` // log channel for the telegram method
}

// JournalConfig contains acquisition journal configuration
type JournalConfig struct {
	DatabasePath string `mapstructure:"database_path"`
}

// JanitorConfig controls the stale working-file sweep
type JanitorConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Schedule string        `mapstructure:"schedule"`
	MaxAge   time.Duration `mapstructure:"max_age"`
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
	LogsDir    string `mapstructure:"logs_dir"`    // category log files, empty disables
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	downloads := filepath.Join(xdg.UserDirs.Download, "url-relay")
	data := filepath.Join(xdg.DataHome, "url-relay")

	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
		Download: DownloadConfig{
			Dir:            downloads,
			MaxFileSize:    4 * GiB,
			ChunkSize:      int(4 * MiB),
			SpeedLimit:     0,
			ConnectTimeout: 30 * time.Second,
			ReadTimeout:    30 * time.Second,
			UserAgent:      "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
		},
		Progress: ProgressConfig{
			MinInterval: 2 * time.Second,
			PctStep:     1,
		},
		Swarm: SwarmConfig{
			Enabled:         true,
			TorrentDir:      filepath.Join(downloads, "torrents"),
			MetadataTimeout: 60 * time.Second,
			PollInterval:    time.Second,
			EmitInterval:    3 * time.Second,
			ProgressStep:    1,
			UploadLimit:     100 * KiB,
			ListenPort:      42069,
		},
		Extractor: ExtractorConfig{
			Workers:     2,
			Format:      "bestvideo+bestaudio/best",
			MergeFormat: "mp4",
			AutoInstall: false,
		},
		Classifier: ClassifierConfig{
			MediaDomains: DefaultMediaDomains(),
		},
		Registry: RegistryConfig{
			Cooldown: 159 * time.Second,
		},
		Telegram: TelegramConfig{
			Enabled: false,
		},
		Notification: NotificationConfig{
			Enabled: true,
			Method:  "log",
		},
		Journal: JournalConfig{
			DatabasePath: filepath.Join(data, "journal.db"),
		},
		Janitor: JanitorConfig{
			Enabled:  true,
			Schedule: "@every 30m",
			MaxAge:   6 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stdout",
			LogsDir:    filepath.Join(data, "logs"),
		},
	}
}
