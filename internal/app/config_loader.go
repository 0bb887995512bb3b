package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"github.com/yourusername/url-relay-go/internal/domain"
)

// LoadConfig loads configuration from file and environment
func LoadConfig(configPath string) (*domain.Config, error) {
	// Start with default config
	config := domain.DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath(filepath.Join(xdg.ConfigHome, "url-relay"))
		v.AddConfigPath("/etc/url-relay")
	}

	// URLRELAY_DOWNLOAD_MAX_FILE_SIZE overrides download.max_file_size
	v.SetEnvPrefix("URLRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults
	}

	// Configured lists replace the defaults instead of overwriting them element by element.
	zeroLists := viper.DecoderConfigOption(func(dc *mapstructure.DecoderConfig) {
		dc.ZeroFields = true
	})
	if err := v.Unmarshal(config, zeroLists); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config = expandPaths(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// envKeys lists the keys that may be set from the environment without a config file.
var envKeys = []string{
	"server.host", "server.port",
	"download.dir", "download.max_file_size", "download.chunk_size", "download.speed_limit",
	"download.connect_timeout", "download.read_timeout", "download.user_agent",
	"progress.min_interval", "progress.pct_step",
	"swarm.enabled", "swarm.torrent_dir", "swarm.metadata_timeout", "swarm.poll_interval",
	"swarm.emit_interval", "swarm.progress_step", "swarm.upload_limit", "swarm.listen_port",
	"extractor.workers", "extractor.format", "extractor.merge_format", "extractor.auto_install",
	"registry.cooldown",
	"telegram.enabled", "telegram.token",
	"notification.enabled", "notification.method", "notification.chat_id",
	"journal.database_path",
	"janitor.enabled", "janitor.schedule", "janitor.max_age",
	"logging.level", "logging.format", "logging.output_path", "logging.logs_dir",
}

// bindEnvKeys makes AutomaticEnv visible to Unmarshal, which only sees known keys.
func bindEnvKeys(v *viper.Viper) {
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}
}

// expandPaths expands environment variables in path configurations
func expandPaths(config *domain.Config) *domain.Config {
	config.Download.Dir = expandPath(config.Download.Dir)
	config.Swarm.TorrentDir = expandPath(config.Swarm.TorrentDir)
	config.Journal.DatabasePath = expandPath(config.Journal.DatabasePath)
	config.Logging.LogsDir = expandPath(config.Logging.LogsDir)

	if config.Logging.OutputPath != "stdout" && config.Logging.OutputPath != "stderr" {
		config.Logging.OutputPath = expandPath(config.Logging.OutputPath)
	}

	return config
}

// expandPath expands environment variables and ~ in paths
func expandPath(path string) string {
	path = os.ExpandEnv(path)

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	return path
}

// validateConfig validates the configuration
func validateConfig(config *domain.Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Download.Dir == "" {
		return fmt.Errorf("download directory not configured")
	}

	if config.Download.MaxFileSize < 0 {
		return fmt.Errorf("max file size cannot be negative")
	}

	if config.Download.ChunkSize < 1 {
		return fmt.Errorf("chunk size must be at least 1 byte")
	}

	if config.Download.SpeedLimit < 0 {
		return fmt.Errorf("speed limit cannot be negative")
	}

	if config.Progress.MinInterval < 0 {
		return fmt.Errorf("progress interval cannot be negative")
	}

	if config.Progress.PctStep <= 0 {
		return fmt.Errorf("progress percentage step must be positive")
	}

	if config.Swarm.Enabled {
		if config.Swarm.TorrentDir == "" {
			return fmt.Errorf("torrent directory not configured")
		}
		if config.Swarm.MetadataTimeout <= 0 {
			return fmt.Errorf("metadata timeout must be positive")
		}
		if config.Swarm.PollInterval <= 0 {
			return fmt.Errorf("swarm poll interval must be positive")
		}
		if config.Swarm.UploadLimit < 0 {
			return fmt.Errorf("upload limit cannot be negative")
		}
	}

	if config.Extractor.Workers < 1 {
		return fmt.Errorf("extractor workers must be at least 1")
	}

	if config.Registry.Cooldown < 0 {
		return fmt.Errorf("cooldown cannot be negative")
	}

	if config.Telegram.Enabled && config.Telegram.Token == "" {
		return fmt.Errorf("telegram enabled but no token configured")
	}

	switch config.Notification.Method {
	case "log", "telegram":
	default:
		return fmt.Errorf("unknown notification method: %s", config.Notification.Method)
	}

	if config.Journal.DatabasePath == "" {
		return fmt.Errorf("journal database path not configured")
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}

	return nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *domain.Config, path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	// Keys follow the mapstructure tags so the file loads back through LoadConfig.
	var settings map[string]interface{}
	if err := mapstructure.Decode(config, &settings); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	for key, value := range settings {
		v.Set(key, value)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
