package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	AIGC     AIGCConfig     `mapstructure:"aigc"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
}

// StorageConfig holds artifact storage configuration
type StorageConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// AIGCConfig holds external rewrite service configuration
type AIGCConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	SubmitTimeout   time.Duration `mapstructure:"submit_timeout"`
	StatusTimeout   time.Duration `mapstructure:"status_timeout"`
	DownloadTimeout time.Duration `mapstructure:"download_timeout"`
}

// PipelineConfig holds document processing pipeline configuration
type PipelineConfig struct {
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	MaxPollAttempts int           `mapstructure:"max_poll_attempts"`
}

// UploadConfig holds upload validation limits
type UploadConfig struct {
	MaxFileSize int64 `mapstructure:"max_file_size"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	bindEnvVars()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	// Database defaults
	viper.SetDefault("database.path", "data/writepro.db")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	viper.SetDefault("database.migrations_dir", "migrations")

	// Storage defaults
	viper.SetDefault("storage.base_dir", "data/media")

	// AIGC service defaults
	viper.SetDefault("aigc.submit_timeout", 30*time.Second)
	viper.SetDefault("aigc.status_timeout", 10*time.Second)
	viper.SetDefault("aigc.download_timeout", 30*time.Second)

	// Pipeline defaults: 60 attempts x 10s gives the ten minute budget
	viper.SetDefault("pipeline.poll_interval", 10*time.Second)
	viper.SetDefault("pipeline.max_poll_attempts", 60)

	// Upload defaults
	viper.SetDefault("upload.max_file_size", int64(50*1024*1024))

	// Logger defaults
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.output_path", "stdout")
	viper.SetDefault("logger.format", "json")
}

func bindEnvVars() {
	viper.BindEnv("aigc.base_url", "AIGC_SERVICE_URL")
	viper.BindEnv("database.path", "WRITEPRO_DB_PATH")
	viper.BindEnv("storage.base_dir", "WRITEPRO_MEDIA_DIR")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.AIGC.BaseURL == "" {
		return fmt.Errorf("aigc.base_url is required")
	}
	if c.Pipeline.PollInterval <= 0 {
		return fmt.Errorf("pipeline.poll_interval must be positive")
	}
	if c.Pipeline.MaxPollAttempts <= 0 {
		return fmt.Errorf("pipeline.max_poll_attempts must be positive")
	}
	if c.Upload.MaxFileSize <= 0 {
		return fmt.Errorf("upload.max_file_size must be positive")
	}
	return nil
}
