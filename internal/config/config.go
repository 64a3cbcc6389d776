package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

// Env overrides never carry env-default tags: cleanenv would apply the
// default over a value already read from the YAML file.

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Library  LibraryConfig  `yaml:"library"`
	Database DatabaseConfig `yaml:"database"`
	OMDB     OMDBConfig     `yaml:"omdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Host         string        `yaml:"host" env:"MOVIELIB_SERVER_HOST"`
	Port         int           `yaml:"port" env:"MOVIELIB_SERVER_PORT"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"MOVIELIB_SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"MOVIELIB_SERVER_WRITE_TIMEOUT"`
}

type LibraryConfig struct {
	// Used until a base path is saved through the settings API
	DefaultVideoPath string `yaml:"default_video_path" env:"MOVIELIB_VIDEO_BASE_PATH"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" env:"MOVIELIB_DATABASE_PATH"`
}

type OMDBConfig struct {
	BaseURL string        `yaml:"base_url" env:"MOVIELIB_OMDB_BASE_URL"`
	APIKey  string        `yaml:"api_key" env:"MOVIELIB_OMDB_API_KEY"`
	Timeout time.Duration `yaml:"timeout" env:"MOVIELIB_OMDB_TIMEOUT"`

	// Number of lookups remembered between passes
	CacheSize int `yaml:"cache_size" env:"MOVIELIB_OMDB_CACHE_SIZE"`
}

type LoggingConfig struct {
	Level      string `yaml:"level" env:"MOVIELIB_LOG_LEVEL"`
	Pretty     bool   `yaml:"pretty" env:"MOVIELIB_LOG_PRETTY"`
	File       string `yaml:"file" env:"MOVIELIB_LOG_FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"MOVIELIB_LOG_MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups" env:"MOVIELIB_LOG_MAX_BACKUPS"`
}

func defaultLogging() LoggingConfig {
	return LoggingConfig{
		Level:      "info",
		Pretty:     true,
		MaxSizeMB:  5,
		MaxBackups: 5,
	}
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         5000,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 0,
		},
		Library: LibraryConfig{
			DefaultVideoPath: "/videos",
		},
		Database: DatabaseConfig{
			Path: "data/library.db",
		},
		OMDB: OMDBConfig{
			BaseURL:   "https://www.omdbapi.com/",
			Timeout:   10 * time.Second,
			CacheSize: 256,
		},
		Logging: defaultLogging(),
	}
}

// Load reads path over the defaults, then applies environment overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if err := readYAML(path, cfg); err != nil {
		return nil, err
	}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	return cfg, nil
}

func readYAML(path string, dst any) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := yaml.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}
