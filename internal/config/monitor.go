package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type MonitorConfig struct {
	Server  MonitorServerConfig `yaml:"server"`
	Logging LoggingConfig       `yaml:"logging"`

	// Directory holding one <name>.log per supervised process
	LogDir string `yaml:"log_dir" env:"MOVIELIB_MONITOR_LOG_DIR"`

	MetricsInterval time.Duration `yaml:"metrics_interval" env:"MOVIELIB_MONITOR_METRICS_INTERVAL"`
	DiskPath        string        `yaml:"disk_path" env:"MOVIELIB_MONITOR_DISK_PATH"`

	// Six-field cron spec (with seconds) for the process health check.
	// Empty disables it.
	HealthCheckSchedule string        `yaml:"health_check_schedule" env:"MOVIELIB_MONITOR_HEALTH_CHECK"`
	StopTimeout         time.Duration `yaml:"stop_timeout"`

	Processes []ProcessConfig `yaml:"processes"`
}

// Supervised processes inherit the monitor's environment, so the monitor
// reads its listen address from variables of its own.
type MonitorServerConfig struct {
	Host string `yaml:"host" env:"MOVIELIB_MONITOR_HOST"`
	Port int    `yaml:"port" env:"MOVIELIB_MONITOR_PORT"`
}

type ProcessConfig struct {
	Name      string   `yaml:"name"`
	Command   string   `yaml:"command"`
	Args      []string `yaml:"args"`
	Dir       string   `yaml:"dir"`
	Env       []string `yaml:"env"`
	Restart   bool     `yaml:"restart"`
	Autostart bool     `yaml:"autostart"`
}

func DefaultMonitor() *MonitorConfig {
	return &MonitorConfig{
		Server: MonitorServerConfig{
			Host: "0.0.0.0",
			Port: 4000,
		},
		Logging:             defaultLogging(),
		LogDir:              "logs",
		MetricsInterval:     time.Second,
		DiskPath:            "/",
		HealthCheckSchedule: "*/30 * * * * *",
		StopTimeout:         10 * time.Second,
	}
}

func LoadMonitor(path string) (*MonitorConfig, error) {
	cfg := DefaultMonitor()

	if err := readYAML(path, cfg); err != nil {
		return nil, err
	}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *MonitorConfig) validate() error {
	seen := make(map[string]bool, len(c.Processes))
	for i, p := range c.Processes {
		if p.Name == "" || p.Command == "" {
			return fmt.Errorf("process %d: name and command are required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("process %q defined twice", p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}
