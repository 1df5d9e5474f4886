package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port int `yaml:"port"`
		// Requests per second allowed on the booking endpoint; bursts of
		// the same size are absorbed.
		BookingRateLimit float64 `yaml:"booking_rate_limit"`
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Booking struct {
		HorizonDays     int `yaml:"horizon_days"`
		SlotStepMinutes int `yaml:"slot_step_minutes"`
		LockTTLSeconds  int `yaml:"lock_ttl_seconds"`
	} `yaml:"booking"`

	PractitionersConfigPath string `yaml:"practitioners_config_path"`
}

// Load reads the YAML config at path. A .env file, when present, is loaded
// first so that ${ENV_VAR} placeholders in the YAML resolve against it.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/consultorio.db"
	}
	if cfg.PractitionersConfigPath == "" {
		cfg.PractitionersConfigPath = "configs/practitioners.yaml"
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// HorizonDays returns the availability scan horizon with its default.
func (c *Config) HorizonDays() int {
	if c.Booking.HorizonDays <= 0 {
		return 30
	}
	return c.Booking.HorizonDays
}

// SlotStep returns the slot granularity in minutes with its default.
func (c *Config) SlotStep() int {
	if c.Booking.SlotStepMinutes <= 0 {
		return 30
	}
	return c.Booking.SlotStepMinutes
}

// LockTTL bounds how long an admission lock may be held.
func (c *Config) LockTTL() time.Duration {
	if c.Booking.LockTTLSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Booking.LockTTLSeconds) * time.Second
}
