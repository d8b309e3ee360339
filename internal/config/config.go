// Package config loads runtime settings from .env, an optional YAML file and
// environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Simplici0/fieldquote/internal/complexity"
)

const envPrefix = "FIELDQUOTE"

// Config holds application configuration.
type Config struct {
	DBPath string `mapstructure:"db_path"`
	Port   string `mapstructure:"port"`
	AppEnv string `mapstructure:"app_env"`

	// MultiplierStrategy must name one of the complexity strategies; there is
	// no default.
	MultiplierStrategy string  `mapstructure:"multiplier_strategy"`
	MultiplierFloor    float64 `mapstructure:"multiplier_floor"`

	BurdenMultiplier    float64 `mapstructure:"burden_multiplier"`
	BufferFraction      float64 `mapstructure:"buffer_fraction"`
	TransportRateFactor float64 `mapstructure:"transport_rate_factor"`
	HoursPerDay         float64 `mapstructure:"hours_per_day"`

	SwitchMaxAttempts int `mapstructure:"switch_max_attempts"`

	// Feedback export of performance records.
	FeedbackSchedule  string `mapstructure:"feedback_schedule"`
	FeedbackBatchSize int    `mapstructure:"feedback_batch_size"`
	MongoDBURI        string `mapstructure:"mongodb_uri"`
	MongoDBName       string `mapstructure:"mongodb_db"`

	SeedDemo bool `mapstructure:"seed_demo"`
}

var defaults = map[string]any{
	"db_path":               "./dev.db",
	"port":                  "8080",
	"app_env":               "dev",
	"multiplier_strategy":   "",
	"multiplier_floor":      complexity.DefaultFloor,
	"burden_multiplier":     1.7,
	"buffer_fraction":       0.10,
	"transport_rate_factor": 1.0,
	"hours_per_day":         8.0,
	"switch_max_attempts":   3,
	"feedback_schedule":     "0 2 * * *",
	"feedback_batch_size":   100,
	"mongodb_uri":           "",
	"mongodb_db":            "fieldquote",
	"seed_demo":             false,
}

// Plain environment names accepted besides the FIELDQUOTE_ prefixed ones.
var plainEnv = map[string]string{
	"db_path": "DB_PATH",
	"port":    "PORT",
	"app_env": "APP_ENV",
}

// Load reads configuration. configFile is optional; a named file that cannot
// be read is an error.
func Load(configFile string) (*Config, error) {
	// Missing .env files are fine when configuration comes from the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
		names := []string{envPrefix + "_" + strings.ToUpper(key)}
		if plain, ok := plainEnv[key]; ok {
			names = append(names, plain)
		}
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.MultiplierStrategy = strings.ToLower(strings.TrimSpace(cfg.MultiplierStrategy))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required (env: DB_PATH)")
	}
	switch c.MultiplierStrategy {
	case complexity.StrategyAdditive, complexity.StrategyCompounding:
	case "":
		return fmt.Errorf("multiplier_strategy is required: choose %q or %q (env: %s_MULTIPLIER_STRATEGY)",
			complexity.StrategyAdditive, complexity.StrategyCompounding, envPrefix)
	default:
		return fmt.Errorf("unknown multiplier_strategy %q", c.MultiplierStrategy)
	}
	if c.MultiplierFloor <= 0 {
		return fmt.Errorf("multiplier_floor must be greater than 0, got %v", c.MultiplierFloor)
	}
	if c.BurdenMultiplier <= 0 {
		return fmt.Errorf("burden_multiplier must be greater than 0, got %v", c.BurdenMultiplier)
	}
	if c.BufferFraction < 0 || c.BufferFraction >= 1 {
		return fmt.Errorf("buffer_fraction must be in [0, 1), got %v", c.BufferFraction)
	}
	if c.TransportRateFactor < 0 {
		return fmt.Errorf("transport_rate_factor must be greater than or equal to 0, got %v", c.TransportRateFactor)
	}
	if c.HoursPerDay <= 0 {
		return fmt.Errorf("hours_per_day must be greater than 0, got %v", c.HoursPerDay)
	}
	if c.SwitchMaxAttempts < 1 {
		return fmt.Errorf("switch_max_attempts must be at least 1, got %d", c.SwitchMaxAttempts)
	}
	if c.FeedbackBatchSize < 1 {
		return fmt.Errorf("feedback_batch_size must be at least 1, got %d", c.FeedbackBatchSize)
	}
	return nil
}

// IsDev reports whether the app runs in development mode.
func (c *Config) IsDev() bool {
	env := strings.ToLower(c.AppEnv)
	return env == "" || env == "dev" || env == "development" || env == "local"
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}
