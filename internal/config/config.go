// Package config provides Viper-based hierarchical configuration management.
package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Log struct {
		Level  string `mapstructure:"level" yaml:"level"`
		Format string `mapstructure:"format" yaml:"format"`
	} `mapstructure:"log" yaml:"log"`

	AI struct {
		Enabled        bool   `mapstructure:"enabled" yaml:"enabled"`
		Model          string `mapstructure:"model" yaml:"model"`
		EmbeddingModel string `mapstructure:"embedding_model" yaml:"embedding_model"`
		TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
		APIKey         string `mapstructure:"api_key" yaml:"-"` // Never serialize API key
	} `mapstructure:"ai" yaml:"ai"`

	Parsing struct {
		// DefaultYear backs yearless dates when a statement carries no
		// Opening/Closing Date header. Zero means the current year.
		DefaultYear int `mapstructure:"default_year" yaml:"default_year"`
	} `mapstructure:"parsing" yaml:"parsing"`

	Classification struct {
		ConfidenceThreshold float64 `mapstructure:"confidence_threshold" yaml:"confidence_threshold"`
		TopK                int     `mapstructure:"top_k" yaml:"top_k"`
	} `mapstructure:"classification" yaml:"classification"`

	Feedback struct {
		URL          string        `mapstructure:"url" yaml:"url"`
		PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
		Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
		MaxPending   int           `mapstructure:"max_pending" yaml:"max_pending"`
	} `mapstructure:"feedback" yaml:"feedback"`

	Retry struct {
		MaxAttempts  int           `mapstructure:"max_attempts" yaml:"max_attempts"`
		InitialDelay time.Duration `mapstructure:"initial_delay" yaml:"initial_delay"`
		MaxDelay     time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
	} `mapstructure:"retry" yaml:"retry"`

	Storage struct {
		Path string `mapstructure:"path" yaml:"path"`
		// MappingsFile holds learned merchant-to-category mappings.
		MappingsFile string `mapstructure:"mappings_file" yaml:"mappings_file"`
	} `mapstructure:"storage" yaml:"storage"`

	Pipeline struct {
		Workers int `mapstructure:"workers" yaml:"workers"`
	} `mapstructure:"pipeline" yaml:"pipeline"`
}

// InitializeConfig initializes Viper configuration with hierarchical loading:
// defaults, then an optional config file, then LEDGER_-prefixed environment
// variables.
func InitializeConfig() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME/.statement-ledger")
	v.AddConfigPath(".statement-ledger")
	v.AddConfigPath(".")

	v.SetEnvPrefix("LEDGER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Log the error but don't fail - continue with defaults and env vars
			fmt.Printf("Warning: error reading config file %s: %v\n", v.ConfigFileUsed(), err)
		}
	}

	// The API key always comes from the environment, unprefixed.
	if err := v.BindEnv("ai.api_key", "GEMINI_API_KEY"); err != nil {
		fmt.Printf("Warning: failed to bind GEMINI_API_KEY environment variable: %v\n", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("ai.enabled", false)
	v.SetDefault("ai.model", "gemini-2.0-flash")
	v.SetDefault("ai.embedding_model", "text-embedding-004")
	v.SetDefault("ai.timeout_seconds", 30)

	v.SetDefault("parsing.default_year", 0)

	v.SetDefault("classification.confidence_threshold", 0.8)
	v.SetDefault("classification.top_k", 5)

	v.SetDefault("feedback.url", "")
	v.SetDefault("feedback.poll_interval", 5*time.Second)
	v.SetDefault("feedback.timeout", 5*time.Minute)
	v.SetDefault("feedback.max_pending", 1)

	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.initial_delay", 200*time.Millisecond)
	v.SetDefault("retry.max_delay", 10*time.Second)

	v.SetDefault("storage.path", "ledger.db")
	v.SetDefault("storage.mappings_file", "mappings.yaml")

	v.SetDefault("pipeline.workers", 4)
}

// validateConfig validates the configuration values.
func validateConfig(config *Config) error {
	if _, err := logrus.ParseLevel(config.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %s", config.Log.Level)
	}

	if config.Log.Format != "text" && config.Log.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'text' or 'json')", config.Log.Format)
	}

	if config.AI.Enabled && config.AI.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY required when AI is enabled")
	}

	if config.Classification.ConfidenceThreshold < 0.0 || config.Classification.ConfidenceThreshold > 1.0 {
		return fmt.Errorf("classification.confidence_threshold must be between 0.0 and 1.0, got: %f",
			config.Classification.ConfidenceThreshold)
	}

	if config.Classification.TopK < 1 {
		return fmt.Errorf("classification.top_k must be at least 1, got: %d", config.Classification.TopK)
	}

	if config.Feedback.PollInterval <= 0 {
		return fmt.Errorf("feedback.poll_interval must be positive, got: %s", config.Feedback.PollInterval)
	}

	if config.Feedback.MaxPending < 1 {
		return fmt.Errorf("feedback.max_pending must be at least 1, got: %d", config.Feedback.MaxPending)
	}

	if config.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got: %d", config.Retry.MaxAttempts)
	}

	if config.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline.workers must be at least 1, got: %d", config.Pipeline.Workers)
	}

	return nil
}

// ConfigureLoggingFromConfig configures a logrus logger based on the Config.
func ConfigureLoggingFromConfig(config *Config) *logrus.Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(strings.ToLower(config.Log.Level))
	if err != nil {
		logger.Warnf("Invalid log level '%s', using 'info'", config.Log.Level)
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if strings.ToLower(config.Log.Format) == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

var (
	once sync.Once
	// Global logger instance shared by packages before dependency wiring.
	Logger = logrus.New()
)

// LoadEnv loads environment variables from a .env file if one exists.
func LoadEnv() {
	once.Do(func() {
		if _, err := os.Stat(".env"); os.IsNotExist(err) {
			Logger.Debug("No .env file found, using environment variables")
			return
		}
		if err := godotenv.Load(".env"); err != nil {
			Logger.Warnf("Error loading .env file: %v", err)
			return
		}
		Logger.Info("Loaded environment variables from .env")
	})
}

// GetEnv retrieves an environment variable with a fallback value if not set.
func GetEnv(key, fallback string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	return value
}
