package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/example/stagetrack/internal/apperr"
)

// Environment names
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// DefaultPath is the config file read when no --config flag is given.
const DefaultPath = "stagetrack.yaml"

// DefaultBaseURL is the Insightly v2.2 API root.
const DefaultBaseURL = "https://api.insight.ly/v2.2"

// Config holds everything a run needs. It is built once at startup and passed down explicitly.
type Config struct {
	Env       string        `yaml:"env" validate:"oneof=development production"`
	APIKey    string        `yaml:"api_key" validate:"required"`
	BaseURL   string        `yaml:"base_url" validate:"required,url"`
	LogFile   string        `yaml:"log_file"`                                                     // empty = console only
	LogLevel  string        `yaml:"log_level" validate:"oneof=DEBUG INFO WARN WARNING ERROR CRITICAL"` // normalized to upper case
	Timeout   time.Duration `yaml:"timeout" validate:"gt=0"`
	RateLimit float64       `yaml:"rate_limit" validate:"gt=0"` // requests per second
}

// Default returns the configuration used when neither file nor environment sets a value.
func Default() *Config {
	return &Config{
		Env:       EnvProduction,
		BaseURL:   DefaultBaseURL,
		LogLevel:  "INFO",
		Timeout:   30 * time.Second,
		RateLimit: 5,
	}
}

// Load builds the configuration from, in increasing precedence: defaults, the
// YAML file at path (a missing file is not an error), and environment variables
// (a .env file in the working directory is loaded first when present).
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	cfg.LogLevel = strings.ToUpper(strings.TrimSpace(cfg.LogLevel))
	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return apperr.Wrap(apperr.KindConfiguration, "load config", err, "failed to read config")
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return apperr.Wrap(apperr.KindConfiguration, "load config", err, "failed to parse "+path)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv("APP_ENV"); ok {
		cfg.Env = v
	}
	if v, ok := os.LookupEnv("INSIGHTLY_API_KEY"); ok {
		cfg.APIKey = strings.TrimSpace(v)
	}
	if v, ok := os.LookupEnv("INSIGHTLY_BASE_URL"); ok {
		cfg.BaseURL = strings.TrimRight(v, "/")
	}
	if v, ok := os.LookupEnv("LOG_FILE"); ok {
		cfg.LogFile = v
	}
	if v, ok := os.LookupEnv("LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := os.LookupEnv("HTTP_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return apperr.Configuration("load config", "HTTP_TIMEOUT has wrong format %q", v)
		}
		cfg.Timeout = d
	}
	if v, ok := os.LookupEnv("INSIGHTLY_RATE_LIMIT"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return apperr.Configuration("load config", "INSIGHTLY_RATE_LIMIT has wrong format %q", v)
		}
		cfg.RateLimit = f
	}
	return nil
}

// Validate checks struct tags and the API key format.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return apperr.Configuration("validate config", "invalid settings: %s", strings.Join(fields, ", "))
		}
		return apperr.Wrap(apperr.KindConfiguration, "validate config", err, "invalid settings")
	}

	if _, err := uuid.Parse(c.APIKey); err != nil {
		return apperr.Configuration("validate config", "INSIGHTLY_API_KEY has wrong format %q, please set the right value", c.APIKey)
	}
	return nil
}

// IsDevelopment reports whether human-readable console logging should be used.
func (c *Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}
