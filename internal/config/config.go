package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

type Config struct {
	Port                string        `mapstructure:"PORT"`
	Env                 string        `mapstructure:"ENV"`
	LogLevel            string        `mapstructure:"LOG_LEVEL"`
	PackageURL          string        `mapstructure:"PACKAGE_URL"`
	PackageFetchTimeout time.Duration `mapstructure:"PACKAGE_FETCH_TIMEOUT"`
	ResourceDir         string        `mapstructure:"RESOURCE_DIR"`
	MaxErrorDetails     int           `mapstructure:"MAX_ERROR_DETAILS"`
	MaxEntrySize        int64         `mapstructure:"MAX_ENTRY_SIZE"`
	RequestTimeout      time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit           string        `mapstructure:"BODY_LIMIT"`
	CORSOrigins         []string      `mapstructure:"CORS_ORIGINS"`
}

var keys = []string{
	"PORT",
	"ENV",
	"LOG_LEVEL",
	"PACKAGE_URL",
	"PACKAGE_FETCH_TIMEOUT",
	"RESOURCE_DIR",
	"MAX_ERROR_DETAILS",
	"MAX_ENTRY_SIZE",
	"REQUEST_TIMEOUT",
	"BODY_LIMIT",
	"CORS_ORIGINS",
}

// Load reads configuration from the environment and an optional .env file
// in the working directory. Environment variables win over the file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("PACKAGE_URL", "")
	v.SetDefault("PACKAGE_FETCH_TIMEOUT", "60s")
	v.SetDefault("RESOURCE_DIR", "")
	v.SetDefault("MAX_ERROR_DETAILS", 5)
	v.SetDefault("MAX_ENTRY_SIZE", 32<<20)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("BODY_LIMIT", "2M")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// A missing .env is fine.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(strings.Join(cfg.CORSOrigins, ","))

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Level returns the zerolog level for LOG_LEVEL, info when unset.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Validate rejects limits that would disable ingestion safeguards and
// malformed sources.
func (c *Config) Validate() error {
	if port, err := strconv.Atoi(c.Port); err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("PORT must be a number between 1 and 65535, got %q", c.Port)
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return fmt.Errorf("LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	if c.MaxErrorDetails <= 0 {
		return fmt.Errorf("MAX_ERROR_DETAILS must be positive, got %d", c.MaxErrorDetails)
	}
	if c.MaxEntrySize <= 0 {
		return fmt.Errorf("MAX_ENTRY_SIZE must be positive, got %d", c.MaxEntrySize)
	}
	if c.PackageFetchTimeout <= 0 {
		return fmt.Errorf("PACKAGE_FETCH_TIMEOUT must be positive, got %s", c.PackageFetchTimeout)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must not be negative, got %s", c.RequestTimeout)
	}
	if c.PackageURL != "" {
		u, err := url.Parse(c.PackageURL)
		if err != nil {
			return fmt.Errorf("PACKAGE_URL: %w", err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("PACKAGE_URL must be an absolute http(s) URL, got %q", c.PackageURL)
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
