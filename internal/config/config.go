package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	// DevJWTSecret is only accepted outside production.
	DevJWTSecret = "sigecof-dev-secret-change-me"
)

var ErrInsecureSecret = errors.New("jwt secret must be set to a non-default value in production")

// Config holds the application's configuration.
type Config struct {
	Environment string `yaml:"environment"`

	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Database struct {
		Driver string `yaml:"driver"` // "postgres" or "sqlite"
		URL    string `yaml:"url"`
	} `yaml:"database"`

	Session struct {
		Store       string   `yaml:"store"` // "sql", "redis", "bolt" or "memory"
		TTL         Duration `yaml:"ttl"`
		RememberTTL Duration `yaml:"remember_ttl"`
		RenewWindow Duration `yaml:"renew_window"`
		Redis       struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
		Bolt struct {
			Path string `yaml:"path"`
		} `yaml:"bolt"`
	} `yaml:"session"`

	JWT struct {
		Secret    string   `yaml:"secret"`
		ExpiresIn Duration `yaml:"expires_in"`
		Issuer    string   `yaml:"issuer"`
	} `yaml:"jwt"`

	Cookie struct {
		Domain       string   `yaml:"domain"`
		SameSite     string   `yaml:"same_site"`
		Secure       *bool    `yaml:"secure"`
		SessionNames []string `yaml:"session_names"`
		CSRFName     string   `yaml:"csrf_name"`
	} `yaml:"cookie"`
}

// IsProduction reports whether the production cookie and secret policy applies.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, EnvProduction)
}

// LoadConfig reads configuration from the specified YAML file, applies
// environment overrides and fills defaults. A missing file is not an error
// so the service can be configured from the environment alone.
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}

	if configPath != "" {
		file, err := os.Open(configPath)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to open config file: %w", err)
		default:
			defer file.Close()
			decoder := yaml.NewDecoder(file)
			if err := decoder.Decode(config); err != nil {
				return nil, fmt.Errorf("failed to decode config file: %w", err)
			}
		}
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	config.setDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyEnv() error {
	if v := firstEnv("APP_ENV", "NODE_ENV"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("SESSION_STORE"); v != "" {
		c.Session.Store = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Session.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Session.Redis.Password = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.JWT.Secret = v
	}
	if v := os.Getenv("JWT_EXPIRES_IN"); v != "" {
		d, err := ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid JWT_EXPIRES_IN: %w", err)
		}
		c.JWT.ExpiresIn = Duration(d)
	}
	if v := os.Getenv("COOKIE_DOMAIN"); v != "" {
		c.Cookie.Domain = v
	}
	if v := os.Getenv("COOKIE_SAMESITE"); v != "" {
		c.Cookie.SameSite = v
	}
	if v := os.Getenv("COOKIE_SECURE"); v != "" {
		secure, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid COOKIE_SECURE: %w", err)
		}
		c.Cookie.Secure = &secure
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Environment == "" {
		c.Environment = EnvDevelopment
	}
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Database.Driver == "sqlite" && c.Database.URL == "" {
		c.Database.URL = "./data/sigecof.db"
	}
	if c.Session.Store == "" {
		c.Session.Store = "sql"
	}
	if c.Session.TTL == 0 {
		c.Session.TTL = Duration(time.Hour)
	}
	if c.Session.RememberTTL == 0 {
		c.Session.RememberTTL = Duration(7 * 24 * time.Hour)
	}
	if c.Session.RenewWindow == 0 {
		c.Session.RenewWindow = Duration(30 * time.Minute)
	}
	if c.Session.Redis.Prefix == "" {
		c.Session.Redis.Prefix = "session:"
	}
	if c.Session.Bolt.Path == "" {
		c.Session.Bolt.Path = "./data/sessions.db"
	}
	if c.JWT.Secret == "" && !c.IsProduction() {
		c.JWT.Secret = DevJWTSecret
	}
	if c.JWT.ExpiresIn == 0 {
		c.JWT.ExpiresIn = Duration(24 * time.Hour)
	}
	if c.JWT.Issuer == "" {
		c.JWT.Issuer = "sigecof"
	}
	if len(c.Cookie.SessionNames) == 0 {
		c.Cookie.SessionNames = []string{"sid", "sigecof_session"}
	}
	if c.Cookie.CSRFName == "" {
		c.Cookie.CSRFName = "sigecof_csrf"
	}
}

// Validate rejects configurations that are unsafe or unusable.
func (c *Config) Validate() error {
	if c.IsProduction() && (c.JWT.Secret == "" || c.JWT.Secret == DevJWTSecret) {
		return ErrInsecureSecret
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.Session.Store {
	case "sql", "redis", "bolt", "memory":
	default:
		return fmt.Errorf("unsupported session store %q", c.Session.Store)
	}
	return nil
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
