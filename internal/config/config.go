// Package config loads runtime settings from defaults, an optional .env file
// and the process environment, in increasing order of precedence.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// Config is the runtime configuration of the server and its CLI commands.
type Config struct {
	Port   int
	DBPath string

	SessionSecret string
	SessionTTL    time.Duration
	SessionStore  string
	CookieSecure  bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	BcryptCost     int
	MetricsEnabled bool

	LogLevel  string
	LogFormat string
}

// Default returns the settings used when neither .env nor the environment
// sets a value.
func Default() Config {
	return Config{
		Port:           8080,
		DBPath:         "data/catalog.db",
		SessionTTL:     24 * time.Hour,
		SessionStore:   StoreSQLite,
		RedisAddr:      "localhost:6379",
		BcryptCost:     12,
		MetricsEnabled: true,
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// Load reads envFile, if it exists, then the process environment. An empty
// envFile skips the file. The result is not validated.
func Load(envFile string) (Config, error) {
	fileVars := map[string]string{}
	if envFile != "" {
		vars, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			fileVars = vars
		case errors.Is(err, os.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("config: reading %s: %w", envFile, err)
		}
	}

	return fromLookup(func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			return v, true
		}
		v, ok := fileVars[key]
		return v, ok
	})
}

func fromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	p := parser{lookup: lookup}

	p.setInt("PORT", &cfg.Port)
	p.setString("DB_PATH", &cfg.DBPath)
	p.setString("SESSION_SECRET", &cfg.SessionSecret)
	p.setDuration("SESSION_TTL", &cfg.SessionTTL)
	p.setString("SESSION_STORE", &cfg.SessionStore)
	p.setBool("COOKIE_SECURE", &cfg.CookieSecure)
	p.setString("REDIS_ADDR", &cfg.RedisAddr)
	p.setString("REDIS_PASSWORD", &cfg.RedisPassword)
	p.setInt("REDIS_DB", &cfg.RedisDB)
	p.setInt("BCRYPT_COST", &cfg.BcryptCost)
	p.setBool("METRICS_ENABLED", &cfg.MetricsEnabled)
	p.setString("LOG_LEVEL", &cfg.LogLevel)
	p.setString("LOG_FORMAT", &cfg.LogFormat)

	if len(p.errs) > 0 {
		return Config{}, errors.Join(p.errs...)
	}

	cfg.SessionStore = strings.ToLower(cfg.SessionStore)
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port))
	}
	if strings.TrimSpace(c.DBPath) == "" {
		errs = append(errs, errors.New("DB_PATH must not be empty"))
	}
	if c.SessionSecret != "" && len(c.SessionSecret) < 16 {
		errs = append(errs, errors.New("SESSION_SECRET must be at least 16 characters"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL))
	}
	switch c.SessionStore {
	case StoreSQLite:
	case StoreRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required when SESSION_STORE=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("SESSION_STORE must be %q or %q, got %q", StoreSQLite, StoreRedis, c.SessionStore))
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", c.BcryptCost))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}

	return errors.Join(errs...)
}

func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL %q is not a valid level", c.LogLevel)
	}
	return level, nil
}

// RandomSecret returns a 64-character hex secret for runs without
// SESSION_SECRET. Sessions signed with it do not survive a restart.
func RandomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("config: generating session secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

type parser struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (p *parser) get(key string) (string, bool) {
	v, ok := p.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (p *parser) setString(key string, dst *string) {
	if v, ok := p.get(key); ok {
		*dst = v
	}
}

func (p *parser) setInt(key string, dst *int) {
	v, ok := p.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not an integer", key, v))
		return
	}
	*dst = n
}

func (p *parser) setBool(key string, dst *bool) {
	v, ok := p.get(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not a boolean", key, v))
		return
	}
	*dst = b
}

func (p *parser) setDuration(key string, dst *time.Duration) {
	v, ok := p.get(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not a duration", key, v))
		return
	}
	*dst = d
}
