package config

import (
	"fmt"
	"os"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/gyeh/hdprod/internal/legacy"
	"github.com/gyeh/hdprod/internal/normalize"
)

// DefaultCacheTTL is how long a cached tariff list lives in Redis.
const DefaultCacheTTL = 10 * time.Minute

// Config holds all runtime configuration for an hdprod run.
type Config struct {
	DSN         string
	RedisAddr   string // empty disables the tariff cache
	LogFormat   string // "text" or "json"
	LogLevel    string
	Actor       string // recorded as created_by
	FilePath    string
	Force       bool
	KeepStaging bool
	CacheTTL    time.Duration
	Legacy      legacy.Names
}

// yamlConfig is the on-disk YAML structure.
type yamlConfig struct {
	Actor            string       `yaml:"actor"`
	CacheTTL         string       `yaml:"cache_ttl"`
	LegacyProcedures legacy.Names `yaml:"legacy_procedures"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		LogFormat: "text",
		LogLevel:  "info",
		CacheTTL:  DefaultCacheTTL,
		Legacy:    legacy.DefaultNames(),
	}
}

// LoadFromFile reads a YAML config file and merges its values into Config.
// Fields absent from the file keep their current values.
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	if yc.Actor != "" {
		c.Actor = yc.Actor
	}
	if yc.CacheTTL != "" {
		ttl, err := time.ParseDuration(yc.CacheTTL)
		if err != nil {
			return fmt.Errorf("cache_ttl: %w", err)
		}
		if ttl <= 0 {
			return fmt.Errorf("cache_ttl must be positive, got %s", ttl)
		}
		c.CacheTTL = ttl
	}
	c.Legacy = mergeNames(c.Legacy, yc.LegacyProcedures)
	return c.validateLegacyNames()
}

func mergeNames(base, override legacy.Names) legacy.Names {
	pick := func(b, o legacy.ProcedureName) legacy.ProcedureName {
		if o.Code != "" {
			b.Code = o.Code
		}
		if o.Name != "" {
			b.Name = o.Name
		}
		return b
	}
	return legacy.Names{
		Visit:        pick(base.Visit, override.Visit),
		Hemodialysis: pick(base.Hemodialysis, override.Hemodialysis),
		HDFC:         pick(base.HDFC, override.HDFC),
		Catheter:     pick(base.Catheter, override.Catheter),
	}
}

// validateLegacyNames checks that every synthetic procedure has a usable code
// and that no two slots share one.
func (c *Config) validateLegacyNames() error {
	seen := map[string]legacy.Slot{}
	for _, s := range legacy.Slots {
		n := c.Legacy.For(s)
		code := normalize.Code(n.Code)
		if code == "" {
			return fmt.Errorf("legacy_procedures.%s: code %q has no alphanumerics", s, n.Code)
		}
		if utf8.RuneCountInString(n.Name) > 100 {
			return fmt.Errorf("legacy_procedures.%s: name longer than 100 characters", s)
		}
		if other, dup := seen[code]; dup {
			return fmt.Errorf("legacy_procedures.%s: code %s already used by %s", s, code, other)
		}
		seen[code] = s
	}
	return nil
}

// Level parses LogLevel, defaulting to info.
func (c *Config) Level() (zerolog.Level, error) {
	if c.LogLevel == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel, fmt.Errorf("--log-level: %w", err)
	}
	return lvl, nil
}

// Validate checks the input file of an import run.
func (c *Config) Validate() error {
	if c.FilePath == "" {
		return fmt.Errorf("--file is required")
	}
	if _, err := os.Stat(c.FilePath); err != nil {
		return fmt.Errorf("file not accessible: %w", err)
	}
	return nil
}

// ValidateDSN checks that a database is configured.
func (c *Config) ValidateDSN() error {
	if c.DSN == "" {
		return fmt.Errorf("--dsn or HDPROD_DB_URL is required")
	}
	return nil
}

// ValidateWithDSN checks both file and DSN fields.
func (c *Config) ValidateWithDSN() error {
	if err := c.Validate(); err != nil {
		return err
	}
	return c.ValidateDSN()
}
