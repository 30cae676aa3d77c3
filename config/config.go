package config

import (
	"fmt"
	"log"
	"strings"
	"time"
	_ "time/tzdata" // slim containers ship without zoneinfo

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Catalog sources understood by CatalogSource.
const (
	CatalogSourceEmbedded = "embedded"
	CatalogSourceFile     = "file"
	CatalogSourceR2       = "r2"
)

type Config struct {
	HTTPAddr       string   `env:"HTTP_ADDR" envDefault:":5200"`
	DatabaseURL    string   `env:"DATABASE_URL,required,notEmpty"`
	GatewayToken   string   `env:"GATEWAY_TOKEN,required,notEmpty"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`

	// DefaultTimeZone is used for users that never set their own zone and
	// for the weekly/monthly reset boundaries.
	DefaultTimeZone string `env:"DEFAULT_TIMEZONE" envDefault:"Asia/Kolkata"`

	CatalogSource          string        `env:"CATALOG_SOURCE" envDefault:"embedded"`
	CatalogPath            string        `env:"CATALOG_PATH" envDefault:"./catalog.yaml"`
	CatalogKey             string        `env:"CATALOG_KEY" envDefault:"catalog/catalog.yaml"`
	CatalogRefreshInterval time.Duration `env:"CATALOG_REFRESH_INTERVAL" envDefault:"5m"`

	RankRefreshInterval time.Duration `env:"RANK_REFRESH_INTERVAL" envDefault:"15m"`

	// Optional: lets browsers open the event stream with a query token,
	// validated against the auth service, instead of gateway headers.
	AuthServiceURL   string `env:"AUTH_SERVICE_URL"`
	AuthServiceToken string `env:"AUTH_SERVICE_TOKEN"`

	R2 R2Config `envPrefix:"R2_"`

	location *time.Location
}

type R2Config struct {
	AccountID       string `env:"ACCOUNT_ID"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	AccessKeySecret string `env:"ACCESS_KEY_SECRET"`
	Bucket          string `env:"BUCKET_NAME"`
	Endpoint        string `env:"ENDPOINT"`
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}
	return Parse()
}

// Parse builds a Config from the current environment without touching .env.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.CatalogSource {
	case CatalogSourceEmbedded, CatalogSourceFile, CatalogSourceR2:
	default:
		return fmt.Errorf("invalid catalog source %q", c.CatalogSource)
	}
	if c.CatalogSource == CatalogSourceR2 && c.R2.Bucket == "" {
		return fmt.Errorf("catalog source r2 requires R2_BUCKET_NAME")
	}
	if c.CatalogRefreshInterval <= 0 {
		c.CatalogRefreshInterval = 5 * time.Minute
	}
	if c.RankRefreshInterval <= 0 {
		c.RankRefreshInterval = 15 * time.Minute
	}

	for i, origin := range c.AllowedOrigins {
		c.AllowedOrigins[i] = strings.TrimSpace(origin)
	}

	loc, err := time.LoadLocation(c.DefaultTimeZone)
	if err != nil {
		return fmt.Errorf("invalid default timezone %q: %w", c.DefaultTimeZone, err)
	}
	c.location = loc
	return nil
}

// Location is the resolved DefaultTimeZone. It falls back to UTC before
// Validate has run.
func (c Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// R2Endpoint returns the S3-compatible endpoint for the configured account.
func (c R2Config) R2Endpoint() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	return fmt.Sprintf("https://%s.r2.cloudflarestorage.com", c.AccountID)
}

// Configured reports whether an R2 bucket is available for catalog storage.
func (c R2Config) Configured() bool {
	return c.Bucket != ""
}
