package config

import (
	"testing"
	"time"
)

func TestParse_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/digidost")
	t.Setenv("GATEWAY_TOKEN", "secret")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test")

	cfg, err := Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.HTTPAddr != ":5200" {
		t.Errorf("expected default addr :5200, got %q", cfg.HTTPAddr)
	}
	if cfg.CatalogSource != CatalogSourceEmbedded {
		t.Errorf("expected embedded catalog source, got %q", cfg.CatalogSource)
	}
	if cfg.CatalogRefreshInterval != 5*time.Minute {
		t.Errorf("expected 5m refresh, got %s", cfg.CatalogRefreshInterval)
	}
	if cfg.Location().String() != "Asia/Kolkata" {
		t.Errorf("expected Asia/Kolkata location, got %v", cfg.Location())
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://b.test" {
		t.Errorf("origins not trimmed: %#v", cfg.AllowedOrigins)
	}
}

func TestParse_MissingDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("GATEWAY_TOKEN", "secret")

	if _, err := Parse(); err == nil {
		t.Fatal("expected error when DATABASE_URL is missing")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"embedded ok", Config{CatalogSource: "embedded", DefaultTimeZone: "UTC"}, false},
		{"unknown source", Config{CatalogSource: "s3", DefaultTimeZone: "UTC"}, true},
		{"r2 without bucket", Config{CatalogSource: "r2", DefaultTimeZone: "UTC"}, true},
		{"r2 with bucket", Config{CatalogSource: "r2", DefaultTimeZone: "UTC", R2: R2Config{Bucket: "b"}}, false},
		{"bad timezone", Config{CatalogSource: "file", DefaultTimeZone: "Mars/Olympus"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestR2Endpoint(t *testing.T) {
	c := R2Config{AccountID: "abc"}
	if got := c.R2Endpoint(); got != "https://abc.r2.cloudflarestorage.com" {
		t.Errorf("unexpected endpoint %q", got)
	}
	c.Endpoint = "http://localhost:9000"
	if got := c.R2Endpoint(); got != "http://localhost:9000" {
		t.Errorf("override not used, got %q", got)
	}
}
