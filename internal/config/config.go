// Package config provides configuration management for s2-parcels.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds the complete application configuration loaded from environment variables.
type Config struct {
	Catalogue CatalogueConfig `envPrefix:"CATALOGUE_"`
	OData     ODataConfig     `envPrefix:"ODATA_"`
	STACAPI   STACAPIConfig   `envPrefix:"STACAPI_"`
	Auth      AuthConfig      `envPrefix:"AUTH_"`
	Download  DownloadConfig  `envPrefix:"DOWNLOAD_"`
	S3        S3Config        `envPrefix:"S3_"`
	Ledger    LedgerConfig    `envPrefix:"LEDGER_"`
	Select    SelectConfig    `envPrefix:"SELECT_"`
	Output    OutputConfig    `envPrefix:"OUTPUT_"`
	Server    ServerConfig    `envPrefix:"SERVER_"`
	Logging   LoggingConfig   `envPrefix:"LOG_"`
}

// CatalogueConfig contains catalogue selection configuration.
type CatalogueConfig struct {
	// Type specifies which catalogue to search: "odata" or "stac"
	Type string `env:"TYPE" envDefault:"odata"`
}

// ODataConfig contains CDSE OData client configuration.
type ODataConfig struct {
	BaseURL     string        `env:"BASE_URL" envDefault:"https://catalogue.dataspace.copernicus.eu/odata/v1"`
	DownloadURL string        `env:"DOWNLOAD_URL" envDefault:"https://zipper.dataspace.copernicus.eu/odata/v1"`
	Timeout     time.Duration `env:"TIMEOUT" envDefault:"60s"`
	// RateLimit is the number of requests per second, 0 disables pacing.
	RateLimit float64 `env:"RATE_LIMIT" envDefault:"2"`
	RateBurst int     `env:"RATE_BURST" envDefault:"4"`
}

// STACAPIConfig contains STAC API client configuration.
type STACAPIConfig struct {
	BaseURL    string        `env:"BASE_URL" envDefault:"https://stac.dataspace.copernicus.eu/v1"`
	Collection string        `env:"COLLECTION" envDefault:"sentinel-2-l2a"`
	Timeout    time.Duration `env:"TIMEOUT" envDefault:"60s"`
}

// AuthConfig contains the CDSE identity configuration used for downloads.
type AuthConfig struct {
	TokenURL string `env:"TOKEN_URL" envDefault:"https://identity.dataspace.copernicus.eu/auth/realms/CDSE/protocol/openid-connect/token"`
	ClientID string `env:"CLIENT_ID" envDefault:"cdse-public"`
	Username string `env:"USERNAME" envDefault:""`
	Password string `env:"PASSWORD" envDefault:""`
}

// DownloadConfig contains product download configuration.
type DownloadConfig struct {
	// Source specifies how products are fetched: "https" or "s3"
	Source      string `env:"SOURCE" envDefault:"https"`
	Database    string `env:"DATABASE" envDefault:"Sentinel_Data"`
	Concurrency int    `env:"CONCURRENCY" envDefault:"2"`
	KeepArchive bool   `env:"KEEP_ARCHIVE" envDefault:"false"`
}

// S3Config contains object storage configuration for the s3 download source.
type S3Config struct {
	Endpoint  string `env:"ENDPOINT" envDefault:"https://eodata.dataspace.copernicus.eu"`
	Region    string `env:"REGION" envDefault:"default"`
	Bucket    string `env:"BUCKET" envDefault:"eodata"`
	AccessKey string `env:"ACCESS_KEY" envDefault:""`
	SecretKey string `env:"SECRET_KEY" envDefault:""`
}

// LedgerConfig contains the product ledger location.
type LedgerConfig struct {
	Path string `env:"PATH" envDefault:"products.csv"`
}

// SelectConfig contains product selection defaults.
type SelectConfig struct {
	DownloadThreshold float64 `env:"DOWNLOAD_THRESHOLD" envDefault:"0.9"`
	ProcessThreshold  float64 `env:"PROCESS_THRESHOLD" envDefault:"0.97"`
	CloudMin          float64 `env:"CLOUD_MIN" envDefault:"0"`
	CloudMax          float64 `env:"CLOUD_MAX" envDefault:"10"`
	ProductType       string  `env:"PRODUCT_TYPE" envDefault:"S2MSI2A"`
	Regional          bool    `env:"REGIONAL" envDefault:"false"`
}

// OutputConfig contains the output tree configuration.
type OutputConfig struct {
	Root        string `env:"ROOT" envDefault:"output"`
	Overwrite   bool   `env:"OVERWRITE" envDefault:"false"`
	Concurrency int    `env:"CONCURRENCY" envDefault:"2"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host            string        `env:"HOST" envDefault:"0.0.0.0"`
	Port            int           `env:"PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	// BaseURL is the public-facing URL used in links.
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080"`
	// AOI optionally points at the polygon file whose geometries are served
	// with the outputs.
	AOI string `env:"AOI" envDefault:""`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

// Load parses configuration from environment variables.
// It returns an error if required fields are missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}

	opts := env.Options{
		RequiredIfNoDef: true,
	}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive, got %s", c.Server.ReadTimeout)
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive, got %s", c.Server.WriteTimeout)
	}

	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server shutdown timeout must be positive, got %s", c.Server.ShutdownTimeout)
	}

	if c.Server.BaseURL == "" {
		return fmt.Errorf("server base URL is required")
	}

	// Validate catalogue config
	switch c.Catalogue.Type {
	case "odata":
		if c.OData.BaseURL == "" {
			return fmt.Errorf("OData base URL is required")
		}
	case "stac":
		if c.STACAPI.BaseURL == "" {
			return fmt.Errorf("STAC API base URL is required")
		}
		if c.STACAPI.Collection == "" {
			return fmt.Errorf("STAC API collection is required")
		}
	default:
		return fmt.Errorf("catalogue type must be 'odata' or 'stac', got %q", c.Catalogue.Type)
	}

	if c.OData.Timeout <= 0 {
		return fmt.Errorf("OData timeout must be positive, got %s", c.OData.Timeout)
	}

	if c.OData.RateLimit < 0 {
		return fmt.Errorf("OData rate limit must not be negative, got %g", c.OData.RateLimit)
	}

	if c.STACAPI.Timeout <= 0 {
		return fmt.Errorf("STAC API timeout must be positive, got %s", c.STACAPI.Timeout)
	}

	// Validate download config
	if c.Download.Source != "https" && c.Download.Source != "s3" {
		return fmt.Errorf("download source must be 'https' or 's3', got %q", c.Download.Source)
	}

	if c.Download.Database == "" {
		return fmt.Errorf("download database directory is required")
	}

	if c.Download.Concurrency < 1 {
		return fmt.Errorf("download concurrency must be at least 1, got %d", c.Download.Concurrency)
	}

	if c.Ledger.Path == "" {
		return fmt.Errorf("ledger path is required")
	}

	// Validate selection config
	for name, v := range map[string]float64{
		"download threshold": c.Select.DownloadThreshold,
		"process threshold":  c.Select.ProcessThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be between 0 and 1, got %g", name, v)
		}
	}

	if c.Select.CloudMin < 0 || c.Select.CloudMax > 100 || c.Select.CloudMin > c.Select.CloudMax {
		return fmt.Errorf("cloud cover range must satisfy 0 <= min <= max <= 100, got %g..%g", c.Select.CloudMin, c.Select.CloudMax)
	}

	// Validate output config
	if c.Output.Root == "" {
		return fmt.Errorf("output root is required")
	}

	if c.Output.Concurrency < 1 {
		return fmt.Errorf("output concurrency must be at least 1, got %d", c.Output.Concurrency)
	}

	// Validate logging config
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, text", c.Logging.Format)
	}

	return nil
}

// ValidateDownload checks the settings only downloads need: credentials for
// the configured source.
func (c *Config) ValidateDownload() error {
	switch c.Download.Source {
	case "https":
		if c.Auth.Username == "" || c.Auth.Password == "" {
			return fmt.Errorf("AUTH_USERNAME and AUTH_PASSWORD are required for https downloads")
		}
		if c.Auth.TokenURL == "" {
			return fmt.Errorf("auth token URL is required for https downloads")
		}
	case "s3":
		if c.S3.AccessKey == "" || c.S3.SecretKey == "" {
			return fmt.Errorf("S3_ACCESS_KEY and S3_SECRET_KEY are required for s3 downloads")
		}
		if c.S3.Bucket == "" {
			return fmt.Errorf("S3 bucket is required")
		}
	}
	return nil
}

// Address returns the server listen address in the format "host:port".
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
