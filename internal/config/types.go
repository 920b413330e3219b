// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.

// Package config loads fieldaudit settings from defaults, YAML files,
// environment variables and command-line flags.
package config

import (
	"fmt"
	"time"
)

// Fallback values used when the deployment leaves a setting empty.
const (
	FallbackSecretKey = "dev-secret-key-change-in-production"
	FallbackDBType    = "sqlite"
	FallbackDSN       = "./fieldaudit.db"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Auth     AuthConfig     `mapstructure:"auth" yaml:"auth"`
	OneDrive OneDriveConfig `mapstructure:"onedrive" yaml:"onedrive"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Language string         `mapstructure:"language" yaml:"language"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	// PublicURL overrides the scheme://host used when building image links.
	PublicURL   string   `mapstructure:"public_url" yaml:"public_url"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

type DatabaseConfig struct {
	Type string `mapstructure:"type" yaml:"type"`
	Dsn  string `mapstructure:"dsn" yaml:"dsn"`
}

type AuthConfig struct {
	SecretKey  string        `mapstructure:"secret_key" yaml:"secret_key"`
	AccessTTL  time.Duration `mapstructure:"access_ttl" yaml:"access_ttl"`
	RefreshTTL time.Duration `mapstructure:"refresh_ttl" yaml:"refresh_ttl"`
	QuickLogin bool          `mapstructure:"quick_login" yaml:"quick_login"`
	// Enforce requires a bearer token on every non-auth API route.
	Enforce bool `mapstructure:"enforce" yaml:"enforce"`
}

type OneDriveConfig struct {
	TenantID     string `mapstructure:"tenant_id" yaml:"tenant_id"`
	ClientID     string `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string `mapstructure:"client_secret" yaml:"client_secret"`
	RefreshToken string `mapstructure:"refresh_token" yaml:"refresh_token"`
	RootFolder   string `mapstructure:"root_folder" yaml:"root_folder"`
	GraphURL     string `mapstructure:"graph_url" yaml:"graph_url"`
	AuthURL      string `mapstructure:"auth_url" yaml:"auth_url"`
}

// Enabled reports whether enough credentials are present to talk to Graph.
func (o OneDriveConfig) Enabled() bool {
	return o.ClientID != "" && o.ClientSecret != "" && o.RefreshToken != ""
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Defaults returns the viper defaults for every known key.
func Defaults() map[string]any {
	return map[string]any{
		"server.host":             "",
		"server.port":             8080,
		"server.request_timeout":  "120s",
		"server.shutdown_timeout": "30s",
		"server.public_url":       "",
		"server.cors_origins":     []string{"*"},
		"database.type":           FallbackDBType,
		"database.dsn":            FallbackDSN,
		"auth.secret_key":         "",
		"auth.access_ttl":         "2h",
		"auth.refresh_ttl":        "168h",
		"auth.quick_login":        true,
		"auth.enforce":            false,
		"onedrive.tenant_id":      "common",
		"onedrive.client_id":      "",
		"onedrive.client_secret":  "",
		"onedrive.refresh_token":  "",
		"onedrive.root_folder":    "MysteryAudits",
		"onedrive.graph_url":      "https://graph.microsoft.com/v1.0",
		"onedrive.auth_url":       "https://login.microsoftonline.com",
		"log.level":               "info",
		"log.format":              "text",
		"language":                "en",
	}
}

// ApplyFallbacks fills empty critical values and returns a warning for each
// one it had to fill.
func (c *Config) ApplyFallbacks() []string {
	var warnings []string
	if c.Auth.SecretKey == "" {
		c.Auth.SecretKey = FallbackSecretKey
		warnings = append(warnings, "auth.secret_key is not set; using an insecure development key")
	}
	if c.Database.Type == "" {
		c.Database.Type = FallbackDBType
	}
	if c.Database.Dsn == "" {
		c.Database.Dsn = FallbackDSN
		warnings = append(warnings, "database.dsn is not set; using "+FallbackDSN)
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.RequestTimeout <= 0 {
		c.Server.RequestTimeout = 120 * time.Second
	}
	if c.Language == "" {
		c.Language = "en"
	}
	return warnings
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("unsupported database.type %q (want sqlite, postgres or mysql)", c.Database.Type)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		return fmt.Errorf("auth token lifetimes must be positive")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
