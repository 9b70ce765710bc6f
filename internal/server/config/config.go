// Package config handles configuration for the server component,
// including defaults, JSON overlay, and command-line flags.
package config

import (
	"fmt"
	"time"
)

// Config holds runtime settings for the Heimdallr server.
//
// Fields:
//   - EndpointAddrHTTP: bind address for the public HTTP endpoint.
//   - DatabaseHost/Port/Name/User/Password: PostgreSQL connection parameters.
//   - DatabasePoolSize: number of credential store workers; each worker owns
//     one store connection, so this bounds total connection usage.
//   - TokenValidityDuration: lifetime of issued bearer tokens.
//   - SecretEnvVar: environment variable holding the hashing/signing secret.
//     The secret value itself never passes through this struct.
type Config struct {
	EndpointAddrHTTP      string
	DatabaseHost          string
	DatabasePort          string
	DatabaseName          string
	DatabaseUser          string
	DatabasePassword      string
	DatabasePoolSize      int
	TokenValidityDuration time.Duration
	SecretEnvVar          string
}

// LoadDefaults populates Config with sensible development defaults.
// NOTE: These values are insecure for production and should be overridden.
func (c *Config) LoadDefaults() {
	c.EndpointAddrHTTP = ":8080"
	c.DatabaseHost = "localhost"
	c.DatabasePort = "5432"
	c.DatabaseName = "heimdallr"
	c.DatabaseUser = "postgres"
	c.DatabasePassword = "postgres"
	c.DatabasePoolSize = 5
	c.TokenValidityDuration = 3600 * time.Second
	c.SecretEnvVar = "HEIMDALLR_SECRET"
}

// DatabaseDSN composes the pgx connection string from the individual
// database parameters.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DatabaseUser, c.DatabasePassword, c.DatabaseHost, c.DatabasePort, c.DatabaseName)
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
