package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/heimdallr/internal/flagx"
	"github.com/dmitrijs2005/heimdallr/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "1h" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files. After unmarshalling, its fields are copied into the
// runtime Config struct which uses time.Duration.
type JsonConfig struct {
	EndpointAddrHTTP      string         `json:"endpoint_addr_http"`
	DatabaseHost          string         `json:"database_host"`
	DatabasePort          string         `json:"database_port"`
	DatabaseName          string         `json:"database_name"`
	DatabaseUser          string         `json:"database_user"`
	DatabasePassword      string         `json:"database_password"`
	DatabasePoolSize      int            `json:"database_pool_size"`
	TokenValidityDuration timex.Duration `json:"token_validity_duration"`
	SecretEnvVar          string         `json:"secret_env_var"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path is taken from the -c or -config command-line flags; if
// neither is set, no JSON file is loaded. If the file cannot be read or
// contains invalid JSON, the function panics: a requested-but-broken config
// file is not a condition to start up under.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	// Only keys present in the file override defaults; a partial config file
	// must not zero the rest.
	if c.EndpointAddrHTTP != "" {
		config.EndpointAddrHTTP = c.EndpointAddrHTTP
	}
	if c.DatabaseHost != "" {
		config.DatabaseHost = c.DatabaseHost
	}
	if c.DatabasePort != "" {
		config.DatabasePort = c.DatabasePort
	}
	if c.DatabaseName != "" {
		config.DatabaseName = c.DatabaseName
	}
	if c.DatabaseUser != "" {
		config.DatabaseUser = c.DatabaseUser
	}
	if c.DatabasePassword != "" {
		config.DatabasePassword = c.DatabasePassword
	}
	if c.DatabasePoolSize != 0 {
		config.DatabasePoolSize = c.DatabasePoolSize
	}
	if c.TokenValidityDuration.Duration != 0 {
		config.TokenValidityDuration = time.Duration(c.TokenValidityDuration.Duration)
	}
	if c.SecretEnvVar != "" {
		config.SecretEnvVar = c.SecretEnvVar
	}
}
