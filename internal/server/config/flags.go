package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/heimdallr/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-H string   database host
//	-P string   database port
//	-d string   database name
//	-u string   database user
//	-p string   database password
//	-n int      store worker pool size
//	-t int      token validity, seconds
//	-s string   name of the environment variable holding the secret key
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-H", "-P", "-d", "-u", "-p", "-n", "-t", "-s"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseHost, "H", config.DatabaseHost, "database host")
	fs.StringVar(&config.DatabasePort, "P", config.DatabasePort, "database port")
	fs.StringVar(&config.DatabaseName, "d", config.DatabaseName, "database name")
	fs.StringVar(&config.DatabaseUser, "u", config.DatabaseUser, "database user")
	fs.StringVar(&config.DatabasePassword, "p", config.DatabasePassword, "database password")
	fs.IntVar(&config.DatabasePoolSize, "n", config.DatabasePoolSize, "store worker pool size")

	tokenValidity := fs.Int("t", int(config.TokenValidityDuration.Seconds()), "token_validity_duration (in seconds)")

	fs.StringVar(&config.SecretEnvVar, "s", config.SecretEnvVar, "secret key environment variable name")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.TokenValidityDuration = time.Duration(*tokenValidity) * time.Second
}
