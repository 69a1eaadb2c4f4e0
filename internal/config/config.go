// Package config loads the service's environment-driven configuration. It
// is the first package in this module to actually use the
// github.com/jessevdk/go-flags dependency the teacher's go.mod carried but
// never wired into a loader (the teacher's own internal/infra/config
// instead duplicated a broken yaml.Config struct that cmd/server/main.go
// called but never matched field-for-field against what it read).
package config

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
)

// Config is the complete environment-driven configuration surface
// (spec.md §6.3, expanded with SPEC_FULL.md §6.3's relational-store fields).
type Config struct {
	DatabaseURL string `long:"database-url" env:"DATABASE_URL" description:"Postgres DSN" required:"true"`

	Server struct {
		Host                  string `long:"host" env:"HOST" default:"127.0.0.1" description:"bind host"`
		Port                  int    `long:"port" env:"PORT" default:"3000" description:"bind port"`
		RequestTimeoutSeconds int    `long:"request-timeout-seconds" env:"REQUEST_TIMEOUT_SECONDS" default:"10" description:"per-request timeout in seconds"`
	} `group:"server"`

	Logging struct {
		Level  string `long:"log-level" env:"LOG_LEVEL" default:"debug" description:"trace|debug|info|warn|error"`
		Format string `long:"log-format" env:"LOG_FORMAT" default:"text" description:"text|json"`
	} `group:"logging"`

	Database struct {
		MaxOpenConns int `long:"db-max-open-conns" env:"DB_MAX_OPEN_CONNS" default:"10" description:"max open connections to the database"`
		MaxIdleConns int `long:"db-max-idle-conns" env:"DB_MAX_IDLE_CONNS" default:"5" description:"max idle connections to the database"`
	} `group:"database"`
}

// Load parses Config from environment variables and the process's CLI
// flags (go-flags derives both from one struct).
func Load() (*Config, error) {
	return LoadArgs(os.Args[1:])
}

// LoadArgs parses Config against explicit args, bypassing os.Args — used by
// Load and by tests that want environment-only parsing without `go test`
// flags leaking in.
func LoadArgs(args []string) (*Config, error) {
	var cfg Config
	parser := flags.NewParser(&cfg, flags.Default&^flags.PrintErrors)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}
	return &cfg, nil
}
