// Package session parses session service flags and launches the service.
package session

import (
	"context"
	"flag"

	entrypoint "github.com/louisbranch/sessionhub/internal/platform/cmd"
	server "github.com/louisbranch/sessionhub/internal/services/session/app"
)

// Config holds session command configuration.
type Config struct {
	Port int `env:"SESSIONHUB_PORT" envDefault:"8090"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The session gRPC server port")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the session service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceSession, func(context.Context) error {
		return server.Run(ctx, cfg.Port)
	})
}
