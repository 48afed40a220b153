// Package engagements parses engagements service flags and launches the service.
package engagements

import (
	"context"
	"flag"

	entrypoint "github.com/tryst-app/tryst/internal/platform/cmd"
	server "github.com/tryst-app/tryst/internal/services/engagements/app"
)

// Config holds engagements command configuration.
type Config struct {
	Port int `env:"TRYST_ENGAGEMENTS_PORT" envDefault:"8080"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The engagements HTTP server port")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the engagements HTTP API service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceEngagements, func(context.Context) error {
		return server.Run(ctx, cfg.Port)
	})
}
