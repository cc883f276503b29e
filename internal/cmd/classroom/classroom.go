// Package classroom parses classroom command flags and composes transport
// entrypoints.
package classroom

import (
	"context"
	"flag"
	"fmt"

	server "github.com/louisbranch/classpulse/internal/classroom/app"
	entrypoint "github.com/louisbranch/classpulse/internal/platform/cmd"
)

// Config holds classroom command configuration.
type Config struct {
	HTTPAddr    string `env:"CLASSPULSE_HTTP_ADDR"    envDefault:":8086"`
	ArchivePath string `env:"CLASSPULSE_ARCHIVE_PATH" envDefault:":memory:"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "classroom HTTP listen address")
	fs.StringVar(&cfg.ArchivePath, "archive-path", cfg.ArchivePath, "sqlite archive path, :memory: keeps no file")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run builds the classroom app and starts realtime transport behavior.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceClassroom, func(context.Context) error {
		if err := server.Run(ctx, server.Config{
			HTTPAddr:    cfg.HTTPAddr,
			ArchivePath: cfg.ArchivePath,
		}); err != nil {
			return fmt.Errorf("serve classroom: %w", err)
		}
		return nil
	})
}
