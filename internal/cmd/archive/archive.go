// Package archive exports the classroom archive as JSON for offline review.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/louisbranch/classpulse/internal/classroom/storage"
	"github.com/louisbranch/classpulse/internal/classroom/storage/sqlite"
)

// Config holds archive export command configuration.
type Config struct {
	ArchivePath string `env:"CLASSPULSE_ARCHIVE_PATH"`
	Kind        string `env:"CLASSPULSE_EXPORT_KIND"  envDefault:"polls"`
	Limit       int    `env:"CLASSPULSE_EXPORT_LIMIT" envDefault:"100"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	fs.StringVar(&cfg.ArchivePath, "archive-path", cfg.ArchivePath, "sqlite archive path")
	fs.StringVar(&cfg.Kind, "kind", cfg.Kind, "record kind to export: polls or chat")
	fs.IntVar(&cfg.Limit, "limit", cfg.Limit, "maximum records to export")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type export struct {
	Polls []storage.ResolvedPoll `json:"polls,omitempty"`
	Chat  []storage.ChatRecord   `json:"chat,omitempty"`
}

// Run executes the export command, writing JSON records to out.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	path := strings.TrimSpace(cfg.ArchivePath)
	if path == "" || path == sqlite.MemoryPath {
		return errors.New("a file archive path is required")
	}
	if cfg.Limit <= 0 {
		return errors.New("limit must be positive")
	}

	store, err := sqlite.Open(path)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer store.Close()

	var result export
	switch strings.TrimSpace(cfg.Kind) {
	case "polls":
		result.Polls, err = store.ListResolvedPolls(ctx, cfg.Limit)
		if err != nil {
			return fmt.Errorf("list resolved polls: %w", err)
		}
	case "chat":
		result.Chat, err = store.ListChatMessages(ctx, cfg.Limit)
		if err != nil {
			return fmt.Errorf("list chat messages: %w", err)
		}
	default:
		return fmt.Errorf("unknown export kind %q", cfg.Kind)
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	return nil
}
