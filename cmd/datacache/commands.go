package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/unkn0wn-root/datacache"
	"github.com/unkn0wn-root/datacache/config"
	zl "github.com/unkn0wn-root/datacache/log/zerolog"
)

var errUsage = errors.New("usage")

func createDemoCommand() *cli.Command {
	return &cli.Command{
		Name:  "demo",
		Usage: "populate, read concurrently, invalidate, read again",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "records", Usage: "source records", Value: 100},
			&cli.IntFlag{Name: "dupes", Usage: "records per section", Value: 2},
			&cli.IntFlag{Name: "readers", Usage: "concurrent readers", Value: 8},
			&cli.DurationFlag{Name: "latency", Usage: "simulated source latency", Value: 20 * time.Millisecond},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd.String("config"))
			if err != nil {
				return err
			}
			opts := demoOptions{
				Records: cmd.Int("records"),
				Dupes:   cmd.Int("dupes"),
				Readers: cmd.Int("readers"),
				Latency: cmd.Duration("latency"),
			}
			return runDemo(ctx, cmd.Root().Writer, cfg, logger(cmd.Root().ErrWriter, cmd.Bool("verbose")), opts)
		},
	}
}

func createCheckCommand() *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "validate a config file and print the effective settings",
		ArgsUsage: "<file>",
		Action: func(_ context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				path = cmd.String("config")
			}
			if path == "" {
				return fmt.Errorf("%w: check <file>", errUsage)
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			return printConfig(cmd.Root().Writer, cfg)
		},
	}
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func logger(w io.Writer, verbose bool) datacache.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	l := zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()
	return zl.New(l)
}

func printConfig(w io.Writer, cfg config.Config) error {
	if w == nil {
		w = os.Stdout
	}
	// never echo credentials
	cfg.Provider.Redis.Password = redacted(cfg.Provider.Redis.Password)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg)
}

func redacted(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}
