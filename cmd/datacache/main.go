// datacache exercises a configured datacache Service against a synthetic
// content source.
//
// Usage:
//
//	datacache [global options] <command> [command options]
//
// Commands:
//
//	demo           populate, read concurrently, invalidate, read again
//	check <file>   validate a config file and print the effective settings
//
// Examples:
//
//	datacache demo --records 500 --dupes 3 --readers 16
//	datacache demo --config cache.yaml -v
//	datacache check cache.yaml
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
)

func main() {
	os.Exit(run(os.Args))
}

func createApp() *cli.Command {
	return &cli.Command{
		Name:    "datacache",
		Usage:   "exercise a datacache Service",
		Version: fmt.Sprintf("%s (commit: %s)", Version, GitCommit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML or JSON config file (defaults when empty)",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log cache internals at debug level",
			},
		},
		Commands: []*cli.Command{
			createDemoCommand(),
			createCheckCommand(),
		},
		DefaultCommand: "help",
	}
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := createApp().Run(ctx, args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}
