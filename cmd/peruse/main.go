// Command peruse runs the article analysis service: an HTTP API for
// submissions and a pool of queue workers driving the LLM pipeline.
//
// Usage:
//
//	peruse serve
//	peruse worker --count 4
//	peruse all
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/peruse-ai/peruse/pkg/config"
	"github.com/peruse-ai/peruse/pkg/logger"
)

// CLI defines the command-line interface.
type CLI struct {
	Version VersionCmd `cmd:"" help:"Show version information."`
	Serve   ServeCmd   `cmd:"" help:"Start the HTTP API server."`
	Worker  WorkerCmd  `cmd:"" help:"Start queue workers."`
	All     AllCmd     `cmd:"" help:"Start the API server and workers in one process."`

	LogLevel string `help:"Log level (debug, info, warn, error)." default:""`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("peruse version %s\n", version)
	return nil
}

// ServeCmd starts the HTTP API only.
type ServeCmd struct {
	Addr string `help:"Listen address (overrides HTTP_ADDR)."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	return runApp(cli, func(cfg *config.Config) {
		if c.Addr != "" {
			cfg.HTTPAddr = c.Addr
		}
	}, appServer)
}

// WorkerCmd starts queue workers only.
type WorkerCmd struct {
	Count int `help:"Number of workers (overrides WORKER_COUNT)." default:"0"`
}

func (c *WorkerCmd) Run(cli *CLI) error {
	return runApp(cli, func(cfg *config.Config) {
		if c.Count > 0 {
			cfg.WorkerCount = c.Count
		}
	}, appWorkers)
}

// AllCmd starts everything in one process.
type AllCmd struct {
	Addr  string `help:"Listen address (overrides HTTP_ADDR)."`
	Count int    `help:"Number of workers (overrides WORKER_COUNT)." default:"0"`
}

func (c *AllCmd) Run(cli *CLI) error {
	return runApp(cli, func(cfg *config.Config) {
		if c.Addr != "" {
			cfg.HTTPAddr = c.Addr
		}
		if c.Count > 0 {
			cfg.WorkerCount = c.Count
		}
	}, appServer|appWorkers)
}

func runApp(cli *CLI, override func(*config.Config), parts appParts) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cli.LogLevel != "" {
		cfg.LogLevel = cli.LogLevel
	}
	override(cfg)

	logger.Init(logger.ParseLevel(cfg.LogLevel), os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return run(ctx, cfg, parts)
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("peruse"),
		kong.Description("Article analysis service: sentence splitting, topic labeling, and derived artifacts."),
		kong.UsageOnError(),
	)
	if err := ctx.Run(&cli); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
