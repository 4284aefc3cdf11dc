package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/webaudit/webaudit/core"
	"github.com/webaudit/webaudit/core/modules"
	"github.com/webaudit/webaudit/utils"
)

const (
	Version = "1.0.0"
	Logo    = `
               _                     _ _ _
 __      _____| |__   __ _ _   _  __| (_) |_
 \ \ /\ / / _ \ '_ \ / _' | | | |/ _' | | __|
  \ V  V /  __/ |_) | (_| | |_| | (_| | | |_
   \_/\_/ \___|_.__/ \__,_|\__,_|\__,_|_|\__|

Web Application Assessment Pipeline v%s
`
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Critical error: %v\n", r)
			os.Exit(1)
		}
	}()

	app := &cli.App{
		Name:     "webaudit",
		Version:  Version,
		Usage:    "Crawl a web application and run assessment modules against it",
		Compiled: time.Now(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "target",
				Aliases: []string{"t"},
				Usage:   "Target URL to assess",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output directory for scan results",
				Value:   "results",
			},
			&cli.StringSliceFlag{
				Name:    "module",
				Aliases: []string{"m"},
				Usage:   "Run only the named modules",
			},
			&cli.StringFlag{
				Name:    "profile",
				Aliases: []string{"p"},
				Usage:   "Module profile (quick, security, content, full)",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Verbose output",
			},
			&cli.BoolFlag{
				Name:  "no-banner",
				Usage: "Hide banner",
			},
			&cli.BoolFlag{
				Name:  "validate-config",
				Usage: "Validate configuration file and exit",
			},
			&cli.BoolFlag{
				Name:  "list-modules",
				Usage: "List available modules and exit",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if !c.Bool("no-banner") {
		fmt.Printf(Logo, Version)
		fmt.Println()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupSignalHandling(cancel)

	logger := newLogger(c)
	defer logger.Close()

	cfg, err := loadConfig(c)
	if err != nil {
		logger.Error("Failed to load config: %v", err)
		return err
	}
	if c.Bool("validate-config") {
		logger.Success("Configuration validation passed")
		return nil
	}

	registry := core.NewRegistry(logger)
	modules.RegisterAll(registry)

	if c.Bool("list-modules") {
		for _, name := range registry.Names() {
			m, _ := registry.Get(name)
			fmt.Printf("  %-12s %s\n", name, m.Category())
		}
		return nil
	}

	target := c.String("target")
	if target == "" {
		logger.Error("Target is required")
		return fmt.Errorf("target is required")
	}

	outputDir := c.String("output")
	if err := utils.EnsureDir(outputDir); err != nil {
		logger.Error("Failed to create output directory: %v", err)
		return err
	}

	// Wire the pipeline: cache, limiter, transport, fetcher, engine.
	var cache core.CacheStore
	if cfg.Cache.Enabled {
		cache = core.NewTieredCache(&cfg, logger)
	}
	limiter, err := core.NewLimiter(&cfg)
	if err != nil {
		logger.Error("Invalid rate limit configuration: %v", err)
		return err
	}

	var transport core.Transport = core.NewHTTPTransport(&cfg)
	if cfg.JavaScript.Enable {
		transport = core.NewBrowserTransport(transport, &cfg, logger)
	}
	fetcher := core.NewFetcher(transport, cache, limiter, &cfg, logger)

	progress := utils.NewProgressTracker()
	progress.Start()
	defer progress.Stop()

	engine := core.NewEngine(fetcher, registry, core.NewHooks(logger), &cfg, logger)
	engine.SetProgress(progress)

	logger.Info("Starting scan for target: %s", target)
	result, err := engine.Scan(ctx, target)
	if err != nil {
		logger.Error("Scan failed: %v", err)
		return err
	}

	if err := writeResult(outputDir, result); err != nil {
		logger.Error("Failed to write result: %v", err)
		return err
	}

	printSummary(logger, result)
	logger.Success("Scan %s complete: %d pages, %d findings", result.ID, len(result.Pages), result.TotalFindings())
	return nil
}

func newLogger(c *cli.Context) *utils.Logger {
	verbose := c.Bool("verbose")
	return utils.NewLogger(verbose)
}

func loadConfig(c *cli.Context) (utils.Config, error) {
	var cfg utils.Config
	var err error
	if path := c.String("config"); path != "" {
		cfg, err = utils.LoadConfig(path)
		if err != nil {
			return cfg, err
		}
	} else {
		cfg = utils.DefaultConfig()
	}

	if mods := c.StringSlice("module"); len(mods) > 0 {
		cfg.Modules.Enabled = mods
	}
	if profile := c.String("profile"); profile != "" {
		cfg.Modules.Profile = profile
	}
	return cfg, nil
}

func writeResult(outputDir string, result *core.ScanResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(outputDir, result.ID+".json")
	return utils.WriteToFile(path, data)
}

func printSummary(logger *utils.Logger, result *core.ScanResult) {
	logger.Info("Findings by severity:")
	for _, sev := range core.Severities {
		if count := result.Summary[sev]; count > 0 {
			logger.Info("  %-8s %d", sev, count)
		}
	}
	for _, mr := range result.ModuleResults {
		if mr.Status == core.StatusError {
			logger.Warning("Module %s did not complete: %s", mr.Module, mr.Error)
		}
	}
}

func setupSignalHandling(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt, shutting down...")
		cancel()
	}()
}
