// Paqbot is the operations assistant for a parcel-shipping business.
//
// It exposes an HTTP API with a tool-calling chat endpoint backed by
// Mistral (with DeepSeek fallback), management endpoints over the
// SQLite data store, and an optional MQTT subscriber that ingests
// carrier scan events. Configuration is loaded from a single YAML file
// discovered automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	paqbot serve             Start the API server
//	paqbot init [dir]        Write an example config file
//	paqbot ask <question>    Ask the assistant a single question
//	paqbot version           Print version information
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/enviamx/paqbot/examples"
	"github.com/enviamx/paqbot/internal/agent"
	"github.com/enviamx/paqbot/internal/api"
	"github.com/enviamx/paqbot/internal/config"
	"github.com/enviamx/paqbot/internal/llm"
	"github.com/enviamx/paqbot/internal/prompts"
	"github.com/enviamx/paqbot/internal/store"
	"github.com/enviamx/paqbot/internal/tools"
	"github.com/enviamx/paqbot/internal/tracking"
)

// version is overridden at build time via -ldflags.
var version = "dev"

// main is intentionally minimal. It constructs the OS-level environment
// and delegates to [run] so the full lifecycle is drivable from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run parses arguments and dispatches to a subcommand. Arguments are
// parsed by hand; the flag package's global state gets in the way of
// calling run concurrently from tests, and the surface here is tiny.
func run(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	var configPath string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: paqbot ask <question>")
		}
		return runAsk(ctx, stdout, configPath, cmdArgs)
	case "version":
		fmt.Fprintf(stdout, "paqbot %s (%s)\n", version, runtime.Version())
		return nil
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Paqbot - Parcel Operations Assistant")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: paqbot [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the API server")
	fmt.Fprintln(w, "  init [dir]   Write an example config file (default: .)")
	fmt.Fprintln(w, "  ask          Ask the assistant a single question")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>   Path to config file (default: auto-discover)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/paqbot/config.yaml, /etc/paqbot/config.yaml")
	return nil
}

// runInit writes the example config into dir, refusing to overwrite an
// existing one.
func runInit(stdout io.Writer, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists, not overwriting", path)
	}

	if err := os.WriteFile(path, examples.ConfigYAML, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(stdout, "Wrote %s. Edit it and run 'paqbot serve'.\n", path)
	return nil
}

// newLogger creates the structured logger all subcommands share.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

// loadConfig locates and parses the YAML configuration file.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}

// newProviderClient builds the client for a named provider, or nil for
// names it does not recognize.
func newProviderClient(name string, pc config.ProviderConfig, logger *slog.Logger) llm.Client {
	switch name {
	case "mistral":
		return llm.NewMistralClient(pc.APIKey, pc.Model, pc.BaseURL, logger)
	case "deepseek":
		return llm.NewDeepSeekClient(pc.APIKey, pc.Model, pc.BaseURL, logger)
	}
	return nil
}

// runAsk boots a minimal assistant and processes a single question.
// Useful for smoke tests without starting the server. The first
// provider in the fallback order with an API key handles the question;
// there is no retry chain here.
func runAsk(ctx context.Context, stdout io.Writer, configPath string, args []string) error {
	logger := newLogger(stdout, slog.LevelWarn)
	question := strings.Join(args, " ")

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database %s: %w", cfg.Database.Path, err)
	}
	defer db.Close()

	registry, err := tools.NewRegistry(db)
	if err != nil {
		return fmt.Errorf("build tool registry: %w", err)
	}

	var client llm.Client
	for _, name := range cfg.Providers.Order {
		var pc config.ProviderConfig
		switch name {
		case "mistral":
			pc = cfg.Providers.Mistral
		case "deepseek":
			pc = cfg.Providers.DeepSeek
		default:
			continue
		}
		if pc.APIKey == "" {
			continue
		}
		client = newProviderClient(name, pc, logger)
		break
	}
	if client == nil {
		return fmt.Errorf("no provider configured: set an API key for mistral or deepseek")
	}

	driver := agent.NewDriver(logger, client, registry, cfg.Assistant.MaxIterations)
	resp, err := driver.Run(ctx, []llm.Message{
		{Role: "system", Content: prompts.SystemPrompt("")},
		{Role: "user", Content: question},
	})
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	fmt.Fprintln(stdout, resp.Content)
	return nil
}

// runServe is the primary operating mode: load config, open the data
// store, build the tool registry, start the scan subscriber when
// enabled, and serve HTTP until a shutdown signal arrives.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo)
	logger.Info("starting Paqbot", "version", version)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Reconfigure the logger now that the desired level is known.
	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger = newLogger(stdout, level)
	}

	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"providers", cfg.Providers.Order,
		"tracking", cfg.Tracking.Enabled,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database %s: %w", cfg.Database.Path, err)
	}
	defer db.Close()
	logger.Info("database opened", "path", cfg.Database.Path)

	registry, err := tools.NewRegistry(db)
	if err != nil {
		return fmt.Errorf("build tool registry: %w", err)
	}
	logger.Info("tool registry built", "tools", len(registry.Names()))

	if cfg.Tracking.Enabled {
		sub := tracking.NewSubscriber(cfg.Tracking, db, logger)
		if err := sub.Start(ctx); err != nil {
			return fmt.Errorf("start tracking subscriber: %w", err)
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer stopCancel()
			_ = sub.Stop(stopCtx)
		}()
	}

	server := api.NewServer(cfg, db, registry, logger)

	// Drain in-flight requests when the signal context fires.
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.Start(ctx); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("Paqbot stopped")
	return nil
}
