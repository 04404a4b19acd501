// Package main provides the workbench binary entry point.
// Workbench serves the context resolver, field validator, lock state machine
// and artefact service over HTTP, backed by NATS JetStream.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	// Register LLM providers via init()
	_ "github.com/c360studio/workbench/llm/providers"

	"github.com/c360studio/workbench/axis"
	"github.com/c360studio/workbench/config"
	"github.com/c360studio/workbench/model"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "workbench"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
}

func rootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Context and definition workbench",
		Long: `Workbench resolves per-user context for LLM calls and manages
locked definition documents.

It provides:
- Axis preset resolution and instruction compilation
- LLM field validation (PASS / WEAK / CONFLICT)
- Field lock workflow for project, chat and stage definitions
- Versioned artefacts with an on-disk markdown mirror

Without a subcommand it runs the HTTP server.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), flags)
		},
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		serveCmd(flags),
		catalogCmd(flags),
		modelsCmd(flags),
		configCmd(flags),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
			},
		},
	)
	return cmd
}

func serveCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), flags)
		},
	}
}

func catalogCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog [axis]",
		Short: "List axis presets",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags, newLogger(flags.logLevel, cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			catalog := axis.DefaultCatalog()
			if cfg.Catalog.Path != "" {
				if catalog, err = axis.LoadCatalog(cfg.Catalog.Path); err != nil {
					return err
				}
			}
			axes := axis.All
			if len(args) == 1 {
				a, ok := axis.Parse(args[0])
				if !ok {
					return fmt.Errorf("unknown axis %q", args[0])
				}
				axes = []axis.Axis{a}
			}
			printCatalog(cmd.OutOrStdout(), catalog, axes)
			return nil
		},
	}
}

func printCatalog(w io.Writer, catalog *axis.Catalog, axes []axis.Axis) {
	for _, a := range axes {
		def := catalog.Default(a)
		fmt.Fprintf(w, "%s (%s), default %s\n", a, a.Label(), def.Name)
		for _, p := range catalog.Presets(a) {
			line := fmt.Sprintf("  %3d  %s", p.ID, p.Name)
			if p.Description != "" {
				line += " - " + p.Description
			}
			fmt.Fprintln(w, line)
		}
	}
}

func modelsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "Show capability fallback chains and model endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags, newLogger(flags.logLevel, cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			models, err := loadModels(cfg)
			if err != nil {
				return err
			}
			printModels(cmd.OutOrStdout(), models.Status())
			return nil
		},
	}
}

func printModels(w io.Writer, st model.Status) {
	fmt.Fprintf(w, "default: %s\n", st.Default)
	for _, cs := range st.Capabilities {
		fmt.Fprintf(w, "%-12s %s\n", cs.Capability, strings.Join(cs.Chain, " -> "))
	}
	fmt.Fprintln(w, "endpoints:")
	for _, ep := range st.Endpoints {
		line := fmt.Sprintf("  %-16s %-10s %s", ep.Name, ep.Provider, ep.Model)
		if ep.URL != "" {
			line += " @ " + ep.URL
		}
		fmt.Fprintln(w, line)
	}
}

func configCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or initialise configuration",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig(flags, newLogger(flags.logLevel, cmd.ErrOrStderr()))
				if err != nil {
					return err
				}
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(cfg); err != nil {
					return fmt.Errorf("encode config: %w", err)
				}
				return enc.Close()
			},
		},
		&cobra.Command{
			Use:   "init",
			Short: "Write the default user config if none exists",
			RunE: func(cmd *cobra.Command, args []string) error {
				loader := config.NewLoader(newLogger(flags.logLevel, cmd.ErrOrStderr()))
				return loader.EnsureUserConfig()
			},
		},
	)
	return cmd
}

func newLogger(level string, w io.Writer) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func loadConfig(flags *globalFlags, logger *slog.Logger) (*config.Config, error) {
	var opts []config.LoaderOption
	if flags.configPath != "" {
		opts = append(opts, config.WithFile(flags.configPath))
	}
	cfg, err := config.NewLoader(logger, opts...).Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, flags *globalFlags) error {
	logger := newLogger(flags.logLevel, os.Stderr)
	slog.SetDefault(logger)

	cfg, err := loadConfig(flags, logger)
	if err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	app := NewApp(cfg, logger)
	if err := app.Start(signalCtx); err != nil {
		return err
	}
	defer app.Shutdown(cfg.Server.ShutdownTimeout)

	if err := app.Run(signalCtx); err != nil {
		return err
	}
	logger.Info("Workbench shutdown complete")
	return nil
}
