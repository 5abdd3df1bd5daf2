package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"

	"limbo/internal/adapter/auth"
	"limbo/internal/adapter/render"
	"limbo/internal/infra/config"
	"limbo/internal/infra/logger"
	"limbo/internal/infra/metrics"
	"limbo/internal/infra/tracer"
)

func main() {
	if len(os.Args) < 2 || strings.HasPrefix(os.Args[1], "-") && !isHelp(os.Args[1]) {
		if err := run(); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
		return
	}

	switch os.Args[1] {
	case "--help", "-h", "help":
		showUsage()
	case "plugins":
		if err := runPlugins(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "plugins: %v\n", err)
			os.Exit(1)
		}
	case "encrypt":
		if err := runEncrypt(os.Args[2:], os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "encrypt: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'limbo --help' for usage information.\n", os.Args[1])
		os.Exit(1)
	}
}

func isHelp(arg string) bool { return arg == "--help" || arg == "-h" }

func showUsage() {
	fmt.Println(`limbo - a chat assistant host for plugins

USAGE:
    limbo [COMMAND] [FLAGS]

COMMANDS:
    plugins            List the built-in plugins and their permissions
    encrypt <value>    Encrypt a secret for the config file (needs LIMBO_CONFIG_KEY)

    (no command) - Start an interactive chat

FLAGS:
    -h, --help         Show this help message
    --config PATH      Specify config file path (default: ./limbo.yaml)

CONFIGURATION:
    Config file: ./limbo.yaml (optional)
    Environment: LIMBO_* variables override config`)
}

// configPath returns the --config flag, LIMBO_CONFIG, or ./limbo.yaml.
func configPath() string {
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	if p := os.Getenv("LIMBO_CONFIG"); p != "" {
		return p
	}
	return "limbo.yaml"
}

func run() error {
	// 1. Config
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger, tracer, metrics
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(context.WithoutCancel(ctx))

	rec, metricsShutdown, err := metrics.Setup(ctx, cfg.Metrics, log)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	defer metricsShutdown(context.WithoutCancel(ctx))

	// 3. Frontend
	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 20 {
		width = w - 2
	}
	renderer, err := render.New(nil, render.Options{Width: width})
	if err != nil {
		return fmt.Errorf("renderer: %w", err)
	}
	con := newConsole(os.Stdin, os.Stdout, renderer)

	// 4. Host
	h, err := newHost(ctx, cfg, log, rec, auth.PrompterFunc(con.promptAuthorization))
	if err != nil {
		return err
	}
	defer func() {
		if err := h.Close(); err != nil {
			log.Error("shutdown error", "error", err)
		}
	}()

	// Custom nodes and markdown elements come from the UI registry.
	if renderer, err = render.New(h.ui, render.Options{Width: width}); err != nil {
		return fmt.Errorf("renderer: %w", err)
	}
	con.render = renderer
	detach := con.attach(h)
	defer detach()

	log.Info("limbo started", "data_dir", cfg.Host.DataDir, "plugins", len(h.manager.List()))
	return con.Run(ctx)
}
