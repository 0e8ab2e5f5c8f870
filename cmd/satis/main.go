package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/tinytelemetry/satis/internal/logging"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	command := "analyze"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}
	if command != "analyze" && command != "serve" {
		fmt.Fprintf(stderr, "Error: unknown command %q (want analyze or serve)\n", command)
		return 2
	}

	var configPath string
	var showVersion bool

	fs := pflag.NewFlagSet("satis "+command, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&configPath, "config", "", "config file (default is $HOME/.config/satis/config.yml)")
	fs.BoolVar(&showVersion, "version", false, "print version information")
	registerFlags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	if showVersion {
		fmt.Fprintf(stdout, "Satis - Dedicated Server Log Telemetry\n")
		fmt.Fprintf(stdout, "  Version:    %s\n", version)
		fmt.Fprintf(stdout, "  Commit:     %s\n", commit)
		fmt.Fprintf(stdout, "  Built:      %s\n", buildTime)
		fmt.Fprintf(stdout, "  Go version: %s\n", goVersion)
		return 0
	}

	// A positional argument names the log directory.
	if fs.NArg() > 1 {
		fmt.Fprintf(stderr, "Error: expected at most one log directory, got %d\n", fs.NArg())
		return 2
	}
	if fs.NArg() == 1 {
		if err := fs.Set("log-dir", fs.Arg(0)); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
	}

	cfg, err := loadConfig(configPath, fs)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}

	logger, closer, err := logging.New(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
		Output: stderr,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error configuring logging: %v\n", err)
		return 1
	}
	defer closer.Close()

	switch command {
	case "serve":
		err = runServe(ctx, cfg, logger, stdout)
	default:
		err = newAnalyzer(cfg, logger, stdout).run(ctx)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
