// Command bowlsense uploads bowling videos for biomechanical analysis and
// follows the jobs until their results are ready.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/bowlsense/internal/config"
	"github.com/okian/bowlsense/pkg/logger"
)

var buildVersion = "dev"

type command func(ctx context.Context, e *env, args []string) error

var commands = map[string]command{ //nolint:gochecknoglobals // dispatch table
	"guest":         cmdGuest,
	"login":         cmdLogin,
	"register":      cmdRegister,
	"logout":        cmdLogout,
	"whoami":        cmdWhoAmI,
	"profile":       cmdProfile,
	"analyze":       cmdAnalyze,
	"analyze-multi": cmdAnalyzeMulti,
	"status":        cmdStatus,
	"result":        cmdResult,
	"history":       cmdHistory,
	"serve":         cmdServe,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return 2
	}
	name, rest := args[0], args[1:]
	switch name {
	case "version", "--version", "-v":
		fmt.Fprintf(stdout, "bowlsense %s\n", buildVersion)
		return 0
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command: %s\n", name)
		printUsage(stderr)
		return 2
	}

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return 1
	}
	if err := logger.Init(logger.WithWriter(stderr), logger.WithFormat(cfg.LogFormat)); err != nil {
		fmt.Fprintf(stderr, "failed to initialize logging: %v\n", err)
		return 1
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	e, err := newEnv(cfg, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	defer e.Close()

	if err := cmd(ctx, e, rest); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `bowlsense - bowling action analysis client

Usage:
  bowlsense <command> [options]

Account:
  guest                         Continue as a guest on this device
  login [--email E]             Sign in (prompts for the password)
  register --name N --email E   Create an account
  logout                        Sign out, keeping the guest device id
  whoami                        Show the current user
  profile [--style S] [--arm A] [--name N]
                                Update bowling style, arm or name

Analysis:
  analyze [--style S] [--arm A] [--no-wait] [--json] <video>
                                Upload one video and follow the job
  analyze-multi --front F --side S [--back B] [--no-wait] [--json]
                                Upload 2 or 3 camera angles
  status [--multi] [--watch] <job-id>
                                Show or follow a job's progress
  result [--multi] [--json] <job-id>
                                Show a finished analysis
  history [--limit N] [--json]  List past analyses

Other:
  serve [--addr A]              Run the local status server
  version                       Print the version
  help                          Show this help

Configuration is read from the YAML file named by BOWLSENSE_CONFIG and
from BOWLSENSE_* environment variables, e.g. BOWLSENSE_API_BASE_URL.
`)
}
