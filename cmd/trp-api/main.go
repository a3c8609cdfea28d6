// Package main is the entry point for the TRP API server and its
// deployment tooling.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/pandeptwidyaop/trp-api/internal/config"
	"github.com/pandeptwidyaop/trp-api/internal/logging"
	"github.com/pandeptwidyaop/trp-api/internal/version"
)

const usage = `Usage: trp-api <command> [flags]

Commands:
  serve                         run the API (default)
  version                       print version information
  provision [-dry-run]          provision this host
  check-db                      check the database connection
  migrate                       create the schema
  load -file <xlsx|csv>         bulk-load spreadsheet rows
  service start|stop|restart|status
                                control the supervised process
  render unit|nginx|env         print a generated artifact
  healthcheck [-url]            probe the liveness endpoint

Every command accepts -config (default config.yaml) and -env (default .env).
`

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

// run dispatches a subcommand and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	command := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}

	var err error
	switch command {
	case "serve":
		err = runServe(ctx, args)
	case "version":
		fmt.Fprintln(stdout, version.String())
	case "provision":
		err = runProvision(ctx, args, stdout)
	case "check-db":
		err = runCheckDB(ctx, args, stdout)
	case "migrate":
		err = runMigrate(ctx, args, stdout)
	case "load":
		err = runLoad(ctx, args, stdout)
	case "service":
		err = runService(ctx, args, stdout)
	case "render":
		err = runRender(args, stdout)
	case "healthcheck":
		err = runHealthcheck(ctx, args)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", command, usage)
		return 2
	}

	switch {
	case errors.Is(err, flag.ErrHelp):
		return 0
	case err != nil:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// commonFlags registers -config and -env on fs.
type commonFlags struct {
	configPath *string
	envPath    *string
}

func newFlagSet(name string) (*flag.FlagSet, commonFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	return fs, commonFlags{
		configPath: fs.String("config", "config.yaml", "path to config file"),
		envPath:    fs.String("env", ".env", "path to secrets file"),
	}
}

// load reads the config file, falling back to defaults plus environment
// when the file does not exist.
func (f commonFlags) load() (*config.Config, error) {
	cfg, err := config.Load(*f.configPath, *f.envPath)
	if errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: config file %s not found, using defaults\n", *f.configPath)
		cfg, err = config.Load("", *f.envPath)
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *logrus.Logger {
	return logging.New(cfg.Logging)
}
