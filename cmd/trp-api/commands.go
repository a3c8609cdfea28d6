package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pandeptwidyaop/trp-api/internal/database"
	"github.com/pandeptwidyaop/trp-api/internal/hostexec"
	"github.com/pandeptwidyaop/trp-api/internal/loader"
	"github.com/pandeptwidyaop/trp-api/internal/probe"
	"github.com/pandeptwidyaop/trp-api/internal/provision"
	"github.com/pandeptwidyaop/trp-api/internal/proxy"
	"github.com/pandeptwidyaop/trp-api/internal/supervisor"
)

func runProvision(ctx context.Context, args []string, out io.Writer) error {
	fs, common := newFlagSet("provision")
	dryRun := fs.Bool("dry-run", false, "print commands instead of running them")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(execPath); err == nil {
		execPath = resolved
	}

	configPath := ""
	if hostexec.FileExists(*common.configPath) {
		if configPath, err = filepath.Abs(*common.configPath); err != nil {
			return err
		}
	}

	var runner hostexec.Runner = hostexec.NewExecRunner(cfg.Provision.GetCommandTimeout(), log)
	if *dryRun {
		runner = &hostexec.DryRunRunner{Log: log}
	}

	return provision.New(provision.Options{
		Config:     cfg,
		ConfigPath: configPath,
		BinaryPath: execPath,
		Runner:     runner,
		DryRun:     *dryRun,
		Out:        out,
		Log:        log,
	}).Run(ctx)
}

func runCheckDB(ctx context.Context, args []string, out io.Writer) error {
	fs, common := newFlagSet("check-db")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}

	if err := database.Check(ctx, cfg.Database); err != nil {
		fmt.Fprintf(out, "Database connection failed: %v\n", err)
		return err
	}
	fmt.Fprintln(out, "Database connection successful")
	return nil
}

func runMigrate(ctx context.Context, args []string, out io.Writer) error {
	fs, common := newFlagSet("migrate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	fmt.Fprintln(out, "Migrations applied")
	return nil
}

func runLoad(ctx context.Context, args []string, out io.Writer) error {
	fs, common := newFlagSet("load")
	file := fs.String("file", "", "xlsx or csv file to load")
	sheet := fs.String("sheet", "", "worksheet index or name (default from config)")
	dryRun := fs.Bool("dry-run", false, "preview only, do not write")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *file == "" {
		return errors.New("-file is required")
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	if *sheet == "" {
		*sheet = cfg.Loader.Sheet
	}

	raw, err := loader.ReadFile(*file, *sheet)
	if err != nil {
		return err
	}
	records := loader.Transform(raw)

	fmt.Fprintf(out, "Preview of normalized data (first %d rows):\n", cfg.Loader.PreviewRows)
	if err := loader.Preview(out, records, cfg.Loader.PreviewRows); err != nil {
		return err
	}

	if *dryRun {
		fmt.Fprintf(out, "Dry run: %d rows not loaded\n", len(records))
		return nil
	}

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	n, err := loader.Copy(ctx, db, cfg.Loader.TargetSchema, cfg.Loader.TargetTable, records)
	if err != nil {
		return err
	}
	log.WithField("rows", n).WithField("file", *file).Info("copy load finished")
	fmt.Fprintf(out, "COPY load completed successfully (%d rows).\n", n)
	return nil
}

func runService(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("usage: trp-api service start|stop|restart|status")
	}
	action := args[0]
	switch action {
	case "start", "stop", "restart", "status":
	default:
		return fmt.Errorf("unknown service action %q", action)
	}

	fs, common := newFlagSet("service")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	if !supervisor.IsSystemdAvailable() {
		return supervisor.ErrSystemdUnavailable
	}

	unit := supervisor.UnitFromConfig(cfg, provision.InstalledBinary(cfg), provision.InstalledConfig(cfg))
	m := supervisor.NewManager(hostexec.NewExecRunner(time.Minute, log), unit, cfg.Supervisor.UnitDir)

	switch action {
	case "start":
		err = m.Start(ctx)
	case "stop":
		err = m.Stop(ctx)
	case "restart":
		err = m.Restart(ctx)
	case "status":
		status, err := m.Status(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Service:   %s\n", unit.Name)
		fmt.Fprintf(out, "Installed: %t\n", status.IsInstalled)
		fmt.Fprintf(out, "Enabled:   %t\n", status.IsEnabled)
		fmt.Fprintf(out, "State:     %s (%s)\n", status.ActiveState, status.SubState)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: %s done\n", unit.Name, action)
	return nil
}

func runRender(args []string, w io.Writer) error {
	if len(args) == 0 {
		return errors.New("usage: trp-api render unit|nginx|env")
	}
	what := args[0]

	fs, common := newFlagSet("render")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}

	var out string
	switch what {
	case "unit":
		out, err = supervisor.Render(supervisor.UnitFromConfig(cfg, provision.InstalledBinary(cfg), provision.InstalledConfig(cfg)))
	case "nginx":
		out, err = proxy.Render(proxy.SiteFromConfig(cfg.Proxy))
	case "env":
		var content []byte
		content, err = provision.LoadTemplate(cfg.Provision.SecretsTemplate)
		out = string(content)
	default:
		return fmt.Errorf("unknown artifact %q", what)
	}
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

func runHealthcheck(ctx context.Context, args []string) error {
	fs, common := newFlagSet("healthcheck")
	url := fs.String("url", "", "liveness URL (default http://127.0.0.1:<port>/health-check)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *url == "" {
		cfg, err := common.load()
		if err != nil {
			return err
		}
		*url = probe.LivenessURL(cfg.Server.Port)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return probe.Liveness(ctx, *url)
}
