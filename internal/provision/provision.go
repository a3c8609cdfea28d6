// Package provision turns a clean debian-family host into one where the API
// runs under systemd behind nginx.
package provision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/pandeptwidyaop/trp-api/internal/config"
	"github.com/pandeptwidyaop/trp-api/internal/database"
	"github.com/pandeptwidyaop/trp-api/internal/hostexec"
	"github.com/pandeptwidyaop/trp-api/internal/probe"
	"github.com/pandeptwidyaop/trp-api/internal/proxy"
	"github.com/pandeptwidyaop/trp-api/internal/supervisor"
	"github.com/pandeptwidyaop/trp-api/internal/sysinfo"
)

// ErrRunningAsRoot is returned when the procedure is started as root.
// Privilege is taken with sudo for individual commands only.
var ErrRunningAsRoot = errors.New("refusing to run as root; run as a sudo-capable user")

// BinaryName is the installed executable under <app_dir>/bin.
const BinaryName = "trp-api"

// Step is one named unit of the procedure.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// Procedure runs its steps in order and stops at the first failure.
// Nothing is retried or rolled back.
type Procedure struct {
	Steps []Step
	Out   io.Writer
	Log   logrus.FieldLogger
}

// Run executes every step, printing "[n/N] name" before each.
func (p *Procedure) Run(ctx context.Context) error {
	total := len(p.Steps)
	for i, step := range p.Steps {
		fmt.Fprintf(p.Out, "[%d/%d] %s\n", i+1, total, step.Name)

		start := time.Now()
		if err := step.Run(ctx); err != nil {
			p.Log.WithError(err).WithField("step", step.Name).Error("provisioning step failed")
			fmt.Fprintf(p.Out, "      FAILED: %v\n", err)
			return fmt.Errorf("step %d (%s): %w", i+1, step.Name, err)
		}
		p.Log.WithFields(logrus.Fields{
			"step":        step.Name,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Debug("provisioning step done")
	}
	fmt.Fprintln(p.Out, "Provisioning complete")
	return nil
}

// Options wires a Procedure. The function fields default to the real host
// checks and exist so tests can replace them.
type Options struct {
	Config     *config.Config
	ConfigPath string
	BinaryPath string
	Runner     hostexec.Runner
	DryRun     bool
	Out        io.Writer
	Log        logrus.FieldLogger

	IsRoot    func() bool
	Preflight func(ctx context.Context) error
	CheckDB   func(ctx context.Context) error
	WaitLive  func(ctx context.Context) error
}

// InstalledBinary is the path of the binary the unit runs.
func InstalledBinary(cfg *config.Config) string {
	return filepath.Join(cfg.Provision.AppDir, "bin", BinaryName)
}

// InstalledConfig is the path of the config file the unit passes to serve.
func InstalledConfig(cfg *config.Config) string {
	return filepath.Join(cfg.Provision.AppDir, "config.yaml")
}

// New builds the standard procedure.
func New(opts Options) *Procedure {
	cfg := opts.Config
	applyDefaults(&opts)

	units := supervisor.NewManager(opts.Runner,
		supervisor.UnitFromConfig(cfg, InstalledBinary(cfg), InstalledConfig(cfg)),
		cfg.Supervisor.UnitDir)
	site := proxy.NewManager(opts.Runner, proxy.SiteFromConfig(cfg.Proxy),
		cfg.Proxy.SitesAvailable, cfg.Proxy.SitesEnabled)
	owner := cfg.Supervisor.User + ":" + cfg.Supervisor.Group

	steps := []Step{
		{"Check privileges", func(ctx context.Context) error {
			if opts.IsRoot() {
				return ErrRunningAsRoot
			}
			return nil
		}},
		{"Check host", opts.Preflight},
		{"Install packages", func(ctx context.Context) error {
			if _, err := hostexec.Sudo(ctx, opts.Runner, "apt-get", "update"); err != nil {
				return err
			}
			args := append([]string{"install", "-y"}, cfg.Provision.Packages...)
			_, err := hostexec.Sudo(ctx, opts.Runner, "apt-get", args...)
			return err
		}},
		{"Create directories", func(ctx context.Context) error {
			appDir := cfg.Provision.AppDir
			logDir := cfg.Supervisor.LogDir
			if _, err := hostexec.Sudo(ctx, opts.Runner, "mkdir", "-p", appDir, filepath.Join(appDir, "bin"), logDir); err != nil {
				return err
			}
			_, err := hostexec.Sudo(ctx, opts.Runner, "chown", "-R", owner, appDir, logDir)
			return err
		}},
		{"Install binary", func(ctx context.Context) error {
			if _, err := hostexec.Sudo(ctx, opts.Runner, "install", "-m", "0755", opts.BinaryPath, InstalledBinary(cfg)); err != nil {
				return err
			}
			if opts.ConfigPath == "" {
				return nil
			}
			_, err := hostexec.Sudo(ctx, opts.Runner, "install", "-m", "0644", opts.ConfigPath, InstalledConfig(cfg))
			return err
		}},
		{"Create secrets file", func(ctx context.Context) error {
			created, err := EnsureSecretsFile(ctx, opts.Runner, cfg.Provision.SecretsTemplate, cfg.Provision.SecretsFile, owner)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(opts.Out, "      created %s; fill in the database and API credentials\n", cfg.Provision.SecretsFile)
			} else {
				fmt.Fprintf(opts.Out, "      %s exists, leaving it untouched\n", cfg.Provision.SecretsFile)
			}
			return nil
		}},
		{"Install service", units.Install},
		{"Configure reverse proxy", site.Install},
		{"Check database connection", func(ctx context.Context) error {
			if opts.DryRun {
				fmt.Fprintln(opts.Out, "      skipped (dry run)")
				return nil
			}
			if err := opts.CheckDB(ctx); err != nil {
				fmt.Fprintf(opts.Out, "      Database connection failed: %v\n", err)
				return err
			}
			fmt.Fprintln(opts.Out, "      Database connection successful")
			return nil
		}},
		{"Start service", units.Restart},
		{"Wait for liveness", func(ctx context.Context) error {
			if opts.DryRun {
				fmt.Fprintln(opts.Out, "      skipped (dry run)")
				return nil
			}
			return opts.WaitLive(ctx)
		}},
	}

	return &Procedure{Steps: steps, Out: opts.Out, Log: opts.Log}
}

func applyDefaults(opts *Options) {
	cfg := opts.Config
	if opts.IsRoot == nil {
		opts.IsRoot = hostexec.IsRoot
	}
	if opts.Preflight == nil {
		opts.Preflight = func(ctx context.Context) error {
			facts, err := sysinfo.Collect(ctx, cfg.Provision.AppDir)
			if err != nil {
				return err
			}
			opts.Log.WithFields(logrus.Fields{
				"platform":  facts.Platform,
				"version":   facts.PlatformVersion,
				"kernel":    facts.KernelVersion,
				"cores":     facts.Cores,
				"disk_free": facts.DiskFree,
			}).Info("host facts")
			return facts.Check(sysinfo.DefaultRequirements(cfg.Provision.MinFreeDiskMB))
		}
	}
	if opts.CheckDB == nil {
		opts.CheckDB = func(ctx context.Context) error {
			svc, err := ServiceConfig(ctx, opts.Runner, opts.ConfigPath, cfg.Provision.SecretsFile)
			if err != nil {
				return err
			}
			opts.Log.WithField("dsn", svc.Database.RedactedDSN()).Info("checking database from installed secrets")
			return database.Check(ctx, svc.Database)
		}
	}
	if opts.WaitLive == nil {
		opts.WaitLive = func(ctx context.Context) error {
			svc, err := ServiceConfig(ctx, opts.Runner, opts.ConfigPath, cfg.Provision.SecretsFile)
			if err != nil {
				return err
			}
			return probe.WaitForLiveness(ctx, probe.LivenessURL(svc.Server.Port),
				cfg.Provision.GetLivenessTimeout(), time.Second)
		}
	}
}

// ServiceConfig resolves the configuration the installed service will run
// with: the YAML at configPath plus the installed secrets file, which is
// read through sudo because it is 0600 and owned by the service user.
// A missing configPath means defaults, as it does for serve.
func ServiceConfig(ctx context.Context, r hostexec.Runner, configPath, secretsFile string) (*config.Config, error) {
	content, err := hostexec.Sudo(ctx, r, "cat", secretsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", secretsFile, err)
	}
	secrets, err := godotenv.Unmarshal(content)
	if err != nil {
		return nil, fmt.Errorf("invalid secrets file %s: %w", secretsFile, err)
	}

	svc, err := config.LoadWithSecrets(configPath, secrets)
	if errors.Is(err, os.ErrNotExist) {
		svc, err = config.LoadWithSecrets("", secrets)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", configPath, err)
	}
	return svc, nil
}
