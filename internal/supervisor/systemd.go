// Package supervisor provides systemd service management functionality.
package supervisor

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/pandeptwidyaop/trp-api/internal/config"
	"github.com/pandeptwidyaop/trp-api/internal/hostexec"
)

// ErrSystemdUnavailable is returned when systemctl is not on PATH.
var ErrSystemdUnavailable = errors.New("systemd not available on this system")

// ServiceStatus represents the status of the systemd service.
type ServiceStatus struct {
	IsRunning   bool   `json:"is_running"`
	IsEnabled   bool   `json:"is_enabled"`
	IsInstalled bool   `json:"is_installed"`
	ActiveState string `json:"active_state"`
	SubState    string `json:"sub_state"`
}

// Unit holds everything the rendered unit file needs.
type Unit struct {
	Name       string
	User       string
	Group      string
	WorkingDir string
	ExecPath   string
	ConfigPath string
	EnvFile    string
	Restart    string
	RestartSec int
	Workers    int
	AccessLog  string
	ErrorLog   string
}

const unitTemplate = `[Unit]
Description=TRP API - sales records service
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
User={{.User}}
Group={{.Group}}
WorkingDirectory={{.WorkingDir}}
EnvironmentFile=-{{.EnvFile}}
{{- if gt .Workers 0}}
Environment=GOMAXPROCS={{.Workers}}
{{- end}}
ExecStart={{.ExecPath}} serve -config {{.ConfigPath}} -env {{.EnvFile}}
Restart={{.Restart}}
RestartSec={{.RestartSec}}
StandardOutput=append:{{.AccessLog}}
StandardError=append:{{.ErrorLog}}

# Security hardening
NoNewPrivileges=true
ProtectSystem=full
PrivateTmp=true

[Install]
WantedBy=multi-user.target
`

var unitTmpl = template.Must(template.New("unit").Parse(unitTemplate))

// UnitFromConfig builds the unit for the binary installed under the app
// directory.
func UnitFromConfig(cfg *config.Config, execPath, configPath string) Unit {
	sc := cfg.Supervisor
	return Unit{
		Name:       sc.ServiceName,
		User:       sc.User,
		Group:      sc.Group,
		WorkingDir: cfg.Provision.AppDir,
		ExecPath:   execPath,
		ConfigPath: configPath,
		EnvFile:    cfg.Provision.SecretsFile,
		Restart:    sc.Restart,
		RestartSec: sc.RestartSec,
		Workers:    sc.Workers,
		AccessLog:  filepath.Join(sc.LogDir, "access.log"),
		ErrorLog:   filepath.Join(sc.LogDir, "error.log"),
	}
}

// Render generates the systemd unit file content.
func Render(u Unit) (string, error) {
	var buf bytes.Buffer
	if err := unitTmpl.Execute(&buf, u); err != nil {
		return "", fmt.Errorf("failed to execute unit template: %w", err)
	}
	return buf.String(), nil
}

// Manager controls one systemd unit through a hostexec.Runner. Mutating
// calls go through sudo.
type Manager struct {
	runner  hostexec.Runner
	unit    Unit
	unitDir string
}

func NewManager(runner hostexec.Runner, unit Unit, unitDir string) *Manager {
	return &Manager{runner: runner, unit: unit, unitDir: unitDir}
}

// UnitPath is where Install writes the unit file.
func (m *Manager) UnitPath() string {
	return filepath.Join(m.unitDir, m.unit.Name+".service")
}

// Install writes the unit file, reloads systemd and enables the unit. It
// does not start it.
func (m *Manager) Install(ctx context.Context) error {
	content, err := Render(m.unit)
	if err != nil {
		return err
	}

	if err := hostexec.WritePrivileged(ctx, m.runner, []byte(content), m.UnitPath(), 0644); err != nil {
		return fmt.Errorf("failed to write unit file: %w", err)
	}

	if err := m.systemctl(ctx, "daemon-reload"); err != nil {
		return fmt.Errorf("failed to reload systemd: %w", err)
	}

	if err := m.systemctl(ctx, "enable", m.unit.Name); err != nil {
		return fmt.Errorf("failed to enable service: %w", err)
	}

	return nil
}

// Start starts the systemd service.
func (m *Manager) Start(ctx context.Context) error {
	return m.systemctl(ctx, "start", m.unit.Name)
}

// Restart restarts the service, starting it if it is stopped.
func (m *Manager) Restart(ctx context.Context) error {
	return m.systemctl(ctx, "restart", m.unit.Name)
}

// Stop stops the systemd service.
func (m *Manager) Stop(ctx context.Context) error {
	return m.systemctl(ctx, "stop", m.unit.Name)
}

// Status returns the current service status. It needs no privilege.
func (m *Manager) Status(ctx context.Context) (*ServiceStatus, error) {
	out, err := m.runner.Run(ctx, "systemctl", "show", m.unit.Name,
		"--property=LoadState,ActiveState,SubState,UnitFileState")
	if err != nil {
		return nil, fmt.Errorf("failed to query service: %w", err)
	}
	return parseShow(out), nil
}

func (m *Manager) systemctl(ctx context.Context, args ...string) error {
	_, err := hostexec.Sudo(ctx, m.runner, "systemctl", args...)
	return err
}

// parseShow reads the KEY=value lines printed by `systemctl show`.
func parseShow(out string) *ServiceStatus {
	props := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if ok {
			props[key] = value
		}
	}

	return &ServiceStatus{
		IsInstalled: props["LoadState"] == "loaded",
		IsRunning:   props["ActiveState"] == "active",
		IsEnabled:   props["UnitFileState"] == "enabled",
		ActiveState: props["ActiveState"],
		SubState:    props["SubState"],
	}
}

// IsSystemdAvailable checks if systemctl command is available.
func IsSystemdAvailable() bool {
	_, err := exec.LookPath("systemctl")
	return err == nil
}
