// Package proxy renders and installs the nginx site in front of the API.
package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/pandeptwidyaop/trp-api/internal/config"
	"github.com/pandeptwidyaop/trp-api/internal/hostexec"
)

// ErrInvalidConfig is returned when `nginx -t` rejects the installed site.
var ErrInvalidConfig = errors.New("nginx rejected the site configuration")

// LivenessPath is proxied without access logging.
const LivenessPath = "/health-check"

// Site holds everything the rendered server block needs.
type Site struct {
	Name              string
	ServerName        string
	ListenPort        int
	UpstreamPort      int
	ClientMaxBodySize string
	ReadTimeout       string
	LivenessPath      string
}

const siteTemplate = `upstream {{.Name}}_app {
    server 127.0.0.1:{{.UpstreamPort}};
}

server {
    listen {{.ListenPort}};
    server_name {{.ServerName}};

    client_max_body_size {{.ClientMaxBodySize}};

    location = {{.LivenessPath}} {
        access_log off;
        proxy_pass http://{{.Name}}_app;
        proxy_set_header Host $host;
        proxy_set_header X-Real-IP $remote_addr;
        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;
        proxy_set_header X-Forwarded-Proto $scheme;
    }

    location / {
        proxy_pass http://{{.Name}}_app;
        proxy_set_header Host $host;
        proxy_set_header X-Real-IP $remote_addr;
        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;
        proxy_set_header X-Forwarded-Proto $scheme;
        proxy_read_timeout {{.ReadTimeout}};
    }
}
`

var siteTmpl = template.Must(template.New("site").Parse(siteTemplate))

// SiteFromConfig builds the site from the proxy section.
func SiteFromConfig(cfg config.ProxyConfig) Site {
	return Site{
		Name:              cfg.SiteName,
		ServerName:        cfg.ServerName,
		ListenPort:        cfg.ListenPort,
		UpstreamPort:      cfg.UpstreamPort,
		ClientMaxBodySize: cfg.ClientMaxBodySize,
		ReadTimeout:       cfg.ReadTimeout,
		LivenessPath:      LivenessPath,
	}
}

// Render generates the nginx site file content.
func Render(s Site) (string, error) {
	var buf bytes.Buffer
	if err := siteTmpl.Execute(&buf, s); err != nil {
		return "", fmt.Errorf("failed to execute site template: %w", err)
	}
	return buf.String(), nil
}

// Manager installs one nginx site through a hostexec.Runner.
type Manager struct {
	runner         hostexec.Runner
	site           Site
	sitesAvailable string
	sitesEnabled   string
}

func NewManager(runner hostexec.Runner, site Site, sitesAvailable, sitesEnabled string) *Manager {
	return &Manager{
		runner:         runner,
		site:           site,
		sitesAvailable: sitesAvailable,
		sitesEnabled:   sitesEnabled,
	}
}

// SitePath is the file in sites-available.
func (m *Manager) SitePath() string {
	return filepath.Join(m.sitesAvailable, m.site.Name)
}

// LinkPath is the symlink in sites-enabled.
func (m *Manager) LinkPath() string {
	return filepath.Join(m.sitesEnabled, m.site.Name)
}

// Install writes and enables the site, then validates it with `nginx -t`.
// nginx is reloaded only when validation passes; otherwise the previous
// site is put back and ErrInvalidConfig is returned.
func (m *Manager) Install(ctx context.Context) error {
	content, err := Render(m.site)
	if err != nil {
		return err
	}

	sitePath := m.SitePath()
	backupPath := sitePath + ".bak"
	hadPrevious := hostexec.FileExists(sitePath)
	// Kept outside sites-enabled, which nginx includes wholesale.
	linkBackup := filepath.Join(m.sitesAvailable, m.site.Name+".enabled.bak")
	hadLink := entryExists(m.LinkPath())

	if hadPrevious {
		if _, err := hostexec.Sudo(ctx, m.runner, "cp", "-p", sitePath, backupPath); err != nil {
			return fmt.Errorf("failed to back up %s: %w", sitePath, err)
		}
	}
	if hadLink {
		if _, err := hostexec.Sudo(ctx, m.runner, "cp", "-P", m.LinkPath(), linkBackup); err != nil {
			return fmt.Errorf("failed to back up %s: %w", m.LinkPath(), err)
		}
	}

	if err := hostexec.WritePrivileged(ctx, m.runner, []byte(content), sitePath, 0644); err != nil {
		return err
	}

	if _, err := hostexec.Sudo(ctx, m.runner, "ln", "-sfn", sitePath, m.LinkPath()); err != nil {
		return fmt.Errorf("failed to enable site: %w", err)
	}

	if out, err := m.Test(ctx); err != nil {
		if rerr := m.restore(ctx, hadPrevious, hadLink, backupPath, linkBackup); rerr != nil {
			return fmt.Errorf("%w: %s (restore failed: %v)", ErrInvalidConfig, out, rerr)
		}
		return fmt.Errorf("%w: %s", ErrInvalidConfig, out)
	}

	if _, err := hostexec.Sudo(ctx, m.runner, "systemctl", "reload", "nginx"); err != nil {
		return fmt.Errorf("failed to reload nginx: %w", err)
	}

	if hadPrevious {
		_, _ = hostexec.Sudo(ctx, m.runner, "rm", "-f", backupPath)
	}
	if hadLink {
		_, _ = hostexec.Sudo(ctx, m.runner, "rm", "-f", linkBackup)
	}
	return nil
}

// Test runs `nginx -t` and returns its output.
func (m *Manager) Test(ctx context.Context) (string, error) {
	return hostexec.Sudo(ctx, m.runner, "nginx", "-t")
}

// restore puts sites-available and sites-enabled back the way Install
// found them.
func (m *Manager) restore(ctx context.Context, hadPrevious, hadLink bool, backupPath, linkBackup string) error {
	if hadPrevious {
		if _, err := hostexec.Sudo(ctx, m.runner, "mv", "-f", backupPath, m.SitePath()); err != nil {
			return err
		}
	} else if _, err := hostexec.Sudo(ctx, m.runner, "rm", "-f", m.SitePath()); err != nil {
		return err
	}

	if hadLink {
		_, err := hostexec.Sudo(ctx, m.runner, "mv", "-f", linkBackup, m.LinkPath())
		return err
	}
	_, err := hostexec.Sudo(ctx, m.runner, "rm", "-f", m.LinkPath())
	return err
}

// entryExists reports whether anything, including a dangling symlink, is at
// path.
func entryExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
