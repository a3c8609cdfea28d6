package proxy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pandeptwidyaop/trp-api/internal/config"
	"github.com/pandeptwidyaop/trp-api/internal/hostexec"
	"github.com/pandeptwidyaop/trp-api/internal/hostexec/hostexectest"
)

func testSite() Site {
	return SiteFromConfig(config.ProxyConfig{
		SiteName:          "trp-api",
		ServerName:        "api.example.com",
		ListenPort:        80,
		UpstreamPort:      8000,
		ClientMaxBodySize: "10M",
		ReadTimeout:       "120s",
	})
}

func TestRender(t *testing.T) {
	content, err := Render(testSite())
	require.NoError(t, err)

	for _, want := range []string{
		"server 127.0.0.1:8000;",
		"listen 80;",
		"server_name api.example.com;",
		"client_max_body_size 10M;",
		"proxy_set_header Host $host;",
		"proxy_set_header X-Real-IP $remote_addr;",
		"proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;",
		"proxy_set_header X-Forwarded-Proto $scheme;",
		"proxy_read_timeout 120s;",
		"location = /health-check {\n        access_log off;",
	} {
		assert.Contains(t, content, want)
	}
	assert.Equal(t, 1, strings.Count(content, "upstream "), "exactly one upstream")
}

func setupDirs(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	available := filepath.Join(dir, "sites-available")
	enabled := filepath.Join(dir, "sites-enabled")
	require.NoError(t, os.MkdirAll(available, 0755))
	require.NoError(t, os.MkdirAll(enabled, 0755))
	return available, enabled
}

func TestManager_Install(t *testing.T) {
	available, enabled := setupDirs(t)
	fake := &hostexectest.FakeRunner{}
	m := NewManager(fake, testSite(), available, enabled)

	require.NoError(t, m.Install(context.Background()))

	testIdx := fake.Index("nginx -t")
	reloadIdx := fake.Index("systemctl reload nginx")
	require.GreaterOrEqual(t, testIdx, 0)
	assert.Greater(t, reloadIdx, testIdx, "reload must follow a passing nginx -t")
	assert.True(t, fake.Ran("ln -sfn "+m.SitePath()+" "+m.LinkPath()))
	assert.False(t, fake.Ran("cp -p"), "no backup without a previous site")
}

func TestManager_InstallInvalidRestoresPrevious(t *testing.T) {
	available, enabled := setupDirs(t)
	site := testSite()
	require.NoError(t, os.WriteFile(filepath.Join(available, site.Name), []byte("old"), 0644))

	fake := &hostexectest.FakeRunner{Handler: func(cmdline string) (string, error) {
		if strings.HasSuffix(cmdline, "nginx -t") {
			return "nginx: [emerg] unknown directive", hostexec.ErrCommandFailed
		}
		return "", nil
	}}
	m := NewManager(fake, site, available, enabled)

	err := m.Install(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
	assert.Contains(t, err.Error(), "unknown directive")

	backup := m.SitePath() + ".bak"
	assert.Less(t, fake.Index("cp -p "+m.SitePath()+" "+backup), fake.Index("nginx -t"))
	assert.Greater(t, fake.Index("mv -f "+backup+" "+m.SitePath()), fake.Index("nginx -t"))
	assert.False(t, fake.Ran("reload"), "nginx must not be reloaded after a failed test")
	assert.Greater(t, fake.Index("rm -f "+m.LinkPath()), fake.Index("nginx -t"),
		"a site that was not enabled before must not stay enabled")
}

func TestManager_InstallInvalidKeepsPreviousLink(t *testing.T) {
	available, enabled := setupDirs(t)
	site := testSite()
	sitePath := filepath.Join(available, site.Name)
	require.NoError(t, os.WriteFile(sitePath, []byte("old"), 0644))
	require.NoError(t, os.Symlink(sitePath, filepath.Join(enabled, site.Name)))

	fake := &hostexectest.FakeRunner{Handler: func(cmdline string) (string, error) {
		if strings.HasSuffix(cmdline, "nginx -t") {
			return "", hostexec.ErrCommandFailed
		}
		return "", nil
	}}
	m := NewManager(fake, site, available, enabled)

	err := m.Install(context.Background())
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	linkBackup := filepath.Join(available, site.Name+".enabled.bak")
	assert.Less(t, fake.Index("cp -P "+m.LinkPath()+" "+linkBackup), fake.Index("ln -sfn"))
	assert.Greater(t, fake.Index("mv -f "+linkBackup+" "+m.LinkPath()), fake.Index("nginx -t"))
	assert.False(t, fake.Ran("rm -f "+m.LinkPath()))
}

func TestManager_InstallCleansUpBackups(t *testing.T) {
	available, enabled := setupDirs(t)
	site := testSite()
	sitePath := filepath.Join(available, site.Name)
	require.NoError(t, os.WriteFile(sitePath, []byte("old"), 0644))
	require.NoError(t, os.Symlink(sitePath, filepath.Join(enabled, site.Name)))

	fake := &hostexectest.FakeRunner{}
	m := NewManager(fake, site, available, enabled)

	require.NoError(t, m.Install(context.Background()))
	reloadIdx := fake.Index("systemctl reload nginx")
	assert.Greater(t, fake.Index("rm -f "+sitePath+".bak"), reloadIdx)
	assert.Greater(t, fake.Index("rm -f "+filepath.Join(available, site.Name+".enabled.bak")), reloadIdx)
}

func TestManager_InstallInvalidRemovesNewSite(t *testing.T) {
	available, enabled := setupDirs(t)
	fake := &hostexectest.FakeRunner{Handler: func(cmdline string) (string, error) {
		if strings.HasSuffix(cmdline, "nginx -t") {
			return "", hostexec.ErrCommandFailed
		}
		return "", nil
	}}
	m := NewManager(fake, testSite(), available, enabled)

	err := m.Install(context.Background())
	assert.True(t, errors.Is(err, ErrInvalidConfig))
	assert.True(t, fake.Ran("rm -f "+m.SitePath()))
	assert.True(t, fake.Ran("rm -f "+m.LinkPath()))
	assert.False(t, fake.Ran("reload"))
}
