package provision

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/pandeptwidyaop/trp-api/internal/hostexec"
)

// ErrTemplateMissing is returned when the configured secrets template
// does not exist.
var ErrTemplateMissing = errors.New("secrets template not found")

// SecretKeys are the keys the secrets file is expected to carry.
var SecretKeys = []string{
	"DATABASE_URL",
	"PGHOST",
	"PGPORT",
	"PGDATABASE",
	"PGUSER",
	"PGPASSWORD",
	"PGSSL",
	"API_BASIC_USER",
	"API_BASIC_PASS",
}

// DefaultSecretsTemplate is used when no template path is configured and
// is what `render env` prints.
const DefaultSecretsTemplate = `# TRP API secrets. Never commit this file.
# Either set DATABASE_URL or the discrete PG* fields.
DATABASE_URL=
PGHOST=localhost
PGPORT=5432
PGDATABASE=postgres
PGUSER=postgres
PGPASSWORD=
PGSSL=require

# Basic auth for /health and /trp. A bcrypt hash is accepted.
API_BASIC_USER=admin
API_BASIC_PASS=

# Runtime
HOST=0.0.0.0
PORT=8000
LOG_LEVEL=info
WORKERS=
ALLOWED_ORIGINS=*
ENV=production
`

// LoadTemplate returns the template at path, or DefaultSecretsTemplate when
// path is empty. The content must parse as a dotenv file.
func LoadTemplate(path string) ([]byte, error) {
	content := []byte(DefaultSecretsTemplate)
	if path != "" {
		var err error
		content, err = os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrTemplateMissing, path)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read secrets template: %w", err)
		}
	}

	if _, err := godotenv.Unmarshal(string(content)); err != nil {
		return nil, fmt.Errorf("invalid secrets template %s: %w", path, err)
	}
	return content, nil
}

// EnsureSecretsFile creates dest from the template with mode 0600 and the
// given owner. An existing dest is never touched; created reports whether
// the file was written.
func EnsureSecretsFile(ctx context.Context, r hostexec.Runner, templatePath, dest, owner string) (created bool, err error) {
	if hostexec.FileExists(dest) {
		return false, nil
	}

	content, err := LoadTemplate(templatePath)
	if err != nil {
		return false, err
	}

	if err := hostexec.WritePrivileged(ctx, r, content, dest, 0600); err != nil {
		return false, err
	}
	if _, err := hostexec.Sudo(ctx, r, "chown", owner, dest); err != nil {
		return false, fmt.Errorf("failed to chown %s: %w", dest, err)
	}
	return true, nil
}
