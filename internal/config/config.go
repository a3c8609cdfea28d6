// Package config loads the YAML configuration and the dotenv secrets file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every validation failure returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Auth       AuthConfig       `yaml:"auth"`
	CORS       CORSConfig       `yaml:"cors"`
	Logging    LoggingConfig    `yaml:"logging"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Proxy      ProxyConfig      `yaml:"proxy"`
	Provision  ProvisionConfig  `yaml:"provision"`
	Loader     LoaderConfig     `yaml:"loader"`

	// Env is "production" unless ENV says otherwise.
	Env string `yaml:"env"`
}

type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ReadTimeout  string `yaml:"read_timeout"`
	WriteTimeout string `yaml:"write_timeout"`
	IdleTimeout  string `yaml:"idle_timeout"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`
}

// DatabaseConfig holds the discrete connection fields. URL takes precedence
// over the discrete fields when set.
type DatabaseConfig struct {
	URL             string `yaml:"-"`
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	Name            string `yaml:"name"`
	User            string `yaml:"-"`
	Password        string `yaml:"-"`
	SSLMode         string `yaml:"sslmode"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime"`
	ConnectTimeout  string `yaml:"connect_timeout"`
	AutoMigrate     bool   `yaml:"auto_migrate"`
}

type AuthConfig struct {
	Realm    string `yaml:"realm"`
	Username string `yaml:"-"`
	Password string `yaml:"-"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SupervisorConfig describes the systemd unit that runs the API.
type SupervisorConfig struct {
	ServiceName string `yaml:"service_name"`
	User        string `yaml:"user"`
	Group       string `yaml:"group"`
	Restart     string `yaml:"restart"`
	RestartSec  int    `yaml:"restart_sec"`
	Workers     int    `yaml:"workers"`
	UnitDir     string `yaml:"unit_dir"`
	LogDir      string `yaml:"log_dir"`
}

// ProxyConfig describes the nginx site placed in front of the API.
type ProxyConfig struct {
	SiteName          string `yaml:"site_name"`
	ServerName        string `yaml:"server_name"`
	ListenPort        int    `yaml:"listen_port"`
	UpstreamPort      int    `yaml:"upstream_port"`
	ClientMaxBodySize string `yaml:"client_max_body_size"`
	ReadTimeout       string `yaml:"read_timeout"`
	SitesAvailable    string `yaml:"sites_available"`
	SitesEnabled      string `yaml:"sites_enabled"`
}

type ProvisionConfig struct {
	AppDir          string   `yaml:"app_dir"`
	Packages        []string `yaml:"packages"`
	SecretsTemplate string   `yaml:"secrets_template"`
	SecretsFile     string   `yaml:"secrets_file"`
	MinFreeDiskMB   uint64   `yaml:"min_free_disk_mb"`
	CommandTimeout  string   `yaml:"command_timeout"`
	LivenessTimeout string   `yaml:"liveness_timeout"`
}

type LoaderConfig struct {
	Sheet        string `yaml:"sheet"`
	PreviewRows  int    `yaml:"preview_rows"`
	TargetSchema string `yaml:"target_schema"`
	TargetTable  string `yaml:"target_table"`
}

// Load reads the YAML file at path (optional when empty), then the secrets
// file at envPath (optional when missing), then applies environment
// overrides and defaults.
func Load(path, envPath string) (*Config, error) {
	cfg, err := readFile(path)
	if err != nil {
		return nil, err
	}

	if envPath != "" {
		// Existing process environment is never overridden by the file.
		if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load secrets file %s: %w", envPath, err)
		}
	}

	applyEnvOverrides(cfg, os.Getenv)
	setDefaults(cfg)
	return cfg, nil
}

// LoadWithSecrets resolves the configuration a process would see if its
// whole environment were secrets, as under systemd's EnvironmentFile=.
// The caller's own environment is ignored.
func LoadWithSecrets(path string, secrets map[string]string) (*Config, error) {
	cfg, err := readFile(path)
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg, func(key string) string { return secrets[key] })
	setDefaults(cfg)
	return cfg, nil
}

func readFile(path string) (*Config, error) {
	var cfg Config
	if path == "" {
		return &cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ReadSecrets parses a secrets file without touching the process environment.
func ReadSecrets(path string) (map[string]string, error) {
	return godotenv.Read(path)
}

func applyEnvOverrides(cfg *Config, getenv func(string) string) {
	if v := getenv("HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v, err := strconv.Atoi(getenv("PORT")); err == nil {
		cfg.Server.Port = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v, err := strconv.Atoi(getenv("WORKERS")); err == nil {
		cfg.Supervisor.Workers = v
	}
	if v := getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.CORS.AllowedOrigins = splitList(v)
	}
	if v := getenv("ENV"); v != "" {
		cfg.Env = v
	}

	cfg.Database.URL = getenv("DATABASE_URL")
	if v := getenv("PGHOST"); v != "" {
		cfg.Database.Host = v
	}
	if v, err := strconv.Atoi(getenv("PGPORT")); err == nil {
		cfg.Database.Port = v
	}
	if v := getenv("PGDATABASE"); v != "" {
		cfg.Database.Name = v
	}
	if v := getenv("PGUSER"); v != "" {
		cfg.Database.User = v
	}
	if v := getenv("PGPASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := getenv("PGSSL"); v != "" {
		cfg.Database.SSLMode = v
	}

	if v := getenv("API_BASIC_USER"); v != "" {
		cfg.Auth.Username = v
	}
	cfg.Auth.Password = getenv("API_BASIC_PASS")
}

func setDefaults(cfg *Config) {
	if cfg.Env == "" {
		cfg.Env = "production"
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.ReadTimeout == "" {
		cfg.Server.ReadTimeout = "120s"
	}
	if cfg.Server.WriteTimeout == "" {
		cfg.Server.WriteTimeout = "120s"
	}
	if cfg.Server.IdleTimeout == "" {
		cfg.Server.IdleTimeout = "5s"
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 1 << 20
	}

	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.Name == "" {
		cfg.Database.Name = "postgres"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "require"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == "" {
		cfg.Database.ConnMaxLifetime = "30m"
	}
	if cfg.Database.ConnectTimeout == "" {
		cfg.Database.ConnectTimeout = "10s"
	}

	if cfg.Auth.Realm == "" {
		cfg.Auth.Realm = "trp-api"
	}
	if cfg.Auth.Username == "" {
		cfg.Auth.Username = "admin"
	}

	if len(cfg.CORS.AllowedOrigins) == 0 {
		cfg.CORS.AllowedOrigins = []string{"*"}
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Supervisor.ServiceName == "" {
		cfg.Supervisor.ServiceName = "trp-api"
	}
	if cfg.Supervisor.User == "" {
		cfg.Supervisor.User = "www-data"
	}
	if cfg.Supervisor.Group == "" {
		cfg.Supervisor.Group = cfg.Supervisor.User
	}
	if cfg.Supervisor.Restart == "" {
		cfg.Supervisor.Restart = "always"
	}
	if cfg.Supervisor.RestartSec == 0 {
		cfg.Supervisor.RestartSec = 5
	}
	if cfg.Supervisor.UnitDir == "" {
		cfg.Supervisor.UnitDir = "/etc/systemd/system"
	}
	if cfg.Supervisor.LogDir == "" {
		cfg.Supervisor.LogDir = "/var/log/trp-api"
	}

	if cfg.Proxy.SiteName == "" {
		cfg.Proxy.SiteName = "trp-api"
	}
	if cfg.Proxy.ServerName == "" {
		cfg.Proxy.ServerName = "_"
	}
	if cfg.Proxy.ListenPort == 0 {
		cfg.Proxy.ListenPort = 80
	}
	if cfg.Proxy.UpstreamPort == 0 {
		cfg.Proxy.UpstreamPort = cfg.Server.Port
	}
	if cfg.Proxy.ClientMaxBodySize == "" {
		cfg.Proxy.ClientMaxBodySize = "10M"
	}
	if cfg.Proxy.ReadTimeout == "" {
		cfg.Proxy.ReadTimeout = "120s"
	}
	if cfg.Proxy.SitesAvailable == "" {
		cfg.Proxy.SitesAvailable = "/etc/nginx/sites-available"
	}
	if cfg.Proxy.SitesEnabled == "" {
		cfg.Proxy.SitesEnabled = "/etc/nginx/sites-enabled"
	}

	if cfg.Provision.AppDir == "" {
		cfg.Provision.AppDir = "/opt/trp-api"
	}
	if len(cfg.Provision.Packages) == 0 {
		cfg.Provision.Packages = []string{"nginx", "postgresql-client", "curl"}
	}
	if cfg.Provision.SecretsFile == "" {
		cfg.Provision.SecretsFile = cfg.Provision.AppDir + "/.env"
	}
	if cfg.Provision.MinFreeDiskMB == 0 {
		cfg.Provision.MinFreeDiskMB = 512
	}
	if cfg.Provision.CommandTimeout == "" {
		cfg.Provision.CommandTimeout = "10m"
	}
	if cfg.Provision.LivenessTimeout == "" {
		cfg.Provision.LivenessTimeout = "30s"
	}

	if cfg.Loader.Sheet == "" {
		cfg.Loader.Sheet = "0"
	}
	if cfg.Loader.PreviewRows == 0 {
		cfg.Loader.PreviewRows = 5
	}
	if cfg.Loader.TargetSchema == "" {
		cfg.Loader.TargetSchema = "public"
	}
	if cfg.Loader.TargetTable == "" {
		cfg.Loader.TargetTable = "TRP"
	}
}

// Validate checks the cross-field invariants the deployment relies on.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port %d out of range", ErrInvalidConfig, c.Server.Port)
	}
	if c.Proxy.ListenPort < 1 || c.Proxy.ListenPort > 65535 {
		return fmt.Errorf("%w: proxy.listen_port %d out of range", ErrInvalidConfig, c.Proxy.ListenPort)
	}
	// The proxy forwards to exactly one local port and it must be ours.
	if c.Proxy.UpstreamPort != c.Server.Port {
		return fmt.Errorf("%w: proxy.upstream_port %d does not match server.port %d",
			ErrInvalidConfig, c.Proxy.UpstreamPort, c.Server.Port)
	}
	for _, d := range []struct {
		name, value string
	}{
		{"server.read_timeout", c.Server.ReadTimeout},
		{"server.write_timeout", c.Server.WriteTimeout},
		{"server.idle_timeout", c.Server.IdleTimeout},
		{"database.conn_max_lifetime", c.Database.ConnMaxLifetime},
		{"database.connect_timeout", c.Database.ConnectTimeout},
		{"provision.command_timeout", c.Provision.CommandTimeout},
		{"provision.liveness_timeout", c.Provision.LivenessTimeout},
	} {
		if _, err := time.ParseDuration(d.value); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, d.name, err)
		}
	}
	return nil
}

// IsProduction reports whether the API runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ListenAddr is the host:port the API binds to.
func (c *ServerConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *ServerConfig) GetReadTimeout() time.Duration {
	return parseDuration(c.ReadTimeout, 120*time.Second)
}

func (c *ServerConfig) GetWriteTimeout() time.Duration {
	return parseDuration(c.WriteTimeout, 120*time.Second)
}

func (c *ServerConfig) GetIdleTimeout() time.Duration {
	return parseDuration(c.IdleTimeout, 5*time.Second)
}

func (c *DatabaseConfig) GetConnMaxLifetime() time.Duration {
	return parseDuration(c.ConnMaxLifetime, 30*time.Minute)
}

func (c *DatabaseConfig) GetConnectTimeout() time.Duration {
	return parseDuration(c.ConnectTimeout, 10*time.Second)
}

func (c *ProvisionConfig) GetCommandTimeout() time.Duration {
	return parseDuration(c.CommandTimeout, 10*time.Minute)
}

func (c *ProvisionConfig) GetLivenessTimeout() time.Duration {
	return parseDuration(c.LivenessTimeout, 30*time.Second)
}

// DSN returns the connection string handed to lib/pq.
//
// DATABASE_URL wins when present. SQLAlchemy driver suffixes such as
// "postgresql+psycopg2://" are stripped so the same secrets file serves
// both deployments.
func (c *DatabaseConfig) DSN() string {
	if c.URL != "" {
		return normalizeURL(c.URL)
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.Name,
	}
	if c.User != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.User, c.Password)
		} else {
			u.User = url.User(c.User)
		}
	}
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	q.Set("connect_timeout", strconv.Itoa(int(c.GetConnectTimeout().Seconds())))
	u.RawQuery = q.Encode()
	return u.String()
}

// RedactedDSN is DSN with the password masked, for logs.
func (c *DatabaseConfig) RedactedDSN() string {
	u, err := url.Parse(c.DSN())
	if err != nil {
		return "<unparseable dsn>"
	}
	return u.Redacted()
}

func normalizeURL(raw string) string {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return raw
	}
	if base, _, found := strings.Cut(scheme, "+"); found {
		scheme = base
	}
	return scheme + "://" + rest
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
