// Package config loads applytrack configuration from defaults, an optional
// YAML file, a .env file, the environment and command-line flags, in that
// order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g.
// APPLYTRACK_SERVER_ADDR for server.addr.
const EnvPrefix = "APPLYTRACK"

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	PublicURL       string        `mapstructure:"public_url"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	MetricsEnabled  bool          `mapstructure:"metrics_enabled"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig selects the datastore.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// GoogleConfig holds the OAuth client of the Google provider. The endpoint
// overrides exist for tests and proxies.
type GoogleConfig struct {
	ClientID      string        `mapstructure:"client_id"`
	ClientSecret  string        `mapstructure:"client_secret"`
	RedirectURL   string        `mapstructure:"redirect_url"`
	AuthURL       string        `mapstructure:"auth_url"`
	TokenURL      string        `mapstructure:"token_url"`
	GmailEndpoint string        `mapstructure:"gmail_endpoint"`
	HTTPTimeout   time.Duration `mapstructure:"http_timeout"`
}

// AuthConfig configures owner resolution.
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	StateTTL  time.Duration `mapstructure:"state_ttl"`
}

// RedisConfig enables the distributed refresh lock when Addr is set.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

// NotifyConfig configures owner notifications. An empty AMQPURL logs
// notifications instead of publishing them.
type NotifyConfig struct {
	AMQPURL    string `mapstructure:"amqp_url"`
	Exchange   string `mapstructure:"exchange"`
	RoutingKey string `mapstructure:"routing_key"`
	QueueSize  int    `mapstructure:"queue_size"`
}

// ResumeConfig configures the PDF renderer and attachment download.
type ResumeConfig struct {
	RendererURL    string        `mapstructure:"renderer_url"`
	MaxBytes       int64         `mapstructure:"max_bytes"`
	HTTPTimeout    time.Duration `mapstructure:"http_timeout"`
	AttachmentName string        `mapstructure:"attachment_name"`
}

// SyncConfig configures the inbox sync workflow.
type SyncConfig struct {
	Workers int    `mapstructure:"workers"`
	Query   string `mapstructure:"query"`
}

// InstrumentationConfig mirrors instrumentation.Config.
type InstrumentationConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	MetricsExporter   string  `mapstructure:"metrics_exporter"`
	TracingExporter   string  `mapstructure:"tracing_exporter"`
	OTLPEndpoint      string  `mapstructure:"otlp_endpoint"`
	OTLPInsecure      bool    `mapstructure:"otlp_insecure"`
	TraceSamplingRate float64 `mapstructure:"trace_sampling_rate"`
	DetailedLabels    bool    `mapstructure:"detailed_labels"`
	AuditEnabled      bool    `mapstructure:"audit_enabled"`
	AuditIncludePII   bool    `mapstructure:"audit_include_pii"`
}

// Config is the complete applytrack configuration.
type Config struct {
	Server          ServerConfig          `mapstructure:"server"`
	Log             LogConfig             `mapstructure:"log"`
	Database        DatabaseConfig        `mapstructure:"database"`
	Google          GoogleConfig          `mapstructure:"google"`
	Auth            AuthConfig            `mapstructure:"auth"`
	Redis           RedisConfig           `mapstructure:"redis"`
	Notify          NotifyConfig          `mapstructure:"notify"`
	Resume          ResumeConfig          `mapstructure:"resume"`
	Sync            SyncConfig            `mapstructure:"sync"`
	Instrumentation InstrumentationConfig `mapstructure:"instrumentation"`
}

// Options tells Load where to look besides the environment.
type Options struct {
	// File is an optional YAML config file. A missing file is an error only
	// when set explicitly.
	File string
	// DotEnv is the .env file to load; missing files are ignored.
	DotEnv string
	// Flags are bound by name through FlagKeys. Only flags the user set
	// override lower layers.
	Flags *pflag.FlagSet
}

// FlagKeys maps command-line flag names to configuration keys.
var FlagKeys = map[string]string{
	"addr":         "server.addr",
	"metrics-addr": "server.metrics_addr",
	"log-level":    "log.level",
	"log-format":   "log.format",
	"db-driver":    "database.driver",
	"db-dsn":       "database.dsn",
	"workers":      "sync.workers",
}

// legacyEnv lists conventional variable names accepted next to the
// prefixed ones.
var legacyEnv = map[string][]string{
	"google.client_id":     {"GOOGLE_CLIENT_ID"},
	"google.client_secret": {"GOOGLE_CLIENT_SECRET"},
	"database.dsn":         {"DATABASE_URL"},
	"redis.addr":           {"REDIS_ADDR"},
	"notify.amqp_url":      {"AMQP_URL"},
	"auth.jwt_secret":      {"JWT_SECRET"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.public_url", "http://localhost:8080")
	v.SetDefault("server.request_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.metrics_addr", ":9090")
	v.SetDefault("server.metrics_enabled", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.dsn", "applytrack.db")

	v.SetDefault("google.client_id", "")
	v.SetDefault("google.client_secret", "")
	v.SetDefault("google.redirect_url", "")
	v.SetDefault("google.auth_url", "")
	v.SetDefault("google.token_url", "")
	v.SetDefault("google.gmail_endpoint", "")
	v.SetDefault("google.http_timeout", 30*time.Second)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.state_ttl", 10*time.Minute)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", 2*time.Minute)

	v.SetDefault("notify.amqp_url", "")
	v.SetDefault("notify.exchange", "events")
	v.SetDefault("notify.routing_key", "application.sent")
	v.SetDefault("notify.queue_size", 100)

	v.SetDefault("resume.renderer_url", "")
	v.SetDefault("resume.max_bytes", 10<<20)
	v.SetDefault("resume.http_timeout", 30*time.Second)
	v.SetDefault("resume.attachment_name", "resume.pdf")

	v.SetDefault("sync.workers", 1)
	v.SetDefault("sync.query", "")

	v.SetDefault("instrumentation.enabled", true)
	v.SetDefault("instrumentation.metrics_exporter", "prometheus")
	v.SetDefault("instrumentation.tracing_exporter", "none")
	v.SetDefault("instrumentation.otlp_endpoint", "")
	v.SetDefault("instrumentation.otlp_insecure", false)
	v.SetDefault("instrumentation.trace_sampling_rate", 0.1)
	v.SetDefault("instrumentation.detailed_labels", false)
	v.SetDefault("instrumentation.audit_enabled", true)
	v.SetDefault("instrumentation.audit_include_pii", false)
}

// Load builds a Config from every layer.
func Load(opts Options) (*Config, error) {
	dotenv := opts.DotEnv
	if dotenv == "" {
		dotenv = ".env"
	}
	if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", dotenv, err)
	}

	v := viper.New()
	setDefaults(v)

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", opts.File, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(append([]string{key, prefixed}, names...)...); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	if opts.Flags != nil {
		for name, key := range FlagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Validate checks values every command needs. Server-only requirements are
// checked by ValidateServer.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("database.driver must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if c.Sync.Workers < 1 {
		errs = append(errs, fmt.Errorf("sync.workers must be at least 1, got %d", c.Sync.Workers))
	}
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, errors.New("server.request_timeout must be positive"))
	}
	if c.Resume.MaxBytes <= 0 {
		errs = append(errs, errors.New("resume.max_bytes must be positive"))
	}
	if c.Notify.QueueSize < 1 {
		errs = append(errs, errors.New("notify.queue_size must be at least 1"))
	}
	if c.Google.HTTPTimeout <= 0 {
		errs = append(errs, errors.New("google.http_timeout must be positive"))
	}
	// A refresh lock that expires mid-request lets another instance refresh
	// the same credential.
	if c.Redis.Addr != "" && c.Redis.LockTTL < 2*c.Google.HTTPTimeout {
		errs = append(errs, fmt.Errorf("redis.lock_ttl (%s) must be at least twice google.http_timeout (%s)",
			c.Redis.LockTTL, c.Google.HTTPTimeout))
	}

	return errors.Join(errs...)
}

// ValidateGoogle checks that the OAuth client is configured. Commands that
// refresh tokens call it.
func (c *Config) ValidateGoogle() error {
	var errs []error
	if c.Google.ClientID == "" {
		errs = append(errs, errors.New("google.client_id is required (GOOGLE_CLIENT_ID)"))
	}
	if c.Google.ClientSecret == "" {
		errs = append(errs, errors.New("google.client_secret is required (GOOGLE_CLIENT_SECRET)"))
	}
	return errors.Join(errs...)
}

// ValidateServer checks the values the HTTP API needs on top of Validate.
func (c *Config) ValidateServer() error {
	errs := []error{c.Validate(), c.ValidateGoogle()}
	if len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, errors.New("auth.jwt_secret must be at least 32 bytes"))
	}
	return errors.Join(errs...)
}

// RedirectURL returns the OAuth callback URL, derived from the public URL
// when not set explicitly.
func (c *Config) RedirectURL() string {
	if c.Google.RedirectURL != "" {
		return c.Google.RedirectURL
	}
	return strings.TrimRight(c.Server.PublicURL, "/") + "/api/google/callback"
}
