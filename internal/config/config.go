// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Session store kinds.
const (
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMemory   = "memory"
)

// Mailer kinds.
const (
	MailerLog    = "log"
	MailerSMTP   = "smtp"
	MailerHTTP   = "http"
	MailerOutbox = "outbox"
)

const maxLeeway = 2 * time.Minute

// Config holds application configuration loaded from the environment.
type Config struct {
	// Env is the application environment ("development", "test", "production").
	Env string `mapstructure:"APP_ENV"`
	// HTTPAddr is the address the auth API listens on.
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// MetricsAddr is the address of the metrics and health probe listener. Empty disables it.
	MetricsAddr string `mapstructure:"METRICS_ADDR"`
	// DatabaseURL is the Postgres DSN. Empty keeps every store in memory (development only).
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// SessionStore selects the session backend: postgres, redis or memory.
	// Empty means postgres when DATABASE_URL is set, memory otherwise.
	SessionStore string `mapstructure:"SESSION_STORE"`
	// RedisURL is the redis:// URL used when SessionStore is redis.
	RedisURL string `mapstructure:"REDIS_URL"`

	// JWTSecret is the HS256 signing secret. Ignored when a key pair is set.
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; used with JWT_PUBLIC_KEY for RS256/ES256.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string        `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer    string        `mapstructure:"JWT_ISSUER"`
	JWTAudience  string        `mapstructure:"JWT_AUDIENCE"`
	AccessTTL    time.Duration `mapstructure:"JWT_ACCESS_TTL"`
	RefreshTTL   time.Duration `mapstructure:"JWT_REFRESH_TTL"`
	// JWTLeeway is the clock skew tolerated when verifying exp; at most 2m.
	JWTLeeway time.Duration `mapstructure:"JWT_LEEWAY"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	MagicLinkBaseURL string        `mapstructure:"MAGIC_LINK_BASE_URL"`
	MagicLinkTTL     time.Duration `mapstructure:"MAGIC_LINK_TTL"`
	// Mailer selects delivery: log, smtp, http or outbox. outbox is refused in production.
	Mailer      string `mapstructure:"MAILER"`
	MailFrom    string `mapstructure:"MAIL_FROM"`
	SMTPAddr    string `mapstructure:"SMTP_ADDR"`
	SMTPUser    string `mapstructure:"SMTP_USER"`
	SMTPPass    string `mapstructure:"SMTP_PASS"`
	MailAPIURL  string `mapstructure:"MAIL_API_URL"`
	MailAPIKey  string `mapstructure:"MAIL_API_KEY"`
	PhoneRegion string `mapstructure:"PHONE_REGION"`

	// CookieDomain is set on auth cookies when non-empty.
	CookieDomain   string `mapstructure:"COOKIE_DOMAIN"`
	CSRFCookieName string `mapstructure:"CSRF_COOKIE_NAME"`

	// MetricsAllowlist is a comma-separated list of addresses or CIDR prefixes allowed to scrape /metrics.
	MetricsAllowlist string `mapstructure:"METRICS_ALLOWLIST"`
	MetricsUser      string `mapstructure:"METRICS_USER"`
	MetricsPass      string `mapstructure:"METRICS_PASS"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// OTLPEndpoint enables OpenTelemetry export when set (host:port or URL).
	OTLPEndpoint     string  `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure     bool    `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	TraceSampleRatio float64 `mapstructure:"OTEL_TRACES_SAMPLER_ARG"`

	// Audit forwarding (optional). When Kafka brokers are set, audit events are also produced to Kafka.
	// TelemetryKafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	TelemetryKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	TelemetryKafkaTopic   string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`
	// Worker-only: Loki URL the audit forwarder pushes to (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaGroupID is the consumer group ID for the audit forwarder.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`

	// Worker-only: retention windows and sweep period.
	SessionRetention time.Duration `mapstructure:"SESSION_RETENTION"`
	AuditRetention   time.Duration `mapstructure:"AUDIT_RETENTION"`
	SweepInterval    time.Duration `mapstructure:"SWEEP_INTERVAL"`
}

var defaults = map[string]any{
	"APP_ENV":                     "development",
	"HTTP_ADDR":                   ":4000",
	"METRICS_ADDR":                ":9100",
	"DATABASE_URL":                "",
	"SESSION_STORE":               "",
	"REDIS_URL":                   "",
	"JWT_SECRET":                  "",
	"JWT_PRIVATE_KEY":             "",
	"JWT_PUBLIC_KEY":              "",
	"JWT_ISSUER":                  "blueprint-auth",
	"JWT_AUDIENCE":                "blueprint-api",
	"JWT_ACCESS_TTL":              "15m",
	"JWT_REFRESH_TTL":             "336h", // 14d
	"JWT_LEEWAY":                  "0s",
	"BCRYPT_COST":                 12,
	"MAGIC_LINK_BASE_URL":         "http://localhost:3000/auth/callback",
	"MAGIC_LINK_TTL":              "15m",
	"MAILER":                      MailerLog,
	"MAIL_FROM":                   "no-reply@localhost",
	"SMTP_ADDR":                   "",
	"SMTP_USER":                   "",
	"SMTP_PASS":                   "",
	"MAIL_API_URL":                "",
	"MAIL_API_KEY":                "",
	"PHONE_REGION":                "US",
	"COOKIE_DOMAIN":               "",
	"CSRF_COOKIE_NAME":            "XSRF-TOKEN",
	"METRICS_ALLOWLIST":           "127.0.0.1,::1",
	"METRICS_USER":                "",
	"METRICS_PASS":                "",
	"LOG_LEVEL":                   "info",
	"LOG_FORMAT":                  "json",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "",
	"OTEL_EXPORTER_OTLP_INSECURE": false,
	"OTEL_TRACES_SAMPLER_ARG":     1.0,
	"KAFKA_BROKERS":               "",
	"TELEMETRY_KAFKA_TOPIC":       "blueprint-auth-audit",
	"LOKI_URL":                    "",
	"KAFKA_GROUP_ID":              "blueprint-auth-audit-forwarder",
	"SESSION_RETENTION":           "720h",
	"AUDIT_RETENTION":             "2160h",
	"SWEEP_INTERVAL":              "1h",
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if c.JWTIssuer == "" || c.JWTAudience == "" {
		return errors.New("config: JWT_ISSUER and JWT_AUDIENCE must be set")
	}
	if (c.JWTPrivateKey == "") != (c.JWTPublicKey == "") {
		return errors.New("config: JWT_PRIVATE_KEY and JWT_PUBLIC_KEY must be set together")
	}
	if c.JWTSecret == "" && !c.HasKeyPair() && !c.IsTest() {
		return errors.New("config: JWT_SECRET is required")
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 || c.MagicLinkTTL <= 0 {
		return errors.New("config: JWT_ACCESS_TTL, JWT_REFRESH_TTL and MAGIC_LINK_TTL must be positive")
	}
	if c.JWTLeeway < 0 || c.JWTLeeway > maxLeeway {
		return errors.New("config: JWT_LEEWAY must be between 0s and 2m")
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = 12
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	if c.IsProduction() && c.DatabaseURL == "" {
		return errors.New("config: DATABASE_URL is required when APP_ENV=production")
	}

	switch c.SessionStoreKind() {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: SESSION_STORE=postgres requires DATABASE_URL")
		}
	case StoreRedis:
		if c.RedisURL == "" {
			return errors.New("config: SESSION_STORE=redis requires REDIS_URL")
		}
	case StoreMemory:
	default:
		return errors.New("config: SESSION_STORE must be postgres, redis or memory")
	}

	switch c.Mailer {
	case MailerLog:
	case MailerOutbox:
		if c.IsProduction() {
			return errors.New("config: MAILER=outbox must not be used when APP_ENV=production")
		}
	case MailerSMTP:
		if c.SMTPAddr == "" {
			return errors.New("config: MAILER=smtp requires SMTP_ADDR")
		}
	case MailerHTTP:
		if c.MailAPIURL == "" || c.MailAPIKey == "" {
			return errors.New("config: MAILER=http requires MAIL_API_URL and MAIL_API_KEY")
		}
	default:
		return errors.New("config: MAILER must be log, smtp, http or outbox")
	}

	if c.TraceSampleRatio < 0 || c.TraceSampleRatio > 1 {
		return errors.New("config: OTEL_TRACES_SAMPLER_ARG must be between 0 and 1")
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool { return c.Env == "production" }

// IsTest reports whether APP_ENV is test.
func (c *Config) IsTest() bool { return c.Env == "test" }

// HasKeyPair reports whether asymmetric JWT keys are configured.
func (c *Config) HasKeyPair() bool { return c.JWTPrivateKey != "" && c.JWTPublicKey != "" }

// ExposeMagicLinkToken reports whether RequestMagicLink may return the raw token.
func (c *Config) ExposeMagicLinkToken() bool { return !c.IsProduction() }

// SessionStoreKind resolves the effective session store.
func (c *Config) SessionStoreKind() string {
	if c.SessionStore != "" {
		return strings.ToLower(c.SessionStore)
	}
	if c.DatabaseURL != "" {
		return StorePostgres
	}
	return StoreMemory
}

// MetricsAllowlistEntries returns the metrics allowlist split on commas.
func (c *Config) MetricsAllowlistEntries() []string {
	return splitList(c.MetricsAllowlist)
}

// TelemetryKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if forwarding is enabled (non-empty list) and to create the producer.
func (c *Config) TelemetryKafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.TelemetryKafkaBrokers)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
