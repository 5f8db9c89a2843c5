package config

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

// setenv clears the environment and applies kv for the duration of the test.
func setenv(t *testing.T, kv ...string) {
	t.Helper()
	os.Clearenv()
	for i := 0; i+1 < len(kv); i += 2 {
		t.Setenv(kv[i], kv[i+1])
	}
}

func TestLoad_Defaults(t *testing.T) {
	setenv(t, "JWT_SECRET", "s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":4000" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":4000")
	}
	if cfg.JWTIssuer != "blueprint-auth" || cfg.JWTAudience != "blueprint-api" {
		t.Errorf("issuer/audience = %q/%q", cfg.JWTIssuer, cfg.JWTAudience)
	}
	if cfg.AccessTTL != 15*time.Minute {
		t.Errorf("AccessTTL = %v, want 15m", cfg.AccessTTL)
	}
	if cfg.RefreshTTL != 14*24*time.Hour {
		t.Errorf("RefreshTTL = %v, want 336h", cfg.RefreshTTL)
	}
	if cfg.MagicLinkTTL != 15*time.Minute {
		t.Errorf("MagicLinkTTL = %v, want 15m", cfg.MagicLinkTTL)
	}
	if cfg.JWTLeeway != 0 {
		t.Errorf("JWTLeeway = %v, want 0", cfg.JWTLeeway)
	}
	if cfg.BcryptCost != 12 {
		t.Errorf("BcryptCost = %d, want 12", cfg.BcryptCost)
	}
	if cfg.SessionStoreKind() != StoreMemory {
		t.Errorf("SessionStoreKind = %q, want memory without DATABASE_URL", cfg.SessionStoreKind())
	}
	if cfg.Mailer != MailerLog {
		t.Errorf("Mailer = %q, want log", cfg.Mailer)
	}
	if !cfg.ExposeMagicLinkToken() {
		t.Error("magic link token should be exposed outside production")
	}
	if got := cfg.MetricsAllowlistEntries(); !reflect.DeepEqual(got, []string{"127.0.0.1", "::1"}) {
		t.Errorf("MetricsAllowlistEntries = %v", got)
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	setenv(t,
		"JWT_SECRET", "s",
		"HTTP_ADDR", ":9090",
		"JWT_ISSUER", "custom-issuer",
		"JWT_ACCESS_TTL", "30m",
		"JWT_LEEWAY", "30s",
		"BCRYPT_COST", "14",
		"DATABASE_URL", "postgres://localhost/auth",
	)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" || cfg.JWTIssuer != "custom-issuer" || cfg.BcryptCost != 14 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.AccessTTL != 30*time.Minute || cfg.JWTLeeway != 30*time.Second {
		t.Errorf("durations = %v/%v", cfg.AccessTTL, cfg.JWTLeeway)
	}
	if cfg.SessionStoreKind() != StorePostgres {
		t.Errorf("SessionStoreKind = %q, want postgres", cfg.SessionStoreKind())
	}
}

func TestLoad_JWTSecretRequired(t *testing.T) {
	setenv(t)
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "JWT_SECRET") {
		t.Fatalf("expected JWT_SECRET error, got %v", err)
	}

	setenv(t, "APP_ENV", "test")
	if _, err := Load(); err != nil {
		t.Fatalf("APP_ENV=test should not require a secret: %v", err)
	}

	setenv(t, "JWT_PRIVATE_KEY", "priv.pem", "JWT_PUBLIC_KEY", "pub.pem")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("key pair should satisfy signing config: %v", err)
	}
	if !cfg.HasKeyPair() {
		t.Error("HasKeyPair should be true")
	}

	setenv(t, "JWT_PRIVATE_KEY", "priv.pem", "JWT_SECRET", "s")
	if _, err := Load(); err == nil {
		t.Fatal("half a key pair should be rejected")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		kv   []string
		want string
	}{
		{"leeway too large", []string{"JWT_LEEWAY", "5m"}, "JWT_LEEWAY"},
		{"negative ttl", []string{"JWT_REFRESH_TTL", "-1h"}, "must be positive"},
		{"zero ttl", []string{"MAGIC_LINK_TTL", "0s"}, "must be positive"},
		{"unknown store", []string{"SESSION_STORE", "mongo"}, "SESSION_STORE"},
		{"postgres without dsn", []string{"SESSION_STORE", "postgres"}, "DATABASE_URL"},
		{"redis without url", []string{"SESSION_STORE", "redis"}, "REDIS_URL"},
		{"smtp without addr", []string{"MAILER", "smtp"}, "SMTP_ADDR"},
		{"http without key", []string{"MAILER", "http", "MAIL_API_URL", "https://mail"}, "MAIL_API_KEY"},
		{"unknown mailer", []string{"MAILER", "pigeon"}, "MAILER"},
		{"outbox in production", []string{"MAILER", "outbox", "APP_ENV", "production", "DATABASE_URL", "postgres://db/auth"}, "outbox"},
		{"production without dsn", []string{"APP_ENV", "production"}, "DATABASE_URL"},
		{"sample ratio", []string{"OTEL_TRACES_SAMPLER_ARG", "1.5"}, "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setenv(t, append([]string{"JWT_SECRET", "s"}, tt.kv...)...)
			cfg, err := Load()
			if err == nil {
				t.Fatal("Load should return error")
			}
			if cfg != nil {
				t.Error("Load should return nil config on error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want mention of %q", err.Error(), tt.want)
			}
		})
	}
}

func TestLoad_BCRYPT_COSTRange(t *testing.T) {
	testCases := []struct {
		name  string
		value string
		want  int
		err   bool
	}{
		{"valid min", "4", 4, false},
		{"valid max", "31", 31, false},
		{"too low", "3", 0, true},
		{"too high", "32", 0, true},
		{"zero", "0", 12, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			setenv(t, "JWT_SECRET", "s", "BCRYPT_COST", tc.value)

			cfg, err := Load()
			if tc.err {
				if err == nil {
					t.Fatal("Load should return error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.BcryptCost != tc.want {
				t.Errorf("BcryptCost = %d, want %d", cfg.BcryptCost, tc.want)
			}
		})
	}
}

func TestLoad_Production(t *testing.T) {
	setenv(t, "JWT_SECRET", "s", "APP_ENV", "production", "SESSION_STORE", "redis", "REDIS_URL", "redis://localhost:6379/0")
	if _, err := Load(); err == nil {
		t.Fatal("production without DATABASE_URL should be rejected")
	}

	setenv(t, "JWT_SECRET", "s", "APP_ENV", "production", "DATABASE_URL", "postgres://localhost/auth",
		"SESSION_STORE", "redis", "REDIS_URL", "redis://localhost:6379/0")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.IsProduction() || cfg.ExposeMagicLinkToken() {
		t.Error("production must not expose magic link tokens")
	}
	if cfg.SessionStoreKind() != StoreRedis {
		t.Errorf("SessionStoreKind = %q, want redis", cfg.SessionStoreKind())
	}
}

func TestTelemetryKafkaBrokersList(t *testing.T) {
	var nilCfg *Config
	if got := nilCfg.TelemetryKafkaBrokersList(); got != nil {
		t.Errorf("nil config: got %v", got)
	}
	cfg := &Config{TelemetryKafkaBrokers: " a:9092, ,b:9092 "}
	if got := cfg.TelemetryKafkaBrokersList(); !reflect.DeepEqual(got, []string{"a:9092", "b:9092"}) {
		t.Errorf("got %v", got)
	}
}
