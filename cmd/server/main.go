// server runs the auth HTTP API and, when METRICS_ADDR is set, the metrics and probe listener.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"blueprint-auth/internal/audit"
	"blueprint-auth/internal/bootstrap"
	"blueprint-auth/internal/config"
	"blueprint-auth/internal/credential"
	identityservice "blueprint-auth/internal/identity/service"
	"blueprint-auth/internal/logging"
	"blueprint-auth/internal/observability"
	"blueprint-auth/internal/policy/engine"
	"blueprint-auth/internal/security"
	"blueprint-auth/internal/server"
	"blueprint-auth/internal/telemetry"
	oteltelemetry "blueprint-auth/internal/telemetry/otel"
	"blueprint-auth/internal/telemetry/producer"
	tokenservice "blueprint-auth/internal/token/service"
	userservice "blueprint-auth/internal/user/service"
)

const serviceName = "blueprint-auth"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.SetDefault(serviceName, version, cfg.LogFormat, logging.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logging.LogError(ctx, logger, "server exited", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	providers, err := oteltelemetry.NewProviders(ctx, oteltelemetry.Config{
		Endpoint:       cfg.OTLPEndpoint,
		ServiceName:    serviceName,
		ServiceVersion: version,
		Insecure:       cfg.OTLPInsecure,
		SampleRatio:    cfg.TraceSampleRatio,
	})
	if err != nil {
		return err
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = providers.Shutdown(shutdownCtx)
	}()

	stores, err := bootstrap.OpenStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	kafka := producer.NewKafkaProducer(cfg.TelemetryKafkaBrokersList(), cfg.TelemetryKafkaTopic)
	defer func() { _ = kafka.Close() }()
	auditLogger := audit.NewLogger(stores.Audit,
		telemetry.Multi(oteltelemetry.NewEventEmitter(providers.LoggerProvider), kafka), logger, nil)

	tokens, err := bootstrap.TokenProvider(cfg)
	if err != nil {
		return err
	}
	evaluator, err := engine.NewOPAEvaluator(ctx, stores.Users, stores.Policies, logger)
	if err != nil {
		return err
	}

	ready := func(ctx context.Context) bool {
		return stores.Ready(ctx) && evaluator.HealthCheck(ctx) == nil
	}
	registry := prometheus.NewRegistry()
	var obs *observability.Server
	if cfg.MetricsAddr != "" {
		guard, err := observability.NewGuard(cfg.MetricsAllowlistEntries(), cfg.MetricsUser, cfg.MetricsPass)
		if err != nil {
			return err
		}
		obs = observability.NewServer(cfg.MetricsAddr, ready, guard)
		registry = obs.Registry()
		if _, err := obs.Start(); err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = obs.Stop(stopCtx)
		}()
	}

	passwords := security.NewHasher(cfg.BcryptCost)
	oneTime := security.NewArgon2Digester()
	issuer := tokenservice.NewService(tokens, stores.Sessions, cfg.RefreshTTL, evaluator, auditLogger,
		tokenservice.NewMetrics(registry))
	auth, err := identityservice.NewAuthService(identityservice.Deps{
		Users:      userservice.NewService(stores.Users),
		Identities: stores.Identities,
		Challenges: stores.Challenges,
		Tokens:     issuer,
		Verifier:   credential.NewVerifier(oneTime, passwords),
		Passwords:  passwords,
		OneTime:    oneTime,
		Mailer:     bootstrap.Mailer(cfg, logger),
		Audit:      auditLogger,
	}, identityservice.Config{
		MagicLinkTTL:         cfg.MagicLinkTTL,
		MagicLinkURL:         cfg.MagicLinkBaseURL,
		ExposeMagicLinkToken: cfg.ExposeMagicLinkToken(),
		PhoneRegion:          cfg.PhoneRegion,
	})
	if err != nil {
		return err
	}

	srv := server.New(server.Deps{
		Auth:    auth,
		Tokens:  tokens,
		Audit:   stores.Audit,
		Metrics: observability.NewHTTPMetrics(registry),
		Logger:  logger,
	}, server.Options{
		Production:     cfg.IsProduction(),
		CookieDomain:   cfg.CookieDomain,
		CSRFCookieName: cfg.CSRFCookieName,
		AccessTTL:      cfg.AccessTTL,
		RefreshTTL:     cfg.RefreshTTL,
		AuthRateLimit:  100,
		AuthRateWindow: 10 * time.Minute,
		Version:        version,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Listen(cfg.HTTPAddr) }()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
		return errors.New("http server stopped unexpectedly")
	case <-ctx.Done():
	}

	logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	// let async audit emits finish before the providers shut down
	time.Sleep(telemetry.ShutdownDrainDuration)
	logger.Info("http server stopped")
	return nil
}
