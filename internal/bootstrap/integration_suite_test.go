//go:build integration

package bootstrap_test

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/prometheus/client_golang/prometheus"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"blueprint-auth/internal/audit"
	"blueprint-auth/internal/bootstrap"
	"blueprint-auth/internal/config"
	"blueprint-auth/internal/credential"
	"blueprint-auth/internal/db/migrate"
	identityservice "blueprint-auth/internal/identity/service"
	"blueprint-auth/internal/mailer"
	"blueprint-auth/internal/policy/engine"
	"blueprint-auth/internal/security"
	tokenservice "blueprint-auth/internal/token/service"
	userservice "blueprint-auth/internal/user/service"
)

func TestPostgresIntegration(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Postgres Integration Suite")
}

type testEnv struct {
	container testcontainers.Container
	dsn       string
	stores    *bootstrap.Stores
	tokens    *tokenservice.Service
	auth      *identityservice.AuthService
	outbox    *mailer.Outbox
}

var env *testEnv

var _ = BeforeSuite(func() {
	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("blueprint_auth_test"),
		postgres.WithUsername("blueprint"),
		postgres.WithPassword("blueprint"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	Expect(err).NotTo(HaveOccurred())
	env = &testEnv{container: container}

	env.dsn, err = container.ConnectionString(ctx, "sslmode=disable")
	Expect(err).NotTo(HaveOccurred())
	Expect(migrate.Run(env.dsn, migrate.Up)).To(Succeed())

	env.stores, err = bootstrap.OpenStores(ctx, &config.Config{
		DatabaseURL:  env.dsn,
		SessionStore: config.StorePostgres,
	})
	Expect(err).NotTo(HaveOccurred())

	provider, err := security.NewTestTokenProvider()
	Expect(err).NotTo(HaveOccurred())
	evaluator, err := engine.NewOPAEvaluator(ctx, env.stores.Users, env.stores.Policies, nil)
	Expect(err).NotTo(HaveOccurred())

	auditLogger := audit.NewLogger(env.stores.Audit, nil, nil, nil)
	env.tokens = tokenservice.NewService(provider, env.stores.Sessions, time.Hour, evaluator, auditLogger,
		tokenservice.NewMetrics(prometheus.NewRegistry()))

	passwords := security.NewHasher(4)
	oneTime := security.NewArgon2Digester()
	env.outbox = mailer.NewOutbox(time.Hour)
	env.auth, err = identityservice.NewAuthService(identityservice.Deps{
		Users:      userservice.NewService(env.stores.Users),
		Identities: env.stores.Identities,
		Challenges: env.stores.Challenges,
		Tokens:     env.tokens,
		Verifier:   credential.NewVerifier(oneTime, passwords),
		Passwords:  passwords,
		OneTime:    oneTime,
		Mailer:     env.outbox,
		Audit:      auditLogger,
	}, identityservice.Config{
		MagicLinkURL:         "https://app.example.com/auth/magic",
		ExposeMagicLinkToken: true,
	})
	Expect(err).NotTo(HaveOccurred())
})

var _ = AfterSuite(func() {
	if env == nil {
		return
	}
	if env.stores != nil {
		env.stores.Close()
	}
	if env.container != nil {
		_ = env.container.Terminate(context.Background())
	}
})

func truncateAll(ctx context.Context) {
	_, err := env.stores.Pool.Exec(ctx,
		`TRUNCATE sessions, magic_links, identities, audit_events, issuance_policies, users CASCADE`)
	Expect(err).NotTo(HaveOccurred())
}
