//go:build integration

package bootstrap_test

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	auditdomain "blueprint-auth/internal/audit/domain"
	"blueprint-auth/internal/autherr"
	"blueprint-auth/internal/db/migrate"
	identityservice "blueprint-auth/internal/identity/service"
	policydomain "blueprint-auth/internal/policy/domain"
	sessiondomain "blueprint-auth/internal/session/domain"
	userdomain "blueprint-auth/internal/user/domain"
)

var _ = Describe("Auth flows on Postgres", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
		truncateAll(ctx)
	})

	register := func(email string) *identityservice.AuthResult {
		res, err := env.auth.Register(ctx, identityservice.RegisterInput{
			Email: email, Password: "Password123", Name: "Integration",
		})
		Expect(err).NotTo(HaveOccurred())
		return res
	}

	Describe("migrations", func() {
		It("reports the latest clean version", func() {
			v, dirty, err := migrate.Version(env.dsn)
			Expect(err).NotTo(HaveOccurred())
			Expect(dirty).To(BeFalse())
			Expect(v).To(BeEquivalentTo(6))
		})
	})

	Describe("password login", func() {
		It("registers, logs in and rejects a duplicate email", func() {
			reg := register("Flow@Example.com")

			login, err := env.auth.Login(ctx, "flow@example.com", "Password123")
			Expect(err).NotTo(HaveOccurred())
			Expect(login.UserID).To(Equal(reg.UserID))

			_, err = env.auth.Register(ctx, identityservice.RegisterInput{Email: "flow@example.com", Password: "Password123"})
			Expect(autherr.CodeOf(err)).To(Equal(autherr.CodeDuplicateResource))

			_, err = env.auth.Login(ctx, "flow@example.com", "wrong-password1")
			Expect(autherr.CodeOf(err)).To(Equal(autherr.CodeInvalidCredentials))
		})
	})

	Describe("refresh rotation", func() {
		It("revokes the presented session and records a replay", func() {
			reg := register("rotate@example.com")

			next, err := env.auth.Refresh(ctx, reg.RefreshToken)
			Expect(err).NotTo(HaveOccurred())
			Expect(next.RefreshToken).NotTo(Equal(reg.RefreshToken))

			_, err = env.auth.Refresh(ctx, reg.RefreshToken)
			Expect(autherr.CodeOf(err)).To(Equal(autherr.CodeSessionRevokedOrExpired))

			events, err := env.stores.Audit.ListBySubject(ctx, reg.UserID, 50, 0)
			Expect(err).NotTo(HaveOccurred())
			var actions []string
			for _, e := range events {
				actions = append(actions, e.Action)
			}
			Expect(actions).To(ContainElement(auditdomain.ActionRefreshReplay))
		})

		It("lets exactly one of many concurrent rotations win", func() {
			reg := register("race@example.com")

			const racers = 8
			var (
				wg   sync.WaitGroup
				mu   sync.Mutex
				wins int
			)
			for range racers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					_, err := env.auth.Refresh(ctx, reg.RefreshToken)
					if err == nil {
						mu.Lock()
						wins++
						mu.Unlock()
						return
					}
					Expect(autherr.CodeOf(err)).To(Equal(autherr.CodeSessionRevokedOrExpired))
				}()
			}
			wg.Wait()
			Expect(wins).To(Equal(1))
		})

		It("keeps logout silent and revokes every session on logout-all", func() {
			reg := register("logout@example.com")
			_, err := env.auth.Login(ctx, "logout@example.com", "Password123")
			Expect(err).NotTo(HaveOccurred())

			env.auth.Logout(ctx, "not-a-token")

			n, err := env.auth.LogoutAll(ctx, reg.UserID)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeEquivalentTo(2))

			_, err = env.auth.Refresh(ctx, reg.RefreshToken)
			Expect(autherr.CodeOf(err)).To(Equal(autherr.CodeSessionRevokedOrExpired))
		})
	})

	Describe("magic links", func() {
		It("is single use", func() {
			link, err := env.auth.RequestMagicLink(ctx, "magic@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(link.Token).NotTo(BeEmpty())

			res, err := env.auth.VerifyMagicLink(ctx, "magic@example.com", link.Token)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.UserID).NotTo(BeEmpty())

			_, err = env.auth.VerifyMagicLink(ctx, "magic@example.com", link.Token)
			Expect(autherr.CodeOf(err)).To(Equal(autherr.CodeInvalidMagicLink))
		})
	})

	Describe("issuance policies", func() {
		It("applies stored policies in place of the default", func() {
			Expect(env.stores.Policies.Create(ctx, &policydomain.Policy{
				ID:   uuid.NewString(),
				Name: "example-only",
				Rules: `package blueprint.issuance

allow if input.user.email_domain == "example.com"
`,
				Enabled:   true,
				CreatedAt: time.Now().UTC(),
			})).To(Succeed())

			register("allowed@example.com")

			_, err := env.auth.Register(ctx, identityservice.RegisterInput{
				Email: "blocked@other.org", Password: "Password123",
			})
			Expect(autherr.CodeOf(err)).To(Equal(autherr.CodeTokenIssuanceForbidden))
		})

		It("denies disabled users under the default policy", func() {
			reg := register("disabled@example.com")
			u, err := env.stores.Users.GetByID(ctx, reg.UserID)
			Expect(err).NotTo(HaveOccurred())
			u.Status = userdomain.UserStatusDisabled
			Expect(env.stores.Users.Update(ctx, u)).To(Succeed())

			_, err = env.auth.Login(ctx, "disabled@example.com", "Password123")
			Expect(autherr.CodeOf(err)).To(Equal(autherr.CodeTokenIssuanceForbidden))
		})
	})

	Describe("maintenance sweep", func() {
		It("deletes sessions past the retention cutoff only", func() {
			now := time.Now().UTC()
			old := &sessiondomain.Session{
				TokenID: uuid.NewString(), SubjectID: "sweep-subject",
				ExpiresAt: now.Add(-48 * time.Hour), CreatedAt: now.Add(-72 * time.Hour),
			}
			live := &sessiondomain.Session{
				TokenID: uuid.NewString(), SubjectID: "sweep-subject",
				ExpiresAt: now.Add(time.Hour), CreatedAt: now,
			}
			Expect(env.stores.Sessions.Create(ctx, old)).To(Succeed())
			Expect(env.stores.Sessions.Create(ctx, live)).To(Succeed())

			n, err := env.stores.Sessions.DeleteExpired(ctx, now.Add(-24*time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeEquivalentTo(1))

			got, err := env.stores.Sessions.FindByTokenID(ctx, live.TokenID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).NotTo(BeNil())
		})
	})
})
