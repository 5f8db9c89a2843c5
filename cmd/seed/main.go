// seed creates development users and the default issuance policy. Safe to run repeatedly.
// Run after migrations: go run ./cmd/seed. Refuses to run when APP_ENV=production.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"blueprint-auth/internal/config"
	"blueprint-auth/internal/db"
	identitydomain "blueprint-auth/internal/identity/domain"
	identityrepo "blueprint-auth/internal/identity/repository"
	policydomain "blueprint-auth/internal/policy/domain"
	"blueprint-auth/internal/policy/engine"
	policyrepo "blueprint-auth/internal/policy/repository"
	"blueprint-auth/internal/security"
	userdomain "blueprint-auth/internal/user/domain"
	userrepo "blueprint-auth/internal/user/repository"
)

type seedUser struct {
	Email    string
	Name     string
	Password string
	Role     userdomain.Role
}

var devUsers = []seedUser{
	{Email: "admin@example.com", Name: "System Administrator", Password: "Admin123!", Role: userdomain.RoleAdmin},
	{Email: "demo.user@example.com", Name: "Demo User", Password: "Demo123!", Role: userdomain.RoleUser},
}

const defaultPolicyName = "default-issuance"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.IsProduction() {
		log.Println("seed: refusing to seed a production database")
		os.Exit(0)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.Open(ctx, cfg.DatabaseURL, db.Options{})
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
	defer pool.Close()

	s := &seeder{
		users:      userrepo.NewPostgresRepository(pool),
		identities: identityrepo.NewPostgresRepository(pool),
		policies:   policyrepo.NewPostgresRepository(pool),
		hasher:     security.NewHasher(cfg.BcryptCost),
	}
	for _, u := range devUsers {
		id, err := s.ensureUser(ctx, u)
		if err != nil {
			log.Fatalf("seed: %v", err)
		}
		log.Printf("seed: user %s (%s) ready, password %s", u.Email, id, u.Password)
	}
	if err := s.ensurePolicy(ctx); err != nil {
		log.Fatalf("seed: %v", err)
	}
	log.Println("seed: done")
}

type seeder struct {
	users      userrepo.Repository
	identities identityrepo.Repository
	policies   policyrepo.Repository
	hasher     *security.Hasher
}

// ensureUser creates the user and its local identity if missing, and resets the
// password of an existing local identity so the documented credentials always work.
func (s *seeder) ensureUser(ctx context.Context, su seedUser) (string, error) {
	now := time.Now().UTC()
	email := userdomain.NormalizeEmail(su.Email)
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if u == nil {
		u = &userdomain.User{
			ID:        uuid.New().String(),
			Email:     email,
			Name:      su.Name,
			Role:      su.Role,
			Status:    userdomain.UserStatusActive,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.users.Create(ctx, u); err != nil {
			return "", err
		}
	}

	hash, err := s.hasher.Hash(su.Password)
	if err != nil {
		return "", oops.In("seed").With("email", email).Wrapf(err, "hash password")
	}
	ident, err := s.identities.GetByUserAndProvider(ctx, u.ID, identitydomain.IdentityProviderLocal)
	if err != nil {
		return "", err
	}
	if ident != nil {
		return u.ID, s.identities.UpdatePasswordHash(ctx, ident.ID, hash)
	}
	err = s.identities.Create(ctx, &identitydomain.Identity{
		ID:           uuid.New().String(),
		UserID:       u.ID,
		Provider:     identitydomain.IdentityProviderLocal,
		ProviderID:   email,
		PasswordHash: hash,
		CreatedAt:    now,
	})
	return u.ID, err
}

// ensurePolicy stores the built-in issuance rules as an enabled policy unless one with that name exists.
func (s *seeder) ensurePolicy(ctx context.Context) error {
	enabled, err := s.policies.ListEnabled(ctx)
	if err != nil {
		return err
	}
	for _, p := range enabled {
		if p.Name == defaultPolicyName {
			return nil
		}
	}
	return s.policies.Create(ctx, &policydomain.Policy{
		ID:        uuid.New().String(),
		Name:      defaultPolicyName,
		Rules:     engine.DefaultRegoPolicy,
		Enabled:   true,
		CreatedAt: time.Now().UTC(),
	})
}
