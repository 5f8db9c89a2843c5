// Package service orchestrates registration, login, magic links and session lifecycle.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"blueprint-auth/internal/audit"
	auditdomain "blueprint-auth/internal/audit/domain"
	"blueprint-auth/internal/autherr"
	"blueprint-auth/internal/credential"
	identitydomain "blueprint-auth/internal/identity/domain"
	"blueprint-auth/internal/mailer"
	magiclinkdomain "blueprint-auth/internal/magiclink/domain"
	"blueprint-auth/internal/security"
	sessiondomain "blueprint-auth/internal/session/domain"
	tokenservice "blueprint-auth/internal/token/service"
	userdomain "blueprint-auth/internal/user/domain"
	userservice "blueprint-auth/internal/user/service"
)

// Users is the user collaborator.
type Users interface {
	GetProfile(ctx context.Context, userID string) (*userdomain.User, error)
	FindByEmail(ctx context.Context, email string) (*userdomain.User, error)
	FindByPhone(ctx context.Context, phone string) (*userdomain.User, error)
	Register(ctx context.Context, in userservice.RegisterInput) (*userdomain.User, error)
	FindOrCreateByEmail(ctx context.Context, email string) (*userdomain.User, error)
	UpdateProfile(ctx context.Context, userID string, in userservice.UpdateProfileInput) (*userdomain.User, error)
	Remove(ctx context.Context, userID string) error
}

// IdentityRepo is the minimal identity repository needed by the auth service.
type IdentityRepo interface {
	GetByUserAndProvider(ctx context.Context, userID string, provider identitydomain.IdentityProvider) (*identitydomain.Identity, error)
	Create(ctx context.Context, i *identitydomain.Identity) error
}

// ChallengeRepo stores magic-link challenges.
type ChallengeRepo interface {
	Create(ctx context.Context, c *magiclinkdomain.Challenge) error
	LatestUnused(ctx context.Context, email string) (*magiclinkdomain.Challenge, error)
	MarkUsed(ctx context.Context, id string, at time.Time) (bool, error)
}

// TokenIssuer is the token issuance service.
type TokenIssuer interface {
	IssueForSubject(ctx context.Context, subject string) (*tokenservice.Pair, error)
	Rotate(ctx context.Context, refreshToken string) (*tokenservice.Pair, error)
	RevokeForToken(ctx context.Context, token string) error
	RevokeAllForSubject(ctx context.Context, subject string) (int64, error)
	ListSessions(ctx context.Context, subject string) ([]*sessiondomain.Session, error)
}

// Digester hashes secrets for storage.
type Digester interface {
	Hash(secret string) (string, error)
}

// Config holds orchestrator settings.
type Config struct {
	// MagicLinkTTL is the challenge lifetime. Defaults to 15 minutes.
	MagicLinkTTL time.Duration
	// MagicLinkURL is the page the emailed link points at; email and token are appended.
	MagicLinkURL string
	// ExposeMagicLinkToken returns the raw token from RequestMagicLink. Never set in production.
	ExposeMagicLinkToken bool
	// PhoneRegion is the default region for phone identifiers without a country code.
	PhoneRegion string
}

// Deps are the collaborators of AuthService. Audit may be nil.
type Deps struct {
	Users      Users
	Identities IdentityRepo
	Challenges ChallengeRepo
	Tokens     TokenIssuer
	Verifier   *credential.Verifier
	Passwords  Digester
	OneTime    Digester
	Mailer     mailer.Mailer
	Audit      audit.AuditLogger
}

// RegisterInput is the password registration request.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// AuthResult is returned by every operation that issues tokens.
type AuthResult struct {
	UserID           string
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// MagicLinkResult is returned by RequestMagicLink. Token is set only when
// ExposeMagicLinkToken is enabled.
type MagicLinkResult struct {
	Token     string
	ExpiresAt time.Time
}

// AuthService implements register, login, magic-link, refresh and logout.
type AuthService struct {
	Deps
	cfg       Config
	dummyHash string
	now       func() time.Time
}

// NewAuthService returns an AuthService. It hashes a throwaway password once so that
// logins for unknown identifiers cost the same as a wrong password.
func NewAuthService(deps Deps, cfg Config) (*AuthService, error) {
	if cfg.MagicLinkTTL <= 0 {
		cfg.MagicLinkTTL = 15 * time.Minute
	}
	if cfg.PhoneRegion == "" {
		cfg.PhoneRegion = "US"
	}
	if deps.Audit == nil {
		deps.Audit = nopAudit{}
	}
	dummy, err := deps.Passwords.Hash(uuid.NewString())
	if err != nil {
		return nil, err
	}
	return &AuthService{Deps: deps, cfg: cfg, dummyHash: dummy, now: time.Now}, nil
}

// Register creates a user with a local password identity and issues tokens.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Email = userdomain.NormalizeEmail(in.Email)
	if err := in.Validate(); err != nil {
		return nil, autherr.Wrap(autherr.ErrValidation, err)
	}
	digest, err := s.Passwords.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	user, err := s.Users.Register(ctx, userservice.RegisterInput{Email: in.Email, Name: in.Name, Role: userdomain.RoleUser})
	if err != nil {
		return nil, err
	}
	ident := &identitydomain.Identity{
		ID:           uuid.NewString(),
		UserID:       user.ID,
		Provider:     identitydomain.IdentityProviderLocal,
		ProviderID:   user.Email,
		PasswordHash: digest,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.Identities.Create(ctx, ident); err != nil {
		if rmErr := s.Users.Remove(context.WithoutCancel(ctx), user.ID); rmErr != nil {
			return nil, errors.Join(err, rmErr)
		}
		return nil, err
	}
	s.Audit.LogEvent(ctx, user.ID, auditdomain.ActionRegister, auditdomain.ResourceUser, nil)
	return s.issue(ctx, user.ID)
}

// Login authenticates an email or phone identifier with a password. Unknown
// identifiers, passwordless accounts and wrong passwords are indistinguishable.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (*AuthResult, error) {
	user, err := s.lookupIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}
	var ident *identitydomain.Identity
	if user != nil {
		if ident, err = s.Identities.GetByUserAndProvider(ctx, user.ID, identitydomain.IdentityProviderLocal); err != nil {
			return nil, err
		}
	}
	if !ident.HasPassword() {
		_ = s.Verifier.VerifyPassword(password, s.dummyHash)
		return nil, s.loginFailed(ctx, "", "unknown_identifier")
	}
	if err := s.Verifier.VerifyPassword(password, ident.PasswordHash); err != nil {
		return nil, s.loginFailed(ctx, user.ID, "password_mismatch")
	}
	s.Audit.LogEvent(ctx, user.ID, auditdomain.ActionLoginSuccess, auditdomain.ResourceAuthentication,
		map[string]string{"method": "password"})
	return s.issue(ctx, user.ID)
}

func (s *AuthService) lookupIdentifier(ctx context.Context, identifier string) (*userdomain.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, nil
	}
	if userdomain.LooksLikePhone(identifier) {
		phone, err := userdomain.NormalizePhone(identifier, s.cfg.PhoneRegion)
		if err != nil {
			return nil, nil
		}
		return s.Users.FindByPhone(ctx, phone)
	}
	return s.Users.FindByEmail(ctx, identifier)
}

func (s *AuthService) loginFailed(ctx context.Context, subject, reason string) error {
	s.Audit.LogEvent(ctx, subject, auditdomain.ActionLoginFailure, auditdomain.ResourceAuthentication,
		map[string]string{"reason": reason})
	return autherr.New(autherr.ErrInvalidCredentials)
}

// RequestMagicLink stores a new challenge for email and delivers the link.
// Delivery failures are autherr.ErrDeliveryFailed; the challenge stays valid.
func (s *AuthService) RequestMagicLink(ctx context.Context, email string) (*MagicLinkResult, error) {
	email = userdomain.NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, autherr.Wrap(autherr.ErrValidation, err)
	}
	token, err := security.NewOneTimeToken()
	if err != nil {
		return nil, err
	}
	digest, err := s.OneTime.Hash(token)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	ch := &magiclinkdomain.Challenge{
		ID:        uuid.NewString(),
		Email:     email,
		TokenHash: digest,
		ExpiresAt: now.Add(s.cfg.MagicLinkTTL),
		CreatedAt: now,
	}
	if err := s.Challenges.Create(ctx, ch); err != nil {
		return nil, err
	}
	link, err := mailer.BuildLink(s.cfg.MagicLinkURL, email, token)
	if err != nil {
		return nil, err
	}
	if err := s.Mailer.SendMagicLink(ctx, email, link); err != nil {
		return nil, autherr.Wrap(autherr.ErrDeliveryFailed, err, "email", email)
	}
	s.Audit.LogEvent(ctx, "", auditdomain.ActionMagicLinkRequested, auditdomain.ResourceAuthentication,
		map[string]string{"email": email})

	res := &MagicLinkResult{ExpiresAt: ch.ExpiresAt}
	if s.cfg.ExposeMagicLinkToken {
		res.Token = token
	}
	return res, nil
}

// VerifyMagicLink consumes the latest unused challenge for email, finds or creates
// the user and issues tokens. Every failure is autherr.ErrInvalidMagicLink.
func (s *AuthService) VerifyMagicLink(ctx context.Context, email, token string) (*AuthResult, error) {
	email = userdomain.NormalizeEmail(email)
	ch, err := s.Challenges.LatestUnused(ctx, email)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, s.magicLinkFailed(ctx, email, "no_challenge")
	}
	if err := s.Verifier.VerifyMagicLink(token, ch.TokenHash, ch.ExpiresAt, ch.UsedAt); err != nil {
		return nil, s.magicLinkFailed(ctx, email, failureReason(err))
	}
	won, err := s.Challenges.MarkUsed(ctx, ch.ID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, s.magicLinkFailed(ctx, email, failureReason(credential.ErrAlreadyUsed))
	}

	user, err := s.Users.FindOrCreateByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := s.ensureMagicLinkIdentity(ctx, user); err != nil {
		return nil, err
	}
	s.Audit.LogEvent(ctx, user.ID, auditdomain.ActionMagicLinkVerified, auditdomain.ResourceAuthentication,
		map[string]string{"method": "magic_link"})
	return s.issue(ctx, user.ID)
}

func (s *AuthService) ensureMagicLinkIdentity(ctx context.Context, user *userdomain.User) error {
	existing, err := s.Identities.GetByUserAndProvider(ctx, user.ID, identitydomain.IdentityProviderMagicLink)
	if err != nil || existing != nil {
		return err
	}
	err = s.Identities.Create(ctx, &identitydomain.Identity{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		Provider:   identitydomain.IdentityProviderMagicLink,
		ProviderID: user.Email,
		CreatedAt:  s.now().UTC(),
	})
	if errors.Is(err, autherr.ErrDuplicateResource) {
		return nil
	}
	return err
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, credential.ErrExpired):
		return "expired"
	case errors.Is(err, credential.ErrAlreadyUsed):
		return "already_used"
	default:
		return "mismatch"
	}
}

func (s *AuthService) magicLinkFailed(ctx context.Context, email, reason string) error {
	s.Audit.LogEvent(ctx, "", auditdomain.ActionMagicLinkFailure, auditdomain.ResourceAuthentication,
		map[string]string{"email": email, "reason": reason})
	return autherr.New(autherr.ErrInvalidMagicLink)
}

// Refresh rotates the refresh token.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	pair, err := s.Tokens.Rotate(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	return toResult(pair), nil
}

// Logout revokes the session of token. It never fails: verification and
// revocation errors are discarded here, unlike Refresh.
func (s *AuthService) Logout(ctx context.Context, token string) {
	if err := s.Tokens.RevokeForToken(ctx, token); err != nil {
		slog.DebugContext(ctx, "logout: token not revoked", "code", autherr.CodeOf(err))
	}
}

// LogoutAll revokes every session of subject.
func (s *AuthService) LogoutAll(ctx context.Context, subject string) (int64, error) {
	return s.Tokens.RevokeAllForSubject(ctx, subject)
}

// ListSessions returns subject's sessions, newest first.
func (s *AuthService) ListSessions(ctx context.Context, subject string) ([]*sessiondomain.Session, error) {
	return s.Tokens.ListSessions(ctx, subject)
}

// GetProfile returns the authenticated subject's user record.
func (s *AuthService) GetProfile(ctx context.Context, subject string) (*userdomain.User, error) {
	return s.Users.GetProfile(ctx, subject)
}

// ProfileUpdate carries optional profile changes. Phone may be in any format
// accepted by PhoneRegion; an empty phone clears it.
type ProfileUpdate struct {
	Email *string
	Name  *string
	Phone *string
}

// UpdateProfile applies changes to the subject's profile.
func (s *AuthService) UpdateProfile(ctx context.Context, subject string, in ProfileUpdate) (*userdomain.User, error) {
	upd := userservice.UpdateProfileInput{Email: in.Email, Name: in.Name}
	if in.Email != nil {
		if err := validateEmail(*in.Email); err != nil {
			return nil, autherr.Wrap(autherr.ErrValidation, err)
		}
	}
	if in.Phone != nil {
		phone := ""
		if strings.TrimSpace(*in.Phone) != "" {
			p, err := userdomain.NormalizePhone(*in.Phone, s.cfg.PhoneRegion)
			if err != nil {
				return nil, autherr.Wrap(autherr.ErrValidation, err)
			}
			phone = p
		}
		upd.Phone = &phone
	}
	user, err := s.Users.UpdateProfile(ctx, subject, upd)
	if err != nil {
		return nil, err
	}
	s.Audit.LogEvent(ctx, subject, auditdomain.ActionProfileUpdated, auditdomain.ResourceUser, nil)
	return user, nil
}

func (s *AuthService) issue(ctx context.Context, subject string) (*AuthResult, error) {
	pair, err := s.Tokens.IssueForSubject(ctx, subject)
	if err != nil {
		return nil, err
	}
	return toResult(pair), nil
}

func toResult(p *tokenservice.Pair) *AuthResult {
	return &AuthResult{
		UserID:           p.SubjectID,
		AccessToken:      p.AccessToken,
		RefreshToken:     p.RefreshToken,
		RefreshExpiresAt: p.ExpiresAt,
	}
}

type nopAudit struct{}

func (nopAudit) LogEvent(context.Context, string, string, string, map[string]string) {}
