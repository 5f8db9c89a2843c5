package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for every verification failure: bad signature,
// wrong issuer or audience, expiry, or a missing subject. Callers cannot tell
// which check failed.
var ErrInvalidToken = errors.New("invalid token")

// maxLeeway bounds the configurable clock-skew tolerance.
const maxLeeway = 2 * time.Minute

// TokenPayload is the verified content of a token. TokenID is set only on refresh tokens.
type TokenPayload struct {
	Subject string
	TokenID string
}

// TokenProvider signs and verifies compact JWTs bound to one key, issuer and audience.
type TokenProvider struct {
	key        *SigningKey
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	leeway     time.Duration
	parser     *jwt.Parser
	now        func() time.Time
}

// NewTokenProvider returns a TokenProvider. leeway is the tolerated clock skew
// on expiry; zero means strict.
func NewTokenProvider(key *SigningKey, issuer, audience string, accessTTL, refreshTTL, leeway time.Duration) (*TokenProvider, error) {
	if key == nil {
		return nil, ErrMissingSecret
	}
	if issuer == "" || audience == "" {
		return nil, errors.New("issuer and audience are required")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("token TTLs must be positive")
	}
	if leeway < 0 || leeway > maxLeeway {
		return nil, errors.New("leeway must be between 0 and 2m")
	}
	p := &TokenProvider{
		key:        key,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		leeway:     leeway,
		now:        time.Now,
	}
	p.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{key.Method.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(leeway),
		jwt.WithTimeFunc(func() time.Time { return p.now() }),
	)
	return p, nil
}

// WithClock replaces the time source. Intended for tests.
func (p *TokenProvider) WithClock(now func() time.Time) *TokenProvider {
	p.now = now
	return p
}

// AccessTTL returns the access token lifetime.
func (p *TokenProvider) AccessTTL() time.Duration { return p.accessTTL }

// RefreshTTL returns the refresh token lifetime.
func (p *TokenProvider) RefreshTTL() time.Duration { return p.refreshTTL }

// SignAccess issues a short-lived access token carrying only the subject.
func (p *TokenProvider) SignAccess(subject string) (string, error) {
	return p.sign(subject, "", p.accessTTL)
}

// SignRefresh issues a refresh token carrying subject and tokenID (as jti).
func (p *TokenProvider) SignRefresh(subject, tokenID string) (string, error) {
	if tokenID == "" {
		return "", errors.New("refresh token requires a token id")
	}
	return p.sign(subject, tokenID, p.refreshTTL)
}

func (p *TokenProvider) sign(subject, tokenID string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("subject is required")
	}
	now := p.now().UTC().Truncate(time.Second)
	claims := jwt.RegisteredClaims{
		ID:        tokenID,
		Subject:   subject,
		Issuer:    p.issuer,
		Audience:  jwt.ClaimStrings{p.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(p.key.Method, claims).SignedString(p.key.signKey)
}

// Verify parses and validates token (signature, exp, iss, aud) and returns its payload.
func (p *TokenProvider) Verify(token string) (TokenPayload, error) {
	if token == "" {
		return TokenPayload{}, ErrInvalidToken
	}
	var claims jwt.RegisteredClaims
	parsed, err := p.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return p.key.verifyKey, nil
	})
	if err != nil || !parsed.Valid {
		return TokenPayload{}, ErrInvalidToken
	}
	if claims.Subject == "" {
		return TokenPayload{}, ErrInvalidToken
	}
	return TokenPayload{Subject: claims.Subject, TokenID: claims.ID}, nil
}
