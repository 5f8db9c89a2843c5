// Package service implements refresh-token issuance and one-time rotation over the session store.
package service

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"blueprint-auth/internal/audit"
	auditdomain "blueprint-auth/internal/audit/domain"
	"blueprint-auth/internal/autherr"
	"blueprint-auth/internal/security"
	sessiondomain "blueprint-auth/internal/session/domain"
)

// TokensProvider signs and verifies tokens. security.TokenProvider is the production implementation.
type TokensProvider interface {
	SignAccess(subject string) (string, error)
	SignRefresh(subject, tokenID string) (string, error)
	Verify(token string) (security.TokenPayload, error)
}

// IssuancePolicy decides whether a subject may receive tokens.
type IssuancePolicy interface {
	CanIssueTokens(ctx context.Context, subject string) (bool, error)
}

// SessionStore is the subset of the session repository used here.
type SessionStore interface {
	Create(ctx context.Context, s *sessiondomain.Session) error
	FindByTokenID(ctx context.Context, tokenID string) (*sessiondomain.Session, error)
	Revoke(ctx context.Context, tokenID string) error
	RevokeIfActive(ctx context.Context, tokenID string, now time.Time) (bool, error)
	ListBySubject(ctx context.Context, subjectID string) ([]*sessiondomain.Session, error)
	RevokeAllBySubject(ctx context.Context, subjectID string) (int64, error)
}

// Pair is a freshly issued token pair. ExpiresAt is the refresh session's expiry.
type Pair struct {
	SubjectID    string
	AccessToken  string
	RefreshToken string
	TokenID      string
	ExpiresAt    time.Time
}

// Service issues, rotates and revokes refresh-token sessions.
type Service struct {
	tokens     TokensProvider
	sessions   SessionStore
	refreshTTL time.Duration
	policy     IssuancePolicy
	audit      audit.AuditLogger
	metrics    *Metrics
	tracer     trace.Tracer
	now        func() time.Time
}

// NewService returns a token Service. policy, auditLogger and metrics may be nil.
func NewService(tokens TokensProvider, sessions SessionStore, refreshTTL time.Duration, policy IssuancePolicy, auditLogger audit.AuditLogger, metrics *Metrics) *Service {
	return &Service{
		tokens:     tokens,
		sessions:   sessions,
		refreshTTL: refreshTTL,
		policy:     policy,
		audit:      auditLogger,
		metrics:    metrics,
		tracer:     otel.Tracer("blueprint-auth/token"),
		now:        time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// IssueForSubject checks the issuance policy, then signs a new pair and persists its session.
func (s *Service) IssueForSubject(ctx context.Context, subject string) (*Pair, error) {
	ctx, span := s.tracer.Start(ctx, "token.IssueForSubject", trace.WithAttributes(attribute.String("subject_id", subject)))
	defer span.End()

	pair, err := s.issue(ctx, subject)
	s.finish(span, opIssue, err)
	return pair, err
}

// Rotate exchanges a refresh token for a new pair. The presented token's session is
// revoked with a conditional update before the replacement is issued, so of several
// concurrent calls with the same token at most one succeeds. Rotation is not compensable.
func (s *Service) Rotate(ctx context.Context, refreshToken string) (*Pair, error) {
	ctx, span := s.tracer.Start(ctx, "token.Rotate")
	defer span.End()

	pair, err := s.rotate(ctx, span, refreshToken)
	s.finish(span, opRotate, err)
	return pair, err
}

func (s *Service) rotate(ctx context.Context, span trace.Span, refreshToken string) (*Pair, error) {
	payload, err := s.tokens.Verify(refreshToken)
	if err != nil {
		return nil, autherr.New(autherr.ErrInvalidToken)
	}
	if payload.TokenID == "" {
		return nil, autherr.New(autherr.ErrMalformedToken, "subject_id", payload.Subject)
	}
	span.SetAttributes(attribute.String("subject_id", payload.Subject), attribute.String("session_id", payload.TokenID))

	sess, err := s.sessions.FindByTokenID(ctx, payload.TokenID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	switch {
	case sess == nil || sess.SubjectID != payload.Subject:
		return nil, autherr.New(autherr.ErrSessionRevokedOrExpired, "subject_id", payload.Subject)
	case sess.IsRevoked():
		s.replayDetected(ctx, sess)
		return nil, autherr.New(autherr.ErrSessionRevokedOrExpired, "subject_id", payload.Subject)
	case sess.IsExpiredAt(now):
		return nil, autherr.New(autherr.ErrSessionRevokedOrExpired, "subject_id", payload.Subject)
	}

	if err := s.checkPolicy(ctx, payload.Subject); err != nil {
		return nil, err
	}
	won, err := s.sessions.RevokeIfActive(ctx, payload.TokenID, now)
	if err != nil {
		return nil, err
	}
	if !won {
		s.replayDetected(ctx, sess)
		return nil, autherr.New(autherr.ErrSessionRevokedOrExpired, "subject_id", payload.Subject)
	}

	pair, err := s.signAndStore(ctx, payload.Subject)
	if err != nil {
		return nil, err
	}
	s.record(ctx, payload.Subject, auditdomain.ActionTokenRefreshed, map[string]string{
		"previous_session_id": payload.TokenID,
		"session_id":          pair.TokenID,
	})
	return pair, nil
}

// RevokeForToken verifies token and revokes its session. Errors are returned
// so the caller decides; logout discards them.
func (s *Service) RevokeForToken(ctx context.Context, token string) error {
	ctx, span := s.tracer.Start(ctx, "token.RevokeForToken")
	defer span.End()

	err := s.revokeForToken(ctx, token)
	s.finish(span, opRevoke, err)
	return err
}

func (s *Service) revokeForToken(ctx context.Context, token string) error {
	if token == "" {
		return autherr.New(autherr.ErrInvalidToken)
	}
	payload, err := s.tokens.Verify(token)
	if err != nil {
		return autherr.New(autherr.ErrInvalidToken)
	}
	if payload.TokenID == "" {
		return autherr.New(autherr.ErrMalformedToken, "subject_id", payload.Subject)
	}
	if err := s.sessions.Revoke(ctx, payload.TokenID); err != nil {
		return err
	}
	s.record(ctx, payload.Subject, auditdomain.ActionLogout, map[string]string{"session_id": payload.TokenID})
	return nil
}

// RevokeAllForSubject revokes every active session of subject and returns the count.
func (s *Service) RevokeAllForSubject(ctx context.Context, subject string) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "token.RevokeAllForSubject", trace.WithAttributes(attribute.String("subject_id", subject)))
	defer span.End()

	n, err := s.sessions.RevokeAllBySubject(ctx, subject)
	s.finish(span, opRevoke, err)
	if err != nil {
		return 0, err
	}
	s.record(ctx, subject, auditdomain.ActionLogoutAll, map[string]string{"revoked": strconv.FormatInt(n, 10)})
	return n, nil
}

// ListSessions returns the subject's sessions, newest first.
func (s *Service) ListSessions(ctx context.Context, subject string) ([]*sessiondomain.Session, error) {
	return s.sessions.ListBySubject(ctx, subject)
}

func (s *Service) issue(ctx context.Context, subject string) (*Pair, error) {
	if err := s.checkPolicy(ctx, subject); err != nil {
		return nil, err
	}
	pair, err := s.signAndStore(ctx, subject)
	if err != nil {
		return nil, err
	}
	s.record(ctx, subject, auditdomain.ActionTokenIssued, map[string]string{"session_id": pair.TokenID})
	return pair, nil
}

func (s *Service) checkPolicy(ctx context.Context, subject string) error {
	if s.policy == nil {
		return nil
	}
	allowed, err := s.policy.CanIssueTokens(ctx, subject)
	if err != nil {
		return err
	}
	if !allowed {
		s.record(ctx, subject, auditdomain.ActionIssuanceDenied, nil)
		return autherr.New(autherr.ErrTokenIssuanceForbidden, "subject_id", subject)
	}
	return nil
}

func (s *Service) signAndStore(ctx context.Context, subject string) (*Pair, error) {
	tokenID, err := security.NewTokenID()
	if err != nil {
		return nil, err
	}
	access, err := s.tokens.SignAccess(subject)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.SignRefresh(subject, tokenID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	sess := &sessiondomain.Session{
		TokenID:   tokenID,
		SubjectID: subject,
		ExpiresAt: now.Add(s.refreshTTL),
		CreatedAt: now,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}
	return &Pair{
		SubjectID:    subject,
		AccessToken:  access,
		RefreshToken: refresh,
		TokenID:      tokenID,
		ExpiresAt:    sess.ExpiresAt,
	}, nil
}

// replayDetected records the reuse of a refresh token whose session is already revoked.
func (s *Service) replayDetected(ctx context.Context, sess *sessiondomain.Session) {
	s.metrics.replay()
	slog.WarnContext(ctx, "refresh token replay", "subject_id", sess.SubjectID, "session_id", sess.TokenID)
	s.record(ctx, sess.SubjectID, auditdomain.ActionRefreshReplay, map[string]string{"session_id": sess.TokenID})
}

func (s *Service) record(ctx context.Context, subject, action string, meta map[string]string) {
	if s.audit == nil {
		return
	}
	s.audit.LogEvent(ctx, subject, action, auditdomain.ResourceSession, meta)
}

func (s *Service) finish(span trace.Span, op string, err error) {
	if err != nil {
		code := autherr.CodeOf(err)
		span.SetAttributes(attribute.String("error.code", code))
		if code == autherr.CodeInternal {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		s.metrics.observe(op, code)
		return
	}
	s.metrics.observe(op, "ok")
}
