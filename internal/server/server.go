// Package server exposes the auth core over HTTP with Fiber.
package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/oklog/ulid/v2"

	auditdomain "blueprint-auth/internal/audit/domain"
	identityservice "blueprint-auth/internal/identity/service"
	"blueprint-auth/internal/observability"
	"blueprint-auth/internal/security"
	sessiondomain "blueprint-auth/internal/session/domain"
	userdomain "blueprint-auth/internal/user/domain"
)

const requestIDLocal = "requestid"

// AuthAPI is the orchestrator surface the HTTP handlers call.
type AuthAPI interface {
	Register(ctx context.Context, in identityservice.RegisterInput) (*identityservice.AuthResult, error)
	Login(ctx context.Context, identifier, password string) (*identityservice.AuthResult, error)
	RequestMagicLink(ctx context.Context, email string) (*identityservice.MagicLinkResult, error)
	VerifyMagicLink(ctx context.Context, email, token string) (*identityservice.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*identityservice.AuthResult, error)
	Logout(ctx context.Context, token string)
	LogoutAll(ctx context.Context, subject string) (int64, error)
	ListSessions(ctx context.Context, subject string) ([]*sessiondomain.Session, error)
	GetProfile(ctx context.Context, subject string) (*userdomain.User, error)
	UpdateProfile(ctx context.Context, subject string, in identityservice.ProfileUpdate) (*userdomain.User, error)
}

// AccessVerifier verifies access tokens for protected routes.
type AccessVerifier interface {
	Verify(token string) (security.TokenPayload, error)
}

// AuditReader lists a subject's audit events.
type AuditReader interface {
	ListBySubject(ctx context.Context, subjectID string, limit, offset int32) ([]*auditdomain.Event, error)
}

// Deps holds the services behind the routes. Audit and Metrics may be nil.
type Deps struct {
	Auth    AuthAPI
	Tokens  AccessVerifier
	Audit   AuditReader
	Metrics *observability.HTTPMetrics
	Logger  *slog.Logger
}

// Options tunes cookies and request handling.
type Options struct {
	Production     bool
	CookieDomain   string
	CSRFCookieName string
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
	// ProxyHeader, when set, is the header Fiber reads the client IP from (e.g. X-Forwarded-For).
	ProxyHeader string
	// AuthRateLimit caps requests per client IP to /auth within AuthRateWindow. Zero disables it.
	AuthRateLimit  int
	AuthRateWindow time.Duration
	Version        string
}

// Server owns the Fiber app.
type Server struct {
	app    *fiber.App
	deps   Deps
	opts   Options
	logger *slog.Logger
}

// New builds the app and registers every route.
func New(deps Deps, opts Options) *Server {
	if opts.CSRFCookieName == "" {
		opts.CSRFCookieName = "XSRF-TOKEN"
	}
	if opts.AuthRateWindow <= 0 {
		opts.AuthRateWindow = 10 * time.Minute
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{deps: deps, opts: opts, logger: logger}
	s.app = fiber.New(fiber.Config{
		AppName:               "blueprint-auth",
		DisableStartupMessage: true,
		ErrorHandler:          s.errorHandler,
		ProxyHeader:           opts.ProxyHeader,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          15 * time.Second,
	})
	s.routes()
	return s
}

// App returns the underlying Fiber app, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("http server listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) routes() {
	app := s.app
	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{
		Header:     "X-Request-Id",
		Generator:  func() string { return ulid.Make().String() },
		ContextKey: requestIDLocal,
	}))
	app.Use(requestContext)
	app.Use(s.metrics)
	app.Use(s.csrfProtection())

	app.Get("/health", s.health)

	auth := app.Group("/auth")
	mobile := app.Group("/api/v1/mobile/auth")
	if s.opts.AuthRateLimit > 0 {
		limit := limiter.New(limiter.Config{
			Max:        s.opts.AuthRateLimit,
			Expiration: s.opts.AuthRateWindow,
			LimitReached: func(*fiber.Ctx) error {
				return fiber.ErrTooManyRequests
			},
		})
		auth.Use(limit)
		mobile.Use(limit)
	}
	auth.Post("/register", s.register)
	auth.Post("/login", s.login)
	auth.Post("/request-magic-link", s.requestMagicLink)
	auth.Post("/verify-magic-link", s.verifyMagicLink)
	auth.Post("/refresh", s.refresh)
	auth.Post("/logout", s.logout)
	auth.Post("/logout-all", s.requireAuth, s.logoutAll)
	auth.Get("/sessions", s.requireAuth, s.sessions)

	me := app.Group("/me", s.requireAuth)
	me.Get("/", s.me)
	me.Patch("/", s.updateMe)
	me.Get("/audit", s.myAudit)

	// Mobile clients use Bearer tokens and the same handlers without CSRF.
	mobile.Post("/login", s.login)
	mobile.Post("/verify-magic-link", s.verifyMagicLink)
	mobile.Post("/refresh", s.refresh)
	mobile.Post("/logout", s.logout)
}
