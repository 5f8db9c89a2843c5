package server

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/csrf"

	"blueprint-auth/internal/audit"
	"blueprint-auth/internal/autherr"
)

const mobilePrefix = "/api/v1/mobile/"

// requestContext copies the request id and client IP into the user context so
// services and the audit logger can read them.
func requestContext(c *fiber.Ctx) error {
	id, _ := c.Locals(requestIDLocal).(string)
	ip := c.IP()
	withUserContext(c, func(ctx context.Context) context.Context {
		ctx = context.WithValue(ctx, requestIDKey, id)
		return audit.WithClientIP(ctx, ip)
	})
	return c.Next()
}

// metrics records method, matched route and status for every request.
func (s *Server) metrics(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	status := c.Response().StatusCode()
	if err != nil {
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		} else {
			status = autherr.HTTPStatus(autherr.CodeOf(err))
		}
	}
	s.deps.Metrics.Observe(c.Method(), c.Route().Path, status, time.Since(start))
	return err
}

// csrfProtection uses the double-submit cookie pattern. Requests carrying a
// Bearer token and mobile API paths are exempt.
func (s *Server) csrfProtection() fiber.Handler {
	return csrf.New(csrf.Config{
		KeyLookup:      "header:X-CSRF-Token",
		CookieName:     s.opts.CSRFCookieName,
		CookieDomain:   s.opts.CookieDomain,
		CookieSecure:   s.opts.Production,
		CookieHTTPOnly: false,
		CookieSameSite: "Strict",
		Expiration:     2 * time.Hour,
		Next: func(c *fiber.Ctx) bool {
			return strings.HasPrefix(c.Path(), mobilePrefix) || bearerToken(c) != ""
		},
		ErrorHandler: func(c *fiber.Ctx, _ error) error {
			return c.Status(fiber.StatusForbidden).JSON(errorBody{Error: "CSRF_INVALID", Message: "invalid csrf token"})
		},
	})
}

// requireAuth verifies the access token from the Bearer header or access cookie.
func (s *Server) requireAuth(c *fiber.Ctx) error {
	token := accessToken(c)
	if token == "" {
		return autherr.New(autherr.ErrInvalidToken)
	}
	payload, err := s.deps.Tokens.Verify(token)
	if err != nil || payload.TokenID != "" {
		return autherr.New(autherr.ErrInvalidToken)
	}
	withUserContext(c, func(ctx context.Context) context.Context {
		return WithSubject(ctx, payload.Subject)
	})
	return c.Next()
}

func subject(c *fiber.Ctx) (string, error) {
	sub, ok := SubjectFrom(c.UserContext())
	if !ok {
		return "", autherr.New(autherr.ErrInvalidToken)
	}
	return sub, nil
}
