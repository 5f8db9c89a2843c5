package server

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

const (
	accessCookie  = "access"
	refreshCookie = "sid"
	bearerPrefix  = "bearer "
)

func (s *Server) setAuthCookies(c *fiber.Ctx, access, refresh string) {
	c.Cookie(&fiber.Cookie{
		Name:     accessCookie,
		Value:    access,
		Path:     "/",
		Domain:   s.opts.CookieDomain,
		MaxAge:   int(s.opts.AccessTTL / time.Second),
		Secure:   s.opts.Production,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	c.Cookie(&fiber.Cookie{
		Name:     refreshCookie,
		Value:    refresh,
		Path:     "/",
		Domain:   s.opts.CookieDomain,
		MaxAge:   int(s.opts.RefreshTTL / time.Second),
		Secure:   s.opts.Production,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

func (s *Server) clearAuthCookies(c *fiber.Ctx) {
	for _, name := range []string{accessCookie, refreshCookie} {
		c.Cookie(&fiber.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			Domain:   s.opts.CookieDomain,
			Expires:  time.Unix(0, 0),
			MaxAge:   -1,
			Secure:   s.opts.Production,
			HTTPOnly: true,
		})
	}
}

// bearerToken returns the Bearer token from the Authorization header, or "" if missing or malformed.
func bearerToken(c *fiber.Ctx) string {
	v := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(v) < len(bearerPrefix) || !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}

// refreshToken prefers the Bearer header, then the sid cookie.
func refreshToken(c *fiber.Ctx) string {
	if t := bearerToken(c); t != "" {
		return t
	}
	return c.Cookies(refreshCookie)
}

// accessToken prefers the Bearer header, then the access cookie.
func accessToken(c *fiber.Ctx) string {
	if t := bearerToken(c); t != "" {
		return t
	}
	return c.Cookies(accessCookie)
}
