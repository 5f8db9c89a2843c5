package server

import (
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"

	auditdomain "blueprint-auth/internal/audit/domain"
	"blueprint-auth/internal/autherr"
	identityservice "blueprint-auth/internal/identity/service"
	sessiondomain "blueprint-auth/internal/session/domain"
	userdomain "blueprint-auth/internal/user/domain"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

// identifierOrEmail returns the identifier, falling back to the email field.
func (r loginRequest) identifierOrEmail() string {
	if r.Identifier != "" {
		return r.Identifier
	}
	return r.Email
}

func (r loginRequest) Validate() error {
	identifier := r.identifierOrEmail()
	return validation.ValidateStruct(&r,
		validation.Field(&r.Identifier, validation.By(func(any) error {
			if strings.TrimSpace(identifier) == "" {
				return errors.New("identifier or email is required")
			}
			return nil
		})),
		validation.Field(&r.Password, validation.Required, validation.Length(1, 128)),
	)
}

type emailRequest struct {
	Email string `json:"email"`
}

func (r emailRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

type verifyRequest struct {
	Email string `json:"email"`
	Token string `json:"token"`
}

func (r verifyRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Token, validation.Required, validation.Length(32, 256)),
	)
}

type profileRequest struct {
	Email *string `json:"email"`
	Name  *string `json:"name"`
	Phone *string `json:"phone"`
}

func (r profileRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.NilOrNotEmpty, is.Email),
		validation.Field(&r.Name, validation.Length(0, 200)),
	)
}

type tokenResponse struct {
	OK               bool      `json:"ok"`
	UserID           string    `json:"userId"`
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

type sessionResponse struct {
	ID        string     `json:"id"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt time.Time  `json:"expiresAt"`
	RevokedAt *time.Time `json:"revokedAt,omitempty"`
	Active    bool       `json:"active"`
}

// bind parses the JSON body into v and runs its validation rules.
func bind(c *fiber.Ctx, v validation.Validatable) error {
	if len(c.Body()) > 0 {
		if err := c.BodyParser(v); err != nil {
			return autherr.Wrap(autherr.ErrValidation, err)
		}
	}
	if err := v.Validate(); err != nil {
		return autherr.Wrap(autherr.ErrValidation, err)
	}
	return nil
}

func (s *Server) tokens(c *fiber.Ctx, status int, res *identityservice.AuthResult) error {
	s.setAuthCookies(c, res.AccessToken, res.RefreshToken)
	return c.Status(status).JSON(tokenResponse{
		OK:               true,
		UserID:           res.UserID,
		AccessToken:      res.AccessToken,
		RefreshToken:     res.RefreshToken,
		RefreshExpiresAt: res.RefreshExpiresAt,
	})
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"ok": true, "service": "api", "version": s.opts.Version})
}

func (s *Server) register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return autherr.Wrap(autherr.ErrValidation, err)
	}
	res, err := s.deps.Auth.Register(c.UserContext(), identityservice.RegisterInput{
		Email: req.Email, Password: req.Password, Name: req.Name,
	})
	if err != nil {
		return err
	}
	return s.tokens(c, fiber.StatusCreated, res)
}

func (s *Server) login(c *fiber.Ctx) error {
	var req loginRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	res, err := s.deps.Auth.Login(c.UserContext(), req.identifierOrEmail(), req.Password)
	if err != nil {
		return err
	}
	return s.tokens(c, fiber.StatusOK, res)
}

func (s *Server) requestMagicLink(c *fiber.Ctx) error {
	var req emailRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	res, err := s.deps.Auth.RequestMagicLink(c.UserContext(), req.Email)
	if err != nil {
		return err
	}
	body := fiber.Map{"ok": true, "expiresAt": res.ExpiresAt}
	if res.Token != "" {
		body["devToken"] = res.Token
	}
	return c.Status(fiber.StatusAccepted).JSON(body)
}

func (s *Server) verifyMagicLink(c *fiber.Ctx) error {
	var req verifyRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	res, err := s.deps.Auth.VerifyMagicLink(c.UserContext(), req.Email, req.Token)
	if err != nil {
		return err
	}
	return s.tokens(c, fiber.StatusOK, res)
}

func (s *Server) refresh(c *fiber.Ctx) error {
	token := refreshToken(c)
	if token == "" {
		return autherr.New(autherr.ErrInvalidToken)
	}
	res, err := s.deps.Auth.Refresh(c.UserContext(), token)
	if err != nil {
		return err
	}
	return s.tokens(c, fiber.StatusOK, res)
}

func (s *Server) logout(c *fiber.Ctx) error {
	s.deps.Auth.Logout(c.UserContext(), refreshToken(c))
	s.clearAuthCookies(c)
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) logoutAll(c *fiber.Ctx) error {
	sub, err := subject(c)
	if err != nil {
		return err
	}
	n, err := s.deps.Auth.LogoutAll(c.UserContext(), sub)
	if err != nil {
		return err
	}
	s.clearAuthCookies(c)
	return c.JSON(fiber.Map{"ok": true, "revoked": n})
}

func (s *Server) sessions(c *fiber.Ctx) error {
	sub, err := subject(c)
	if err != nil {
		return err
	}
	list, err := s.deps.Auth.ListSessions(c.UserContext(), sub)
	if err != nil {
		return err
	}
	now := time.Now()
	out := make([]sessionResponse, 0, len(list))
	for _, sess := range list {
		out = append(out, toSessionResponse(sess, now))
	}
	return c.JSON(fiber.Map{"sessions": out})
}

func (s *Server) me(c *fiber.Ctx) error {
	sub, err := subject(c)
	if err != nil {
		return err
	}
	u, err := s.deps.Auth.GetProfile(c.UserContext(), sub)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"ok": true, "user": toUserResponse(u)})
}

func (s *Server) updateMe(c *fiber.Ctx) error {
	sub, err := subject(c)
	if err != nil {
		return err
	}
	var req profileRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	u, err := s.deps.Auth.UpdateProfile(c.UserContext(), sub, identityservice.ProfileUpdate{
		Email: req.Email, Name: req.Name, Phone: req.Phone,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"ok": true, "user": toUserResponse(u)})
}

func (s *Server) myAudit(c *fiber.Ctx) error {
	if s.deps.Audit == nil {
		return fiber.ErrNotFound
	}
	sub, err := subject(c)
	if err != nil {
		return err
	}
	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	offset := max(c.QueryInt("offset", 0), 0)
	events, err := s.deps.Audit.ListBySubject(c.UserContext(), sub, int32(limit), int32(offset))
	if err != nil {
		return err
	}
	if events == nil {
		events = []*auditdomain.Event{}
	}
	return c.JSON(fiber.Map{"events": events})
}

func toUserResponse(u *userdomain.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Phone:     u.Phone,
		Role:      strings.ToUpper(string(u.Role)),
		CreatedAt: u.CreatedAt,
	}
}

func toSessionResponse(sess *sessiondomain.Session, now time.Time) sessionResponse {
	return sessionResponse{
		ID:        sess.TokenID,
		CreatedAt: sess.CreatedAt,
		ExpiresAt: sess.ExpiresAt,
		RevokedAt: sess.RevokedAt,
		Active:    sess.IsActiveAt(now),
	}
}
