package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"blueprint-auth/internal/autherr"
	"blueprint-auth/internal/user/domain"
)

// Repo is the user persistence the service needs.
type Repo interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByPhone(ctx context.Context, phone string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	Update(ctx context.Context, u *domain.User) error
	Delete(ctx context.Context, id string) error
}

// RegisterInput carries the fields accepted when creating a user.
type RegisterInput struct {
	Email string
	Name  string
	Phone string // already normalised to E.164, or empty
	Role  domain.Role
}

// UpdateProfileInput carries optional profile changes. Nil fields are left unchanged.
type UpdateProfileInput struct {
	Email *string
	Name  *string
	Phone *string
}

// Service owns user profile rules: unique emails and not-found handling.
type Service struct {
	repo Repo
	now  func() time.Time
}

// NewService returns a user Service over repo.
func NewService(repo Repo) *Service {
	return &Service{repo: repo, now: time.Now}
}

// GetProfile returns the user or an autherr.ErrUserNotFound error.
func (s *Service) GetProfile(ctx context.Context, userID string) (*domain.User, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, autherr.New(autherr.ErrUserNotFound, "user_id", userID)
	}
	return u, nil
}

// FindByEmail returns the user with email, or (nil, nil).
func (s *Service) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.repo.GetByEmail(ctx, domain.NormalizeEmail(email))
}

// FindByPhone returns the user with the E.164 phone, or (nil, nil).
func (s *Service) FindByPhone(ctx context.Context, phone string) (*domain.User, error) {
	return s.repo.GetByPhone(ctx, phone)
}

// Register creates a user. The email is normalised and must not be in use.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	email := domain.NormalizeEmail(in.Email)
	existing, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, autherr.New(autherr.ErrDuplicateResource, "email", email)
	}
	now := s.now().UTC()
	u := &domain.User{
		ID:        uuid.New().String(),
		Email:     email,
		Name:      strings.TrimSpace(in.Name),
		Phone:     in.Phone,
		Role:      in.Role,
		Status:    domain.UserStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := u.Validate(); err != nil {
		return nil, autherr.Wrap(autherr.ErrValidation, err)
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Remove deletes the user. It undoes a Register whose follow-up writes failed.
func (s *Service) Remove(ctx context.Context, userID string) error {
	return s.repo.Delete(ctx, userID)
}

// FindOrCreateByEmail returns the user for email, creating a passwordless one when absent.
func (s *Service) FindOrCreateByEmail(ctx context.Context, email string) (*domain.User, error) {
	u, err := s.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u != nil {
		return u, nil
	}
	u, err = s.Register(ctx, RegisterInput{Email: email})
	if err == nil {
		return u, nil
	}
	// A concurrent first login for the same email may have won the insert.
	if errors.Is(err, autherr.ErrDuplicateResource) {
		if u, lookupErr := s.FindByEmail(ctx, email); lookupErr == nil && u != nil {
			return u, nil
		}
	}
	return nil, err
}

// UpdateProfile applies in to the user. Changing the email to one held by
// another user is an autherr.ErrDuplicateResource error.
func (s *Service) UpdateProfile(ctx context.Context, userID string, in UpdateProfileInput) (*domain.User, error) {
	u, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if in.Email != nil {
		email := domain.NormalizeEmail(*in.Email)
		if email != u.Email {
			existing, err := s.repo.GetByEmail(ctx, email)
			if err != nil {
				return nil, err
			}
			if existing != nil && existing.ID != userID {
				return nil, autherr.New(autherr.ErrDuplicateResource, "email", email)
			}
			u.Email = email
		}
	}
	if in.Name != nil {
		u.Name = strings.TrimSpace(*in.Name)
	}
	if in.Phone != nil {
		u.Phone = *in.Phone
	}
	if err := u.Validate(); err != nil {
		return nil, autherr.Wrap(autherr.ErrValidation, err)
	}
	u.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}
