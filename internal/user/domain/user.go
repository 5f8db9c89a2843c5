package domain

import (
	"errors"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"
)

// User is the core user entity.
type User struct {
	ID        string
	Email     string
	Name      string
	Phone     string // E.164; empty when not set
	Role      Role
	Status    UserStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

var e164 = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)

// ErrInvalidPhone is returned when a phone number cannot be parsed or is not a valid number.
var ErrInvalidPhone = errors.New("invalid phone number")

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone parses raw in defaultRegion (ISO 3166 alpha-2, used when raw has
// no + prefix) and returns it formatted as E.164.
func NormalizePhone(raw, defaultRegion string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidPhone
	}
	num, err := phonenumbers.Parse(raw, defaultRegion)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", ErrInvalidPhone
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// LooksLikePhone reports whether identifier should be treated as a phone number
// rather than an email address.
func LooksLikePhone(identifier string) bool {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || strings.Contains(identifier, "@") {
		return false
	}
	for _, r := range identifier {
		switch {
		case r >= '0' && r <= '9':
		case r == '+', r == ' ', r == '-', r == '(', r == ')', r == '.':
		default:
			return false
		}
	}
	return true
}

// Validate validates the user for persistence and fills defaults for Role and Status.
func (u *User) Validate() error {
	if u.Status == "" {
		u.Status = UserStatusActive
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	return validation.ValidateStruct(u,
		validation.Field(&u.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&u.Name, validation.Length(0, 200)),
		validation.Field(&u.Phone, validation.Match(e164)),
		validation.Field(&u.Role, validation.In(RoleUser, RoleAdmin)),
		validation.Field(&u.Status, validation.In(UserStatusActive, UserStatusDisabled)),
	)
}
