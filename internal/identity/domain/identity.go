package domain

import "time"

// Identity links a user to a way of proving who they are. Local identities hold
// the bcrypt password digest; magic-link identities carry no secret.
type Identity struct {
	ID           string
	UserID       string
	Provider     IdentityProvider
	ProviderID   string // email for local and magic-link identities
	PasswordHash string // empty if not local
	CreatedAt    time.Time
}

type IdentityProvider string

const (
	IdentityProviderLocal     IdentityProvider = "local"
	IdentityProviderMagicLink IdentityProvider = "magic_link"
)

// HasPassword reports whether the identity can be used for password login.
func (i *Identity) HasPassword() bool {
	return i != nil && i.Provider == IdentityProviderLocal && i.PasswordHash != ""
}
