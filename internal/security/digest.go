package security

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// argon2id parameters for one-time tokens. The tokens are 256-bit random
// values, so a light profile is enough.
const (
	argon2Time    = 1
	argon2Memory  = 19 * 1024
	argon2Threads = 1
	argon2SaltLen = 16
	argon2KeyLen  = 32
)

// ErrInvalidDigest is returned when a stored digest cannot be parsed.
var ErrInvalidDigest = errors.New("invalid digest format")

// Argon2Digester hashes one-time tokens (magic links) into argon2id PHC strings.
type Argon2Digester struct{}

// NewArgon2Digester returns an Argon2Digester.
func NewArgon2Digester() *Argon2Digester {
	return &Argon2Digester{}
}

// Hash returns $argon2id$v=19$m=..,t=..,p=..$<salt>$<hash> for secret.
func (d *Argon2Digester) Hash(secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	salt, err := RandomBytes(argon2SaltLen)
	if err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(secret), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argon2Memory,
		argon2Time,
		argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify recomputes the digest with the stored parameters and compares in constant time.
func (d *Argon2Digester) Verify(digest, secret string) (bool, error) {
	parts := strings.Split(digest, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, ErrInvalidDigest
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false, ErrInvalidDigest
	}
	var memory, iterations, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return false, ErrInvalidDigest
	}
	if threads == 0 || threads > 255 {
		return false, ErrInvalidDigest
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, ErrInvalidDigest
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(want) == 0 || len(want) > 1024 {
		return false, ErrInvalidDigest
	}
	got := argon2.IDKey([]byte(secret), salt, iterations, memory, uint8(threads), uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
