package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidKey is returned when PEM or key type is invalid.
	ErrInvalidKey = errors.New("invalid key")
	// ErrMissingSecret is returned when no signing material is configured.
	ErrMissingSecret = errors.New("signing secret is required")
)

// minSecretLen is the minimum HS256 secret length in bytes.
const minSecretLen = 16

// SigningKey pairs a JWT signing method with the keys used to sign and verify.
// HS256 uses the same secret for both.
type SigningKey struct {
	Method    jwt.SigningMethod
	signKey   any
	verifyKey any
}

// NewHMACKey returns an HS256 SigningKey for secret. An empty secret is a
// configuration error and must stop the process at startup.
func NewHMACKey(secret string) (*SigningKey, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrMissingSecret
	}
	if len(secret) < minSecretLen {
		return nil, errors.New("signing secret must be at least 16 bytes")
	}
	b := []byte(secret)
	return &SigningKey{Method: jwt.SigningMethodHS256, signKey: b, verifyKey: b}, nil
}

// NewKeyPair returns an RS256 or ES256 SigningKey from PEM material. Each of
// privatePEM and publicPEM may be inline PEM or a path to a PEM file.
func NewKeyPair(privatePEM, publicPEM string) (*SigningKey, error) {
	priv, err := parsePrivateKey(privatePEM)
	if err != nil {
		return nil, err
	}
	pub, err := parsePublicKey(publicPEM)
	if err != nil {
		return nil, err
	}
	var method jwt.SigningMethod
	switch pub.(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return nil, ErrInvalidKey
	}
	if KeyAlg(priv.Public()) != method.Alg() {
		return nil, errors.New("private and public key types differ")
	}
	return &SigningKey{Method: method, signKey: priv, verifyKey: pub}, nil
}

// loadPEM reads content from path if s does not look like inline PEM; otherwise returns s as bytes.
// Literal "\n" sequences (common in env files) are expanded.
func loadPEM(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalidKey
	}
	if strings.HasPrefix(s, "-----BEGIN") {
		return []byte(strings.ReplaceAll(s, `\n`, "\n")), nil
	}
	return os.ReadFile(s)
}

func parsePrivateKey(s string) (crypto.Signer, error) {
	pemBytes, err := loadPEM(s)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, ErrInvalidKey
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, ErrInvalidKey
		}
		return signer, nil
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	default:
		return nil, ErrInvalidKey
	}
}

func parsePublicKey(s string) (crypto.PublicKey, error) {
	pemBytes, err := loadPEM(s)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, ErrInvalidKey
	}
	switch block.Type {
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	case "PUBLIC KEY":
		return x509.ParsePKIXPublicKey(block.Bytes)
	default:
		return nil, ErrInvalidKey
	}
}

// KeyAlg returns "RS256" for RSA and "ES256" for ECDSA; empty otherwise.
func KeyAlg(pub crypto.PublicKey) string {
	switch pub.(type) {
	case *rsa.PublicKey:
		return "RS256"
	case *ecdsa.PublicKey:
		return "ES256"
	default:
		return ""
	}
}
