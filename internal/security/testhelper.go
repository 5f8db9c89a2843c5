package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"time"
)

// TestSecret is the HS256 secret used by NewTestTokenProvider and by APP_ENV=test.
const TestSecret = "test-secret-not-for-production"

// NewTestTokenProvider returns an HS256 TokenProvider with a 15m access TTL and 24h refresh TTL.
// For unit tests only. Callers must not use in production.
func NewTestTokenProvider() (*TokenProvider, error) {
	key, err := NewHMACKey(TestSecret)
	if err != nil {
		return nil, err
	}
	return NewTokenProvider(key, "test-issuer", "test-audience", 15*time.Minute, 24*time.Hour, 0)
}

// NewTestKeyPairProvider returns an ES256 TokenProvider backed by a freshly generated P-256 key.
func NewTestKeyPairProvider() (*TokenProvider, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	privPEM, pubPEM, err := EncodeKeyPairPEM(priv)
	if err != nil {
		return nil, err
	}
	key, err := NewKeyPair(privPEM, pubPEM)
	if err != nil {
		return nil, err
	}
	return NewTokenProvider(key, "test-issuer", "test-audience", 15*time.Minute, 24*time.Hour, 0)
}

// EncodeKeyPairPEM returns PKCS#8 private and PKIX public PEM blocks for signer,
// the format NewKeyPair and JWT_PRIVATE_KEY/JWT_PUBLIC_KEY accept.
func EncodeKeyPairPEM(signer crypto.Signer) (string, string, error) {
	privDER, err := x509.MarshalPKCS8PrivateKey(signer)
	if err != nil {
		return "", "", err
	}
	pubDER, err := x509.MarshalPKIXPublicKey(signer.Public())
	if err != nil {
		return "", "", err
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	return string(privPEM), string(pubPEM), nil
}
