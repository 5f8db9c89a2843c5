package bootstrap

import (
	"log/slog"
	"time"

	"blueprint-auth/internal/config"
	"blueprint-auth/internal/mailer"
	"blueprint-auth/internal/security"
)

// TokenProvider builds the JWT codec: RS256/ES256 when a key pair is set,
// otherwise HS256 from JWT_SECRET. APP_ENV=test may run without a secret.
func TokenProvider(cfg *config.Config) (*security.TokenProvider, error) {
	var (
		key *security.SigningKey
		err error
	)
	switch {
	case cfg.HasKeyPair():
		key, err = security.NewKeyPair(cfg.JWTPrivateKey, cfg.JWTPublicKey)
	case cfg.JWTSecret == "" && cfg.IsTest():
		key, err = security.NewHMACKey(security.TestSecret)
	default:
		key, err = security.NewHMACKey(cfg.JWTSecret)
	}
	if err != nil {
		return nil, err
	}
	return security.NewTokenProvider(key, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL, cfg.RefreshTTL, cfg.JWTLeeway)
}

// Mailer returns the delivery channel selected by MAILER.
func Mailer(cfg *config.Config, logger *slog.Logger) mailer.Mailer {
	switch cfg.Mailer {
	case config.MailerSMTP:
		return mailer.NewSMTPMailer(cfg.SMTPAddr, cfg.SMTPUser, cfg.SMTPPass, cfg.MailFrom)
	case config.MailerHTTP:
		return mailer.NewHTTPMailer(cfg.MailAPIKey, cfg.MailAPIURL, cfg.MailFrom)
	case config.MailerOutbox:
		return mailer.NewOutbox(cfg.MagicLinkTTL + time.Minute)
	default:
		return mailer.LogMailer{Logger: logger}
	}
}
