package bootstrap

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blueprint-auth/internal/config"
	"blueprint-auth/internal/mailer"
	"blueprint-auth/internal/security"
)

func baseConfig() *config.Config {
	return &config.Config{
		JWTIssuer:    "iss",
		JWTAudience:  "aud",
		AccessTTL:    15 * time.Minute,
		RefreshTTL:   time.Hour,
		MagicLinkTTL: 15 * time.Minute,
	}
}

func TestTokenProvider(t *testing.T) {
	cfg := baseConfig()
	cfg.JWTSecret = "a-long-enough-signing-secret"
	p, err := TokenProvider(cfg)
	require.NoError(t, err)
	token, err := p.SignAccess("user-1")
	require.NoError(t, err)
	payload, err := p.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", payload.Subject)

	cfg.JWTSecret = ""
	_, err = TokenProvider(cfg)
	assert.ErrorIs(t, err, security.ErrMissingSecret)

	cfg.Env = "test"
	_, err = TokenProvider(cfg)
	assert.NoError(t, err)
}

func TestMailer(t *testing.T) {
	cfg := baseConfig()
	logger := slog.Default()

	cfg.Mailer = config.MailerSMTP
	assert.IsType(t, &mailer.SMTPMailer{}, Mailer(cfg, logger))
	cfg.Mailer = config.MailerHTTP
	assert.IsType(t, &mailer.HTTPMailer{}, Mailer(cfg, logger))
	cfg.Mailer = config.MailerOutbox
	assert.IsType(t, &mailer.Outbox{}, Mailer(cfg, logger))
	cfg.Mailer = config.MailerLog
	assert.IsType(t, mailer.LogMailer{}, Mailer(cfg, logger))
}
