package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agora-discourse/agora/pkg/auth"
	"github.com/agora-discourse/agora/pkg/config"
)

func issuerConfig(ttl time.Duration) *config.AuthConfig {
	return &config.AuthConfig{
		JWTSecret:   "test-secret",
		JWTAudience: "agora-api",
		SessionTTL:  ttl,
	}
}

func TestTokenRoundtrip(t *testing.T) {
	issuer := auth.NewTokenIssuer(issuerConfig(time.Hour))

	token, err := issuer.Issue("user-1", "user-1@example.com", false)
	require.NoError(t, err)

	claims, err := issuer.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "user-1@example.com", claims.Email)
	assert.False(t, claims.IsSystem)
	require.NotNil(t, claims.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)

	system, err := issuer.Issue("system", "system@example.com", true)
	require.NoError(t, err)
	claims, err = issuer.Validate(system)
	require.NoError(t, err)
	assert.True(t, claims.IsSystem)
}

func TestTokenRejection(t *testing.T) {
	issuer := auth.NewTokenIssuer(issuerConfig(time.Hour))

	t.Run("garbage", func(t *testing.T) {
		_, err := issuer.Validate("not.a.token")
		assert.Error(t, err)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := auth.NewTokenIssuer(&config.AuthConfig{
			JWTSecret: "other-secret", JWTAudience: "agora-api", SessionTTL: time.Hour,
		})
		token, err := other.Issue("user-1", "", false)
		require.NoError(t, err)
		_, err = issuer.Validate(token)
		assert.Error(t, err)
	})

	t.Run("wrong audience", func(t *testing.T) {
		other := auth.NewTokenIssuer(&config.AuthConfig{
			JWTSecret: "test-secret", JWTAudience: "somewhere-else", SessionTTL: time.Hour,
		})
		token, err := other.Issue("user-1", "", false)
		require.NoError(t, err)
		_, err = issuer.Validate(token)
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		expired := auth.NewTokenIssuer(issuerConfig(-time.Minute))
		token, err := expired.Issue("user-1", "", false)
		require.NoError(t, err)
		_, err = issuer.Validate(token)
		assert.Error(t, err)
	})
}
