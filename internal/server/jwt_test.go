package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/video-refinery/internal/config"
)

func testPushConfig() *config.PushAuthConfig {
	return &config.PushAuthConfig{
		Secret:          "0123456789abcdef-secret",
		Audience:        "refinery-worker",
		ExpirationHours: 1,
	}
}

func TestPushTokenService_RoundTrip(t *testing.T) {
	svc := NewPushTokenService(testPushConfig())

	token, err := svc.GenerateToken("projects/p/subscriptions/refinery")
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "projects/p/subscriptions/refinery", claims.Caller())
}

func TestPushTokenService_Rejects(t *testing.T) {
	issuer := NewPushTokenService(testPushConfig())
	token, err := issuer.GenerateToken("sub")
	require.NoError(t, err)

	otherSecret := testPushConfig()
	otherSecret.Secret = "fedcba9876543210-secret"
	_, err = NewPushTokenService(otherSecret).ValidateToken(token)
	assert.Error(t, err, "signature from another secret")

	otherAudience := testPushConfig()
	otherAudience.Audience = "someone-else"
	_, err = NewPushTokenService(otherAudience).ValidateToken(token)
	assert.Error(t, err, "audience mismatch")

	late := NewPushTokenService(testPushConfig())
	late.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = late.ValidateToken(token)
	assert.Error(t, err, "expired")

	_, err = issuer.ValidateToken("")
	assert.Error(t, err)
	_, err = issuer.ValidateToken("not.a.jwt")
	assert.Error(t, err)
}
