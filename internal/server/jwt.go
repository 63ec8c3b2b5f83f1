package server

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jonathan/video-refinery/internal/config"
	"github.com/jonathan/video-refinery/internal/server/middleware"
)

// PushClaims are the claims a push caller presents.
type PushClaims struct {
	jwt.RegisteredClaims
}

// Caller returns the caller identity.
// This implements the middleware.CallerGetter interface.
func (c *PushClaims) Caller() string {
	return c.Subject
}

// PushTokenService issues and verifies bearer tokens for the /worker endpoint.
type PushTokenService struct {
	config *config.PushAuthConfig
	now    func() time.Time
}

// NewPushTokenService creates a new token service with the given configuration.
func NewPushTokenService(cfg *config.PushAuthConfig) *PushTokenService {
	return &PushTokenService{config: cfg, now: time.Now}
}

// GenerateToken issues a token for subject, e.g. a push subscription name.
func (s *PushTokenService) GenerateToken(subject string) (string, error) {
	now := s.now()
	claims := &PushClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Audience:  jwt.ClaimStrings{s.config.Audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(s.config.ExpirationHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// ValidateToken verifies signature, expiry and audience.
func (s *PushTokenService) ValidateToken(tokenString string) (middleware.CallerGetter, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("token string is empty")
	}

	claims := &PushClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	},
		jwt.WithAudience(s.config.Audience),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is not valid")
	}
	return claims, nil
}
