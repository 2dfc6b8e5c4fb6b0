package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"chatrelay/internal/models"
)

var ErrInvalidToken = errors.New("invalid token")

// TokenService mints and verifies the scoped realtime credential. A token is
// bound to one user id and carries the channel capabilities that identity may
// use on the realtime connection.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService constructs a TokenService.
func NewTokenService(secret []byte, ttl time.Duration) *TokenService {
	return &TokenService{secret: secret, ttl: ttl}
}

// TokenDetails is the credential returned by the token endpoint.
type TokenDetails struct {
	Token      string              `json:"token"`
	ClientID   string              `json:"clientId"`
	Expires    int64               `json:"expires"`
	Capability map[string][]string `json:"capability"`
}

type claims struct {
	Capability map[string][]string `json:"x-capability"`
	jwt.RegisteredClaims
}

// Issue creates a short-lived credential scoped to userID.
func (s *TokenService) Issue(userID string) (TokenDetails, error) {
	capability := capabilityFor(userID)
	now := time.Now()
	expires := now.Add(s.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Capability: capability,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return TokenDetails{}, fmt.Errorf("sign token: %w", err)
	}

	return TokenDetails{
		Token:      signed,
		ClientID:   userID,
		Expires:    expires.UnixMilli(),
		Capability: capability,
	}, nil
}

// Verify checks the credential and returns the bound user id.
func (s *TokenService) Verify(tokenString string) (string, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || c.Subject == "" {
		return "", ErrInvalidToken
	}
	return c.Subject, nil
}

// capabilityFor lists the channels a user may attach to: every room channel,
// their own direct channel, and the shared presence and roster channels.
func capabilityFor(userID string) map[string][]string {
	return map[string][]string{
		"chat:*":                     {"subscribe", "publish", "presence"},
		models.DirectChannel(userID): {"subscribe"},
		models.ChannelPresence:       {"subscribe", "presence"},
		models.ChannelUsers:          {"subscribe", "publish"},
	}
}
