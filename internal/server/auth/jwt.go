// Package auth signs and verifies the short-lived token that carries a
// pending second-factor login from the password step to the code step.
package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/vaultkeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// ChallengeClaims identify a pending challenge (ID) for a user (Subject) and
// carry the secret the parked vault key was sealed with. The server keeps
// only the sealed key, so neither side can open it alone.
type ChallengeClaims struct {
	jwt.RegisteredClaims
	Secret string `json:"k"`
}

// Challenge is a verified challenge token.
type Challenge struct {
	ID     string
	UserID string
	Secret []byte
}

func GenerateChallengeToken(c Challenge, secretKey []byte, now time.Time, validity time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, ChallengeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        c.ID,
			Subject:   c.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
		},
		Secret: base64.RawURLEncoding.EncodeToString(c.Secret),
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ParseChallengeToken verifies signature and expiry at now. Expired tokens
// yield common.ErrTokenExpired, anything else wrong common.ErrInvalidToken.
func ParseChallengeToken(tokenString string, secretKey []byte, now time.Time) (*Challenge, error) {
	claims := &ChallengeClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(func() time.Time { return now }))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}

	if !token.Valid || claims.ID == "" || claims.Subject == "" {
		return nil, common.ErrInvalidToken
	}

	secret, err := base64.RawURLEncoding.DecodeString(claims.Secret)
	if err != nil || len(secret) == 0 {
		return nil, common.ErrInvalidToken
	}

	return &Challenge{ID: claims.ID, UserID: claims.Subject, Secret: secret}, nil
}
