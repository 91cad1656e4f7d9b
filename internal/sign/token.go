// ABOUTME: JWT token issuing and verification for peer callback delivery
// ABOUTME: Uses HS256 signing with configurable secret

package sign

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// TokenIssuer mints short-lived bearer tokens for outbound callback
// requests so peers can authenticate the gateway.
type TokenIssuer interface {
	Issue(subject string, expiresIn time.Duration) (string, error)
}

// JWTSigner issues and verifies HS256 signed JWTs.
type JWTSigner struct {
	secret []byte
}

// NewJWTSigner creates a signer with the given secret.
func NewJWTSigner(secret []byte) *JWTSigner {
	return &JWTSigner{secret: secret}
}

// Issue creates a token whose "sub" claim carries the subject, expiring
// after expiresIn.
func (s *JWTSigner) Issue(subject string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(expiresIn).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify validates the token and extracts the subject from the "sub" claim.
func (s *JWTSigner) Verify(tokenString string) (subject string, err error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method is HS256
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	return sub, nil
}
