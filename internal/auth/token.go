package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jjenkins/billtracker/internal/common"
)

const issuer = "billtracker"

// Issuer mints and verifies HS256 bearer tokens naming a username
type Issuer struct {
	key []byte
	exp time.Duration
	now func() time.Time
}

// NewIssuer creates an Issuer. Tokens expire exp after they are issued.
func NewIssuer(key []byte, exp time.Duration) *Issuer {
	return &Issuer{key: key, exp: exp, now: time.Now}
}

// Issue returns a signed token for username
func (i *Issuer) Issue(username string) (string, error) {
	if len(i.key) == 0 {
		return "", errors.New("no signing key configured")
	}
	now := i.now()
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.exp)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies a token and returns the username it names.
// Every failure is reported as common.ErrUnauthorized.
func (i *Issuer) Parse(tokenString string) (string, error) {
	if len(i.key) == 0 {
		return "", fmt.Errorf("no signing key configured: %w", common.ErrUnauthorized)
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		return i.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", common.ErrUnauthorized, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("token names no user: %w", common.ErrUnauthorized)
	}
	return claims.Subject, nil
}
