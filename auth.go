package main

import (
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
)

// TokenIssuer signs and validates the bearer tokens handed out after login.
type TokenIssuer interface {
	Issue(username string) (token string, err error)
	// Validate returns the username the token was issued to.
	Validate(token string) (username string, err error)
}

// Authenticator checks the login credential.
type Authenticator interface {
	Authenticate(username, password string) error
}

const tokenIssuerName = "go-fprint-manager"

type HMACTokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewHMACTokenIssuer reads the signing secret from secretPath.
func NewHMACTokenIssuer(secretPath string, ttl time.Duration) (*HMACTokenIssuer, error) {
	secret, err := os.ReadFile(secretPath)
	if err != nil {
		return nil, fmt.Errorf("read jwt secret: %w", err)
	}
	if len(secret) == 0 {
		return nil, fmt.Errorf("jwt secret file %s is empty", secretPath)
	}
	return &HMACTokenIssuer{secret: secret, ttl: ttl}, nil
}

func (t *HMACTokenIssuer) Issue(username string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuerName,
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

func (t *HMACTokenIssuer) Validate(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", fmt.Errorf("invalid token")
	}
	return claims.Subject, nil
}

// TTL returns the configured token lifetime.
func (t *HMACTokenIssuer) TTL() time.Duration {
	return t.ttl
}

// AdminAuthenticator accepts a single management credential configured with
// a bcrypt password hash. This is the gate the desktop variant puts behind a
// password prompt.
type AdminAuthenticator struct {
	username     string
	passwordHash []byte
}

func NewAdminAuthenticator(username, passwordHash string) *AdminAuthenticator {
	return &AdminAuthenticator{username: username, passwordHash: []byte(passwordHash)}
}

func (a *AdminAuthenticator) Authenticate(username, password string) error {
	if username != a.username {
		return fmt.Errorf("unknown user")
	}
	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
		return fmt.Errorf("wrong password")
	}
	return nil
}
