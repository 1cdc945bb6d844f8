package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestIssuer(t *testing.T, ttl time.Duration) *HMACTokenIssuer {
	t.Helper()
	secretPath := filepath.Join(t.TempDir(), "jwt.secret")
	require.NoError(t, os.WriteFile(secretPath, []byte("0123456789abcdef0123456789abcdef"), 0o600))
	issuer, err := NewHMACTokenIssuer(secretPath, ttl)
	require.NoError(t, err)
	return issuer
}

func TestHMACTokenIssuer_RoundTrip(t *testing.T) {
	issuer := newTestIssuer(t, time.Hour)

	token, err := issuer.Issue("admin")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	username, err := issuer.Validate(token)
	require.NoError(t, err)
	require.Equal(t, "admin", username)
}

func TestHMACTokenIssuer_Fail_Garbage(t *testing.T) {
	issuer := newTestIssuer(t, time.Hour)

	_, err := issuer.Validate("not-a-jwt")
	require.Error(t, err)
}

func TestHMACTokenIssuer_Fail_Expired(t *testing.T) {
	issuer := newTestIssuer(t, -time.Minute)

	token, err := issuer.Issue("admin")
	require.NoError(t, err)

	_, err = issuer.Validate(token)
	require.Error(t, err)
}

func TestHMACTokenIssuer_Fail_WrongSecret(t *testing.T) {
	issuer := newTestIssuer(t, time.Hour)
	otherSecret := filepath.Join(t.TempDir(), "jwt.secret")
	require.NoError(t, os.WriteFile(otherSecret, []byte("ffffffffffffffffffffffffffffffff"), 0o600))
	other, err := NewHMACTokenIssuer(otherSecret, time.Hour)
	require.NoError(t, err)

	token, err := issuer.Issue("admin")
	require.NoError(t, err)

	_, err = other.Validate(token)
	require.Error(t, err)
}

func TestNewHMACTokenIssuer_Fail_MissingOrEmptySecret(t *testing.T) {
	_, err := NewHMACTokenIssuer(filepath.Join(t.TempDir(), "does-not-exist"), time.Hour)
	require.Error(t, err)

	empty := filepath.Join(t.TempDir(), "empty.secret")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	_, err = NewHMACTokenIssuer(empty, time.Hour)
	require.Error(t, err)
}

func TestAdminAuthenticator(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)

	auth := NewAdminAuthenticator("admin", string(hash))

	require.NoError(t, auth.Authenticate("admin", "hunter2"))
	require.Error(t, auth.Authenticate("admin", "wrong"))
	require.Error(t, auth.Authenticate("intruder", "hunter2"))
	require.Error(t, auth.Authenticate("admin", ""))
}
