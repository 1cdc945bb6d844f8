package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go-fprint-manager/models"
)

func testSession(id string) models.EnrollmentSession {
	return models.EnrollmentSession{
		ID:        id,
		Nonce:     "0011223344556677",
		Username:  "alice",
		Finger:    models.RightIndex,
		StartedAt: time.Now(),
	}
}

func TestInMemorySessionStorage_RoundTrip(t *testing.T) {
	storage := NewInMemorySessionStorage()

	session := testSession("s1")
	require.NoError(t, storage.StoreSession(session))

	got, err := storage.RetrieveSession("s1")
	require.NoError(t, err)
	require.Equal(t, session.Nonce, got.Nonce)
	require.Equal(t, session.Username, got.Username)
	require.Equal(t, session.Finger, got.Finger)
}

func TestInMemorySessionStorage_RetrieveUnknownFails(t *testing.T) {
	storage := NewInMemorySessionStorage()

	_, err := storage.RetrieveSession("missing")
	require.Error(t, err)
}

func TestInMemorySessionStorage_StoreOverwrites(t *testing.T) {
	storage := NewInMemorySessionStorage()

	first := testSession("s1")
	require.NoError(t, storage.StoreSession(first))

	second := testSession("s1")
	second.Username = "bob"
	require.NoError(t, storage.StoreSession(second))

	got, err := storage.RetrieveSession("s1")
	require.NoError(t, err)
	require.Equal(t, "bob", got.Username)
}

func TestInMemorySessionStorage_Remove(t *testing.T) {
	storage := NewInMemorySessionStorage()

	require.NoError(t, storage.StoreSession(testSession("s1")))
	require.NoError(t, storage.RemoveSession("s1"))

	_, err := storage.RetrieveSession("s1")
	require.Error(t, err)

	// removing twice is an error, sessions are single use
	require.Error(t, storage.RemoveSession("s1"))
}

func TestCreateKey(t *testing.T) {
	require.Equal(t, "fprint:enroll-session:s1", createKey("fprint", "s1"))
}
