package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"go-fprint-manager/models"
)

// Should be safe to use in concurrency
type SessionStorage interface {
	// Store the enrollment session under its ID. Storing an existing ID
	// overwrites the previous session.
	StoreSession(session models.EnrollmentSession) error

	// Should retrieve the session for the given ID and return an error in
	// any case where it fails to do so.
	RetrieveSession(sessionID string) (models.EnrollmentSession, error)

	// Should remove the session and return an error if it fails to do so.
	// The session not being there is also an error.
	RemoveSession(sessionID string) error
}

type InMemorySessionStorage struct {
	sessions map[string]models.EnrollmentSession
	mutex    sync.Mutex
}

func NewInMemorySessionStorage() *InMemorySessionStorage {
	return &InMemorySessionStorage{
		sessions: make(map[string]models.EnrollmentSession),
	}
}

type RedisSessionStorage struct {
	client    *redis.Client
	namespace string
}

func NewRedisSessionStorage(client *redis.Client, namespace string) *RedisSessionStorage {
	return &RedisSessionStorage{client: client, namespace: namespace}
}

// ------------------------------------------------------------------------------

func createKey(namespace, sessionID string) string {
	return fmt.Sprintf("%s:enroll-session:%s", namespace, sessionID)
}

// Sessions outliving this have long since lost their enrollment; fprintd
// aborts an idle enrollment well before then.
const SessionTTL time.Duration = 30 * time.Minute

func (s *RedisSessionStorage) StoreSession(session models.EnrollmentSession) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ctx := context.Background()
	return s.client.Set(ctx, createKey(s.namespace, session.ID), payload, SessionTTL).Err()
}

func (s *RedisSessionStorage) RetrieveSession(sessionID string) (models.EnrollmentSession, error) {
	ctx := context.Background()
	payload, err := s.client.Get(ctx, createKey(s.namespace, sessionID)).Bytes()
	if err != nil {
		return models.EnrollmentSession{}, err
	}
	var session models.EnrollmentSession
	if err := json.Unmarshal(payload, &session); err != nil {
		return models.EnrollmentSession{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return session, nil
}

func (s *RedisSessionStorage) RemoveSession(sessionID string) error {
	ctx := context.Background()
	removed, err := s.client.Del(ctx, createKey(s.namespace, sessionID)).Result()
	if err != nil {
		return err
	}
	if removed == 0 {
		return fmt.Errorf("no session to remove for %s", sessionID)
	}
	return nil
}

// ------------------------------------------------------------------------------

func (s *InMemorySessionStorage) StoreSession(session models.EnrollmentSession) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.sessions[session.ID] = session
	return nil
}

func (s *InMemorySessionStorage) RetrieveSession(sessionID string) (models.EnrollmentSession, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if session, ok := s.sessions[sessionID]; ok {
		return session, nil
	}
	return models.EnrollmentSession{}, fmt.Errorf("failed to find session for %s", sessionID)
}

func (s *InMemorySessionStorage) RemoveSession(sessionID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.sessions[sessionID]; ok {
		delete(s.sessions, sessionID)
		return nil
	}
	return fmt.Errorf("failed to remove session for %s, because it wasn't there", sessionID)
}
