//go:build integration
// +build integration

package test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/classward/authkit"
	"github.com/classward/authkit/password"
)

type harness struct {
	mr     *miniredis.Miniredis
	engine *authkit.Engine
	store  *memStore
	sender *captureSender
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	cfg := authkit.DefaultConfig()
	cfg.Token.Secret = []byte("integration-secret-32-bytes-long")
	cfg.Notify.DefaultCountryCode = "1"
	cfg.Password.Argon2 = password.Config{
		MemoryKB:    8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}

	store := newMemStore()
	sender := &captureSender{}

	engine, err := authkit.New().
		WithRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()})).
		WithCredentialStore(store).
		WithNotificationSender(sender).
		WithConfig(cfg).
		Build()
	if err != nil {
		t.Fatalf("engine build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &harness{mr: mr, engine: engine, store: store, sender: sender}
}

func (h *harness) lastCode(t *testing.T) string {
	t.Helper()

	body := h.sender.lastBody(t)
	var b strings.Builder
	for _, r := range body {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else if b.Len() > 0 {
			break
		}
	}
	if b.Len() == 0 {
		t.Fatalf("no code found in %q", body)
	}
	return b.String()
}

type memStore struct {
	mu    sync.Mutex
	users map[string]*authkit.UserRecord
}

func newMemStore() *memStore {
	return &memStore{users: map[string]*authkit.UserRecord{}}
}

func (m *memStore) FindByIdentifier(_ context.Context, identifier string) (*authkit.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == identifier || u.Username == identifier {
			copied := *u
			return &copied, nil
		}
	}
	return nil, authkit.ErrUserNotFound
}

func (m *memStore) FindByID(_ context.Context, userID string) (*authkit.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, authkit.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *memStore) FindByDestination(_ context.Context, destination string) (*authkit.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == destination || u.Phone == destination {
			copied := *u
			return &copied, nil
		}
	}
	return nil, authkit.ErrUserNotFound
}

func (m *memStore) Create(_ context.Context, input authkit.CreateUserInput) (*authkit.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if input.Email != "" && u.Email == input.Email {
			return nil, authkit.ErrEmailExists
		}
		if u.Username == input.Username {
			return nil, authkit.ErrUsernameExists
		}
	}
	u := &authkit.UserRecord{
		UserID:       uuid.NewString(),
		Email:        input.Email,
		Username:     input.Username,
		Phone:        input.Phone,
		PasswordHash: input.PasswordHash,
		Role:         input.Role,
		Active:       input.Active,
		CreatedAt:    time.Now(),
	}
	m.users[u.UserID] = u
	copied := *u
	return &copied, nil
}

func (m *memStore) UpdatePasswordHash(_ context.Context, userID, newHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return authkit.ErrUserNotFound
	}
	u.PasswordHash = newHash
	return nil
}

func (m *memStore) MarkVerified(_ context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return authkit.ErrUserNotFound
	}
	u.EmailVerified = true
	u.VerifiedAt = at
	return nil
}

func (m *memStore) TouchLastLogin(_ context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		u.LastLoginAt = at
	}
	return nil
}

type captureSender struct {
	mu     sync.Mutex
	bodies []string
}

func (c *captureSender) SendSMS(_ context.Context, _, message string) (authkit.Delivery, error) {
	return c.capture(message)
}

func (c *captureSender) SendEmail(_ context.Context, _, _, body string) (authkit.Delivery, error) {
	return c.capture(body)
}

func (c *captureSender) capture(body string) (authkit.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bodies = append(c.bodies, body)
	return authkit.Delivery{MessageID: uuid.NewString()}, nil
}

func (c *captureSender) lastBody(t *testing.T) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.bodies) == 0 {
		t.Fatal("no messages sent")
	}
	return c.bodies[len(c.bodies)-1]
}
