package authkit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/classward/authkit/password"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

// mockStore is an in-memory CredentialStore.
type mockStore struct {
	mu    sync.Mutex
	users map[string]*UserRecord // by UserID

	findErr   error
	createErr error
	updateErr error
}

func newMockStore() *mockStore {
	return &mockStore{users: map[string]*UserRecord{}}
}

func (m *mockStore) add(u UserRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := u
	m.users[u.UserID] = &copied
}

func (m *mockStore) get(userID string) UserRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.users[userID]
}

func (m *mockStore) FindByIdentifier(_ context.Context, identifier string) (*UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, u := range m.users {
		if u.Email == identifier || u.Username == identifier {
			copied := *u
			return &copied, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *mockStore) FindByID(_ context.Context, userID string) (*UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	u, ok := m.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *mockStore) FindByDestination(_ context.Context, destination string) (*UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, u := range m.users {
		if u.Email == destination || u.Phone == destination {
			copied := *u
			return &copied, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *mockStore) Create(_ context.Context, input CreateUserInput) (*UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	for _, u := range m.users {
		if input.Email != "" && u.Email == input.Email {
			return nil, ErrEmailExists
		}
		if u.Username == input.Username {
			return nil, ErrUsernameExists
		}
	}
	u := &UserRecord{
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

func (m *mockStore) UpdatePasswordHash(_ context.Context, userID, newHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = newHash
	return nil
}

func (m *mockStore) MarkVerified(_ context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.EmailVerified = true
	u.VerifiedAt = at
	return nil
}

func (m *mockStore) TouchLastLogin(_ context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		u.LastLoginAt = at
	}
	return nil
}

type sentMessage struct {
	Channel     Channel
	Destination string
	Body        string
}

// recordingSender captures outbound notifications so tests can read the
// delivered codes.
type recordingSender struct {
	mu      sync.Mutex
	sent    []sentMessage
	sendErr error
	delay   time.Duration
}

func (r *recordingSender) SendSMS(ctx context.Context, destination, message string) (Delivery, error) {
	return r.record(ctx, ChannelSMS, destination, message)
}

func (r *recordingSender) SendEmail(ctx context.Context, destination, _, body string) (Delivery, error) {
	return r.record(ctx, ChannelEmail, destination, body)
}

func (r *recordingSender) record(ctx context.Context, ch Channel, destination, body string) (Delivery, error) {
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return Delivery{}, ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sendErr != nil {
		return Delivery{}, r.sendErr
	}
	r.sent = append(r.sent, sentMessage{Channel: ch, Destination: destination, Body: body})
	return Delivery{MessageID: fmt.Sprintf("msg-%d", len(r.sent))}, nil
}

func (r *recordingSender) last(t *testing.T) sentMessage {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		t.Fatal("no messages sent")
	}
	return r.sent[len(r.sent)-1]
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

// extractCode pulls the numeric code out of a delivered message body.
func extractCode(t *testing.T, body string) string {
	t.Helper()
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

func testEngineConfig() Config {
	cfg := DefaultConfig()
	cfg.Token.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Token.AccessTTL = time.Minute
	cfg.Token.RefreshTTL = time.Hour
	cfg.Password.Argon2 = password.Config{
		MemoryKB:    8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
	cfg.Notify.DefaultCountryCode = "1"
	cfg.Audit.Enabled = false
	return cfg
}

type testEnv struct {
	mr     *miniredis.Miniredis
	engine *Engine
	store  *mockStore
	sender *recordingSender
}

func newTestEngine(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	mr, rdb := newTestRedis(t)
	store := newMockStore()
	sender := &recordingSender{}

	cfg := testEngineConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	engine, err := New().
		WithRedis(rdb).
		WithCredentialStore(store).
		WithNotificationSender(sender).
		WithConfig(cfg).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{mr: mr, engine: engine, store: store, sender: sender}
}

// seedUser registers a student account with a known password.
func (env *testEnv) seedUser(t *testing.T, email, username, plainPassword string) *UserRecord {
	t.Helper()

	hash, err := env.engine.hasher.Hash(plainPassword)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	u := UserRecord{
		UserID:       uuid.NewString(),
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		Role:         RoleStudent,
		Active:       true,
	}
	env.store.add(u)
	return &u
}
