// Command authkit-loadtest measures token verification and refresh
// throughput against a running Redis (or an embedded miniredis when no
// address is given). It seeds accounts through the real engine, signs
// them all in, then hammers the hot paths concurrently and reports
// latency percentiles.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/classward/authkit"
	"github.com/classward/authkit/password"
)

func main() {
	var (
		accounts    = flag.Int("accounts", 1000, "number of accounts to seed and sign in")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase (verify + refresh)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "ak-lt", "redis key prefix")
	)
	flag.Parse()

	if *accounts <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "accounts, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := authkit.DefaultConfig()
	cfg.Token.Secret = []byte("loadtest-only-secret-32-bytes!!!")
	cfg.Session.RedisPrefix = *prefix
	cfg.Security.MaxLoginFailures = 1 << 20 // throttling is not under test
	cfg.Audit.Enabled = false
	// Low-cost hashing so seeding is CPU-bound on Redis, not Argon2.
	cfg.Password.Argon2 = password.Config{
		MemoryKB:    8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}

	engine, err := authkit.New().
		WithConfig(cfg).
		WithRedis(client).
		WithCredentialStore(newSeedStore()).
		WithNotificationSender(discardSender{}).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Printf("seeding %d accounts...\n", *accounts)
	startSeed := time.Now()
	tokens := make([]authkit.TokenPair, *accounts)
	for i := 0; i < *accounts; i++ {
		email := fmt.Sprintf("load-%d@example.com", i)
		if _, err := engine.Register(ctx, authkit.RegisterInput{
			Email:    email,
			Username: fmt.Sprintf("load-%d", i),
			Password: "loadtest-password",
		}); err != nil {
			fmt.Fprintf(os.Stderr, "register failed: %v\n", err)
			os.Exit(1)
		}
		result, err := engine.Login(ctx, email, "loadtest-password")
		if err != nil {
			fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
			os.Exit(1)
		}
		tokens[i] = result.Tokens
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	verifyStats := runPhase(*ops, *concurrency, func(r *rand.Rand) error {
		_, err := engine.VerifyAccess(ctx, tokens[r.Intn(len(tokens))].AccessToken)
		return err
	})
	refreshStats := runPhase(*ops, *concurrency, func(r *rand.Rand) error {
		_, err := engine.Refresh(ctx, tokens[r.Intn(len(tokens))].RefreshToken)
		return err
	})

	fmt.Println("---- results ----")
	printStats("verify", verifyStats)
	printStats("refresh", refreshStats)
}

func runPhase(ops, concurrency int, op func(*rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

// seedStore is an in-memory CredentialStore sized for the load test.
type seedStore struct {
	mu      sync.RWMutex
	byID    map[string]*authkit.UserRecord
	byIdent map[string]string
}

func newSeedStore() *seedStore {
	return &seedStore{
		byID:    make(map[string]*authkit.UserRecord),
		byIdent: make(map[string]string),
	}
}

func (s *seedStore) FindByIdentifier(_ context.Context, identifier string) (*authkit.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byIdent[identifier]
	if !ok {
		return nil, authkit.ErrUserNotFound
	}
	copied := *s.byID[id]
	return &copied, nil
}

func (s *seedStore) FindByID(_ context.Context, userID string) (*authkit.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[userID]
	if !ok {
		return nil, authkit.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *seedStore) FindByDestination(ctx context.Context, destination string) (*authkit.UserRecord, error) {
	return s.FindByIdentifier(ctx, destination)
}

func (s *seedStore) Create(_ context.Context, input authkit.CreateUserInput) (*authkit.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byIdent[input.Email]; ok {
		return nil, authkit.ErrEmailExists
	}
	if _, ok := s.byIdent[input.Username]; ok {
		return nil, authkit.ErrUsernameExists
	}
	u := &authkit.UserRecord{
		UserID:       uuid.NewString(),
		Email:        input.Email,
		Username:     input.Username,
		PasswordHash: input.PasswordHash,
		Role:         input.Role,
		Active:       input.Active,
		CreatedAt:    time.Now(),
	}
	s.byID[u.UserID] = u
	s.byIdent[u.Email] = u.UserID
	s.byIdent[u.Username] = u.UserID
	return u, nil
}

func (s *seedStore) UpdatePasswordHash(_ context.Context, userID, newHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return authkit.ErrUserNotFound
	}
	u.PasswordHash = newHash
	return nil
}

func (s *seedStore) MarkVerified(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return authkit.ErrUserNotFound
	}
	u.EmailVerified = true
	u.VerifiedAt = at
	return nil
}

func (s *seedStore) TouchLastLogin(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.byID[userID]; ok {
		u.LastLoginAt = at
	}
	return nil
}

// discardSender drops notifications; OTP flows are not under test.
type discardSender struct{}

func (discardSender) SendSMS(context.Context, string, string) (authkit.Delivery, error) {
	return authkit.Delivery{MessageID: "discard"}, nil
}

func (discardSender) SendEmail(context.Context, string, string, string) (authkit.Delivery, error) {
	return authkit.Delivery{MessageID: "discard"}, nil
}
