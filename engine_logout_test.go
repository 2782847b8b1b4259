package authkit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/classward/authkit/token"
)

func TestLogoutAccessToken(t *testing.T) {
	env := newTestEngine(t, nil)
	env.seedUser(t, "a@x.com", "alice", "correct-password")
	ctx := context.Background()

	res, err := env.engine.Login(ctx, "a@x.com", "correct-password")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if err := env.engine.Logout(ctx, AccessLogout(res.Tokens.AccessToken)); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	if _, err := env.engine.VerifyAccess(ctx, res.Tokens.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid after logout, got %v", err)
	}
}

func TestLogoutTwiceReportsAlreadyInvalidated(t *testing.T) {
	env := newTestEngine(t, nil)
	env.seedUser(t, "a@x.com", "alice", "correct-password")
	ctx := context.Background()

	res, err := env.engine.Login(ctx, "a@x.com", "correct-password")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if err := env.engine.Logout(ctx, AccessLogout(res.Tokens.AccessToken)); err != nil {
		t.Fatalf("first Logout failed: %v", err)
	}
	if err := env.engine.Logout(ctx, AccessLogout(res.Tokens.AccessToken)); !errors.Is(err, ErrTokenAlreadyInvalidated) {
		t.Fatalf("expected ErrTokenAlreadyInvalidated, got %v", err)
	}
}

func TestConcurrentLogoutExactlyOneSuccess(t *testing.T) {
	env := newTestEngine(t, nil)
	env.seedUser(t, "a@x.com", "alice", "correct-password")
	ctx := context.Background()

	res, err := env.engine.Login(ctx, "a@x.com", "correct-password")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	start := make(chan struct{})
	results := make(chan error, 4)
	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			results <- env.engine.Logout(ctx, AccessLogout(res.Tokens.AccessToken))
		}()
	}

	close(start)
	wg.Wait()
	close(results)

	successes, replays := 0, 0
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrTokenAlreadyInvalidated):
			replays++
		default:
			t.Fatalf("unexpected logout error: %v", err)
		}
	}
	if successes != 1 || replays != 3 {
		t.Fatalf("expected 1 success and 3 replays, got %d and %d", successes, replays)
	}
}

func TestLogoutExpiredTokenIsNoOp(t *testing.T) {
	env := newTestEngine(t, nil)
	user := env.seedUser(t, "a@x.com", "alice", "correct-password")

	short, err := token.NewCodec(token.Config{
		SigningMethod: token.MethodHS256,
		Secret:        []byte("0123456789abcdef0123456789abcdef"),
		AccessTTL:     time.Nanosecond,
		RefreshTTL:    time.Nanosecond,
		Issuer:        "authkit",
	})
	if err != nil {
		t.Fatalf("NewCodec failed: %v", err)
	}
	tok, _, err := short.Issue(user.UserID, string(user.Role), token.KindAccess)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	if err := env.engine.Logout(context.Background(), AccessLogout(tok)); err != nil {
		t.Fatalf("expected expired logout to succeed as no-op, got %v", err)
	}
}

func TestLogoutMalformedToken(t *testing.T) {
	env := newTestEngine(t, nil)

	if err := env.engine.Logout(context.Background(), AccessLogout("not-a-token")); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
	if err := env.engine.Logout(context.Background(), AccessLogout("")); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for empty token, got %v", err)
	}
}

func TestLogoutRedisDownFailsClosed(t *testing.T) {
	env := newTestEngine(t, nil)
	env.seedUser(t, "a@x.com", "alice", "correct-password")
	ctx := context.Background()

	res, err := env.engine.Login(ctx, "a@x.com", "correct-password")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	env.mr.Close()

	if err := env.engine.Logout(ctx, AccessLogout(res.Tokens.AccessToken)); !errors.Is(err, ErrSessionInvalidationFailed) {
		t.Fatalf("expected ErrSessionInvalidationFailed, got %v", err)
	}
}
