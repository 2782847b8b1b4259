package authkit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestOTPLoginRoundTrip(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()
	user := env.seedUser(t, "otp@x.com", "otpuser", "a-long-enough-password")

	if err := env.engine.RequestLoginOTP(ctx, "otp@x.com"); err != nil {
		t.Fatalf("RequestLoginOTP failed: %v", err)
	}

	msg := env.sender.last(t)
	if msg.Channel != ChannelEmail || msg.Destination != "otp@x.com" {
		t.Fatalf("unexpected delivery %+v", msg)
	}
	code := extractCode(t, msg.Body)
	if len(code) != 6 {
		t.Fatalf("expected a 6 digit code, got %q", code)
	}

	result, err := env.engine.ConfirmLoginOTP(ctx, "otp@x.com", code)
	if err != nil {
		t.Fatalf("ConfirmLoginOTP failed: %v", err)
	}
	if result.User.UserID != user.UserID {
		t.Fatalf("signed in as %q, want %q", result.User.UserID, user.UserID)
	}

	claims, err := env.engine.VerifyAccess(ctx, result.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess on OTP-issued token failed: %v", err)
	}
	if claims.UserID != user.UserID {
		t.Fatalf("token bound to %q, want %q", claims.UserID, user.UserID)
	}
}

func TestOTPLoginMarksEmailVerified(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()
	user := env.seedUser(t, "otp@x.com", "otpuser", "a-long-enough-password")

	if err := env.engine.RequestLoginOTP(ctx, "otp@x.com"); err != nil {
		t.Fatalf("RequestLoginOTP failed: %v", err)
	}
	code := extractCode(t, env.sender.last(t).Body)

	if _, err := env.engine.ConfirmLoginOTP(ctx, "otp@x.com", code); err != nil {
		t.Fatalf("ConfirmLoginOTP failed: %v", err)
	}

	if stored := env.store.get(user.UserID); !stored.EmailVerified {
		t.Fatal("confirming an emailed code should mark the address verified")
	}
}

func TestOTPLoginAutoCreatesAccount(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()

	if err := env.engine.RequestLoginOTP(ctx, "fresh@x.com"); err != nil {
		t.Fatalf("RequestLoginOTP failed: %v", err)
	}
	code := extractCode(t, env.sender.last(t).Body)

	result, err := env.engine.ConfirmLoginOTP(ctx, "fresh@x.com", code)
	if err != nil {
		t.Fatalf("ConfirmLoginOTP failed: %v", err)
	}
	if result.User.Email != "fresh@x.com" {
		t.Fatalf("auto-created account has email %q", result.User.Email)
	}
	if result.User.Role != RoleStudent {
		t.Fatalf("auto-created account has role %q, want student", result.User.Role)
	}
	if !result.User.Active {
		t.Fatal("auto-created account should be active")
	}
}

func TestOTPLoginAutoCreateDisabled(t *testing.T) {
	env := newTestEngine(t, func(cfg *Config) {
		cfg.Account.AutoCreateOnOTPLogin = false
	})
	ctx := context.Background()

	if err := env.engine.RequestLoginOTP(ctx, "fresh@x.com"); err != nil {
		t.Fatalf("RequestLoginOTP failed: %v", err)
	}
	code := extractCode(t, env.sender.last(t).Body)

	if _, err := env.engine.ConfirmLoginOTP(ctx, "fresh@x.com", code); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestOTPLoginDisabledAccount(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()
	user := env.seedUser(t, "otp@x.com", "otpuser", "a-long-enough-password")

	env.store.mu.Lock()
	env.store.users[user.UserID].Active = false
	env.store.mu.Unlock()

	if err := env.engine.RequestLoginOTP(ctx, "otp@x.com"); err != nil {
		t.Fatalf("RequestLoginOTP failed: %v", err)
	}
	code := extractCode(t, env.sender.last(t).Body)

	if _, err := env.engine.ConfirmLoginOTP(ctx, "otp@x.com", code); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
}

func TestOTPLoginWrongCode(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()
	env.seedUser(t, "otp@x.com", "otpuser", "a-long-enough-password")

	if err := env.engine.RequestLoginOTP(ctx, "otp@x.com"); err != nil {
		t.Fatalf("RequestLoginOTP failed: %v", err)
	}

	if _, err := env.engine.ConfirmLoginOTP(ctx, "otp@x.com", "000000"); !errors.Is(err, ErrOTPMismatch) {
		t.Fatalf("expected ErrOTPMismatch, got %v", err)
	}

	// The real code still works after one miss.
	code := extractCode(t, env.sender.last(t).Body)
	if code == "000000" {
		t.Skip("generated code collided with the guess")
	}
	if _, err := env.engine.ConfirmLoginOTP(ctx, "otp@x.com", code); err != nil {
		t.Fatalf("ConfirmLoginOTP after one miss failed: %v", err)
	}
}

func TestOTPLoginCodeIsSingleUse(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()
	env.seedUser(t, "otp@x.com", "otpuser", "a-long-enough-password")

	if err := env.engine.RequestLoginOTP(ctx, "otp@x.com"); err != nil {
		t.Fatalf("RequestLoginOTP failed: %v", err)
	}
	code := extractCode(t, env.sender.last(t).Body)

	if _, err := env.engine.ConfirmLoginOTP(ctx, "otp@x.com", code); err != nil {
		t.Fatalf("first ConfirmLoginOTP failed: %v", err)
	}
	if _, err := env.engine.ConfirmLoginOTP(ctx, "otp@x.com", code); !errors.Is(err, ErrOTPAlreadyConsumed) {
		t.Fatalf("expected ErrOTPAlreadyConsumed on replay, got %v", err)
	}
}

func TestOTPRequestRateLimited(t *testing.T) {
	env := newTestEngine(t, func(cfg *Config) {
		cfg.OTP.MaxIssuesPerWindow = 2
	})
	ctx := context.Background()
	env.seedUser(t, "otp@x.com", "otpuser", "a-long-enough-password")

	for i := 0; i < 2; i++ {
		if err := env.engine.RequestLoginOTP(ctx, "otp@x.com"); err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
	}
	if err := env.engine.RequestLoginOTP(ctx, "otp@x.com"); !errors.Is(err, ErrOTPRateLimited) {
		t.Fatalf("expected ErrOTPRateLimited, got %v", err)
	}
	if got := env.sender.count(); got != 2 {
		t.Fatalf("throttled request still sent a message, count %d", got)
	}
}

func TestOTPRequestSendFailureInvalidatesChallenge(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()
	env.seedUser(t, "otp@x.com", "otpuser", "a-long-enough-password")

	env.sender.sendErr = errors.New("provider down")
	if err := env.engine.RequestLoginOTP(ctx, "otp@x.com"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}

	// The recalled code must not survive in the store: a later request
	// issues a fresh challenge and only its code verifies.
	env.sender.sendErr = nil
	if err := env.engine.RequestLoginOTP(ctx, "otp@x.com"); err != nil {
		t.Fatalf("RequestLoginOTP after recovery failed: %v", err)
	}
	code := extractCode(t, env.sender.last(t).Body)
	if _, err := env.engine.ConfirmLoginOTP(ctx, "otp@x.com", code); err != nil {
		t.Fatalf("ConfirmLoginOTP failed: %v", err)
	}
}

func TestOTPRequestSendTimeout(t *testing.T) {
	env := newTestEngine(t, func(cfg *Config) {
		cfg.Notify.SendTimeout = 20 * time.Millisecond
	})
	ctx := context.Background()
	env.seedUser(t, "otp@x.com", "otpuser", "a-long-enough-password")

	env.sender.delay = 200 * time.Millisecond
	if err := env.engine.RequestLoginOTP(ctx, "otp@x.com"); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

// faultingSender blocks past the send deadline and then knocks the
// backing Redis over, so the follow-up challenge cleanup fails too.
type faultingSender struct {
	mr *miniredis.Miniredis
}

func (s *faultingSender) SendSMS(ctx context.Context, _, _ string) (Delivery, error) {
	return s.fail(ctx)
}

func (s *faultingSender) SendEmail(ctx context.Context, _, _, _ string) (Delivery, error) {
	return s.fail(ctx)
}

func (s *faultingSender) fail(ctx context.Context) (Delivery, error) {
	<-ctx.Done()
	s.mr.SetError("redis gone")
	return Delivery{}, ctx.Err()
}

func TestOTPRequestSendTimeoutSurvivesCleanupFailure(t *testing.T) {
	mr, rdb := newTestRedis(t)
	cfg := testEngineConfig()
	cfg.Notify.SendTimeout = 20 * time.Millisecond

	engine, err := New().
		WithRedis(rdb).
		WithCredentialStore(newMockStore()).
		WithNotificationSender(&faultingSender{mr: mr}).
		WithConfig(cfg).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	// The caller should learn the delivery timed out even when the
	// challenge could not be recalled afterwards.
	err = engine.RequestLoginOTP(context.Background(), "timeout@x.com")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout despite failed cleanup, got %v", err)
	}
}

func TestOTPRequestOverSMS(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()

	user := UserRecord{
		UserID:   "u-phone",
		Username: "phoneuser",
		Phone:    "+15550100123",
		Role:     RoleStudent,
		Active:   true,
	}
	env.store.add(user)

	if err := env.engine.RequestLoginOTP(ctx, "555 010 0123"); err != nil {
		t.Fatalf("RequestLoginOTP failed: %v", err)
	}

	msg := env.sender.last(t)
	if msg.Channel != ChannelSMS {
		t.Fatalf("expected SMS delivery, got %v", msg.Channel)
	}
	if msg.Destination != "+15550100123" {
		t.Fatalf("unexpected destination %q", msg.Destination)
	}

	result, err := env.engine.ConfirmLoginOTP(ctx, "+15550100123", extractCode(t, msg.Body))
	if err != nil {
		t.Fatalf("ConfirmLoginOTP failed: %v", err)
	}
	if result.User.UserID != "u-phone" {
		t.Fatalf("signed in as %q", result.User.UserID)
	}
}

func TestOTPConfirmRejectsBadDestination(t *testing.T) {
	env := newTestEngine(t, nil)

	if _, err := env.engine.ConfirmLoginOTP(context.Background(), "", "123456"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
