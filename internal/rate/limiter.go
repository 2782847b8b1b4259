package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrLimited          = errors.New("rate limited")
	ErrRedisUnavailable = errors.New("rate redis unavailable")
)

// Config tunes the fixed-window counters.
type Config struct {
	ThrottleByIP     bool
	MaxLoginFailures int
	LoginWindow      time.Duration
	MaxOTPIssues     int
	OTPIssueWindow   time.Duration
}

// Limiter throttles login failures per identifier and source IP, and
// code issuance per destination, with Redis fixed-window counters.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
	config Config
}

func New(client redis.UniversalClient, prefix string, cfg Config) *Limiter {
	if prefix == "" {
		prefix = "ak"
	}
	return &Limiter{redis: client, prefix: prefix, config: cfg}
}

func (l *Limiter) loginIdentifierKey(identifier string) string {
	return l.prefix + ":rl:li:" + identifier
}

func (l *Limiter) loginIPKey(ip string) string {
	return l.prefix + ":rl:ip:" + ip
}

func (l *Limiter) otpIssueKey(destination string) string {
	return l.prefix + ":rl:otp:" + destination
}

// CheckLogin reports ErrLimited when the identifier or source IP has
// exceeded its failed-login budget for the current window.
func (l *Limiter) CheckLogin(ctx context.Context, identifier, ip string) error {
	if err := l.check(ctx, l.loginIdentifierKey(identifier), l.config.MaxLoginFailures); err != nil {
		return err
	}
	if l.config.ThrottleByIP && ip != "" {
		return l.check(ctx, l.loginIPKey(ip), l.config.MaxLoginFailures)
	}
	return nil
}

// RecordLoginFailure counts a failed login against both scopes.
func (l *Limiter) RecordLoginFailure(ctx context.Context, identifier, ip string) error {
	count, err := l.increment(ctx, l.loginIdentifierKey(identifier), l.config.LoginWindow)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxLoginFailures) {
		return ErrLimited
	}

	if l.config.ThrottleByIP && ip != "" {
		count, err = l.increment(ctx, l.loginIPKey(ip), l.config.LoginWindow)
		if err != nil {
			return err
		}
		if count > int64(l.config.MaxLoginFailures) {
			return ErrLimited
		}
	}
	return nil
}

// ResetLogin clears the failure counters after a successful login or a
// completed password reset.
func (l *Limiter) ResetLogin(ctx context.Context, identifier, ip string) error {
	keys := []string{l.loginIdentifierKey(identifier)}
	if l.config.ThrottleByIP && ip != "" {
		keys = append(keys, l.loginIPKey(ip))
	}
	if err := l.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// CheckOTPIssue counts a code issuance for the destination and reports
// ErrLimited once the window budget is spent. Unlike login, issuance
// counts the attempt itself, not a failure.
func (l *Limiter) CheckOTPIssue(ctx context.Context, destination string) error {
	count, err := l.increment(ctx, l.otpIssueKey(destination), l.config.OTPIssueWindow)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxOTPIssues) {
		return ErrLimited
	}
	return nil
}

func (l *Limiter) check(ctx context.Context, key string, budget int) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count > int64(budget) {
		return ErrLimited
	}
	return nil
}

func (l *Limiter) increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed window: the TTL starts with the first hit.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return count, nil
}
