package authkit

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/classward/authkit/internal/rate"
	"github.com/classward/authkit/otp"
	"github.com/classward/authkit/password"
	"github.com/classward/authkit/session"
	"github.com/classward/authkit/token"
)

// Builder wires the engine's dependencies. Redis, a CredentialStore,
// and a NotificationSender are required; everything else has defaults.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	store  CredentialStore
	hasher PasswordHasher
	sender NotificationSender
	sink   AuditSink

	built bool
}

func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.store = store
	return b
}

// WithPasswordHasher overrides the default Argon2id hasher.
func (b *Builder) WithPasswordHasher(hasher PasswordHasher) *Builder {
	b.hasher = hasher
	return b
}

func (b *Builder) WithNotificationSender(sender NotificationSender) *Builder {
	b.sender = sender
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

// Build validates the configuration and assembles the engine. A builder
// can only be used once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.store == nil {
		return nil, errors.New("credential store required")
	}
	if b.sender == nil {
		return nil, errors.New("notification sender required")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	codec, err := token.NewCodec(cfg.tokenConfig())
	if err != nil {
		return nil, err
	}

	hasher := b.hasher
	if hasher == nil {
		argon, err := password.NewArgon2(cfg.Password.Argon2)
		if err != nil {
			return nil, err
		}
		hasher = argon
	}

	limiter := rate.New(b.redis, cfg.Session.RedisPrefix, rate.Config{
		ThrottleByIP:     cfg.Security.ThrottleLoginByIP,
		MaxLoginFailures: cfg.Security.MaxLoginFailures,
		LoginWindow:      cfg.Security.LoginWindow,
		MaxOTPIssues:     cfg.OTP.MaxIssuesPerWindow,
		OTPIssueWindow:   cfg.OTP.IssueWindow,
	})

	e := &Engine{
		config:   cfg,
		codec:    codec,
		registry: session.NewRegistry(b.redis, cfg.Session.RedisPrefix),
		otpStore: otp.NewStore(b.redis, cfg.Session.RedisPrefix),
		limiter:  limiter,
		store:    b.store,
		hasher:   hasher,
		sender:   b.sender,
		audit:    newAuditDispatcher(cfg.Audit, b.sink),
		metrics:  NewMetrics(cfg.Metrics),
	}

	b.built = true
	return e, nil
}
