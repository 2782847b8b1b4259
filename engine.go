package authkit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/classward/authkit/internal/rate"
	"github.com/classward/authkit/otp"
	"github.com/classward/authkit/session"
	"github.com/classward/authkit/token"
)

// Engine is the authentication orchestrator. It owns no durable user
// state itself: accounts live in the CredentialStore, sessions and
// revocations in Redis, and dependencies are injected at Build time.
type Engine struct {
	config   Config
	codec    *token.Codec
	registry *session.Registry
	otpStore *otp.Store
	limiter  *rate.Limiter
	store    CredentialStore
	hasher   PasswordHasher
	sender   NotificationSender
	audit    *auditDispatcher
	metrics  *Metrics
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped reports how many audit events were dropped under
// backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	e.metrics.Inc(id)
}

func (e *Engine) emitAudit(ctx context.Context, event AuditEvent) {
	if e.audit == nil {
		return
	}
	event.Timestamp = time.Now()
	if event.IP == "" {
		event.IP = clientIPFromContext(ctx)
	}
	e.audit.Emit(ctx, event)
}

// Login authenticates by email or username and password.
func (e *Engine) Login(ctx context.Context, identifier, plainPassword string) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if identifier == "" || plainPassword == "" {
		return nil, fmt.Errorf("%w: identifier and password required", ErrValidation)
	}

	ip := clientIPFromContext(ctx)
	if err := e.limiter.CheckLogin(ctx, identifier, ip); err != nil {
		if errors.Is(err, rate.ErrLimited) {
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, AuditEvent{EventType: AuditLogin, Error: "rate limited"})
			return nil, ErrLoginRateLimited
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	user, err := e.store.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, e.failLogin(ctx, identifier, ip, "")
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	ok, err := e.hasher.Verify(plainPassword, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if !ok {
		return nil, e.failLogin(ctx, identifier, ip, user.UserID)
	}

	if !user.Active {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, AuditEvent{EventType: AuditLogin, UserID: user.UserID, Error: "account disabled"})
		return nil, ErrAccountDisabled
	}
	if e.config.Account.RequireVerification && !user.EmailVerified {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, AuditEvent{EventType: AuditLogin, UserID: user.UserID, Error: "account unverified"})
		return nil, ErrAccountUnverified
	}

	e.maybeRehash(ctx, user, plainPassword)

	if err := e.limiter.ResetLogin(ctx, identifier, ip); err != nil {
		log.Printf("authkit: login limiter reset failed: %v", err)
	}

	pair, err := e.issuePair(ctx, user)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, AuditEvent{
		EventType: AuditLogin,
		UserID:    user.UserID,
		SessionID: pair.SessionID,
		Success:   true,
	})

	return &LoginResult{Tokens: pair, User: profileOf(user)}, nil
}

func (e *Engine) failLogin(ctx context.Context, identifier, ip, userID string) error {
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, AuditEvent{EventType: AuditLogin, UserID: userID, Error: "invalid credentials"})

	if err := e.limiter.RecordLoginFailure(ctx, identifier, ip); err != nil {
		if errors.Is(err, rate.ErrLimited) {
			e.metricInc(MetricLoginRateLimited)
			return ErrLoginRateLimited
		}
		log.Printf("authkit: login failure not recorded: %v", err)
	}
	return ErrInvalidCredentials
}

// maybeRehash upgrades a stored hash to current costs after a
// successful verification. Best effort.
func (e *Engine) maybeRehash(ctx context.Context, user *UserRecord, plainPassword string) {
	if !e.config.Password.RehashOnLogin {
		return
	}
	rehasher, ok := e.hasher.(RehashingHasher)
	if !ok {
		return
	}
	needs, err := rehasher.NeedsRehash(user.PasswordHash)
	if err != nil || !needs {
		return
	}
	newHash, err := e.hasher.Hash(plainPassword)
	if err != nil {
		return
	}
	if err := e.store.UpdatePasswordHash(ctx, user.UserID, newHash); err != nil {
		log.Printf("authkit: opportunistic rehash failed: %v", err)
	}
}

// issuePair mints an access and refresh token and records the session.
// The session row is best effort: losing it never blocks issuance, and
// validity is still enforced by the revocation set and user epoch.
func (e *Engine) issuePair(ctx context.Context, user *UserRecord) (TokenPair, error) {
	accessToken, accessIss, err := e.codec.Issue(user.UserID, string(user.Role), token.KindAccess)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	refreshToken, refreshIss, err := e.codec.Issue(user.UserID, string(user.Role), token.KindRefresh)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	sessionID := uuid.NewString()
	rec := &session.Record{
		SessionID:      sessionID,
		UserID:         user.UserID,
		AccessTokenID:  accessIss.TokenID,
		RefreshTokenID: refreshIss.TokenID,
		DeviceInfo:     deviceInfoFromContext(ctx),
		SourceIP:       clientIPFromContext(ctx),
		CreatedAt:      refreshIss.IssuedAt.Unix(),
		ExpiresAt:      refreshIss.ExpiresAt.Unix(),
	}
	if err := e.registry.Save(ctx, rec, e.config.Token.RefreshTTL); err != nil {
		log.Printf("authkit: session record not saved: %v", err)
	} else {
		e.metricInc(MetricSessionCreated)
	}

	if err := e.store.TouchLastLogin(ctx, user.UserID, time.Now()); err != nil {
		log.Printf("authkit: last-login touch failed: %v", err)
	}

	return TokenPair{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessIss.ExpiresAt,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshIss.ExpiresAt,
		SessionID:        sessionID,
	}, nil
}

// Refresh exchanges a live refresh token for a new access token. The
// refresh token itself is not rotated.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	claims, err := e.codec.Verify(refreshToken, token.KindRefresh)
	e.metrics.Observe(MetricVerifyLatency, time.Since(start))
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		if errors.Is(err, token.ErrExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	revoked, err := e.registry.IsRevoked(ctx, claims.TokenID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if revoked {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, AuditEvent{EventType: AuditRefresh, UserID: claims.UserID, Error: "token revoked"})
		return nil, ErrTokenInvalid
	}

	// The per-user epoch catches tokens whose best-effort session rows
	// were lost: anything issued before the last revoke-all is dead.
	epoch, err := e.registry.RevocationEpoch(ctx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if epoch > 0 && claims.IssuedAt.UnixNano() <= epoch {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, AuditEvent{EventType: AuditRefresh, UserID: claims.UserID, Error: "issued before revocation epoch"})
		return nil, ErrTokenInvalid
	}

	user, err := e.store.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricRefreshFailure)
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !user.Active {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, AuditEvent{EventType: AuditRefresh, UserID: user.UserID, Error: "account disabled"})
		return nil, ErrAccountDisabled
	}

	accessToken, accessIss, err := e.codec.Issue(user.UserID, string(user.Role), token.KindAccess)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, AuditEvent{EventType: AuditRefresh, UserID: user.UserID, Success: true})

	return &RefreshResult{
		AccessToken:     accessToken,
		AccessExpiresAt: accessIss.ExpiresAt,
	}, nil
}

// Logout revokes the presented token. A token already past its natural
// expiry succeeds as a no-op; a token revoked earlier reports
// ErrTokenAlreadyInvalidated, so concurrent logouts of the same token
// resolve to exactly one success.
func (e *Engine) Logout(ctx context.Context, cred LogoutCredential) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if cred.token == "" {
		return fmt.Errorf("%w: empty token", ErrValidation)
	}

	kind := token.KindAccess
	if cred.refresh {
		kind = token.KindRefresh
	}

	claims, err := e.codec.Verify(cred.token, kind)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			// Nothing to revoke; the token can never be used again.
			e.metricInc(MetricLogoutSuccess)
			return nil
		}
		return ErrTokenInvalid
	}

	alreadyRevoked, err := e.registry.Revoke(ctx, claims.TokenID, claims.ExpiresAt)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSessionInvalidationFailed, err)
	}
	if alreadyRevoked {
		e.metricInc(MetricLogoutReplay)
		e.emitAudit(ctx, AuditEvent{EventType: AuditLogout, UserID: claims.UserID, Error: "already invalidated"})
		return ErrTokenAlreadyInvalidated
	}

	e.metricInc(MetricLogoutSuccess)
	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, AuditEvent{EventType: AuditLogout, UserID: claims.UserID, Success: true})
	return nil
}

// VerifyAccess validates an access token and returns its claims. This
// is the hot path for per-request authentication in transport layers.
func (e *Engine) VerifyAccess(ctx context.Context, accessToken string) (*token.Claims, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	claims, err := e.codec.Verify(accessToken, token.KindAccess)
	e.metrics.Observe(MetricVerifyLatency, time.Since(start))
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	revoked, err := e.registry.IsRevoked(ctx, claims.TokenID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if revoked {
		return nil, ErrTokenInvalid
	}

	epoch, err := e.registry.RevocationEpoch(ctx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if epoch > 0 && claims.IssuedAt.UnixNano() <= epoch {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// ActiveSessions lists the user's live session records.
func (e *Engine) ActiveSessions(ctx context.Context, userID string) ([]*session.Record, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	records, err := e.registry.ActiveSessions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return records, nil
}
