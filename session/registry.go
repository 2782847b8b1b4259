package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps any Redis transport failure so callers can map it
// to a service-unavailable condition.
var ErrRedisUnavailable = errors.New("redis unavailable")

// Registry tracks issued sessions and the token revocation set in Redis.
// All revocation state lives in the shared store, so multiple instances of
// the host application observe the same revocations.
type Registry struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRegistry creates a Registry using prefix as the Redis key namespace.
func NewRegistry(client redis.UniversalClient, prefix string) *Registry {
	if prefix == "" {
		prefix = "ak"
	}
	return &Registry{redis: client, prefix: prefix}
}

func (r *Registry) sessionKey(sessionID string) string {
	return r.prefix + ":s:" + sessionID
}

func (r *Registry) userKey(userID string) string {
	return r.prefix + ":u:" + userID
}

func (r *Registry) revokedKey(tokenID string) string {
	return r.prefix + ":rv:" + tokenID
}

func (r *Registry) epochKey(userID string) string {
	return r.prefix + ":ep:" + userID
}

// Save persists a session record with the given TTL and indexes it under the
// owning user. The user index shares the session TTL so it self-prunes.
func (r *Registry) Save(ctx context.Context, rec *Record, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("non-positive session ttl")
	}

	data, err := Encode(rec)
	if err != nil {
		return err
	}

	_, err = r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.sessionKey(rec.SessionID), data, ttl)
		pipe.SAdd(ctx, r.userKey(rec.UserID), rec.SessionID)
		pipe.Expire(ctx, r.userKey(rec.UserID), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Get fetches a session record. Missing or expired rows return redis.Nil.
func (r *Registry) Get(ctx context.Context, sessionID string) (*Record, error) {
	data, err := r.redis.Get(ctx, r.sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	rec, err := Decode(data)
	if err != nil {
		return nil, err
	}
	rec.SessionID = sessionID

	if time.Now().Unix() > rec.ExpiresAt {
		return nil, redis.Nil
	}
	return rec, nil
}

// Delete removes a session record and its index entry. Deleting a missing
// session is a no-op.
func (r *Registry) Delete(ctx context.Context, sessionID string) error {
	rec, err := r.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	}

	_, err = r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.sessionKey(sessionID))
		pipe.SRem(ctx, r.userKey(rec.UserID), sessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Revoke adds a token ID to the revocation set with a TTL matching the
// token's own remaining life, so the set self-prunes. It reports whether the
// token was already revoked; concurrent revokes of the same ID resolve to
// exactly one first-revoke via SET NX.
func (r *Registry) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) (alreadyRevoked bool, err error) {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		// Token is already past natural expiry; nothing to record.
		return false, nil
	}

	added, err := r.redis.SetNX(ctx, r.revokedKey(tokenID), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return !added, nil
}

// IsRevoked reports whether a token ID is in the revocation set.
func (r *Registry) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.redis.Exists(ctx, r.revokedKey(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n > 0, nil
}

// RevokeAllForUser invalidates every outstanding credential for a user: each
// indexed session's access and refresh token IDs are blacklisted, the session
// rows are deleted, and a revocation epoch is written so tokens whose
// best-effort session row was never recorded stop working too. epochTTL
// should cover the longest-lived token (the refresh TTL).
func (r *Registry) RevokeAllForUser(ctx context.Context, userID string, epochTTL time.Duration) error {
	userKey := r.userKey(userID)

	sessionIDs, err := r.redis.SMembers(ctx, userKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var records []*Record
	if len(sessionIDs) > 0 {
		pipe := r.redis.Pipeline()
		cmds := make([]*redis.StringCmd, len(sessionIDs))
		for i, sid := range sessionIDs {
			cmds[i] = pipe.Get(ctx, r.sessionKey(sid))
		}
		if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		for i, cmd := range cmds {
			data, cmdErr := cmd.Bytes()
			if cmdErr != nil {
				if errors.Is(cmdErr, redis.Nil) {
					continue
				}
				return fmt.Errorf("%w: %v", ErrRedisUnavailable, cmdErr)
			}
			rec, decErr := Decode(data)
			if decErr != nil {
				continue
			}
			rec.SessionID = sessionIDs[i]
			records = append(records, rec)
		}
	}

	now := time.Now()
	_, err = r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, rec := range records {
			ttl := time.Unix(rec.ExpiresAt, 0).Sub(now)
			if ttl > 0 {
				pipe.SetNX(ctx, r.revokedKey(rec.AccessTokenID), 1, ttl)
				pipe.SetNX(ctx, r.revokedKey(rec.RefreshTokenID), 1, ttl)
			}
			pipe.Del(ctx, r.sessionKey(rec.SessionID))
		}
		pipe.Del(ctx, userKey)
		if epochTTL > 0 {
			pipe.Set(ctx, r.epochKey(userID), now.UnixNano(), epochTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// RevocationEpoch returns the nanosecond unix time of the user's last
// revoke-all event, or zero when none is recorded. Tokens issued at or before
// the epoch instant must not be honored.
func (r *Registry) RevocationEpoch(ctx context.Context, userID string) (int64, error) {
	raw, err := r.redis.Get(ctx, r.epochKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	epoch, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: corrupt revocation epoch", ErrRedisUnavailable)
	}
	return epoch, nil
}

// ActiveSessions lists the live session records for a user.
func (r *Registry) ActiveSessions(ctx context.Context, userID string) ([]*Record, error) {
	sessionIDs, err := r.redis.SMembers(ctx, r.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*Record{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(sessionIDs) == 0 {
		return []*Record{}, nil
	}

	pipe := r.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(sessionIDs))
	for i, sid := range sessionIDs {
		cmds[i] = pipe.Get(ctx, r.sessionKey(sid))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	nowUnix := time.Now().Unix()
	records := make([]*Record, 0, len(sessionIDs))
	for i, cmd := range cmds {
		data, cmdErr := cmd.Bytes()
		if cmdErr != nil {
			if errors.Is(cmdErr, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, cmdErr)
		}
		rec, decErr := Decode(data)
		if decErr != nil {
			return nil, decErr
		}
		rec.SessionID = sessionIDs[i]
		if nowUnix > rec.ExpiresAt {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Ping reports point-in-time Redis availability and latency.
func (r *Registry) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
