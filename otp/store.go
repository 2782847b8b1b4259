package otp

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Purpose namespaces challenges so a code issued for one flow can never
// satisfy another.
type Purpose uint8

const (
	PurposeLogin Purpose = iota + 1
	PurposePasswordReset
	PurposeVerification
)

func (p Purpose) String() string {
	switch p {
	case PurposeLogin:
		return "login"
	case PurposePasswordReset:
		return "password_reset"
	case PurposeVerification:
		return "verification"
	default:
		return "unknown"
	}
}

var (
	// ErrExpired covers both a challenge past its TTL and one that was
	// never issued; callers cannot tell the two apart.
	ErrExpired = errors.New("otp challenge expired or not found")

	// ErrMismatch means the supplied code did not match. The attempt was
	// counted.
	ErrMismatch = errors.New("otp code mismatch")

	// ErrExhausted means the attempt budget is spent. The challenge stays
	// locked until it expires; the correct code no longer verifies.
	ErrExhausted = errors.New("otp attempts exhausted")

	// ErrConsumed means the challenge was already verified once.
	ErrConsumed = errors.New("otp challenge already consumed")

	// ErrRedisUnavailable wraps transport-level Redis failures.
	ErrRedisUnavailable = errors.New("otp redis unavailable")
)

const (
	challengeVersionV1 = 1
	saltSize           = 16

	minDigits = 4
	maxDigits = 10
)

type challenge struct {
	ChallengeID string
	Salt        [saltSize]byte
	CodeHash    [32]byte
	ExpiresAt   int64
	Attempts    uint16
	MaxAttempts uint16
	Consumed    bool
}

// Store keeps single-use numeric challenges in Redis, keyed by
// destination and purpose. Only a salted hash of the code is stored.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

func NewStore(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "ak"
	}
	return &Store{redis: client, prefix: prefix}
}

func (s *Store) key(destination string, purpose Purpose) string {
	return s.prefix + ":otp:" + purpose.String() + ":" + destination
}

// Issue generates a fresh numeric code for the destination and purpose,
// replacing any outstanding challenge for the same pair. The plaintext
// code is returned exactly once, for delivery; only its salted hash is
// stored.
func (s *Store) Issue(
	ctx context.Context,
	destination string,
	purpose Purpose,
	digits int,
	ttl time.Duration,
	maxAttempts int,
) (code, challengeID string, err error) {
	if destination == "" {
		return "", "", errors.New("empty otp destination")
	}
	if ttl <= 0 {
		return "", "", errors.New("non-positive otp ttl")
	}
	if maxAttempts < 1 || maxAttempts > 65535 {
		return "", "", errors.New("invalid otp max attempts")
	}

	code, err = newNumericCode(digits)
	if err != nil {
		return "", "", err
	}

	ch := &challenge{
		ChallengeID: uuid.NewString(),
		ExpiresAt:   time.Now().Add(ttl).Unix(),
		MaxAttempts: uint16(maxAttempts),
	}
	if _, err := rand.Read(ch.Salt[:]); err != nil {
		return "", "", err
	}
	ch.CodeHash = hashCode(ch.Salt, code)

	encoded, err := encodeChallenge(ch)
	if err != nil {
		return "", "", err
	}

	// Plain SET: a re-request overwrites the previous challenge, so only
	// the most recently delivered code is live.
	if err := s.redis.Set(ctx, s.key(destination, purpose), encoded, ttl).Err(); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return code, ch.ChallengeID, nil
}

// Verify checks the supplied code against the outstanding challenge for
// the destination and purpose. A match marks the challenge consumed but
// keeps it until natural expiry, so a replay reports ErrConsumed rather
// than ErrExpired.
func (s *Store) Verify(ctx context.Context, destination string, purpose Purpose, code string) (challengeID string, err error) {
	const maxRetries = 4
	key := s.key(destination, purpose)

	for i := 0; i < maxRetries; i++ {
		var matchedID string

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			ch, err := decodeChallenge(data)
			if err != nil {
				return err
			}

			ttl := time.Until(time.Unix(ch.ExpiresAt, 0))
			if ttl <= 0 {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrExpired
			}

			if ch.Consumed {
				return ErrConsumed
			}

			// The attempt budget is checked before the code: once it is
			// spent, even the correct code is rejected.
			if ch.Attempts >= ch.MaxAttempts {
				return ErrExhausted
			}

			provided := hashCode(ch.Salt, code)
			if subtle.ConstantTimeCompare(ch.CodeHash[:], provided[:]) != 1 {
				ch.Attempts++
				updated, err := encodeChallenge(ch)
				if err != nil {
					return err
				}
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, updated, ttl)
					return nil
				})
				if err != nil {
					return err
				}
				if ch.Attempts >= ch.MaxAttempts {
					return ErrExhausted
				}
				return ErrMismatch
			}

			ch.Consumed = true
			updated, err := encodeChallenge(ch)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			if err != nil {
				return err
			}

			matchedID = ch.ChallengeID
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return "", ErrExpired
			case errors.Is(err, ErrExpired),
				errors.Is(err, ErrConsumed),
				errors.Is(err, ErrExhausted),
				errors.Is(err, ErrMismatch):
				return "", err
			default:
				return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
			}
		}

		return matchedID, nil
	}

	return "", ErrExpired
}

// Invalidate drops any outstanding challenge for the destination and
// purpose. It is idempotent.
func (s *Store) Invalidate(ctx context.Context, destination string, purpose Purpose) error {
	if err := s.redis.Del(ctx, s.key(destination, purpose)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func hashCode(salt [saltSize]byte, code string) [32]byte {
	h := sha256.New()
	h.Write(salt[:])
	h.Write([]byte(code))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func newNumericCode(digits int) (string, error) {
	if digits < minDigits || digits > maxDigits {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	limit := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	return b.String(), nil
}

func encodeChallenge(ch *challenge) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(challengeVersionV1)

	consumed := byte(0)
	if ch.Consumed {
		consumed = 1
	}
	buf.WriteByte(consumed)

	if err := binary.Write(&buf, binary.BigEndian, ch.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, ch.MaxAttempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, ch.ExpiresAt); err != nil {
		return nil, err
	}

	if len(ch.ChallengeID) > 65535 {
		return nil, errors.New("otp challenge id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(ch.ChallengeID))); err != nil {
		return nil, err
	}
	buf.WriteString(ch.ChallengeID)

	buf.Write(ch.Salt[:])
	buf.Write(ch.CodeHash[:])

	return buf.Bytes(), nil
}

func decodeChallenge(data []byte) (*challenge, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != challengeVersionV1 {
		return nil, errors.New("invalid otp challenge version")
	}

	consumed, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	ch := &challenge{Consumed: consumed == 1}

	if err := binary.Read(reader, binary.BigEndian, &ch.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &ch.MaxAttempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &ch.ExpiresAt); err != nil {
		return nil, err
	}

	var idLen uint16
	if err := binary.Read(reader, binary.BigEndian, &idLen); err != nil {
		return nil, err
	}
	id := make([]byte, idLen)
	if _, err := io.ReadFull(reader, id); err != nil {
		return nil, err
	}
	ch.ChallengeID = string(id)

	if _, err := io.ReadFull(reader, ch.Salt[:]); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, ch.CodeHash[:]); err != nil {
		return nil, err
	}

	return ch, nil
}
