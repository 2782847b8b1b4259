package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind distinguishes the two credential classes the codec issues.
type Kind uint8

const (
	// KindAccess is a short-lived credential authorizing API calls.
	KindAccess Kind = iota
	// KindRefresh is a long-lived credential used solely to mint new access tokens.
	KindRefresh
)

func (k Kind) String() string {
	switch k {
	case KindAccess:
		return "access"
	case KindRefresh:
		return "refresh"
	default:
		return "unknown"
	}
}

// SigningMethod selects the signature algorithm for issued tokens.
type SigningMethod string

const (
	// MethodHS256 signs with a shared secret.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with an Ed25519 key pair.
	MethodEd25519 SigningMethod = "ed25519"
)

var (
	// ErrInvalid is returned when a token fails signature, shape, or kind checks.
	ErrInvalid = errors.New("invalid token")
	// ErrExpired is returned when a token is structurally valid but past its expiry.
	ErrExpired = errors.New("token expired")
)

// Config holds the process-wide signing material and validity windows.
// The secret and keys are read once at construction and never per call.
type Config struct {
	SigningMethod SigningMethod
	Secret        []byte // HS256
	PrivateKey    []byte // Ed25519, raw or PEM
	PublicKey     []byte // Ed25519, raw or PEM
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Leeway        time.Duration
}

// Claims is the verified content of a token.
type Claims struct {
	UserID    string
	Role      string
	TokenID   string
	Kind      Kind
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Issued describes a freshly minted token.
type Issued struct {
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type wireClaims struct {
	UID  string `json:"uid"`
	Role string `json:"rol"`
	Knd  string `json:"knd"`
	// IatNS is the issuance instant at nanosecond precision; the
	// registered iat claim is truncated to whole seconds on the wire.
	// Revocation epochs compare against this value.
	IatNS int64 `json:"iatn,omitempty"`
	jwt.RegisteredClaims
}

// Codec signs and verifies access and refresh tokens. It holds no mutable
// state and is safe for concurrent use.
type Codec struct {
	config Config
}

// NewCodec validates cfg and returns a ready Codec.
func NewCodec(cfg Config) (*Codec, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.RefreshTTL < cfg.AccessTTL {
		return nil, errors.New("refresh TTL must not be shorter than access TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.Secret) < 32 {
			return nil, errors.New("hs256 requires a secret of at least 32 bytes")
		}
	case MethodEd25519:
		if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
			return nil, err
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return &Codec{config: cfg}, nil
}

// Issue mints a token of the given kind for the user. Every issuance carries
// a unique token ID usable for revocation tracking.
func (c *Codec) Issue(userID, role string, kind Kind) (string, Issued, error) {
	if userID == "" {
		return "", Issued{}, errors.New("empty user id")
	}

	ttl := c.config.AccessTTL
	if kind == KindRefresh {
		ttl = c.config.RefreshTTL
	}

	now := time.Now()
	issued := Issued{
		TokenID:   uuid.NewString(),
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	claims := wireClaims{
		UID:   userID,
		Role:  role,
		Knd:   kind.String(),
		IatNS: issued.IssuedAt.UnixNano(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        issued.TokenID,
			IssuedAt:  jwt.NewNumericDate(issued.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(issued.ExpiresAt),
			Issuer:    c.config.Issuer,
		},
	}

	tok := jwt.NewWithClaims(c.method(), claims)
	signKey, err := c.signKey()
	if err != nil {
		return "", Issued{}, err
	}

	signed, err := tok.SignedString(signKey)
	if err != nil {
		return "", Issued{}, err
	}
	return signed, issued, nil
}

// Verify parses tokenStr and checks signature, expiry, and kind. It returns
// ErrExpired only for tokens that would otherwise verify, so callers can
// distinguish re-authentication from silent refresh.
func (c *Codec) Verify(tokenStr string, kind Kind) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.method().Alg()}),
		jwt.WithExpirationRequired(),
	}
	if c.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(c.config.Leeway))
	}
	if c.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(c.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(tokenStr, &wireClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != c.method().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return c.verifyKey()
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalid
	}

	wire, ok := parsed.Claims.(*wireClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalid
	}
	if wire.Knd != kind.String() {
		return nil, ErrInvalid
	}
	if wire.UID == "" || wire.ID == "" || wire.ExpiresAt == nil {
		return nil, ErrInvalid
	}

	claims := &Claims{
		UserID:    wire.UID,
		Role:      wire.Role,
		TokenID:   wire.ID,
		Kind:      kind,
		ExpiresAt: wire.ExpiresAt.Time,
	}
	if wire.IssuedAt != nil {
		claims.IssuedAt = wire.IssuedAt.Time
	}
	if wire.IatNS > 0 {
		claims.IssuedAt = time.Unix(0, wire.IatNS)
	}
	return claims, nil
}

// AccessTTL reports the configured access token lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.config.AccessTTL }

// RefreshTTL reports the configured refresh token lifetime.
func (c *Codec) RefreshTTL() time.Duration { return c.config.RefreshTTL }

func (c *Codec) method() jwt.SigningMethod {
	switch c.config.SigningMethod {
	case MethodEd25519:
		return jwt.SigningMethodEdDSA
	default:
		return jwt.SigningMethodHS256
	}
}

func (c *Codec) signKey() (interface{}, error) {
	switch c.config.SigningMethod {
	case MethodEd25519:
		return parseEdPrivateKey(c.config.PrivateKey)
	default:
		return c.config.Secret, nil
	}
}

func (c *Codec) verifyKey() (interface{}, error) {
	switch c.config.SigningMethod {
	case MethodEd25519:
		return parseEdPublicKey(c.config.PublicKey)
	default:
		return c.config.Secret, nil
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
