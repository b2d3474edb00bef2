package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretBytes is the minimum HS256 key length accepted by NewManager.
const MinSecretBytes = 32

const accessTokenType = "access"

// Config configures a Manager.
type Config struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
	Now    func() time.Time
}

// Claims are the validated claims of a credential.
type Claims struct {
	UserID    string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type accessClaims struct {
	jwt.RegisteredClaims
	UserID    string `json:"user_id"`
	TokenType string `json:"token_type,omitempty"`
}

// Manager verifies and issues HS256 credentials. It is safe for concurrent use.
type Manager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) == 0 {
		return nil, ErrSecretMissing
	}
	if len(cfg.Secret) < MinSecretBytes {
		return nil, ErrSecretTooShort
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 15 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		secret: append([]byte(nil), cfg.Secret...),
		issuer: strings.TrimSpace(cfg.Issuer),
		ttl:    cfg.TTL,
		now:    cfg.Now,
	}, nil
}

// Verify parses raw and returns its claims.
// Failures wrap ErrInvalidCredential or ErrExpiredCredential.
func (m *Manager) Verify(raw string) (Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Claims{}, fmt.Errorf("%w: empty token", ErrInvalidCredential)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	var parsed accessClaims
	_, err := jwt.ParseWithClaims(raw, &parsed, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		return Claims{}, mapJWTError(err)
	}

	if parsed.TokenType != "" && parsed.TokenType != accessTokenType {
		return Claims{}, fmt.Errorf("%w: token_type %q", ErrInvalidCredential, parsed.TokenType)
	}
	userID := strings.TrimSpace(parsed.UserID)
	if userID == "" {
		// Fall back to sub for tokens minted by generic issuers.
		userID = strings.TrimSpace(parsed.Subject)
	}
	if userID == "" {
		return Claims{}, fmt.Errorf("%w: missing user_id", ErrInvalidCredential)
	}

	c := Claims{UserID: userID, Issuer: parsed.Issuer}
	if parsed.ExpiresAt != nil {
		c.ExpiresAt = parsed.ExpiresAt.Time.UTC()
	}
	if parsed.IssuedAt != nil {
		c.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	return c, nil
}

// Issue mints an access credential for userID. It backs dev tooling and tests;
// production credentials come from the account service.
func (m *Manager) Issue(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", errors.New("token: empty user id")
	}

	now := m.now().UTC()
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
		UserID:    userID,
		TokenType: accessTokenType,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	return signed, nil
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpiredCredential, err)
	default:
		return fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
}
