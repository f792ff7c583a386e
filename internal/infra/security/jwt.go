package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/filograficos/identity-service/internal/core/domain"
)

var (
	// ErrTokenExpired indicates the bearer token passed its expiry.
	ErrTokenExpired = errors.New("security: token expired")
	// ErrTokenInvalid indicates a malformed token, a bad signature, or claims
	// that do not match the expected shape.
	ErrTokenInvalid = errors.New("security: token invalid")
)

// SessionClaims is the payload of an issued bearer token. The registered ID
// claim (jti) carries the session identifier so validation resolves the token
// to its backing session without a secondary index.
type SessionClaims struct {
	IdentityID string `json:"uid"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

// TokenSigner issues and parses HMAC-signed bearer tokens.
type TokenSigner struct {
	secret []byte
	issuer string
}

// NewTokenSigner builds a signer from the server secret. An empty secret is a
// configuration error, never a silent fallback.
func NewTokenSigner(secret, issuer string) (*TokenSigner, error) {
	if secret == "" {
		return nil, fmt.Errorf("token signer: secret must not be empty")
	}
	return &TokenSigner{secret: []byte(secret), issuer: issuer}, nil
}

// Sign issues a token bound to the session.
func (s *TokenSigner) Sign(identityID string, role domain.Role, sessionID string, issuedAt time.Time, ttl time.Duration) (string, error) {
	claims := SessionClaims{
		IdentityID: identityID,
		Role:       string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Issuer:    s.issuer,
			Subject:   identityID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse validates the signature and expiry and returns the claims.
func (s *TokenSigner) Parse(raw string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if !token.Valid || claims.ID == "" || claims.IdentityID == "" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
