package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "maintenance-query-agent"

type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenService issues and validates admin bearer tokens. A token is valid
// only while its session entry is live, so revocation takes effect
// immediately regardless of the JWT expiry.
type TokenService struct {
	secret    []byte
	expiresIn time.Duration
	sessions  SessionStore
}

func NewTokenService(secret, expiresIn string, sessions SessionStore) (*TokenService, error) {
	if len(secret) < 32 {
		return nil, errors.New("JWT_SECRET must be at least 32 characters")
	}

	ttl, err := time.ParseDuration(expiresIn)
	if err != nil || ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &TokenService{
		secret:    []byte(secret),
		expiresIn: ttl,
		sessions:  sessions,
	}, nil
}

// Issue creates a signed token for the given admin and registers its
// session with the token's lifetime as TTL.
func (ts *TokenService) Issue(ctx context.Context, username string) (string, error) {
	now := time.Now()
	jti := uuid.NewString()

	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ts.secret)
	if err != nil {
		return "", err
	}

	if err := ts.sessions.Put(ctx, jti, username, ts.expiresIn); err != nil {
		return "", fmt.Errorf("failed to register session: %w", err)
	}

	return signed, nil
}

// Validate parses and verifies a token, then checks its session is live.
func (ts *TokenService) Validate(ctx context.Context, tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Prevent algorithm confusion attacks
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return ts.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, errors.New("invalid token")
	}

	live, err := ts.sessions.Valid(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("session lookup failed: %w", err)
	}
	if !live {
		return nil, errors.New("token revoked or expired")
	}

	return claims, nil
}

// Revoke terminates the session for the given token ID.
func (ts *TokenService) Revoke(ctx context.Context, jti string) error {
	return ts.sessions.Revoke(ctx, jti)
}

// ExtractTokenFromHeader pulls the bearer token out of an Authorization
// header value, returning "" when the header is absent or malformed.
func ExtractTokenFromHeader(authHeader string) string {
	if authHeader == "" {
		return ""
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}

	return parts[1]
}
