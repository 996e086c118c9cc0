package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iho/walletledger/internal/domain"
)

var (
	// ErrInvalidToken is returned for malformed or badly signed tokens.
	ErrInvalidToken = fmt.Errorf("%w: invalid token", domain.ErrUnauthenticated)
	// ErrExpiredToken is returned for tokens past their expiry.
	ErrExpiredToken = fmt.Errorf("%w: token expired", domain.ErrUnauthenticated)
)

// Claims represents the JWT claims
type Claims struct {
	OwnerID string `json:"owner_id"`
	jwt.RegisteredClaims
}

// JWTManager manages JWT token creation and validation
type JWTManager struct {
	secretKey     []byte
	tokenDuration time.Duration
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(secretKey string, tokenDuration time.Duration) *JWTManager {
	return &JWTManager{
		secretKey:     []byte(secretKey),
		tokenDuration: tokenDuration,
	}
}

// Generate issues an HS256 token for ownerID.
func (m *JWTManager) Generate(ownerID string) (string, error) {
	if ownerID == "" {
		return "", domain.ErrUnauthenticated
	}

	now := time.Now()
	claims := Claims{
		OwnerID: ownerID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   ownerID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}

// Verify verifies a JWT token and returns the claims
func (m *JWTManager) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			// Validate signing method
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return m.secretKey, nil
		},
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// ResolveOwner implements usecase.OwnerResolver for bearer tokens. The owner
// claim wins over the subject.
func (m *JWTManager) ResolveOwner(_ context.Context, credential string) (string, error) {
	claims, err := m.Verify(credential)
	if err != nil {
		return "", err
	}

	owner := claims.OwnerID
	if owner == "" {
		owner = claims.Subject
	}
	if owner == "" {
		return "", ErrInvalidToken
	}

	return owner, nil
}

// HeaderResolver trusts a credential that is already the owner id, as set by an
// authenticating proxy in front of the service.
type HeaderResolver struct{}

// ResolveOwner returns credential unchanged.
func (HeaderResolver) ResolveOwner(_ context.Context, credential string) (string, error) {
	if credential == "" {
		return "", domain.ErrUnauthenticated
	}
	return credential, nil
}
