package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iho/walletledger/internal/domain"
	"github.com/iho/walletledger/internal/infrastructure/auth"
	"github.com/iho/walletledger/internal/usecase"
)

var (
	_ usecase.OwnerResolver = (*auth.JWTManager)(nil)
	_ usecase.OwnerResolver = auth.HeaderResolver{}
)

func TestJWTManagerGenerateAndVerify(t *testing.T) {
	t.Parallel()

	manager := auth.NewJWTManager("super-secret", time.Minute)

	token, err := manager.Generate("owner-123")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	claims, err := manager.Verify(token)
	if err != nil {
		t.Fatalf("expected token to verify, got %v", err)
	}

	if claims.OwnerID != "owner-123" || claims.Subject != "owner-123" {
		t.Fatalf("expected claims to carry owner, got %+v", claims)
	}

	owner, err := manager.ResolveOwner(context.Background(), token)
	if err != nil || owner != "owner-123" {
		t.Fatalf("expected owner-123, got owner=%q err=%v", owner, err)
	}
}

func TestJWTManagerGenerateRequiresOwner(t *testing.T) {
	t.Parallel()

	if _, err := auth.NewJWTManager("secret", time.Minute).Generate(""); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}

func TestJWTManagerVerifyErrors(t *testing.T) {
	t.Parallel()

	manager := auth.NewJWTManager("secret", time.Minute)

	expiredClaims := auth.Claims{
		OwnerID: "expired",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Minute)),
			NotBefore: jwt.NewNumericDate(time.Now().Add(-2 * time.Minute)),
		},
	}

	expiredToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, expiredClaims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("failed to sign expired token: %v", err)
	}

	if _, err := manager.Verify(expiredToken); !errors.Is(err, auth.ErrExpiredToken) {
		t.Fatalf("expected expired token error, got %v", err)
	}

	otherKey, err := auth.NewJWTManager("other-secret", time.Minute).Generate("mallory")
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	if _, err := manager.Verify(otherKey); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expected invalid token error, got %v", err)
	}

	if _, err := manager.Verify("not-a-jwt"); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected garbage to be unauthenticated, got %v", err)
	}
}

func TestJWTManagerResolveOwnerFallsBackToSubject(t *testing.T) {
	t.Parallel()

	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "subject-owner",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	owner, err := auth.NewJWTManager("secret", time.Minute).ResolveOwner(context.Background(), token)
	if err != nil || owner != "subject-owner" {
		t.Fatalf("expected subject-owner, got owner=%q err=%v", owner, err)
	}
}

func TestHeaderResolver(t *testing.T) {
	t.Parallel()

	owner, err := auth.HeaderResolver{}.ResolveOwner(context.Background(), "alice")
	if err != nil || owner != "alice" {
		t.Fatalf("expected alice, got owner=%q err=%v", owner, err)
	}

	if _, err := (auth.HeaderResolver{}).ResolveOwner(context.Background(), ""); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}
