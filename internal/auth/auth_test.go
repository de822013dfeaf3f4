package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestJWTVerifier_RoundTrip(t *testing.T) {
	v := NewJWTVerifier("test-secret", "resume-ai")

	token, err := v.Sign("user-42", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	userID, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if userID != "user-42" {
		t.Errorf("userID = %q, want user-42", userID)
	}
}

func TestJWTVerifier_Expired(t *testing.T) {
	v := NewJWTVerifier("test-secret", "")

	token, err := v.Sign("user-42", -time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = v.Verify(context.Background(), token)
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestJWTVerifier_WrongSecret(t *testing.T) {
	signer := NewJWTVerifier("secret-a", "")
	verifier := NewJWTVerifier("secret-b", "")

	token, _ := signer.Sign("user-42", time.Minute)

	if _, err := verifier.Verify(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestJWTVerifier_WrongIssuer(t *testing.T) {
	signer := NewJWTVerifier("test-secret", "someone-else")
	verifier := NewJWTVerifier("test-secret", "resume-ai")

	token, _ := signer.Sign("user-42", time.Minute)

	if _, err := verifier.Verify(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestJWTVerifier_RejectsNone(t *testing.T) {
	claims := jwt.RegisteredClaims{
		Subject:   "user-42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	v := NewJWTVerifier("test-secret", "")
	if _, err := v.Verify(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for alg=none, got %v", err)
	}
}

func TestJWTVerifier_MissingToken(t *testing.T) {
	v := NewJWTVerifier("test-secret", "")

	if _, err := v.Verify(context.Background(), ""); !errors.Is(err, ErrMissingToken) {
		t.Errorf("expected ErrMissingToken, got %v", err)
	}
}

func TestStaticVerifier(t *testing.T) {
	v := NewStaticVerifier(map[string]string{"dev-token": "user-1"})
	ctx := context.Background()

	userID, err := v.Verify(ctx, "dev-token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if userID != "user-1" {
		t.Errorf("userID = %q, want user-1", userID)
	}

	if _, err := v.Verify(ctx, "unknown"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}
