package utils

import (
	"context"
	"testing"
	"time"
)

func TestJwtRoundTrip(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	token, err := JwtGenerate("u-7", "Paula", time.Hour)
	if err != nil {
		t.Fatalf("JwtGenerate: %v", err)
	}
	claim, err := JwtValidate(token)
	if err != nil {
		t.Fatalf("JwtValidate: %v", err)
	}
	if claim.Subject != "u-7" || claim.Name != "Paula" {
		t.Fatalf("claim = %+v", claim)
	}

	t.Setenv("JWT_SECRET", "other")
	if _, err := JwtValidate(token); err == nil {
		t.Fatal("token signed with another secret should fail")
	}
}

func TestJwtExpired(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	token, err := JwtGenerate("u-7", "Paula", -time.Minute)
	if err != nil {
		t.Fatalf("JwtGenerate: %v", err)
	}
	if _, err := JwtValidate(token); err == nil {
		t.Fatal("expired token should fail")
	}
}

func TestJwtDisabled(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	if JwtEnabled() {
		t.Fatal("JwtEnabled with empty secret")
	}
	if _, err := JwtGenerate("u-7", "Paula", time.Hour); err == nil {
		t.Fatal("JwtGenerate should fail without a secret")
	}
}

func TestRedisSequencerNotReady(t *testing.T) {
	var s *RedisSequencer
	if _, err := s.Next(context.Background(), "work-order"); err == nil {
		t.Fatal("nil sequencer should report not ready")
	}
	if _, err := NewRedisSequencer(nil, nil, nil).Next(context.Background(), "work-order"); err == nil {
		t.Fatal("sequencer without a client should report not ready")
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := SetActorInContext(context.Background(), "u-1", "Marina")
	ctx = SetCorrelationIdInContext(ctx, "cid-1")
	if id, ok := GetActorIdFromContext(ctx); !ok || id != "u-1" {
		t.Fatalf("actor id = %q %v", id, ok)
	}
	if name, ok := GetActorNameFromContext(ctx); !ok || name != "Marina" {
		t.Fatalf("actor name = %q %v", name, ok)
	}
	if cid, ok := GetCorrelationIdFromContext(ctx); !ok || cid != "cid-1" {
		t.Fatalf("correlation id = %q %v", cid, ok)
	}
	if _, ok := GetTokenFromContext(ctx); ok {
		t.Fatal("token should be absent")
	}
}
