package store

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestRedisSessionRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedisSessionStore(mr.Addr(), "", time.Hour)

	token, err := s.NewSession("u1")
	if err != nil || token == "" {
		t.Fatalf("NewSession: %q, %v", token, err)
	}
	uid, ok, err := s.GetUserIDByToken(token)
	if err != nil {
		t.Fatalf("GetUserIDByToken: %v", err)
	}
	if !ok || uid != "u1" {
		t.Fatalf("resolved = %q ok=%v, want u1", uid, ok)
	}
	if err := s.DeleteSession(token); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, ok, _ := s.GetUserIDByToken(token); ok {
		t.Fatalf("token survived deletion")
	}
}

func TestRedisSessionExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedisSessionStore(mr.Addr(), "", time.Minute)

	token, err := s.NewSession("u1")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, ok, _ := s.GetUserIDByToken(token); ok {
		t.Fatalf("token survived TTL")
	}
}

func TestRedisSessionUnknownToken(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedisSessionStore(mr.Addr(), "", time.Hour)
	if _, ok, err := s.GetUserIDByToken("nope"); ok || err != nil {
		t.Fatalf("unknown token: ok=%v err=%v", ok, err)
	}
}

func TestJWTSessionRoundTrip(t *testing.T) {
	s := NewJWTSessionStore("secret-1", time.Hour)
	token, err := s.NewSession("u1")
	if err != nil || token == "" {
		t.Fatalf("NewSession: %q, %v", token, err)
	}
	uid, ok, err := s.GetUserIDByToken(token)
	if err != nil {
		t.Fatalf("GetUserIDByToken: %v", err)
	}
	if !ok || uid != "u1" {
		t.Fatalf("resolved = %q ok=%v, want u1", uid, ok)
	}
}

func TestJWTSessionRejectsWrongSecret(t *testing.T) {
	issuer := NewJWTSessionStore("secret-1", time.Hour)
	verifier := NewJWTSessionStore("secret-2", time.Hour)
	token, err := issuer.NewSession("u1")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if _, ok, _ := verifier.GetUserIDByToken(token); ok {
		t.Fatalf("token accepted under wrong secret")
	}
}

func TestJWTSessionRejectsExpiredToken(t *testing.T) {
	s := NewJWTSessionStore("secret-1", -time.Minute)
	token, err := s.NewSession("u1")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if _, ok, _ := s.GetUserIDByToken(token); ok {
		t.Fatalf("expired token accepted")
	}
}

func TestJWTSessionRejectsGarbage(t *testing.T) {
	s := NewJWTSessionStore("secret-1", time.Hour)
	if _, ok, _ := s.GetUserIDByToken("not-a-jwt"); ok {
		t.Fatalf("garbage token accepted")
	}
}
