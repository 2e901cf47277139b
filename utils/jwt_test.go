package utils

import (
	"testing"
	"time"

	"admissions/config"
)

func TestJWTRoundTrip(t *testing.T) {
	config.JWTKey = []byte("test-secret")
	config.JWTExpiration = time.Hour

	token, err := GenerateJWT("6523a1b2c3d4e5f601234567", "Sam Iyer", "client_admin", "6523a1b2c3d4e5f601234568")
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}

	claims, err := ValidateJWT(token)
	if err != nil {
		t.Fatalf("ValidateJWT: %v", err)
	}
	if claims.UserID != "6523a1b2c3d4e5f601234567" {
		t.Errorf("UserID = %q", claims.UserID)
	}
	if claims.Role != "client_admin" {
		t.Errorf("Role = %q", claims.Role)
	}
	if claims.ClientID != "6523a1b2c3d4e5f601234568" {
		t.Errorf("ClientID = %q", claims.ClientID)
	}
}

func TestJWTExpired(t *testing.T) {
	config.JWTKey = []byte("test-secret")
	config.JWTExpiration = -time.Minute

	token, err := GenerateJWT("u", "n", "r", "")
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}
	if _, err := ValidateJWT(token); err == nil {
		t.Fatal("expired token validated")
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPasswordHash("s3cret-pass", hash) {
		t.Error("correct password rejected")
	}
	if CheckPasswordHash("wrong", hash) {
		t.Error("wrong password accepted")
	}
}
