package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"cryptopulse/config"
)

func testJWT() *config.JWTConfig {
	return &config.JWTConfig{AccessSecret: "test-secret", AccessExpiry: time.Minute, Issuer: "cryptopulse"}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	cfg := testJWT()
	tok, err := GenerateAccessToken(cfg, 42, "ada@example.com")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := ParseAccessToken(cfg, tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != 42 || claims.Email != "ada@example.com" || claims.Subject != "42" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestParseAccessTokenRejects(t *testing.T) {
	cfg := testJWT()
	good, _ := GenerateAccessToken(cfg, 42, "")

	other := testJWT()
	other.AccessSecret = "other"
	forged, _ := GenerateAccessToken(other, 42, "")

	expiredCfg := testJWT()
	expiredCfg.AccessExpiry = -time.Minute
	expired, _ := GenerateAccessToken(expiredCfg, 42, "")

	noUser, _ := GenerateAccessToken(cfg, 0, "")

	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: 42}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := map[string]string{
		"garbage":   "not-a-token",
		"wrong key": forged,
		"expired":   expired,
		"no user":   noUser,
		"alg none":  none,
		"truncated": good[:len(good)-4],
	}
	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseAccessToken(cfg, tok); err != ErrInvalidToken {
				t.Fatalf("err = %v, want ErrInvalidToken", err)
			}
		})
	}
}
