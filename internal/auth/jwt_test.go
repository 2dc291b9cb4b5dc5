package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testJWTConfig() *JWTConfig {
	return &JWTConfig{
		Secret:   []byte("test-secret-change-me"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	}
}

func TestGenerateAndValidate(t *testing.T) {
	cfg := testJWTConfig()

	token, err := GenerateToken(cfg, Claims{UserID: 42, FirstName: "Ada", LastName: "Lovelace"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := ValidateToken(cfg, token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	id := claims.Identity()
	if id.UserID != 42 || id.FirstName != "Ada" || id.LastName != "Lovelace" {
		t.Fatalf("unexpected identity: %+v", id)
	}
	if !id.Authenticated() {
		t.Fatalf("identity should be authenticated")
	}
	if claims.Admin {
		t.Fatalf("admin should default to false")
	}
}

func TestValidateRejects(t *testing.T) {
	cfg := testJWTConfig()

	other := *cfg
	other.Secret = []byte("another-secret")
	wrongSecret, _ := GenerateToken(&other, Claims{UserID: 1})

	other = *cfg
	other.Issuer = "someone-else"
	wrongIssuer, _ := GenerateToken(&other, Claims{UserID: 1})

	other = *cfg
	other.Audience = "elsewhere"
	wrongAudience, _ := GenerateToken(&other, Claims{UserID: 1})

	stale := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Audience:  jwt.ClaimStrings{cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	expired, err := stale.SignedString(cfg.Secret)
	if err != nil {
		t.Fatalf("sign expired token: %v", err)
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: 1})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := map[string]string{
		"garbage":        "not-a-token",
		"wrong secret":   wrongSecret,
		"wrong issuer":   wrongIssuer,
		"wrong audience": wrongAudience,
		"expired":        expired,
		"alg none":       unsigned,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ValidateToken(cfg, token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestValidateRequiresUser(t *testing.T) {
	cfg := testJWTConfig()

	token, err := GenerateToken(cfg, Claims{FirstName: "Nobody"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := ValidateToken(cfg, token); !errors.Is(err, ErrMissingUser) {
		t.Fatalf("expected ErrMissingUser, got %v", err)
	}
}

func TestServiceRoundTrip(t *testing.T) {
	svc := NewService(testJWTConfig())

	token, err := svc.IssueToken(Claims{UserID: 5, Admin: true})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != 5 || !claims.Admin {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}
