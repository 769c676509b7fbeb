package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func newTestIssuer(t *testing.T, now time.Time) *Issuer {
	t.Helper()
	i, err := NewIssuer("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer() error = %v", err)
	}
	i.now = func() time.Time { return now }
	return i
}

func TestNewIssuer_Validation(t *testing.T) {
	if _, err := NewIssuer("", time.Hour); err == nil {
		t.Error("NewIssuer(empty secret) should fail")
	}
	if _, err := NewIssuer("s", 0); err == nil {
		t.Error("NewIssuer(zero ttl) should fail")
	}
}

func TestIssueVerify_RoundTrip(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	i := newTestIssuer(t, now)
	id := uuid.New()

	tok, err := i.Issue(id, "alice")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if tok.TokenType != "Bearer" {
		t.Errorf("TokenType = %q, want Bearer", tok.TokenType)
	}
	if !tok.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v, want %v", tok.ExpiresAt, now.Add(time.Hour))
	}

	claims, err := i.Verify(tok.AccessToken)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.UserID != id || claims.Username != "alice" {
		t.Errorf("Verify() = %+v, want {%v alice}", claims, id)
	}
}

func TestVerify_Expired(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	i := newTestIssuer(t, now)

	tok, err := i.Issue(uuid.New(), "alice")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	i.now = func() time.Time { return now.Add(2 * time.Hour) }
	if _, err := i.Verify(tok.AccessToken); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("Verify(expired) error = %v, want ErrTokenExpired", err)
	}
}

func TestVerify_Invalid(t *testing.T) {
	now := time.Now()
	i := newTestIssuer(t, now)

	other, err := NewIssuer("other-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer() error = %v", err)
	}
	foreign, err := other.Issue(uuid.New(), "mallory")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": uuid.New().String(),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "not-a-uuid",
		"exp": now.Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"sub": uuid.New().String(),
		"exp": now.Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not.a.token"},
		{"empty", ""},
		{"wrong secret", foreign.AccessToken},
		{"missing expiry", noExpiry},
		{"bad subject", badSubject},
		{"wrong algorithm", hs512},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := i.Verify(tt.token)
			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestHasher(t *testing.T) {
	h := NewHasher(4)

	hash, err := h.Hash("hunter2")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if hash == "hunter2" || !strings.HasPrefix(hash, "$2") {
		t.Errorf("Hash() = %q, want a bcrypt hash", hash)
	}
	if err := h.Compare(hash, "hunter2"); err != nil {
		t.Errorf("Compare(correct) error = %v", err)
	}
	if err := h.Compare(hash, "wrong"); !errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("Compare(wrong) error = %v, want ErrPasswordMismatch", err)
	}
}

func TestNewHasher_CostBounds(t *testing.T) {
	if got := NewHasher(1).cost; got != 10 {
		t.Errorf("NewHasher(1).cost = %d, want 10", got)
	}
	if got := NewHasher(12).cost; got != 12 {
		t.Errorf("NewHasher(12).cost = %d, want 12", got)
	}
}
