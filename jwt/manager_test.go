package jwt

import (
	"errors"
	"strings"
	"testing"
	"time"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newHSManager(t *testing.T, leeway time.Duration) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		AccessTTL:     15 * time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    testSecret,
		Issuer:        "tokenlife",
		Audience:      "api",
		Leeway:        leeway,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

// tamper flips one character in the payload segment so the signature no
// longer matches the signed bytes.
func tamper(t *testing.T, token string) string {
	t.Helper()
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %q", token)
	}
	payload := []byte(parts[1])
	i := len(payload) / 2
	if payload[i] == 'A' {
		payload[i] = 'B'
	} else {
		payload[i] = 'A'
	}
	parts[1] = string(payload)
	return strings.Join(parts, ".")
}

func TestCreateParseRoundTrip(t *testing.T) {
	m := newHSManager(t, 0)

	access, err := m.CreateAccess("u-1", "t-1", "sid-1", 7, []string{"member", "admin"})
	if err != nil {
		t.Fatalf("create access: %v", err)
	}

	claims, err := m.ParseAccess(access)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if claims.UID != "u-1" || claims.TID != "t-1" || claims.SID != "sid-1" {
		t.Fatalf("unexpected identity claims: %+v", claims)
	}
	if claims.Gen != 7 {
		t.Fatalf("gen = %d, want 7", claims.Gen)
	}
	if len(claims.Roles) != 2 || claims.Roles[0] != "member" || claims.Roles[1] != "admin" {
		t.Fatalf("unexpected roles: %v", claims.Roles)
	}
	if claims.ID == "" {
		t.Fatal("want a jti on every access token")
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != 15*time.Minute {
		t.Fatalf("exp-iat = %v, want the configured access TTL", got)
	}
}

func TestAccessExpiryBoundaryExclusive(t *testing.T) {
	m := newHSManager(t, 0)

	access, err := m.CreateAccess("u-1", "t-1", "sid-1", 0, nil)
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	claims, err := m.ParseAccess(access)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	exp := claims.ExpiresAt.Time

	m.now = func() time.Time { return exp.Add(-time.Second) }
	if _, err := m.ParseAccess(access); err != nil {
		t.Fatalf("one second before expiry must still validate: %v", err)
	}

	m.now = func() time.Time { return exp }
	if _, err := m.ParseAccess(access); !errors.Is(err, ErrExpired) {
		t.Fatalf("at the expiry instant want ErrExpired, got %v", err)
	}

	m.now = func() time.Time { return exp.Add(time.Second) }
	if _, err := m.ParseAccess(access); !errors.Is(err, ErrExpired) {
		t.Fatalf("after expiry want ErrExpired, got %v", err)
	}
}

func TestLeewayAppliesToExpiryOnly(t *testing.T) {
	m := newHSManager(t, 30*time.Second)

	access, err := m.CreateAccess("u-1", "t-1", "sid-1", 0, nil)
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	claims, err := m.ParseAccess(access)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	exp := claims.ExpiresAt.Time

	m.now = func() time.Time { return exp.Add(29 * time.Second) }
	if _, err := m.ParseAccess(access); err != nil {
		t.Fatalf("inside the leeway window must still validate: %v", err)
	}

	m.now = func() time.Time { return exp.Add(30 * time.Second) }
	if _, err := m.ParseAccess(access); !errors.Is(err, ErrExpired) {
		t.Fatalf("past the leeway window want ErrExpired, got %v", err)
	}

	tampered := tamper(t, access)
	m.now = func() time.Time { return exp.Add(-time.Minute) }
	if _, err := m.ParseAccess(tampered); !errors.Is(err, ErrInvalid) {
		t.Fatalf("leeway must never rescue a bad signature, got %v", err)
	}
}

func TestExpiredTamperedTokenReportsInvalid(t *testing.T) {
	m := newHSManager(t, 0)

	access, err := m.CreateAccess("u-1", "t-1", "sid-1", 0, nil)
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	claims, err := m.ParseAccess(access)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}

	m.now = func() time.Time { return claims.ExpiresAt.Add(time.Minute) }
	if _, err := m.ParseAccess(access); !errors.Is(err, ErrExpired) {
		t.Fatalf("intact expired token want ErrExpired, got %v", err)
	}

	_, err = m.ParseAccess(tamper(t, access))
	if !errors.Is(err, ErrInvalid) || errors.Is(err, ErrExpired) {
		t.Fatalf("tampered expired token want ErrInvalid only, got %v", err)
	}
}

func TestNewManagerValidation(t *testing.T) {
	pub, _ := newEdKeys(t)

	cases := map[string]Config{
		"zero ttl":               {SigningMethod: MethodHS256, PrivateKey: testSecret},
		"negative leeway":        {AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: testSecret, Leeway: -time.Second},
		"leeway above a minute":  {AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: testSecret, Leeway: 61 * time.Second},
		"missing hs256 key":      {AccessTTL: time.Minute, SigningMethod: MethodHS256},
		"short hs256 key":        {AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("too short")},
		"unsupported method":     {AccessTTL: time.Minute, SigningMethod: "rs256", PrivateKey: testSecret},
		"ed25519 without keys":   {AccessTTL: time.Minute, SigningMethod: MethodEd25519},
		"kid outside verify set": {AccessTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub, KeyID: "k9", VerifyKeys: map[string][]byte{"k1": pub}},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := NewManager(cfg); err == nil {
				t.Fatal("want config rejection")
			}
		})
	}
}

func TestLeewayAtSixtySecondsAccepted(t *testing.T) {
	if _, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    testSecret,
		Leeway:        time.Minute,
	}); err != nil {
		t.Fatalf("sixty seconds is the maximum allowed leeway: %v", err)
	}
}
