package jwt

import (
	"strings"
	"testing"
	"time"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	m, err := NewManager(Config{
		AccessSecret:  []byte("access-secret-for-tests"),
		RefreshSecret: []byte("refresh-secret-for-tests"),
		AccessTTL:     time.Hour,
		RefreshTTL:    24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func TestManagerConfigValidation(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"missing secrets", Config{AccessTTL: time.Hour, RefreshTTL: time.Hour}},
		{"shared secret", Config{
			AccessSecret:  []byte("same"),
			RefreshSecret: []byte("same"),
			AccessTTL:     time.Hour,
			RefreshTTL:    time.Hour,
		}},
		{"zero ttl", Config{
			AccessSecret:  []byte("a"),
			RefreshSecret: []byte("b"),
		}},
		{"excessive leeway", Config{
			AccessSecret:  []byte("a"),
			RefreshSecret: []byte("b"),
			AccessTTL:     time.Hour,
			RefreshTTL:    time.Hour,
			Leeway:        time.Hour,
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewManager(tc.cfg); err == nil {
				t.Fatal("expected config rejection")
			}
		})
	}
}

func TestAccessRoundTrip(t *testing.T) {
	m := newTestManager(t)

	token, err := m.CreateAccess("u1")
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}

	claims, err := m.ParseAccess(token)
	if err != nil {
		t.Fatalf("ParseAccess failed: %v", err)
	}
	if claims.UID != "u1" {
		t.Fatalf("expected uid u1, got %q", claims.UID)
	}
}

func TestRefreshCarriesGeneration(t *testing.T) {
	m := newTestManager(t)

	token, err := m.CreateRefresh("u1", 7)
	if err != nil {
		t.Fatalf("CreateRefresh failed: %v", err)
	}

	claims, err := m.ParseRefresh(token)
	if err != nil {
		t.Fatalf("ParseRefresh failed: %v", err)
	}
	if claims.UID != "u1" || claims.Generation != 7 {
		t.Fatalf("unexpected claims: uid=%q gen=%d", claims.UID, claims.Generation)
	}
}

func TestSecretsAreIndependent(t *testing.T) {
	m := newTestManager(t)

	access, err := m.CreateAccess("u1")
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}
	refresh, err := m.CreateRefresh("u1", 0)
	if err != nil {
		t.Fatalf("CreateRefresh failed: %v", err)
	}

	if _, err := m.ParseRefresh(access); err == nil {
		t.Fatal("access token must not verify against the refresh secret")
	}
	if _, err := m.ParseAccess(refresh); err == nil {
		t.Fatal("refresh token must not verify against the access secret")
	}
}

func TestTamperedTokenRejected(t *testing.T) {
	m := newTestManager(t)

	token, err := m.CreateAccess("u1")
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %q", token)
	}
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	if _, err := m.ParseAccess(tampered); err == nil {
		t.Fatal("expected tampered token to fail verification")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	m, err := NewManager(Config{
		AccessSecret:  []byte("access-secret-for-tests"),
		RefreshSecret: []byte("refresh-secret-for-tests"),
		AccessTTL:     time.Millisecond,
		RefreshTTL:    time.Hour,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	token, err := m.CreateAccess("u1")
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}

	time.Sleep(5 * time.Millisecond)

	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected expired token to fail verification")
	}
}
