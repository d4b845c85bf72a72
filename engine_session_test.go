package portalauth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/openclinic/portalauth"
)

func TestRenewSessionIssuesFreshPair(t *testing.T) {
	h := newHarness(t, testConfig())
	res := h.register(t, "pat@example.com", "hunter2hunter2")

	renewed, err := h.engine.RenewSession(context.Background(), res.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("RenewSession: %v", err)
	}
	if renewed.User.ID != res.User.ID {
		t.Fatalf("renewed for %s, want %s", renewed.User.ID, res.User.ID)
	}
	if renewed.Tokens.AccessToken == "" || renewed.Tokens.RefreshToken == "" {
		t.Fatal("renewal must return a full pair")
	}

	uid, err := h.engine.VerifyAccess(context.Background(), renewed.Tokens.AccessToken)
	if err != nil || uid != res.User.ID {
		t.Fatalf("renewed access token unusable: uid=%q err=%v", uid, err)
	}
}

func TestRenewSessionRejectsGarbage(t *testing.T) {
	h := newHarness(t, testConfig())

	for _, token := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := h.engine.RenewSession(context.Background(), token); !errors.Is(err, portalauth.ErrRefreshInvalid) {
			t.Fatalf("token %q: got %v, want ErrRefreshInvalid", token, err)
		}
	}
}

func TestRenewSessionRejectsAccessToken(t *testing.T) {
	h := newHarness(t, testConfig())
	res := h.register(t, "pat@example.com", "hunter2hunter2")

	if _, err := h.engine.RenewSession(context.Background(), res.Tokens.AccessToken); !errors.Is(err, portalauth.ErrRefreshInvalid) {
		t.Fatalf("access token accepted for renewal: %v", err)
	}
}

func TestInvalidateTokensRevokesOldRefresh(t *testing.T) {
	h := newHarness(t, testConfig())
	res := h.register(t, "pat@example.com", "hunter2hunter2")

	ok, err := h.engine.InvalidateTokens(authed(res.User.ID))
	if err != nil || !ok {
		t.Fatalf("InvalidateTokens: ok=%v err=%v", ok, err)
	}

	// The pre-bump refresh token carries a stale generation.
	if _, err := h.engine.RenewSession(context.Background(), res.Tokens.RefreshToken); !errors.Is(err, portalauth.ErrRefreshInvalid) {
		t.Fatalf("stale refresh token still works: %v", err)
	}

	// A fresh login mints tokens at the new generation.
	login, err := h.engine.Login(context.Background(), "pat@example.com", "hunter2hunter2")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := h.engine.RenewSession(context.Background(), login.Tokens.RefreshToken); err != nil {
		t.Fatalf("post-bump refresh token rejected: %v", err)
	}
}

func TestInvalidateTokensRequiresAuth(t *testing.T) {
	h := newHarness(t, testConfig())

	if _, err := h.engine.InvalidateTokens(context.Background()); !errors.Is(err, portalauth.ErrNotAuthenticated) {
		t.Fatalf("got %v, want ErrNotAuthenticated", err)
	}
}

func TestInvalidateTokensForMissingUserIsIdempotent(t *testing.T) {
	h := newHarness(t, testConfig())

	ok, err := h.engine.InvalidateTokens(authed("no-such-user"))
	if err != nil {
		t.Fatalf("InvalidateTokens: %v", err)
	}
	if ok {
		t.Fatal("missing user reported as invalidated")
	}
}

func TestAccessTokenSurvivesInvalidation(t *testing.T) {
	h := newHarness(t, testConfig())
	res := h.register(t, "pat@example.com", "hunter2hunter2")

	if _, err := h.engine.InvalidateTokens(authed(res.User.ID)); err != nil {
		t.Fatalf("InvalidateTokens: %v", err)
	}

	// Access tokens are stateless; they keep working until expiry.
	if _, err := h.engine.VerifyAccess(context.Background(), res.Tokens.AccessToken); err != nil {
		t.Fatalf("access token rejected after invalidation: %v", err)
	}
}
