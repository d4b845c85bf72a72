package portalauth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/openclinic/portalauth"
)

func TestRegisterCreatesPatientWithSession(t *testing.T) {
	h := newHarness(t, testConfig())

	res := h.register(t, "Pat@Example.com", "hunter2hunter2")

	if res.Message != portalauth.MessageOK {
		t.Fatalf("message = %q, want OK", res.Message)
	}
	if res.User == nil || res.Tokens == nil {
		t.Fatal("successful registration must return user and tokens")
	}
	if res.User.Email != "pat@example.com" {
		t.Fatalf("email not normalized: %q", res.User.Email)
	}
	if res.User.Role != portalauth.RolePatient {
		t.Fatalf("role = %s, want PATIENT", res.User.Role)
	}
	if res.User.PasswordHash == "hunter2hunter2" || res.User.PasswordHash == "" {
		t.Fatal("password stored without hashing")
	}

	// The issued access token must authenticate immediately.
	uid, err := h.engine.VerifyAccess(context.Background(), res.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if uid != res.User.ID {
		t.Fatalf("token subject = %s, want %s", uid, res.User.ID)
	}
}

func TestRegisterExistingPatientReturnsExists(t *testing.T) {
	h := newHarness(t, testConfig())
	h.register(t, "pat@example.com", "hunter2hunter2")

	res := h.register(t, "pat@example.com", "different-password")

	if res.Message != portalauth.MessageExists {
		t.Fatalf("message = %q, want EXISTS", res.Message)
	}
	if res.User != nil || res.Tokens != nil {
		t.Fatal("EXISTS result must not leak the account or a session")
	}

	// The original credentials still work.
	if _, err := h.engine.Login(context.Background(), "pat@example.com", "hunter2hunter2"); err != nil {
		t.Fatalf("original credentials broken: %v", err)
	}
}

func TestRegisterPromotesVisitorInPlace(t *testing.T) {
	h := newHarness(t, testConfig())

	visitor, err := h.store.CreateUser(context.Background(), &portalauth.User{
		Email: "walkin@example.com",
		Role:  portalauth.RoleVisitor,
	})
	if err != nil {
		t.Fatalf("seed visitor: %v", err)
	}

	// The visitor saved a draft visit before registering.
	if _, err := h.store.UpsertTemporaryVisit(context.Background(), visitor.ID, portalauth.Visit{Type: "URGENT"}); err != nil {
		t.Fatalf("seed draft: %v", err)
	}

	res := h.register(t, "walkin@example.com", "hunter2hunter2")

	if res.Message != portalauth.MessageOK {
		t.Fatalf("message = %q, want OK", res.Message)
	}
	if res.User.ID != visitor.ID {
		t.Fatalf("promotion replaced the account: %s != %s", res.User.ID, visitor.ID)
	}
	if res.User.Role != portalauth.RolePatient {
		t.Fatalf("role after promotion = %s, want PATIENT", res.User.Role)
	}

	// Pre-registration records stay attached.
	visits, err := h.engine.Visits(authed(visitor.ID))
	if err != nil {
		t.Fatalf("Visits: %v", err)
	}
	if len(visits) != 1 {
		t.Fatalf("visit count after promotion = %d, want 1", len(visits))
	}
}

func TestLoginIssuesSession(t *testing.T) {
	h := newHarness(t, testConfig())
	h.register(t, "pat@example.com", "hunter2hunter2")

	res, err := h.engine.Login(context.Background(), "PAT@example.com", "hunter2hunter2")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Tokens.AccessToken == "" || res.Tokens.RefreshToken == "" {
		t.Fatal("login must return both tokens")
	}
	if res.Tokens.AccessToken == res.Tokens.RefreshToken {
		t.Fatal("access and refresh tokens must differ")
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	h := newHarness(t, testConfig())
	h.register(t, "pat@example.com", "hunter2hunter2")

	_, unknownErr := h.engine.Login(context.Background(), "nobody@example.com", "hunter2hunter2")
	_, wrongErr := h.engine.Login(context.Background(), "pat@example.com", "not-the-password")

	if !errors.Is(unknownErr, portalauth.ErrInvalidCredentials) {
		t.Fatalf("unknown email: got %v, want ErrInvalidCredentials", unknownErr)
	}
	if !errors.Is(wrongErr, portalauth.ErrInvalidCredentials) {
		t.Fatalf("wrong password: got %v, want ErrInvalidCredentials", wrongErr)
	}
	if unknownErr.Error() != wrongErr.Error() {
		t.Fatalf("error texts differ: %q vs %q", unknownErr, wrongErr)
	}
}

func TestRegisterRejectsEmptyInput(t *testing.T) {
	h := newHarness(t, testConfig())

	if _, err := h.engine.Register(context.Background(), portalauth.RegisterInput{Email: "", Password: "x"}); err == nil {
		t.Fatal("empty email accepted")
	}
	if _, err := h.engine.Register(context.Background(), portalauth.RegisterInput{Email: "a@b.c", Password: ""}); err == nil {
		t.Fatal("empty password accepted")
	}
}
