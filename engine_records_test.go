package portalauth_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/openclinic/portalauth"
)

func TestSaveCardTokenizesAndActivates(t *testing.T) {
	h := newHarness(t, testConfig())
	res := h.register(t, "pat@example.com", "hunter2hunter2")

	card, err := h.engine.SaveCard(authed(res.User.ID), portalauth.CardInput{
		Number:     "4111111111111111",
		Expiration: "12/30",
		CVV:        "123",
		Name:       "Pat Doe",
	})
	if err != nil {
		t.Fatalf("SaveCard: %v", err)
	}
	if !card.Active {
		t.Fatal("saved card not active")
	}
	if card.CCToken != "gw-token" {
		t.Fatalf("gateway token not stored: %q", card.CCToken)
	}
	if card.CCNumber == "4111111111111111" {
		t.Fatal("raw card number persisted")
	}
}

func TestSaveCardReplacesActiveCard(t *testing.T) {
	h := newHarness(t, testConfig())
	res := h.register(t, "pat@example.com", "hunter2hunter2")
	ctx := authed(res.User.ID)

	for i := 0; i < 2; i++ {
		if _, err := h.engine.SaveCard(ctx, portalauth.CardInput{Number: "4111111111111111", Expiration: "12/30"}); err != nil {
			t.Fatalf("SaveCard: %v", err)
		}
	}

	cards, err := h.engine.Cards(ctx)
	if err != nil {
		t.Fatalf("Cards: %v", err)
	}
	if len(cards) != 2 {
		t.Fatalf("card count = %d, want 2", len(cards))
	}
	active := 0
	for _, c := range cards {
		if c.Active {
			active++
		}
	}
	if active != 1 {
		t.Fatalf("active cards = %d, want 1", active)
	}
}

func TestSaveCardDeclineWritesNothing(t *testing.T) {
	h := newHarness(t, testConfig())
	res := h.register(t, "pat@example.com", "hunter2hunter2")
	ctx := authed(res.User.ID)

	h.gateway.decline = true
	if _, err := h.engine.SaveCard(ctx, portalauth.CardInput{Number: "4000000000000002"}); !errors.Is(err, portalauth.ErrPaymentDeclined) {
		t.Fatalf("got %v, want ErrPaymentDeclined", err)
	}

	cards, err := h.engine.Cards(ctx)
	if err != nil {
		t.Fatalf("Cards: %v", err)
	}
	if len(cards) != 0 {
		t.Fatalf("declined card persisted: %d cards", len(cards))
	}
}

func TestSaveCardConcurrentLeavesOneActive(t *testing.T) {
	h := newHarness(t, testConfig())
	res := h.register(t, "pat@example.com", "hunter2hunter2")
	ctx := authed(res.User.ID)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.engine.SaveCard(ctx, portalauth.CardInput{Number: "4111111111111111", Expiration: "12/30"})
		}()
	}
	wg.Wait()

	cards, err := h.engine.Cards(ctx)
	if err != nil {
		t.Fatalf("Cards: %v", err)
	}
	active := 0
	for _, c := range cards {
		if c.Active {
			active++
		}
	}
	if active != 1 {
		t.Fatalf("active cards after concurrent saves = %d, want 1", active)
	}
}

func TestRecordSavesRequireAuth(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()

	if _, err := h.engine.SaveCard(ctx, portalauth.CardInput{}); !errors.Is(err, portalauth.ErrNotAuthenticated) {
		t.Fatalf("SaveCard anonymous: %v", err)
	}
	if _, err := h.engine.SaveAddress(ctx, portalauth.AddressInput{}); !errors.Is(err, portalauth.ErrNotAuthenticated) {
		t.Fatalf("SaveAddress anonymous: %v", err)
	}
	if _, err := h.engine.SaveTemporaryVisit(ctx, portalauth.VisitInput{}); !errors.Is(err, portalauth.ErrNotAuthenticated) {
		t.Fatalf("SaveTemporaryVisit anonymous: %v", err)
	}
	if h.gateway.calls != 0 {
		t.Fatalf("gateway called for anonymous save: %d calls", h.gateway.calls)
	}
}

func TestSaveAddressReactivatesIdenticalContent(t *testing.T) {
	h := newHarness(t, testConfig())
	res := h.register(t, "pat@example.com", "hunter2hunter2")
	ctx := authed(res.User.ID)

	home := portalauth.AddressInput{AddressOne: "1 Main St", City: "Springfield", State: "IL", Zip: "62701"}
	work := portalauth.AddressInput{AddressOne: "9 Office Way", City: "Springfield", State: "IL", Zip: "62702"}

	first, err := h.engine.SaveAddress(ctx, home)
	if err != nil {
		t.Fatalf("SaveAddress: %v", err)
	}
	if _, err := h.engine.SaveAddress(ctx, work); err != nil {
		t.Fatalf("SaveAddress: %v", err)
	}
	again, err := h.engine.SaveAddress(ctx, home)
	if err != nil {
		t.Fatalf("SaveAddress: %v", err)
	}
	if again.ID != first.ID {
		t.Fatalf("identical address duplicated: %s != %s", again.ID, first.ID)
	}

	addrs, err := h.engine.Addresses(ctx)
	if err != nil {
		t.Fatalf("Addresses: %v", err)
	}
	if len(addrs) != 2 {
		t.Fatalf("address count = %d, want 2", len(addrs))
	}
}

func TestSaveTemporaryVisitUpsertsPerType(t *testing.T) {
	h := newHarness(t, testConfig())
	res := h.register(t, "pat@example.com", "hunter2hunter2")
	ctx := authed(res.User.ID)

	questionnaire := json.RawMessage(`{"symptoms":["cough"]}`)
	first, err := h.engine.SaveTemporaryVisit(ctx, portalauth.VisitInput{Type: "URGENT", Questionnaire: questionnaire})
	if err != nil {
		t.Fatalf("SaveTemporaryVisit: %v", err)
	}
	if first.Status != portalauth.VisitTemporary {
		t.Fatalf("status = %s, want TEMPORARY", first.Status)
	}

	updated := json.RawMessage(`{"symptoms":["cough","fever"]}`)
	second, err := h.engine.SaveTemporaryVisit(ctx, portalauth.VisitInput{Type: "URGENT", Questionnaire: updated})
	if err != nil {
		t.Fatalf("SaveTemporaryVisit: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("draft duplicated: %s != %s", second.ID, first.ID)
	}

	visits, err := h.engine.Visits(ctx)
	if err != nil {
		t.Fatalf("Visits: %v", err)
	}
	if len(visits) != 1 {
		t.Fatalf("visit count = %d, want 1", len(visits))
	}
	if string(visits[0].Questionnaire) != string(updated) {
		t.Fatalf("questionnaire not updated: %s", visits[0].Questionnaire)
	}
}

func TestRecordSavesForDeletedUser(t *testing.T) {
	h := newHarness(t, testConfig())

	if _, err := h.engine.SaveAddress(authed("ghost"), portalauth.AddressInput{AddressOne: "1 Main St"}); !errors.Is(err, portalauth.ErrUserNotFound) {
		t.Fatalf("got %v, want ErrUserNotFound", err)
	}
}
