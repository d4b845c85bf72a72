package mail

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestResetMessageCarriesLink(t *testing.T) {
	const link = "https://portal.test/reset?resetToken=abc123"
	msg := ResetMessage("pat@example.com", "noreply@portal.test", "Pat", link)

	if msg.To != "pat@example.com" || msg.From != "noreply@portal.test" {
		t.Fatalf("addressing wrong: %+v", msg)
	}
	if !strings.Contains(msg.HTML, link) || !strings.Contains(msg.Text, link) {
		t.Fatal("reset link missing from body")
	}
	if !strings.Contains(msg.HTML, "Hello Pat") {
		t.Fatalf("greeting missing: %q", msg.HTML)
	}
}

func TestResetMessageWithoutName(t *testing.T) {
	msg := ResetMessage("pat@example.com", "noreply@portal.test", "", "https://x/reset?resetToken=t")
	if !strings.Contains(msg.Text, "Hello,") {
		t.Fatalf("nameless greeting wrong: %q", msg.Text)
	}
}

func TestNopSenderNeverFails(t *testing.T) {
	s := NopSender{Logger: zap.NewNop()}
	if err := s.Send(context.Background(), Message{To: "pat@example.com"}); err != nil {
		t.Fatalf("NopSender.Send: %v", err)
	}
}
