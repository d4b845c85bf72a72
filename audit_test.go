package portalauth

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestDispatcherDeliversBeforeClose(t *testing.T) {
	sink := NewChannelSink(8)
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 8}, sink)

	d.Emit(context.Background(), AuditEvent{EventType: "login_success", UserID: "u1"})
	d.Close()

	select {
	case event := <-sink.Events():
		if event.EventType != "login_success" || event.UserID != "u1" {
			t.Fatalf("wrong event delivered: %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatal("event never delivered")
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	// A sink that never drains, with a buffer of one.
	blocked := make(chan struct{})
	sink := blockingSink{release: blocked}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)
	defer func() {
		close(blocked)
		d.Close()
	}()

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: "login_success"})
	}

	if d.Dropped() == 0 {
		t.Fatal("no events dropped despite full buffer")
	}
}

func TestDispatcherDisabled(t *testing.T) {
	d := newAuditDispatcher(AuditConfig{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("disabled config must yield a nil dispatcher")
	}
	d.Emit(context.Background(), AuditEvent{}) // nil-safe
	d.Close()
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), AuditEvent{
		EventType: "card_saved",
		UserID:    "u1",
		Success:   true,
	})

	var decoded AuditEvent
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("sink output is not JSON: %v", err)
	}
	if decoded.EventType != "card_saved" || !decoded.Success {
		t.Fatalf("round trip mismatch: %+v", decoded)
	}
}

type blockingSink struct {
	release chan struct{}
}

func (s blockingSink) Emit(context.Context, AuditEvent) {
	<-s.release
}
