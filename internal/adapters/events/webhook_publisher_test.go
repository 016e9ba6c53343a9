package events

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/atviraknyga/bookapi/internal/core/domain"
)

func TestWebhookPublisherSuccess(t *testing.T) {
	var gotBody []byte
	var gotHeaders http.Header

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	secret := "test-secret"
	pub := NewWebhookPublisher(srv.URL, secret, 5*time.Second)

	event := domain.AuditEventEnvelope{
		EventID:       "evt-1",
		Entity:        "book",
		EntityID:      "b1",
		Action:        domain.ActionUpdate,
		ActorID:       "user-1",
		OccurredAt:    time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC),
		FieldsChanged: []string{"title"},
	}

	if err := pub.Publish(context.Background(), domain.AuditTopic, event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ct := gotHeaders.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if topic := gotHeaders.Get("X-Bookapi-Topic"); topic != domain.AuditTopic {
		t.Errorf("X-Bookapi-Topic = %q, want %s", topic, domain.AuditTopic)
	}
	if entity := gotHeaders.Get("X-Bookapi-Entity"); entity != "book" {
		t.Errorf("X-Bookapi-Entity = %q, want book", entity)
	}
	if action := gotHeaders.Get("X-Bookapi-Action"); action != "update" {
		t.Errorf("X-Bookapi-Action = %q, want update", action)
	}

	sig := gotHeaders.Get("X-Hub-Signature-256")
	if !strings.HasPrefix(sig, "sha256=") {
		t.Fatalf("signature header = %q", sig)
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(gotBody)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if sig != want {
		t.Errorf("signature mismatch: got %q, want %q", sig, want)
	}

	var decoded domain.AuditEventEnvelope
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if decoded.EventID != "evt-1" || decoded.Action != domain.ActionUpdate {
		t.Fatalf("body did not round-trip: %+v", decoded)
	}
}

func TestWebhookPublisherNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	pub := NewWebhookPublisher(srv.URL, "s", time.Second)
	err := pub.Publish(context.Background(), domain.AuditTopic, domain.AuditEventEnvelope{EventID: "evt-1"})
	if err == nil {
		t.Fatal("expected error for 502 response")
	}
	if !strings.Contains(err.Error(), "502") {
		t.Fatalf("error should mention status, got %v", err)
	}
}

func TestWebhookPublisherUnreachableEndpoint(t *testing.T) {
	pub := NewWebhookPublisher("http://127.0.0.1:1/unreachable", "s", 500*time.Millisecond)
	if err := pub.Publish(context.Background(), domain.AuditTopic, domain.AuditEventEnvelope{EventID: "evt-1"}); err == nil {
		t.Fatal("expected error for unreachable endpoint")
	}
}
