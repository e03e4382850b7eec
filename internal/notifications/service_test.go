package notifications_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"curator/internal/notifications"
	"curator/internal/testsupport"
)

func TestNoopWithoutTopic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = ""

	service := notifications.NewService(cfg, nil)
	if err := service.NotifyQueueStarted(context.Background(), 3); err != nil {
		t.Fatalf("noop service must never error: %v", err)
	}
	if err := service.NotifyJobFailed(context.Background(), "enrich", errors.New("x")); err != nil {
		t.Fatalf("noop service must never error: %v", err)
	}
}

func TestNtfySendsConfiguredEvents(t *testing.T) {
	var requests atomic.Int32
	var lastTitle atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		lastTitle.Store(r.Header.Get("Title"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Queue = true
	cfg.Notifications.Enrichment = false
	cfg.Notifications.Errors = true

	service := notifications.NewService(cfg, nil)
	ctx := context.Background()

	if err := service.NotifyQueueStarted(ctx, 5); err != nil {
		t.Fatalf("queue notification failed: %v", err)
	}
	if got := requests.Load(); got != 1 {
		t.Fatalf("expected 1 request, got %d", got)
	}
	if title := lastTitle.Load(); title != "Curator - Queue Started" {
		t.Fatalf("unexpected title %v", title)
	}

	// Enrichment events are toggled off.
	if err := service.NotifyEnrichmentCompleted(ctx, "Heat", 3); err != nil {
		t.Fatal(err)
	}
	if got := requests.Load(); got != 1 {
		t.Fatalf("disabled event class must not send, got %d requests", got)
	}

	if err := service.NotifyJobFailed(ctx, "enrich", errors.New("boom")); err != nil {
		t.Fatal(err)
	}
	if got := requests.Load(); got != 2 {
		t.Fatalf("expected error event sent, got %d requests", got)
	}
}

func TestNtfyReportsServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL

	service := notifications.NewService(cfg, nil)
	if err := service.TestNotification(context.Background()); err == nil {
		t.Fatal("expected error from rejected notification")
	}
}
