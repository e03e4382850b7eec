package syncer_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"curator/internal/catalog"
	"curator/internal/queue"
	"curator/internal/services"
	"curator/internal/syncer"
	"curator/internal/testsupport"
)

type stubTarget struct {
	name  string
	err   error
	calls int
}

func (s *stubTarget) Name() string { return s.name }

func (s *stubTarget) Refresh(_ context.Context, _ *catalog.Entity) error {
	s.calls++
	return s.err
}

func syncJob(t *testing.T, entity *catalog.Entity) *queue.Job {
	t.Helper()
	payload, err := queue.EncodePayload(queue.SyncPayload{EntityID: entity.ID, EntityType: string(entity.Type)})
	if err != nil {
		t.Fatal(err)
	}
	return &queue.Job{ID: 1, Type: queue.TypeSync, Payload: payload}
}

func TestExecuteToleratesPartialFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenCatalog(t, cfg)
	entity := testsupport.MustUpsertEntity(t, store, cfg, "Arrival")

	healthy := &stubTarget{name: "plex"}
	broken := &stubTarget{name: "jellyfin", err: errors.New("connection refused")}
	handler := syncer.NewHandlerWithTargets(cfg, store, nil, nil, healthy, broken)

	if err := handler.Execute(context.Background(), syncJob(t, entity)); err != nil {
		t.Fatalf("partial failure must not fail the stage: %v", err)
	}
	if healthy.calls != 1 || broken.calls != 1 {
		t.Fatalf("every target must be tried, got %d/%d", healthy.calls, broken.calls)
	}
}

func TestExecuteTotalFailureIsTransient(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenCatalog(t, cfg)
	entity := testsupport.MustUpsertEntity(t, store, cfg, "Arrival")

	handler := syncer.NewHandlerWithTargets(cfg, store, nil, nil,
		&stubTarget{name: "plex", err: errors.New("down")},
		&stubTarget{name: "jellyfin", err: errors.New("down")})

	err := handler.Execute(context.Background(), syncJob(t, entity))
	if err == nil {
		t.Fatal("expected error when every target fails")
	}
	if !services.IsRecoverable(err) {
		t.Fatal("unreachable servers must be retried")
	}
}

func TestExecuteNoTargetsIsNoOp(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenCatalog(t, cfg)
	entity := testsupport.MustUpsertEntity(t, store, cfg, "Arrival")

	handler := syncer.NewHandlerWithTargets(cfg, store, nil, nil)
	if err := handler.Execute(context.Background(), syncJob(t, entity)); err != nil {
		t.Fatalf("no targets must be a clean no-op: %v", err)
	}
}

func TestPlexRefreshTargetsContainingSection(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenCatalog(t, cfg)
	entity := testsupport.MustUpsertEntity(t, store, cfg, "Arrival")

	var refreshPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Plex-Token") != "tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/library/sections":
			w.Header().Set("Content-Type", "application/xml")
			w.Write([]byte(`<MediaContainer>
				<Directory key="1" title="Movies"><Location path="` + cfg.Paths.LibraryDir + `"/></Directory>
				<Directory key="2" title="Music"><Location path="/srv/music"/></Directory>
			</MediaContainer>`))
		case "/library/sections/1/refresh":
			refreshPath = r.URL.Query().Get("path")
		case "/library/sections/2/refresh":
			t.Error("refresh hit the wrong section")
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := syncer.NewPlexClient(server.URL, "tok", time.Second)
	if err := client.Refresh(context.Background(), entity); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshPath != entity.LibraryPath {
		t.Fatalf("partial refresh path %q, want %q", refreshPath, entity.LibraryPath)
	}
}

func TestJellyfinRefreshSendsToken(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenCatalog(t, cfg)
	entity := testsupport.MustUpsertEntity(t, store, cfg, "Arrival")

	var gotToken string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/Library/Refresh" {
			http.NotFound(w, r)
			return
		}
		gotToken = r.Header.Get("X-Emby-Token")
	}))
	defer server.Close()

	client := syncer.NewJellyfinClient(server.URL, "key", time.Second)
	if err := client.Refresh(context.Background(), entity); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if gotToken != "key" {
		t.Fatalf("token header %q, want %q", gotToken, "key")
	}
}
