package queue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"curator/internal/queue"
	"curator/internal/testsupport"
)

func TestEnqueueAndGet(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job, err := store.Enqueue(ctx, queue.TypeEnrich, queue.EnrichPayload{EntityID: "e1", EntityType: "movie"}, 7, queue.RetryPolicy{})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if job.ID == 0 {
		t.Fatal("expected job ID to be assigned")
	}
	if job.Status != queue.StatusPending {
		t.Fatalf("expected pending status, got %s", job.Status)
	}
	if job.Priority != 7 {
		t.Fatalf("expected priority 7, got %d", job.Priority)
	}
	if job.MaxRetries != cfg.Workflow.MaxRetries {
		t.Fatalf("expected default max retries %d, got %d", cfg.Workflow.MaxRetries, job.MaxRetries)
	}

	fetched, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched == nil || fetched.Type != queue.TypeEnrich {
		t.Fatalf("unexpected fetched job: %#v", fetched)
	}
}

func TestEnqueueRejectsUnknownType(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	if _, err := store.Enqueue(context.Background(), queue.Type("transcode"), nil, 5, queue.RetryPolicy{}); err == nil {
		t.Fatal("expected error for unknown job type")
	}
}

func TestEnqueueHonorsRetryPolicy(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job, err := store.Enqueue(ctx, queue.TypeScan, nil, 5, queue.RetryPolicy{RetryCount: 2, MaxRetries: 5})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if job.RetryCount != 2 {
		t.Fatalf("expected retry_count 2, got %d", job.RetryCount)
	}
	if job.MaxRetries != 5 {
		t.Fatalf("expected max_retries 5, got %d", job.MaxRetries)
	}

	claimed, err := store.Claim(ctx)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if claimed == nil || claimed.RetryCount != 2 {
		t.Fatalf("claimed record lost retry count: %#v", claimed)
	}
}

func TestClaimOrdersByPriorityThenAge(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	low, err := store.Enqueue(ctx, queue.TypeScan, nil, 2, queue.RetryPolicy{})
	if err != nil {
		t.Fatal(err)
	}
	firstHigh, err := store.Enqueue(ctx, queue.TypeSync, queue.SyncPayload{}, 9, queue.RetryPolicy{})
	if err != nil {
		t.Fatal(err)
	}
	secondHigh, err := store.Enqueue(ctx, queue.TypeSync, queue.SyncPayload{}, 9, queue.RetryPolicy{})
	if err != nil {
		t.Fatal(err)
	}

	order := make([]int64, 0, 3)
	for {
		job, err := store.Claim(ctx)
		if err != nil {
			t.Fatalf("Claim failed: %v", err)
		}
		if job == nil {
			break
		}
		if job.Status != queue.StatusProcessing {
			t.Fatalf("claimed job not processing: %s", job.Status)
		}
		if job.StartedAt == nil {
			t.Fatal("claimed job missing started_at")
		}
		order = append(order, job.ID)
	}

	want := []int64{firstHigh.ID, secondHigh.ID, low.ID}
	if len(order) != len(want) {
		t.Fatalf("claimed %d jobs, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("claim order %v, want %v", order, want)
		}
	}
}

func TestClaimAtMostOnceUnderContention(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	const jobs = 20
	const workers = 8

	for i := 0; i < jobs; i++ {
		if _, err := store.Enqueue(ctx, queue.TypeEnrich, queue.EnrichPayload{EntityID: "e", EntityType: "movie"}, 5, queue.RetryPolicy{}); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	var mu sync.Mutex
	claimed := make(map[int64]int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for {
				job, err := store.Claim(ctx)
				if err != nil {
					t.Errorf("Claim failed: %v", err)
					return
				}
				if job == nil {
					return
				}
				mu.Lock()
				claimed[job.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(claimed) != jobs {
		t.Fatalf("claimed %d distinct jobs, want %d", len(claimed), jobs)
	}
	for id, count := range claimed {
		if count != 1 {
			t.Fatalf("job %d claimed %d times", id, count)
		}
	}
}

func TestFailSchedulesRetryWithBackoff(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxRetries(2))
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job, err := store.Enqueue(ctx, queue.TypeEnrich, queue.EnrichPayload{EntityID: "e1", EntityType: "movie"}, 5, queue.RetryPolicy{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Claim(ctx); err != nil {
		t.Fatal(err)
	}

	failed, err := store.Fail(ctx, job.ID, context.DeadlineExceeded)
	if err != nil {
		t.Fatalf("Fail failed: %v", err)
	}
	if failed.Status != queue.StatusRetrying {
		t.Fatalf("expected retrying, got %s", failed.Status)
	}
	if failed.RetryCount != 1 {
		t.Fatalf("expected retry_count 1, got %d", failed.RetryCount)
	}
	if failed.NextRetryAt == nil || !failed.NextRetryAt.After(time.Now().UTC().Add(-time.Second)) {
		t.Fatalf("expected future next_retry_at, got %v", failed.NextRetryAt)
	}

	// Not due yet, so the claim must skip it.
	if job, err := store.Claim(ctx); err != nil || job != nil {
		t.Fatalf("expected no claimable job, got %#v (err %v)", job, err)
	}
}

func TestFailTerminalAfterMaxRetries(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxRetries(0))
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job, err := store.Enqueue(ctx, queue.TypeEnrich, queue.EnrichPayload{EntityID: "e1", EntityType: "movie"}, 5, queue.RetryPolicy{MaxRetries: 1})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := store.Claim(ctx); err != nil {
		t.Fatal(err)
	}
	first, err := store.Fail(ctx, job.ID, context.DeadlineExceeded)
	if err != nil {
		t.Fatal(err)
	}
	if first.Status != queue.StatusRetrying {
		t.Fatalf("expected first failure to retry, got %s", first.Status)
	}

	// Force the retry due and exhaust the budget.
	time.Sleep(1100 * time.Millisecond)
	claimed, err := store.Claim(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if claimed == nil || claimed.ID != job.ID {
		t.Fatalf("expected retrying job claimable once due, got %#v", claimed)
	}

	second, err := store.Fail(ctx, job.ID, context.DeadlineExceeded)
	if err != nil {
		t.Fatal(err)
	}
	if second.Status != queue.StatusFailed {
		t.Fatalf("expected terminal failure, got %s", second.Status)
	}
	if second.NextRetryAt != nil {
		t.Fatal("terminal failure must not schedule retry")
	}

	// Terminal jobs stay queryable.
	fetched, err := store.GetByID(ctx, job.ID)
	if err != nil || fetched == nil || fetched.ErrorMessage == "" {
		t.Fatalf("expected queryable failed job with error, got %#v (err %v)", fetched, err)
	}
}

func TestFailTerminalIgnoresRetryBudget(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job, err := store.Enqueue(ctx, queue.TypeEnrich, queue.EnrichPayload{EntityID: "e1", EntityType: "movie"}, 5, queue.RetryPolicy{MaxRetries: 5})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Claim(ctx); err != nil {
		t.Fatal(err)
	}

	if err := store.FailTerminal(ctx, job.ID, context.DeadlineExceeded); err != nil {
		t.Fatalf("FailTerminal failed: %v", err)
	}
	fetched, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if fetched.Status != queue.StatusFailed {
		t.Fatalf("expected failed, got %s", fetched.Status)
	}
	if fetched.NextRetryAt != nil {
		t.Fatal("terminal failure must not schedule retry")
	}
}

func TestCompleteRequiresProcessing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job, err := store.Enqueue(ctx, queue.TypeScan, nil, 5, queue.RetryPolicy{})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Complete(ctx, job.ID); err == nil {
		t.Fatal("expected error completing a pending job")
	}
	if _, err := store.Claim(ctx); err != nil {
		t.Fatal(err)
	}
	if err := store.Complete(ctx, job.ID); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
}

func TestResetStalled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job, err := store.Enqueue(ctx, queue.TypeEnrich, queue.EnrichPayload{EntityID: "e1", EntityType: "movie"}, 5, queue.RetryPolicy{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Claim(ctx); err != nil {
		t.Fatal(err)
	}

	// Fresh heartbeat: nothing to reset.
	reset, err := store.ResetStalled(ctx, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if reset != 0 {
		t.Fatalf("expected no stalled jobs, reset %d", reset)
	}

	time.Sleep(1100 * time.Millisecond)
	reset, err = store.ResetStalled(ctx, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if reset != 1 {
		t.Fatalf("expected 1 stalled job reset, got %d", reset)
	}

	fetched, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if fetched.Status != queue.StatusPending {
		t.Fatalf("expected pending after reset, got %s", fetched.Status)
	}
	if fetched.StartedAt != nil {
		t.Fatal("expected started_at cleared after reset")
	}
}

func TestGetStatsOldestPendingAge(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	stats, err := store.GetStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.OldestPendingAge != nil {
		t.Fatal("expected nil oldest pending age on empty queue")
	}

	if _, err := store.Enqueue(ctx, queue.TypeScan, nil, 5, queue.RetryPolicy{}); err != nil {
		t.Fatal(err)
	}
	stats, err = store.GetStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Pending != 1 {
		t.Fatalf("expected 1 pending, got %d", stats.Pending)
	}
	if stats.OldestPendingAge == nil {
		t.Fatal("expected oldest pending age")
	}
}

func TestCleanupCompletedKeepsFailed(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxRetries(0))
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	done, err := store.Enqueue(ctx, queue.TypeScan, nil, 5, queue.RetryPolicy{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Claim(ctx); err != nil {
		t.Fatal(err)
	}
	if err := store.Complete(ctx, done.ID); err != nil {
		t.Fatal(err)
	}

	failed, err := store.Enqueue(ctx, queue.TypeScan, nil, 5, queue.RetryPolicy{MaxRetries: 0})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Claim(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Fail(ctx, failed.ID, context.DeadlineExceeded); err != nil {
		t.Fatal(err)
	}

	removed, err := store.CleanupCompleted(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}

	kept, err := store.GetByID(ctx, failed.ID)
	if err != nil || kept == nil {
		t.Fatalf("failed job should survive retention, got %#v (err %v)", kept, err)
	}
}
