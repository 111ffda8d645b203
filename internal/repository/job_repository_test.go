package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/osvaldoandrade/elqbulk/pkg/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func setupJobRepo(t *testing.T) (context.Context, *miniredis.Miniredis, JobRepository) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return context.Background(), mr, NewJobRepository(rdb, time.UTC, time.Hour)
}

func testJob(id string, created time.Time) *domain.Job {
	return &domain.Job{
		ID:        id,
		Operation: domain.OpSubmit,
		Status:    domain.StatusIdle,
		Target:    domain.SubmissionTarget{SiteID: "100", FormName: "X"},
		Options:   domain.DefaultSubmissionOptions(),
		TotalRows: 3,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestJobRepoCreateGet(t *testing.T) {
	ctx, mr, repo := setupJobRepo(t)

	if _, _, err := repo.Create(ctx, testJob("j1", time.Now()), ""); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !mr.Exists("elqbulk:jobs") {
		t.Fatalf("jobs hash not written")
	}
	got, err := repo.Get(ctx, "j1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Target.SiteID != "100" || got.Options.MaxConcurrentRequests != 5 {
		t.Errorf("round trip lost fields: %+v", got)
	}
	if _, err := repo.Get(ctx, "nope"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestJobRepoIdempotency(t *testing.T) {
	ctx, mr, repo := setupJobRepo(t)

	first, existed, err := repo.Create(ctx, testJob("a", time.Now()), "same")
	if err != nil || existed {
		t.Fatalf("first: %v %v", existed, err)
	}
	second, existed, err := repo.Create(ctx, testJob("b", time.Now()), "same")
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !existed || second.ID != first.ID {
		t.Fatalf("expected existing job, got %s existed=%v", second.ID, existed)
	}
	if ttl := mr.TTL("elqbulk:idempo:same"); ttl != time.Hour {
		t.Errorf("idempotency ttl = %v", ttl)
	}

	// a key pointing at a vanished job is replaced
	mr.HDel("elqbulk:jobs", "a")
	third, existed, err := repo.Create(ctx, testJob("c", time.Now()), "same")
	if err != nil || existed {
		t.Fatalf("third: existed=%v err=%v", existed, err)
	}
	if third.ID != "c" {
		t.Errorf("third id = %s, want c", third.ID)
	}
}

func TestJobRepoProgressAndResults(t *testing.T) {
	ctx, _, repo := setupJobRepo(t)
	_, _, _ = repo.Create(ctx, testJob("j1", time.Now()), "")

	if err := repo.UpdateProgress(ctx, "j1", 2, "Processed 2/3 rows (67%)"); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	got, _ := repo.Get(ctx, "j1")
	if got.ProcessedRows != 2 || got.Progress != "Processed 2/3 rows (67%)" {
		t.Errorf("progress = %d %q", got.ProcessedRows, got.Progress)
	}
	if err := repo.UpdateProgress(ctx, "missing", 1, ""); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}

	code := 200
	results := []domain.RowOutcome{
		{RowNumber: 1, Success: true, StatusCode: &code, Data: domain.Row{"a": "1"}},
		{RowNumber: 2, Error: "request timeout after 1s", Data: domain.Row{"a": "2"}},
	}
	if err := repo.SaveResults(ctx, "j1", results); err != nil {
		t.Fatalf("SaveResults: %v", err)
	}
	back, err := repo.GetResults(ctx, "j1")
	if err != nil {
		t.Fatalf("GetResults: %v", err)
	}
	if len(back) != 2 || *back[0].StatusCode != 200 || back[1].Data["a"] != "2" {
		t.Errorf("results = %+v", back)
	}
	if _, err := repo.GetResults(ctx, "other"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestJobRepoListAndCount(t *testing.T) {
	ctx, _, repo := setupJobRepo(t)
	base := time.Now()
	for i, id := range []string{"first", "second", "third"} {
		j := testJob(id, base.Add(time.Duration(i)*time.Second))
		if id == "second" {
			j.Status = domain.StatusRunning
		}
		_, _, _ = repo.Create(ctx, j, "")
	}

	jobs, err := repo.List(ctx, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 2 || jobs[0].ID != "third" || jobs[1].ID != "second" {
		t.Fatalf("List returned %d jobs, first=%v", len(jobs), jobs)
	}

	counts, err := repo.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[domain.StatusIdle] != 2 || counts[domain.StatusRunning] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestJobRepoUpdateAndCleanup(t *testing.T) {
	ctx, mr, repo := setupJobRepo(t)
	_, _, _ = repo.Create(ctx, testJob("done", time.Now()), "")
	_, _, _ = repo.Create(ctx, testJob("recent", time.Now()), "")
	_ = repo.SaveResults(ctx, "done", []domain.RowOutcome{{RowNumber: 1}})

	old := time.Now().Add(-72 * time.Hour)
	done, _ := repo.Get(ctx, "done")
	done.Status = domain.StatusCompleted
	done.FinishedAt = &old
	if err := repo.Update(ctx, done); err != nil {
		t.Fatalf("Update: %v", err)
	}
	now := time.Now()
	recent, _ := repo.Get(ctx, "recent")
	recent.Status = domain.StatusFailed
	recent.FinishedAt = &now
	_ = repo.Update(ctx, recent)

	if err := repo.Update(ctx, testJob("ghost", time.Now())); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("update of unknown job: %v", err)
	}

	removed, err := repo.CleanupExpired(ctx, time.Now().Add(-24*time.Hour), 100)
	if err != nil {
		t.Fatalf("CleanupExpired: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, err := repo.Get(ctx, "done"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expired job still present")
	}
	if mr.Exists("elqbulk:results:done") {
		t.Errorf("results of expired job still present")
	}
	if _, err := repo.Get(ctx, "recent"); err != nil {
		t.Errorf("recent job removed: %v", err)
	}
}

func TestJobRepoUpdateAfterCleanupDoesNotResurrect(t *testing.T) {
	ctx, mr, repo := setupJobRepo(t)
	_, _, _ = repo.Create(ctx, testJob("gone", time.Now()), "")

	stale, _ := repo.Get(ctx, "gone")
	old := time.Now().Add(-72 * time.Hour)
	stale.Status = domain.StatusCompleted
	stale.FinishedAt = &old
	if err := repo.Update(ctx, stale); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if score, err := mr.ZScore("elqbulk:jobs:finished", "gone"); err != nil || int64(score) != old.UTC().Unix() {
		t.Fatalf("finished index score = %v err=%v", score, err)
	}
	if removed, err := repo.CleanupExpired(ctx, time.Now().Add(-24*time.Hour), 10); err != nil || removed != 1 {
		t.Fatalf("CleanupExpired removed=%d err=%v", removed, err)
	}

	if err := repo.Update(ctx, stale); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("update after cleanup: %v", err)
	}
	if err := repo.UpdateProgress(ctx, "gone", 1, "Processed 1/3 rows (33%)"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("progress after cleanup: %v", err)
	}
	if mr.HGet("elqbulk:jobs", "gone") != "" {
		t.Fatalf("job hash field re-created after cleanup")
	}
	if members, _ := mr.ZMembers("elqbulk:jobs:finished"); len(members) != 0 {
		t.Fatalf("finished index = %v", members)
	}
}
