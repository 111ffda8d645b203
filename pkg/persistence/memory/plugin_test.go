package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/osvaldoandrade/elqbulk/pkg/domain"
	"github.com/osvaldoandrade/elqbulk/pkg/persistence"
)

func newStorage(t *testing.T) persistence.JobStorage {
	t.Helper()
	reg := persistence.NewRegistry()
	Register(reg)
	plugin, err := reg.New(persistence.ProviderConfig{Type: "memory"}, persistence.PluginConfig{})
	if err != nil {
		t.Fatalf("Failed to create plugin: %v", err)
	}
	t.Cleanup(func() { _ = plugin.Close() })
	if err := plugin.Health(context.Background()); err != nil {
		t.Errorf("Health check failed: %v", err)
	}
	return plugin.JobStorage()
}

func newJob(id string, created time.Time) *domain.Job {
	return &domain.Job{
		ID:        id,
		Operation: domain.OpSubmit,
		Status:    domain.StatusIdle,
		Target:    domain.SubmissionTarget{SiteID: "100", FormName: "X"},
		TotalRows: 2,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestMemoryJobLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newStorage(t)

	job := newJob("job-1", time.Now())
	stored, existed, err := store.Create(ctx, job, "")
	if err != nil || existed {
		t.Fatalf("Create: existed=%v err=%v", existed, err)
	}
	if stored.ID != "job-1" {
		t.Fatalf("stored id = %s", stored.ID)
	}

	if err := store.UpdateProgress(ctx, "job-1", 1, "Processed 1/2 rows (50%)"); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	got, err := store.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ProcessedRows != 1 || got.Progress != "Processed 1/2 rows (50%)" {
		t.Errorf("progress not persisted: %+v", got)
	}

	// mutating the returned copy must not leak into storage
	got.Status = domain.StatusFailed
	again, _ := store.Get(ctx, "job-1")
	if again.Status != domain.StatusIdle {
		t.Errorf("storage returned a shared pointer")
	}

	results := []domain.RowOutcome{{RowNumber: 1, Success: true}, {RowNumber: 2}}
	if err := store.SaveResults(ctx, "job-1", results); err != nil {
		t.Fatalf("SaveResults: %v", err)
	}
	gotResults, err := store.GetResults(ctx, "job-1")
	if err != nil || len(gotResults) != 2 || gotResults[1].RowNumber != 2 {
		t.Fatalf("GetResults = %v, %v", gotResults, err)
	}

	now := time.Now()
	got.Status = domain.StatusCompleted
	got.FinishedAt = &now
	if err := store.Update(ctx, got); err != nil {
		t.Fatalf("Update: %v", err)
	}
	counts, _ := store.CountByStatus(ctx)
	if counts[domain.StatusCompleted] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestMemoryNotFound(t *testing.T) {
	ctx := context.Background()
	store := newStorage(t)

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, persistence.ErrNotFound) {
		t.Errorf("Get: %v", err)
	}
	if _, err := store.GetResults(ctx, "missing"); !errors.Is(err, persistence.ErrNotFound) {
		t.Errorf("GetResults: %v", err)
	}
	if err := store.Update(ctx, newJob("missing", time.Now())); !errors.Is(err, persistence.ErrNotFound) {
		t.Errorf("Update: %v", err)
	}
	if err := store.UpdateProgress(ctx, "missing", 1, ""); !errors.Is(err, persistence.ErrNotFound) {
		t.Errorf("UpdateProgress: %v", err)
	}
}

func TestMemoryIdempotentCreate(t *testing.T) {
	ctx := context.Background()
	store := newStorage(t)

	first, existed, err := store.Create(ctx, newJob("a", time.Now()), "key-1")
	if err != nil || existed {
		t.Fatalf("first create: %v %v", existed, err)
	}
	second, existed, err := store.Create(ctx, newJob("b", time.Now()), "key-1")
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if !existed || second.ID != first.ID {
		t.Fatalf("expected existing job %s, got %s existed=%v", first.ID, second.ID, existed)
	}
	if _, err := store.Get(ctx, "b"); !errors.Is(err, persistence.ErrNotFound) {
		t.Errorf("duplicate job should not be stored")
	}
}

func TestMemoryListNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := newStorage(t)
	base := time.Now()
	for i, id := range []string{"old", "mid", "new"} {
		_, _, _ = store.Create(ctx, newJob(id, base.Add(time.Duration(i)*time.Minute)), "")
	}
	jobs, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 2 || jobs[0].ID != "new" || jobs[1].ID != "mid" {
		ids := []string{}
		for _, j := range jobs {
			ids = append(ids, j.ID)
		}
		t.Fatalf("List = %v", ids)
	}
}

func TestMemoryCleanupExpired(t *testing.T) {
	ctx := context.Background()
	store := newStorage(t)
	old := time.Now().Add(-48 * time.Hour)

	finished := newJob("finished", old)
	finished.Status = domain.StatusCompleted
	finished.FinishedAt = &old
	_, _, _ = store.Create(ctx, finished, "k")
	_ = store.SaveResults(ctx, "finished", []domain.RowOutcome{{RowNumber: 1}})

	running := newJob("running", old)
	running.Status = domain.StatusRunning
	_, _, _ = store.Create(ctx, running, "")

	removed, err := store.CleanupExpired(ctx, time.Now().Add(-24*time.Hour), 10)
	if err != nil {
		t.Fatalf("CleanupExpired: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, err := store.Get(ctx, "finished"); !errors.Is(err, persistence.ErrNotFound) {
		t.Errorf("finished job should be gone")
	}
	if _, err := store.GetResults(ctx, "finished"); !errors.Is(err, persistence.ErrNotFound) {
		t.Errorf("results should be gone")
	}
	if _, err := store.Get(ctx, "running"); err != nil {
		t.Errorf("running job must survive cleanup: %v", err)
	}
	// the idempotency key is released with the job
	if _, existed, _ := store.Create(ctx, newJob("fresh", time.Now()), "k"); existed {
		t.Errorf("idempotency key should be released after cleanup")
	}
}
