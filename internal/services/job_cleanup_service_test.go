package services

import (
	"context"
	"testing"
	"time"

	"github.com/osvaldoandrade/elqbulk/pkg/domain"
	"github.com/osvaldoandrade/elqbulk/pkg/persistence"
	"github.com/osvaldoandrade/elqbulk/pkg/persistence/memory"
)

func newMemoryStore(t *testing.T) persistence.JobStorage {
	t.Helper()
	reg := persistence.NewRegistry()
	memory.Register(reg)
	p, err := reg.New(persistence.ProviderConfig{}, persistence.PluginConfig{})
	if err != nil {
		t.Fatalf("memory plugin: %v", err)
	}
	return p.JobStorage()
}

func TestJobCleanupSweep(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	old := now.Add(-48 * time.Hour)
	fresh := now.Add(-time.Hour)
	for id, finished := range map[string]*time.Time{"old": &old, "fresh": &fresh, "running": nil} {
		job := &domain.Job{ID: id, Status: domain.StatusCompleted, CreatedAt: old, FinishedAt: finished}
		if finished == nil {
			job.Status = domain.StatusRunning
		}
		if _, _, err := store.Create(ctx, job, ""); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}

	svc := NewJobCleanupService(store, nil, 1, 24).(*jobCleanupService)
	svc.now = func() time.Time { return now }

	removed, err := svc.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, err := store.Get(ctx, "old"); err == nil {
		t.Errorf("old job still present")
	}
	for _, id := range []string{"fresh", "running"} {
		if _, err := store.Get(ctx, id); err != nil {
			t.Errorf("%s removed: %v", id, err)
		}
	}
}
