package sessions_test

import (
	"context"
	"testing"
	"time"

	"github.com/deepresearch/research-agent/internal/sessions"
	"github.com/deepresearch/research-agent/pkg/models"
)

func TestJanitor_Sweep(t *testing.T) {
	ctx := context.Background()
	store := sessions.NewMemorySessionStore()
	now := time.Now().UTC()

	for _, s := range []models.Session{
		{ID: "stale", UpdatedAt: now.Add(-48 * time.Hour)},
		{ID: "fresh", UpdatedAt: now.Add(-time.Hour)},
	} {
		s := s
		if err := store.CreateSession(ctx, &s); err != nil {
			t.Fatal(err)
		}
	}

	j := sessions.NewJanitor(store, 24*time.Hour, time.Minute)
	if got := j.Sweep(ctx); got != 1 {
		t.Errorf("Sweep() = %d, want 1", got)
	}
	if _, err := store.GetSession(ctx, "stale"); err == nil {
		t.Error("stale session survived the sweep")
	}
	if _, err := store.GetSession(ctx, "fresh"); err != nil {
		t.Errorf("fresh session removed: %v", err)
	}
	if got := j.Sweep(ctx); got != 0 {
		t.Errorf("second Sweep() = %d, want 0", got)
	}
}

func TestJanitor_DisabledReturnsImmediately(t *testing.T) {
	j := sessions.NewJanitor(sessions.NewMemorySessionStore(), 0, time.Minute)

	done := make(chan struct{})
	go func() {
		j.Start(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start with zero retention did not return")
	}
}
