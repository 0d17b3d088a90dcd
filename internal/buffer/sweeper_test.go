package buffer

import (
	"context"
	"testing"
	"time"

	"github.com/wolfman30/lead-pipeline/pkg/logging"
)

func TestSweeperProcessesOverdueConversationsOnce(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	_, _ = store.Append(ctx, "lost", "oi", now.Add(-10*time.Minute))
	_, _ = store.Append(ctx, "recent", "oi", now.Add(-30*time.Second))
	_, _ = store.Append(ctx, "future", "oi", now.Add(time.Minute))

	proc := &countingProcessor{result: Result{Outcome: OutcomeProcessed}}
	s := NewSweeper(store, proc, 2*time.Minute, logging.Default())
	s.now = fixedClock(now)

	n, err := s.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 || len(proc.calls) != 1 || proc.calls[0] != "lost" {
		t.Fatalf("expected only the lost conversation, got n=%d calls=%v", n, proc.calls)
	}
}

func TestSweeperRejectsBadSchedule(t *testing.T) {
	s := NewSweeper(NewMemoryStore(), &countingProcessor{}, 0, logging.Default())
	if err := s.Start("every now and then"); err == nil {
		t.Fatalf("expected invalid schedule error")
	}
	if err := s.Start("@every 1h"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Start("@every 1h"); err == nil {
		t.Fatalf("expected double start error")
	}
	s.Stop()
}
