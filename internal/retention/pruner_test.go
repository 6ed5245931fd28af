package retention

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tradewatch/internal/storage"
)

type fakeArchive struct {
	cutoffs      []time.Time
	alertCutoffs []time.Time
	lockHeld     bool
	unlocked     int
	deleteErr    error
}

func (f *fakeArchive) InsertTrade(ctx context.Context, rec storage.TradeRecord) (bool, error) {
	return true, nil
}

func (f *fakeArchive) ListTradesBetween(ctx context.Context, from, to time.Time) ([]storage.TradeRecord, error) {
	return nil, nil
}

func (f *fakeArchive) ListRecentTrades(ctx context.Context, limit int) ([]storage.TradeRecord, error) {
	return nil, nil
}

func (f *fakeArchive) CountTrades(ctx context.Context) (int64, error) { return 0, nil }

func (f *fakeArchive) DeleteTradesBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	f.cutoffs = append(f.cutoffs, olderThan)
	return 3, nil
}

func (f *fakeArchive) InsertAlert(ctx context.Context, alert storage.AlertRecord) (storage.AlertRecord, error) {
	return alert, nil
}

func (f *fakeArchive) ListRecentAlerts(ctx context.Context, limit int) ([]storage.AlertRecord, error) {
	return nil, nil
}

func (f *fakeArchive) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	f.alertCutoffs = append(f.alertCutoffs, olderThan)
	return nil
}

func (f *fakeArchive) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	if f.lockHeld {
		return nil, false, nil
	}
	return func() { f.unlocked++ }, true, nil
}

func TestPruneOnceUsesRetentionCutoff(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	archive := &fakeArchive{}
	p := New(Options{Retention: 24 * time.Hour, LockKey: 1, Now: func() time.Time { return now }}, archive, zerolog.Nop())

	deleted, err := p.PruneOnce(context.Background())
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if deleted != 3 {
		t.Fatalf("expected 3 deleted, got %d", deleted)
	}
	want := now.Add(-24 * time.Hour)
	if len(archive.cutoffs) != 1 || !archive.cutoffs[0].Equal(want) {
		t.Fatalf("unexpected cutoffs %v", archive.cutoffs)
	}
	if len(archive.alertCutoffs) != 1 || archive.unlocked != 1 {
		t.Fatalf("expected alerts pruned and lock released")
	}
}

func TestPruneOnceSkipsWhenLockHeld(t *testing.T) {
	archive := &fakeArchive{lockHeld: true}
	p := New(Options{Retention: time.Hour, LockKey: 1}, archive, zerolog.Nop())

	if _, err := p.PruneOnce(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}
	if len(archive.cutoffs) != 0 {
		t.Fatal("expected no delete while lock held elsewhere")
	}
}

func TestPruneOnceSurfacesDeleteError(t *testing.T) {
	archive := &fakeArchive{deleteErr: errors.New("boom")}
	p := New(Options{Retention: time.Hour}, archive, zerolog.Nop())
	if _, err := p.PruneOnce(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestRunRejectsBadSchedule(t *testing.T) {
	p := New(Options{Retention: time.Hour, Schedule: "not a schedule"}, &fakeArchive{}, zerolog.Nop())
	if err := p.Run(context.Background()); err == nil {
		t.Fatal("expected schedule parse error")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	p := New(Options{Retention: time.Hour, Schedule: "@hourly"}, &fakeArchive{}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pruner did not stop")
	}
}
