package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/VishwesGopal13/Automotive-Service/internal/apperr"
	"github.com/VishwesGopal13/Automotive-Service/internal/logger"
	"github.com/VishwesGopal13/Automotive-Service/internal/models"
	"github.com/VishwesGopal13/Automotive-Service/internal/repository"
)

type fakeAssigner struct {
	cards   []*models.JobCard
	results map[uuid.UUID]error
	filter  repository.ListFilter

	mu       sync.Mutex
	calls    []uuid.UUID
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeAssigner) List(_ context.Context, filter repository.ListFilter) ([]*models.JobCard, error) {
	f.filter = filter
	return f.cards, nil
}

func (f *fakeAssigner) Assign(_ context.Context, id uuid.UUID, _ int64) (*models.JobCard, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	f.mu.Lock()
	f.calls = append(f.calls, id)
	f.mu.Unlock()
	if err := f.results[id]; err != nil {
		return nil, err
	}
	return &models.JobCard{ID: id, Status: models.JobStatusAssigned}, nil
}

func generatedCards(n int) []*models.JobCard {
	out := make([]*models.JobCard, n)
	for i := range out {
		out[i] = &models.JobCard{ID: uuid.New(), Status: models.JobStatusGenerated, Version: 2}
	}
	return out
}

func TestSweepCountsOutcomes(t *testing.T) {
	cards := generatedCards(4)
	fake := &fakeAssigner{
		cards: cards,
		results: map[uuid.UUID]error{
			cards[1].ID: apperr.NoCapacity("full"),
			cards[2].ID: apperr.Conflict("stale"),
			cards[3].ID: errors.New("database gone"),
		},
	}
	w := NewAssignmentSweeper(fake, "@every 1m", 2, logger.NewNop())

	res, err := w.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res != (SweepResult{Seen: 4, Assigned: 1, Skipped: 2, Failed: 1}) {
		t.Fatalf("unexpected result %+v", res)
	}
	if !fake.filter.OldestFirst || len(fake.filter.Statuses) != 1 || fake.filter.Statuses[0] != models.JobStatusGenerated {
		t.Fatalf("sweeper must list generated cards oldest first, got %+v", fake.filter)
	}
}

func TestSweepRespectsConcurrency(t *testing.T) {
	fake := &fakeAssigner{cards: generatedCards(8)}
	w := NewAssignmentSweeper(fake, "@every 1m", 3, logger.NewNop())

	res, err := w.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Assigned != 8 || len(fake.calls) != 8 {
		t.Fatalf("expected every card assigned, got %+v", res)
	}
	if peak := fake.peak.Load(); peak > 3 {
		t.Fatalf("concurrency limit exceeded: %d", peak)
	}
}

func TestRunRejectsBadSchedule(t *testing.T) {
	w := NewAssignmentSweeper(&fakeAssigner{}, "not a schedule", 1, logger.NewNop())
	if err := w.Run(context.Background()); err == nil {
		t.Fatalf("expected schedule error")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	w := NewAssignmentSweeper(&fakeAssigner{}, "@every 1h", 1, logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("sweeper did not stop")
	}
}
