package worker

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/VishwesGopal13/Automotive-Service/internal/apperr"
	"github.com/VishwesGopal13/Automotive-Service/internal/logger"
	"github.com/VishwesGopal13/Automotive-Service/internal/models"
	"github.com/VishwesGopal13/Automotive-Service/internal/repository"
)

// Assigner is the part of the orchestrator the sweeper drives.
type Assigner interface {
	List(ctx context.Context, filter repository.ListFilter) ([]*models.JobCard, error)
	Assign(ctx context.Context, id uuid.UUID, expected int64) (*models.JobCard, error)
}

// SweepResult counts the outcome of one pass.
type SweepResult struct {
	Seen     int
	Assigned int
	// Skipped covers cards that still have no capacity or were moved on by someone else.
	Skipped int
	Failed  int
}

// AssignmentSweeper periodically retries assignment of generated job cards that found no
// capacity when they were first assigned.
type AssignmentSweeper struct {
	assigner    Assigner
	schedule    string
	concurrency int
	batch       int
	log         logger.Logger
	cron        *cron.Cron
}

// NewAssignmentSweeper creates the sweeper. schedule uses the standard cron syntax or
// descriptors such as "@every 1m".
func NewAssignmentSweeper(assigner Assigner, schedule string, concurrency int, log logger.Logger) *AssignmentSweeper {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &AssignmentSweeper{
		assigner:    assigner,
		schedule:    schedule,
		concurrency: concurrency,
		batch:       100,
		log:         log,
		cron:        cron.New(),
	}
}

// Run schedules the sweep and blocks until ctx is cancelled. It should be launched in its own
// goroutine.
func (w *AssignmentSweeper) Run(ctx context.Context) error {
	if _, err := w.cron.AddFunc(w.schedule, func() {
		if _, err := w.Sweep(ctx); err != nil {
			w.log.Error("assignment sweep failed", "error", err)
		}
	}); err != nil {
		return errors.Wrapf(err, "schedule assignment sweep %q", w.schedule)
	}
	w.cron.Start()
	w.log.Info("assignment sweeper started", "schedule", w.schedule, "concurrency", w.concurrency)

	<-ctx.Done()
	<-w.cron.Stop().Done()
	w.log.Info("assignment sweeper shutting down")
	return nil
}

// Sweep makes one pass over generated cards, oldest first.
func (w *AssignmentSweeper) Sweep(ctx context.Context) (SweepResult, error) {
	cards, err := w.assigner.List(ctx, repository.ListFilter{
		Statuses:    []models.JobStatus{models.JobStatusGenerated},
		OldestFirst: true,
		Limit:       w.batch,
	})
	if err != nil {
		return SweepResult{}, err
	}

	var assigned, skipped, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for _, card := range cards {
		card := card
		g.Go(func() error {
			_, err := w.assigner.Assign(gctx, card.ID, card.Version)
			switch {
			case err == nil:
				assigned.Add(1)
			case apperr.Is(err, apperr.KindNoCapacity), apperr.Is(err, apperr.KindConflict), apperr.Is(err, apperr.KindInvalidTransition):
				skipped.Add(1)
			default:
				failed.Add(1)
				w.log.Warn("assignment retry failed", "job_card_id", card.ID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	res := SweepResult{
		Seen:     len(cards),
		Assigned: int(assigned.Load()),
		Skipped:  int(skipped.Load()),
		Failed:   int(failed.Load()),
	}
	if res.Seen > 0 {
		w.log.Info("assignment sweep done", "seen", res.Seen, "assigned", res.Assigned, "skipped", res.Skipped, "failed", res.Failed)
	}
	return res, nil
}
