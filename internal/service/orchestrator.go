// Package service drives job cards through their lifecycle. Every transition is a conditional
// write guarded by the card's version; a failed transition leaves the stored card untouched.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/VishwesGopal13/Automotive-Service/internal/analysis"
	"github.com/VishwesGopal13/Automotive-Service/internal/apperr"
	"github.com/VishwesGopal13/Automotive-Service/internal/assignment"
	"github.com/VishwesGopal13/Automotive-Service/internal/invoice"
	"github.com/VishwesGopal13/Automotive-Service/internal/logger"
	"github.com/VishwesGopal13/Automotive-Service/internal/metrics"
	"github.com/VishwesGopal13/Automotive-Service/internal/models"
	"github.com/VishwesGopal13/Automotive-Service/internal/mq"
	"github.com/VishwesGopal13/Automotive-Service/internal/repository"
	"github.com/VishwesGopal13/Automotive-Service/internal/validation"
)

// Orchestrator owns every job card transition.
type Orchestrator struct {
	store     repository.Store
	analyzer  *analysis.Analyzer
	planner   *assignment.Planner
	validator *validation.WorkValidator
	invoices  *invoice.Generator
	mq        mq.Publisher
	metrics   *metrics.Metrics
	log       logger.Logger
	validate  *validator.Validate
	now       func() time.Time
}

// NewOrchestrator wires the collaborators. publisher and m may be nil.
func NewOrchestrator(
	store repository.Store,
	analyzer *analysis.Analyzer,
	planner *assignment.Planner,
	workValidator *validation.WorkValidator,
	invoices *invoice.Generator,
	publisher mq.Publisher,
	m *metrics.Metrics,
	log logger.Logger,
) *Orchestrator {
	if publisher == nil {
		publisher = mq.NopPublisher{}
	}
	return &Orchestrator{
		store:     store,
		analyzer:  analyzer,
		planner:   planner,
		validator: workValidator,
		invoices:  invoices,
		mq:        publisher,
		metrics:   m,
		log:       log,
		validate:  validator.New(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// step mutates a private copy of the card. It must not touch the stored card and may use the
// catalog bound to the same transaction.
type step func(ctx context.Context, card *models.JobCard, catalog repository.CatalogStore) error

// transition describes one edge of the lifecycle.
type transition struct {
	name string
	from []models.JobStatus
	// to is the resulting status; empty means the step sets it.
	to models.JobStatus
	// atomic runs load, step and save in one store transaction. Steps that call a model run
	// outside a transaction and rely on the version check alone.
	atomic bool
}

func (t transition) allows(s models.JobStatus) bool {
	for _, f := range t.from {
		if f == s {
			return true
		}
	}
	return false
}

func (o *Orchestrator) run(ctx context.Context, t transition, id uuid.UUID, expected int64, fn step) (*models.JobCard, error) {
	var saved *models.JobCard
	var err error
	if t.atomic {
		err = o.store.InTx(ctx, func(cards repository.JobCardStore, catalog repository.CatalogStore) error {
			saved, err = o.apply(ctx, t, cards, catalog, id, expected, fn)
			return err
		})
	} else {
		saved, err = o.apply(ctx, t, o.store, o.store, id, expected, fn)
	}
	o.record(t.name, id, expected, err)
	if err != nil {
		return nil, err
	}
	o.publish(ctx, saved)
	return saved, nil
}

func (o *Orchestrator) apply(ctx context.Context, t transition, cards repository.JobCardStore, catalog repository.CatalogStore, id uuid.UUID, expected int64, fn step) (*models.JobCard, error) {
	current, err := cards.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Version != expected {
		return nil, apperr.Conflict(fmt.Sprintf("job card %s is at version %d, not %d", id, current.Version, expected))
	}
	if !t.allows(current.Status) {
		return nil, apperr.InvalidTransition(fmt.Sprintf("cannot %s job card %s in status %s", t.name, id, current.Status))
	}

	next := current.Clone()
	if err := fn(ctx, next, catalog); err != nil {
		return nil, err
	}
	if t.to != "" {
		next.Status = t.to
	}
	next.UpdatedAt = o.now()
	if err := next.CheckConsistency(); err != nil {
		return nil, apperr.Internal("transition would break the job card contract", err)
	}
	return cards.SaveIfVersion(ctx, next, expected)
}

func (o *Orchestrator) record(name string, id uuid.UUID, version int64, err error) {
	outcome := "ok"
	if err != nil {
		outcome = apperr.GetKind(err).String()
	}
	if o.metrics != nil {
		o.metrics.Transitions.WithLabelValues(name, outcome).Inc()
	}
	fields := []interface{}{"job_card_id", id, "transition", name, "version", version, "outcome", outcome}
	switch {
	case err == nil:
		o.log.Info("job card transition", fields...)
	case apperr.Is(err, apperr.KindInvalidTransition):
		o.log.Error("job card transition rejected", append(fields, "error", err)...)
	case apperr.Is(err, apperr.KindConflict):
		o.log.Warn("job card transition lost a race", append(fields, "error", err)...)
	case apperr.Is(err, apperr.KindInternal), apperr.GetKind(err) == apperr.KindUnknown:
		o.log.Error("job card transition failed", append(fields, "error", err)...)
	default:
		o.log.Info("job card transition refused", append(fields, "error", err)...)
	}
}

// Event is the payload published for every accepted transition.
type Event struct {
	Event           string           `json:"event"`
	JobCardID       string           `json:"jobCardId"`
	CustomerID      string           `json:"customerId"`
	Status          models.JobStatus `json:"status"`
	Version         int64            `json:"version"`
	ServiceCenterID string           `json:"serviceCenterId,omitempty"`
	TechnicianID    string           `json:"technicianId,omitempty"`
	OccurredAt      string           `json:"occurredAt"`
}

// publish is best effort: the transition is already committed.
func (o *Orchestrator) publish(ctx context.Context, card *models.JobCard) {
	event := mq.RoutingKey(card.Status)
	payload := Event{
		Event:      event,
		JobCardID:  card.ID.String(),
		CustomerID: card.CustomerID,
		Status:     card.Status,
		Version:    card.Version,
		OccurredAt: o.now().Format(time.RFC3339),
	}
	if card.Assignment != nil {
		payload.ServiceCenterID = card.Assignment.ServiceCenterID
		payload.TechnicianID = card.Assignment.TechnicianID
	}
	if err := o.mq.Publish(ctx, event, payload); err != nil {
		o.log.Warn("publish event failed", "event", event, "job_card_id", card.ID, "error", err)
	}
}

func (o *Orchestrator) check(what string, v interface{}) error {
	if err := o.validate.Struct(v); err != nil {
		return apperr.Wrap(apperr.KindValidation, "invalid "+what, err)
	}
	return nil
}
