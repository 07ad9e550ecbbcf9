package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/VishwesGopal13/Automotive-Service/internal/apperr"
	"github.com/VishwesGopal13/Automotive-Service/internal/assignment"
	"github.com/VishwesGopal13/Automotive-Service/internal/invoice"
	"github.com/VishwesGopal13/Automotive-Service/internal/models"
	"github.com/VishwesGopal13/Automotive-Service/internal/repository"
)

var (
	generateStep = transition{name: "generate", from: []models.JobStatus{models.JobStatusCreated}, to: models.JobStatusGenerated}
	assignStep   = transition{name: "assign", from: []models.JobStatus{models.JobStatusGenerated}, to: models.JobStatusAssigned, atomic: true}
	reassignStep = transition{name: "reassign", from: []models.JobStatus{models.JobStatusAssigned}, to: models.JobStatusAssigned, atomic: true}
	startStep    = transition{name: "start", from: []models.JobStatus{models.JobStatusAssigned}, to: models.JobStatusInProgress}
	reportStep   = transition{name: "submit_report", from: []models.JobStatus{models.JobStatusInProgress}, to: models.JobStatusWorkCompleted, atomic: true}
	validateStep = transition{name: "validate", from: []models.JobStatus{models.JobStatusWorkCompleted}, to: models.JobStatusValidated}
	settleStep   = transition{name: "settle", from: []models.JobStatus{models.JobStatusValidated}}
	invoiceStep  = transition{name: "invoice", from: []models.JobStatus{models.JobStatusCompleted, models.JobStatusNeedsReview}, to: models.JobStatusInvoiced}
	overrideStep = transition{name: "override", from: []models.JobStatus{models.JobStatusInvoiced}, to: models.JobStatusInvoiced}
	closeStep    = transition{name: "close", from: []models.JobStatus{models.JobStatusInvoiced}, to: models.JobStatusClosed}
	cancelStep   = transition{name: "cancel", from: []models.JobStatus{models.JobStatusCreated, models.JobStatusGenerated, models.JobStatusAssigned, models.JobStatusInProgress}, to: models.JobStatusCancelled, atomic: true}
)

// Intake stores a new complaint as a created job card at version 1.
func (o *Orchestrator) Intake(ctx context.Context, complaint models.Complaint) (*models.JobCard, error) {
	complaint.CustomerID = strings.TrimSpace(complaint.CustomerID)
	complaint.Text = strings.TrimSpace(complaint.Text)
	if complaint.Text == "" {
		return nil, apperr.Validation("complaint text is required")
	}
	if err := o.check("complaint", complaint); err != nil {
		return nil, err
	}

	now := o.now()
	card := &models.JobCard{
		ID:               uuid.New(),
		CustomerID:       complaint.CustomerID,
		Vehicle:          complaint.Vehicle,
		CustomerLocation: complaint.Location,
		ComplaintText:    complaint.Text,
		Status:           models.JobStatusCreated,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	err := o.store.Create(ctx, card)
	o.record("intake", card.ID, 0, err)
	if err != nil {
		return nil, err
	}
	o.publish(ctx, card)
	return card.Clone(), nil
}

// Generate classifies the complaint into a job spec. On any analyzer failure the card stays
// created.
func (o *Orchestrator) Generate(ctx context.Context, id uuid.UUID, expected int64) (*models.JobCard, error) {
	return o.run(ctx, generateStep, id, expected, func(ctx context.Context, card *models.JobCard, _ repository.CatalogStore) error {
		spec, err := o.analyzer.Analyze(ctx, models.Complaint{
			CustomerID: card.CustomerID,
			Vehicle:    card.Vehicle,
			Location:   card.CustomerLocation,
			Text:       card.ComplaintText,
		})
		if err != nil {
			return err
		}
		card.JobSpec = spec
		return nil
	})
}

// Assign plans and reserves a technician in one transaction. NoCapacity leaves the card
// generated so that a later call can retry.
func (o *Orchestrator) Assign(ctx context.Context, id uuid.UUID, expected int64) (*models.JobCard, error) {
	return o.run(ctx, assignStep, id, expected, func(ctx context.Context, card *models.JobCard, catalog repository.CatalogStore) error {
		plan, err := o.reserve(ctx, catalog, assignment.Request{
			Location:   card.CustomerLocation,
			RepairType: card.JobSpec.PredictedRepairType,
		})
		if err != nil {
			return err
		}
		a := plan.Assignment()
		a.AssignedAt = o.now()
		card.Assignment = &a
		return nil
	})
}

// Reassign moves an assigned job to another technician before work starts. The current
// technician is avoided unless nobody else can take the job.
func (o *Orchestrator) Reassign(ctx context.Context, id uuid.UUID, expected int64, by, reason string) (*models.JobCard, error) {
	by, reason = strings.TrimSpace(by), strings.TrimSpace(reason)
	if by == "" || reason == "" {
		return nil, apperr.Validation("reassignment needs who and why")
	}
	return o.run(ctx, reassignStep, id, expected, func(ctx context.Context, card *models.JobCard, catalog repository.CatalogStore) error {
		prev := *card.Assignment
		if err := catalog.Release(ctx, prev.ServiceCenterID, prev.TechnicianID); err != nil {
			return err
		}
		req := assignment.Request{
			Location:   card.CustomerLocation,
			RepairType: card.JobSpec.PredictedRepairType,
			Exclude:    []string{prev.TechnicianID},
		}
		plan, err := o.reserve(ctx, catalog, req)
		if apperr.Is(err, apperr.KindNoCapacity) {
			req.Exclude = nil
			plan, err = o.reserve(ctx, catalog, req)
		}
		if err != nil {
			return err
		}
		next := plan.Assignment()
		next.AssignedAt = o.now()
		card.Assignment = &next
		card.AssignmentHistory = append(card.AssignmentHistory, models.AssignmentChange{
			From:   prev,
			To:     next,
			By:     by,
			Reason: reason,
			At:     next.AssignedAt,
		})
		return nil
	})
}

func (o *Orchestrator) reserve(ctx context.Context, catalog repository.CatalogStore, req assignment.Request) (*assignment.Plan, error) {
	snap, err := catalog.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	plan, err := o.planner.Plan(req, snap)
	if err != nil {
		return nil, err
	}
	if err := catalog.Reserve(ctx, plan.Center.ID, plan.Technician.ID); err != nil {
		return nil, err
	}
	if o.metrics != nil {
		o.metrics.Assignments.WithLabelValues(string(plan.Match)).Inc()
	}
	o.log.Debug("assignment planned", "plan", plan.Describe())
	return plan, nil
}

// Start is called by the assigned technician. A second start finds the card in_progress and
// is rejected.
func (o *Orchestrator) Start(ctx context.Context, id uuid.UUID, expected int64, technicianID string) (*models.JobCard, error) {
	return o.run(ctx, startStep, id, expected, func(_ context.Context, card *models.JobCard, _ repository.CatalogStore) error {
		return assignedTo(card, technicianID)
	})
}

// SubmitReport records the work done and frees the technician's slot.
func (o *Orchestrator) SubmitReport(ctx context.Context, id uuid.UUID, expected int64, technicianID string, report models.TechnicianReport) (*models.JobCard, error) {
	report.ProceduresPerformed = models.NormalizeSet(report.ProceduresPerformed)
	report.PartsReplaced = models.NormalizeSet(report.PartsReplaced)
	report.ToolsUsed = models.NormalizeSet(report.ToolsUsed)
	report.Notes = strings.TrimSpace(report.Notes)
	if err := o.check("technician report", report); err != nil {
		return nil, err
	}
	return o.run(ctx, reportStep, id, expected, func(ctx context.Context, card *models.JobCard, catalog repository.CatalogStore) error {
		if err := assignedTo(card, technicianID); err != nil {
			return err
		}
		if err := catalog.Release(ctx, card.Assignment.ServiceCenterID, card.Assignment.TechnicianID); err != nil {
			return err
		}
		report.TechnicianID = card.Assignment.TechnicianID
		report.SubmittedAt = o.now()
		card.TechnicianReport = &report
		return nil
	})
}

// Validate compares the report with the job spec. ValidatorUnavailable leaves the card in
// work_completed.
func (o *Orchestrator) Validate(ctx context.Context, id uuid.UUID, expected int64) (*models.JobCard, error) {
	return o.run(ctx, validateStep, id, expected, func(ctx context.Context, card *models.JobCard, _ repository.CatalogStore) error {
		vr, err := o.validator.Validate(ctx, *card.JobSpec, *card.TechnicianReport)
		if err != nil {
			return err
		}
		card.ValidationReport = vr
		return nil
	})
}

// Settle routes a validated card to completed when approved and to needs_review otherwise.
func (o *Orchestrator) Settle(ctx context.Context, id uuid.UUID, expected int64) (*models.JobCard, error) {
	return o.run(ctx, settleStep, id, expected, func(_ context.Context, card *models.JobCard, _ repository.CatalogStore) error {
		if card.ValidationReport.OverallStatus == models.VerdictApproved {
			card.Status = models.JobStatusCompleted
		} else {
			card.Status = models.JobStatusNeedsReview
		}
		return nil
	})
}

// InvoiceOptions are the back-office choices for pricing.
type InvoiceOptions struct {
	// WaiveOverageCapBy bills the full labor time of an overage; it names who approved it.
	WaiveOverageCapBy string
}

// Invoice prices the work. needs_review cards are invoiced with hold_for_review set.
func (o *Orchestrator) Invoice(ctx context.Context, id uuid.UUID, expected int64, opts InvoiceOptions) (*models.JobCard, error) {
	return o.run(ctx, invoiceStep, id, expected, func(ctx context.Context, card *models.JobCard, catalog repository.CatalogStore) error {
		rates, err := catalog.RateCard(ctx)
		if err != nil {
			return err
		}
		inv, err := o.invoices.Generate(ctx, invoice.Input{
			Spec:       *card.JobSpec,
			Report:     *card.TechnicianReport,
			Validation: *card.ValidationReport,
			Rates:      *rates,
		}, invoice.Options{WaiveOverageCapBy: strings.TrimSpace(opts.WaiveOverageCapBy)})
		if err != nil {
			return err
		}
		card.Invoice = inv
		if o.metrics != nil {
			o.metrics.Invoices.WithLabelValues(strconv.FormatBool(inv.HoldForReview)).Inc()
		}
		return nil
	})
}

// Override records the human sign-off that releases a held invoice for closing.
func (o *Orchestrator) Override(ctx context.Context, id uuid.UUID, expected int64, by, reason string) (*models.JobCard, error) {
	by, reason = strings.TrimSpace(by), strings.TrimSpace(reason)
	if by == "" || reason == "" {
		return nil, apperr.Validation("override needs who and why")
	}
	return o.run(ctx, overrideStep, id, expected, func(_ context.Context, card *models.JobCard, _ repository.CatalogStore) error {
		if !card.Invoice.HoldForReview {
			return apperr.InvalidTransition(fmt.Sprintf("invoice of job card %s is not held", card.ID))
		}
		if card.Override != nil {
			return apperr.InvalidTransition(fmt.Sprintf("job card %s already overridden by %s", card.ID, card.Override.AuthorizedBy))
		}
		card.Override = &models.Override{AuthorizedBy: by, Reason: reason, At: o.now()}
		return nil
	})
}

// Close finishes an invoiced job. A held invoice needs an override first.
func (o *Orchestrator) Close(ctx context.Context, id uuid.UUID, expected int64) (*models.JobCard, error) {
	return o.run(ctx, closeStep, id, expected, func(_ context.Context, card *models.JobCard, _ repository.CatalogStore) error {
		if card.Invoice.HoldForReview && card.Override == nil {
			return apperr.InvalidTransition(fmt.Sprintf("job card %s has a held invoice and needs an override", card.ID))
		}
		return nil
	})
}

// CancelRequest is a customer withdrawal.
type CancelRequest struct {
	By     string `json:"by" validate:"required"`
	Reason string `json:"reason"`
	// PartialLaborHours is required once work has started.
	PartialLaborHours float64 `json:"partial_labor_hours" validate:"gte=0"`
}

// Cancel withdraws the job. Any capacity reserved for it is released.
func (o *Orchestrator) Cancel(ctx context.Context, id uuid.UUID, expected int64, req CancelRequest) (*models.JobCard, error) {
	req.By, req.Reason = strings.TrimSpace(req.By), strings.TrimSpace(req.Reason)
	if err := o.check("cancellation", req); err != nil {
		return nil, err
	}
	return o.run(ctx, cancelStep, id, expected, func(ctx context.Context, card *models.JobCard, catalog repository.CatalogStore) error {
		if card.Status == models.JobStatusInProgress && req.PartialLaborHours <= 0 {
			return apperr.Validation("cancelling work in progress requires the partial labor time")
		}
		if card.Assignment != nil {
			if err := catalog.Release(ctx, card.Assignment.ServiceCenterID, card.Assignment.TechnicianID); err != nil {
				return err
			}
		}
		card.Cancellation = &models.Cancellation{
			By:                req.By,
			Reason:            req.Reason,
			FromStatus:        card.Status,
			PartialLaborHours: req.PartialLaborHours,
			At:                o.now(),
		}
		return nil
	})
}

func assignedTo(card *models.JobCard, technicianID string) error {
	if strings.TrimSpace(technicianID) == "" {
		return apperr.Validation("technician id is required")
	}
	if card.Assignment.TechnicianID != technicianID {
		return apperr.Forbidden(fmt.Sprintf("job card %s is assigned to another technician", card.ID))
	}
	return nil
}
