package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/VishwesGopal13/Automotive-Service/internal/apperr"
	"github.com/VishwesGopal13/Automotive-Service/internal/invoice"
	"github.com/VishwesGopal13/Automotive-Service/internal/models"
	"github.com/VishwesGopal13/Automotive-Service/internal/repository"
)

// Get returns a job card.
func (o *Orchestrator) Get(ctx context.Context, id uuid.UUID) (*models.JobCard, error) {
	return o.store.Load(ctx, id)
}

// List returns job cards matching filter.
func (o *Orchestrator) List(ctx context.Context, filter repository.ListFilter) ([]*models.JobCard, error) {
	return o.store.List(ctx, filter)
}

// AuditReport gathers everything recorded about one job.
type AuditReport struct {
	JobCard           *models.JobCard `json:"job_card"`
	ServiceCenterName string          `json:"service_center_name,omitempty"`
	TechnicianName    string          `json:"technician_name,omitempty"`
	Reassignments     int             `json:"reassignments"`
	Held              bool            `json:"held"`
	GeneratedAt       time.Time       `json:"generated_at"`
}

// AuditReport builds the report for one job card.
func (o *Orchestrator) AuditReport(ctx context.Context, id uuid.UUID) (*AuditReport, error) {
	card, err := o.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	report := &AuditReport{
		JobCard:       card,
		Reassignments: len(card.AssignmentHistory),
		Held:          card.Invoice != nil && card.Invoice.HoldForReview && card.Override == nil,
		GeneratedAt:   o.now(),
	}
	if card.Assignment == nil {
		return report, nil
	}
	snap, err := o.store.Snapshot(ctx)
	if err != nil {
		o.log.Warn("audit report without catalog names", "job_card_id", id, "error", err)
		return report, nil
	}
	for _, c := range snap.Centers {
		if c.ID == card.Assignment.ServiceCenterID {
			report.ServiceCenterName = c.Name
		}
	}
	for _, t := range snap.Technicians {
		if t.ID == card.Assignment.TechnicianID {
			report.TechnicianName = t.Name
		}
	}
	return report, nil
}

// InvoiceWorkbook renders the invoice of a job card as xlsx.
func (o *Orchestrator) InvoiceWorkbook(ctx context.Context, id uuid.UUID) (*bytes.Buffer, string, error) {
	card, err := o.store.Load(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if card.Invoice == nil {
		return nil, "", apperr.NotFound(fmt.Sprintf("job card %s has no invoice", id))
	}
	buf, err := invoice.ExportXLSX(card.Invoice)
	if err != nil {
		return nil, "", apperr.Internal("export invoice", err)
	}
	return buf, card.Invoice.InvoiceNumber + ".xlsx", nil
}

// ListTechnicians returns technicians with their availability and load, optionally for one center.
func (o *Orchestrator) ListTechnicians(ctx context.Context, centerID string) ([]models.Technician, error) {
	snap, err := o.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Technician, 0, len(snap.Technicians))
	for _, t := range snap.Technicians {
		if centerID == "" || t.ServiceCenterID == centerID {
			out = append(out, t)
		}
	}
	return out, nil
}

// ListServiceCenters returns the centers with their current load.
func (o *Orchestrator) ListServiceCenters(ctx context.Context) ([]models.ServiceCenter, error) {
	snap, err := o.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Centers, nil
}

// SetAvailability changes whether a technician can receive new jobs.
func (o *Orchestrator) SetAvailability(ctx context.Context, technicianID string, availability models.Availability) error {
	switch availability {
	case models.AvailabilityAvailable, models.AvailabilityBusy, models.AvailabilityOff:
	default:
		return apperr.Validation(fmt.Sprintf("unknown availability %q", availability))
	}
	if err := o.store.SetAvailability(ctx, technicianID, availability); err != nil {
		return err
	}
	o.log.Info("technician availability changed", "technician_id", technicianID, "availability", availability)
	return nil
}
