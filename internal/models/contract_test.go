package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func fullCard(status JobStatus) *JobCard {
	return &JobCard{
		ID:         uuid.New(),
		CustomerID: "C-1",
		Status:     status,
		Version:    1,
		JobSpec:    &JobSpec{Severity: SeverityMedium, RecommendedActions: []string{"inspect"}, EstimatedLaborHours: 1},
		Assignment: &Assignment{ServiceCenterID: "SC1", TechnicianID: "T1"},
		TechnicianReport: &TechnicianReport{
			ProceduresPerformed: []string{"inspect"},
			LaborTimeHours:      1,
		},
		ValidationReport: &ValidationReport{OverallStatus: VerdictApproved, Confidence: 1},
		Invoice:          &Invoice{InvoiceNumber: "INV-1", TotalAmount: decimal.NewFromInt(10)},
	}
}

func TestCheckConsistencyPerStatus(t *testing.T) {
	strip := func(c *JobCard, keep FieldSet) *JobCard {
		if !keep.JobSpec {
			c.JobSpec = nil
		}
		if !keep.Assignment {
			c.Assignment = nil
		}
		if !keep.Report {
			c.TechnicianReport = nil
		}
		if !keep.Validation {
			c.ValidationReport = nil
		}
		if !keep.Invoice {
			c.Invoice = nil
		}
		return c
	}

	for status, want := range requiredFields {
		card := strip(fullCard(status), want)
		if err := card.CheckConsistency(); err != nil {
			t.Errorf("%s: expected consistent card, got %v", status, err)
		}
	}
}

func TestCheckConsistencyRejectsMismatch(t *testing.T) {
	card := fullCard(JobStatusGenerated)
	if err := card.CheckConsistency(); err == nil {
		t.Fatalf("generated card with every field populated must be inconsistent")
	}

	card = fullCard(JobStatusAssigned)
	card.TechnicianReport, card.ValidationReport, card.Invoice = nil, nil, nil
	card.Assignment = nil
	if err := card.CheckConsistency(); err == nil {
		t.Fatalf("assigned card without assignment must be inconsistent")
	}
}

func TestCheckConsistencyHoldForReview(t *testing.T) {
	card := fullCard(JobStatusInvoiced)
	card.ValidationReport.OverallStatus = VerdictNeedsReview
	if err := card.CheckConsistency(); err == nil {
		t.Fatalf("needs_review verdict with hold_for_review=false must be inconsistent")
	}
	card.Invoice.HoldForReview = true
	if err := card.CheckConsistency(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	card.Status = JobStatusClosed
	if err := card.CheckConsistency(); err == nil {
		t.Fatalf("closing a held invoice without override must be inconsistent")
	}
	card.Override = &Override{AuthorizedBy: "manager", At: time.Now()}
	if err := card.CheckConsistency(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCheckConsistencyCancelled(t *testing.T) {
	card := fullCard(JobStatusCancelled)
	card.TechnicianReport, card.ValidationReport, card.Invoice = nil, nil, nil
	if err := card.CheckConsistency(); err == nil {
		t.Fatalf("cancelled card needs a cancellation record")
	}
	card.Cancellation = &Cancellation{By: "C-1", FromStatus: JobStatusAssigned}
	if err := card.CheckConsistency(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	card.Invoice = &Invoice{}
	if err := card.CheckConsistency(); err == nil {
		t.Fatalf("cancelled card must never carry an invoice")
	}
}

func TestCloneIsDeep(t *testing.T) {
	card := fullCard(JobStatusInvoiced)
	cp := card.Clone()
	cp.JobSpec.RecommendedActions[0] = "changed"
	cp.Invoice.InvoiceNumber = "INV-2"
	if card.JobSpec.RecommendedActions[0] != "inspect" || card.Invoice.InvoiceNumber != "INV-1" {
		t.Fatalf("clone shares memory with the original")
	}
}

func TestNormalizeSet(t *testing.T) {
	got := NormalizeSet([]string{" Brake pads", "brake pads", "", "rotor "})
	if len(got) != 2 || got[0] != "Brake pads" || got[1] != "rotor" {
		t.Fatalf("unexpected normalized set %v", got)
	}
}

func TestParseStatusTokensAreStable(t *testing.T) {
	tokens := []string{"created", "generated", "assigned", "in_progress", "work_completed", "validated",
		"completed", "needs_review", "invoiced", "closed", "cancelled"}
	for _, tok := range tokens {
		st, ok := ParseJobStatus(tok)
		if !ok || string(st) != tok {
			t.Errorf("token %q does not round-trip", tok)
		}
	}
}
