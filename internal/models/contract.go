package models

import (
	"fmt"
	"strings"
)

// FieldSet describes which write-once fields of a job card are populated.
type FieldSet struct {
	JobSpec    bool
	Assignment bool
	Report     bool
	Validation bool
	Invoice    bool
}

func (f FieldSet) String() string {
	var parts []string
	add := func(ok bool, name string) {
		if ok {
			parts = append(parts, name)
		}
	}
	add(f.JobSpec, "job_spec")
	add(f.Assignment, "assignment")
	add(f.Report, "technician_report")
	add(f.Validation, "validation_report")
	add(f.Invoice, "invoice")
	return "{" + strings.Join(parts, ",") + "}"
}

// requiredFields is the field-presence contract per status.
var requiredFields = map[JobStatus]FieldSet{
	JobStatusCreated:       {},
	JobStatusGenerated:     {JobSpec: true},
	JobStatusAssigned:      {JobSpec: true, Assignment: true},
	JobStatusInProgress:    {JobSpec: true, Assignment: true},
	JobStatusWorkCompleted: {JobSpec: true, Assignment: true, Report: true},
	JobStatusValidated:     {JobSpec: true, Assignment: true, Report: true, Validation: true},
	JobStatusCompleted:     {JobSpec: true, Assignment: true, Report: true, Validation: true},
	JobStatusNeedsReview:   {JobSpec: true, Assignment: true, Report: true, Validation: true},
	JobStatusInvoiced:      {JobSpec: true, Assignment: true, Report: true, Validation: true, Invoice: true},
	JobStatusClosed:        {JobSpec: true, Assignment: true, Report: true, Validation: true, Invoice: true},
}

// RequiredFields returns the contract for a status. Cancelled cards keep whatever they had
// when withdrawn, so they have no single contract.
func RequiredFields(s JobStatus) (FieldSet, bool) {
	f, ok := requiredFields[s]
	return f, ok
}

// Populated reports the write-once fields currently set.
func (c *JobCard) Populated() FieldSet {
	return FieldSet{
		JobSpec:    c.JobSpec != nil,
		Assignment: c.Assignment != nil,
		Report:     c.TechnicianReport != nil,
		Validation: c.ValidationReport != nil,
		Invoice:    c.Invoice != nil,
	}
}

// CheckConsistency verifies that status agrees with the populated fields and that the
// cross-field invariants hold.
func (c *JobCard) CheckConsistency() error {
	got := c.Populated()

	if c.Status == JobStatusCancelled {
		if c.Cancellation == nil {
			return fmt.Errorf("cancelled job card %s has no cancellation record", c.ID)
		}
		if got.Invoice || got.Validation || got.Report {
			return fmt.Errorf("cancelled job card %s carries post-work fields %s", c.ID, got)
		}
		return nil
	}
	if c.Cancellation != nil {
		return fmt.Errorf("job card %s in %s has a cancellation record", c.ID, c.Status)
	}

	want, ok := RequiredFields(c.Status)
	if !ok {
		return fmt.Errorf("job card %s has unknown status %q", c.ID, c.Status)
	}
	if got != want {
		return fmt.Errorf("job card %s in %s has fields %s, want %s", c.ID, c.Status, got, want)
	}

	if c.Invoice != nil {
		approved := c.ValidationReport.OverallStatus == VerdictApproved
		if c.Invoice.HoldForReview == approved {
			return fmt.Errorf("job card %s: hold_for_review=%t with verdict %s", c.ID, c.Invoice.HoldForReview, c.ValidationReport.OverallStatus)
		}
	}
	if c.Override != nil && (c.Invoice == nil || !c.Invoice.HoldForReview) {
		return fmt.Errorf("job card %s has an override without a held invoice", c.ID)
	}
	if c.Status == JobStatusClosed && c.Invoice.HoldForReview && c.Override == nil {
		return fmt.Errorf("job card %s closed with a held invoice and no override", c.ID)
	}
	return nil
}
