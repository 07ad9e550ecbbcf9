package models

import "strings"

// JobStatus describes the life-cycle state of a job card. The string tokens are part of the
// public contract consumed by UIs and reporting and must not change.
type JobStatus string

const (
	JobStatusCreated       JobStatus = "created"
	JobStatusGenerated     JobStatus = "generated"
	JobStatusAssigned      JobStatus = "assigned"
	JobStatusInProgress    JobStatus = "in_progress"
	JobStatusWorkCompleted JobStatus = "work_completed"
	JobStatusValidated     JobStatus = "validated"
	JobStatusCompleted     JobStatus = "completed"
	JobStatusNeedsReview   JobStatus = "needs_review"
	JobStatusInvoiced      JobStatus = "invoiced"
	JobStatusClosed        JobStatus = "closed"
	JobStatusCancelled     JobStatus = "cancelled"
)

// AllStatuses lists every status in happy-path order followed by cancelled.
var AllStatuses = []JobStatus{
	JobStatusCreated,
	JobStatusGenerated,
	JobStatusAssigned,
	JobStatusInProgress,
	JobStatusWorkCompleted,
	JobStatusValidated,
	JobStatusCompleted,
	JobStatusNeedsReview,
	JobStatusInvoiced,
	JobStatusClosed,
	JobStatusCancelled,
}

// ParseJobStatus maps a token back to a JobStatus.
func ParseJobStatus(s string) (JobStatus, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// Terminal reports whether no further transition is possible.
func (s JobStatus) Terminal() bool {
	return s == JobStatusClosed || s == JobStatusCancelled
}

// Active reports whether the job card is still moving through the lifecycle.
func (s JobStatus) Active() bool {
	return !s.Terminal()
}

// Cancellable reports whether a customer withdrawal is accepted in this status. Work in
// progress can be cancelled too, but only with the partial labor time recorded.
func (s JobStatus) Cancellable() bool {
	switch s {
	case JobStatusCreated, JobStatusGenerated, JobStatusAssigned, JobStatusInProgress:
		return true
	}
	return false
}

// Severity ranks how serious a problem or discrepancy is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities; unknown values rank zero.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// Valid reports whether s is one of the four known severities.
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// AtLeast reports whether s is as serious as other.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// ParseSeverity accepts any casing ("High", "CRITICAL").
func ParseSeverity(v string) (Severity, bool) {
	s := Severity(strings.ToLower(strings.TrimSpace(v)))
	return s, s.Valid()
}

// Verdict is the overall outcome of work validation.
type Verdict string

const (
	VerdictApproved    Verdict = "approved"
	VerdictNeedsReview Verdict = "needs_review"
	VerdictRejected    Verdict = "rejected"
)

// Availability is a technician's current availability.
type Availability string

const (
	AvailabilityAvailable Availability = "available"
	AvailabilityBusy      Availability = "busy"
	AvailabilityOff       Availability = "off"
)
