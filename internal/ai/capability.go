package ai

import (
	"context"

	"github.com/VishwesGopal13/Automotive-Service/internal/apperr"
	"github.com/VishwesGopal13/Automotive-Service/internal/models"
)

// Capability names used for metrics and logs.
const (
	CapabilityClassify = "classify_complaint"
	CapabilityValidate = "validate_work"
)

// Classifier turns a complaint into a JobSpec. Implementations return an error of kind
// apperr.KindNotVehicleRelated when the text is not about a vehicle.
type Classifier interface {
	ClassifyComplaint(ctx context.Context, complaint models.Complaint) (*models.JobSpec, error)
}

// WorkAssessor is the model side of work validation. Its report is advisory: only severities of
// discrepancies it shares with the deterministic engine and its confidence are used.
type WorkAssessor interface {
	ValidateWork(ctx context.Context, spec models.JobSpec, report models.TechnicianReport) (*models.ValidationReport, error)
}

// NotVehicleRelated builds the user-facing rejection for off-topic complaints.
func NotVehicleRelated(reason string) error {
	if reason == "" {
		reason = "complaint is not related to vehicle service"
	}
	return Permanent(apperr.New(apperr.KindNotVehicleRelated, reason))
}
