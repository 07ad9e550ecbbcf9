// Package analysis turns free-text complaints into job specs through the classifier capability.
package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/VishwesGopal13/Automotive-Service/internal/ai"
	"github.com/VishwesGopal13/Automotive-Service/internal/apperr"
	"github.com/VishwesGopal13/Automotive-Service/internal/logger"
	"github.com/VishwesGopal13/Automotive-Service/internal/models"
)

// Analyzer wraps a Classifier with the call policy and output validation.
type Analyzer struct {
	classifier ai.Classifier
	caller     *ai.Caller
	log        logger.Logger
}

// NewAnalyzer constructs an Analyzer.
func NewAnalyzer(classifier ai.Classifier, caller *ai.Caller, log logger.Logger) *Analyzer {
	return &Analyzer{classifier: classifier, caller: caller, log: log}
}

// Analyze classifies the complaint. Errors are always *apperr.Error of kind Validation,
// NotVehicleRelated or AnalysisUnavailable.
func (a *Analyzer) Analyze(ctx context.Context, complaint models.Complaint) (*models.JobSpec, error) {
	if strings.TrimSpace(complaint.Text) == "" {
		return nil, apperr.Validation("complaint text is required")
	}

	var spec *models.JobSpec
	attempts, err := a.caller.Call(ctx, ai.CapabilityClassify, func(ctx context.Context) error {
		out, err := a.classifier.ClassifyComplaint(ctx, complaint)
		if err != nil {
			return err
		}
		if err := CheckJobSpec(out); err != nil {
			a.log.Warn("classifier returned an invalid job spec", "error", err)
			return err
		}
		spec = out
		return nil
	})
	if err != nil {
		if apperr.Is(err, apperr.KindNotVehicleRelated) || apperr.Is(err, apperr.KindValidation) {
			return nil, err
		}
		return nil, apperr.Wrap(apperr.KindAnalysisUnavailable,
			fmt.Sprintf("complaint analysis failed after %d attempt(s)", attempts), err)
	}

	spec.RecommendedActions = models.NormalizeSet(spec.RecommendedActions)
	spec.RequiredTools = models.NormalizeSet(spec.RequiredTools)
	return spec, nil
}

// CheckJobSpec rejects structurally invalid classifier output.
func CheckJobSpec(spec *models.JobSpec) error {
	switch {
	case spec == nil:
		return fmt.Errorf("empty job spec")
	case !spec.Severity.Valid():
		return fmt.Errorf("unknown severity %q", spec.Severity)
	case strings.TrimSpace(spec.PredictedRepairType) == "":
		return fmt.Errorf("missing predicted repair type")
	case len(models.NormalizeSet(spec.RecommendedActions)) == 0:
		return fmt.Errorf("no recommended actions")
	case spec.EstimatedLaborHours <= 0:
		return fmt.Errorf("estimated labor hours must be positive, got %v", spec.EstimatedLaborHours)
	case spec.EstimatedCostRange.Low.IsNegative():
		return fmt.Errorf("negative cost estimate")
	case spec.EstimatedCostRange.Low.GreaterThan(spec.EstimatedCostRange.High):
		return fmt.Errorf("cost range low %s exceeds high %s", spec.EstimatedCostRange.Low, spec.EstimatedCostRange.High)
	case spec.Confidence < 0 || spec.Confidence > 1:
		return fmt.Errorf("confidence %v outside [0,1]", spec.Confidence)
	}
	return nil
}
