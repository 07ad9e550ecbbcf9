package validation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/VishwesGopal13/Automotive-Service/internal/ai"
	"github.com/VishwesGopal13/Automotive-Service/internal/apperr"
	"github.com/VishwesGopal13/Automotive-Service/internal/logger"
	"github.com/VishwesGopal13/Automotive-Service/internal/models"
)

// WorkValidator produces the validation report for a finished job. The engine decides which
// discrepancies exist; an optional model assessor may only re-grade their severity.
type WorkValidator struct {
	engine   *Engine
	assessor ai.WorkAssessor
	caller   *ai.Caller
	log      logger.Logger
	now      func() time.Time
}

// NewWorkValidator builds a validator. assessor may be nil, in which case the engine's report
// is used as is.
func NewWorkValidator(engine *Engine, assessor ai.WorkAssessor, caller *ai.Caller, log logger.Logger) *WorkValidator {
	return &WorkValidator{
		engine:   engine,
		assessor: assessor,
		caller:   caller,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Tolerance exposes the labor time tolerance shared with invoicing.
func (v *WorkValidator) Tolerance() float64 { return v.engine.Tolerance() }

// Validate compares spec with report. It fails with ValidatorUnavailable only when an assessor
// is configured and keeps failing.
func (v *WorkValidator) Validate(ctx context.Context, spec models.JobSpec, report models.TechnicianReport) (*models.ValidationReport, error) {
	vr := v.engine.Evaluate(spec, report, v.now())
	if v.assessor == nil {
		return vr, nil
	}

	var assessed *models.ValidationReport
	attempts, err := v.caller.Call(ctx, ai.CapabilityValidate, func(ctx context.Context) error {
		out, err := v.assessor.ValidateWork(ctx, spec, report)
		if err != nil {
			return err
		}
		if out == nil || out.Confidence < 0 || out.Confidence > 1 {
			return fmt.Errorf("assessor returned an invalid report")
		}
		assessed = out
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidatorUnavailable,
			fmt.Sprintf("work validation failed after %d attempt(s)", attempts), err)
	}

	regraded := applySeverities(vr, assessed)
	v.engine.Score(vr)
	mc := assessed.Confidence
	vr.ModelConfidence = &mc
	if s := strings.TrimSpace(assessed.Summary); s != "" {
		vr.Summary = vr.Summary + "; model: " + s
	}
	if regraded > 0 {
		v.log.Info("model re-graded discrepancies", "count", regraded, "verdict", vr.OverallStatus)
	}
	return vr, nil
}

// applySeverities copies the model's severity onto engine discrepancies it agrees exist.
// Model-only findings are ignored.
func applySeverities(vr, assessed *models.ValidationReport) int {
	changed := 0
	for i := range vr.Discrepancies {
		d := &vr.Discrepancies[i]
		for _, m := range assessed.Discrepancies {
			if m.Kind != d.Kind || !m.Severity.Valid() || !sameSubject(*d, m) {
				continue
			}
			if m.Severity != d.Severity {
				d.Severity = m.Severity
				changed++
			}
			break
		}
	}
	return changed
}

func sameSubject(a, b models.Discrepancy) bool {
	eq := func(x, y string) bool { return strings.EqualFold(strings.TrimSpace(x), strings.TrimSpace(y)) }
	switch a.Kind {
	case models.DiscrepancyTimeOverage, models.DiscrepancySuspiciousUnderrun:
		return true
	case models.DiscrepancyMissingProcedure, models.DiscrepancyMissingTool:
		return eq(a.Expected, b.Expected)
	default:
		return eq(a.Actual, b.Actual)
	}
}
