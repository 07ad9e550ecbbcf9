// Package validation compares the planned job with the technician's report and decides
// whether the work can be billed as is.
package validation

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/VishwesGopal13/Automotive-Service/internal/models"
)

// Options holds the engine thresholds.
type Options struct {
	// Tolerance is the accepted relative deviation of labor time from the estimate.
	Tolerance float64
	// CoverThreshold is the similarity at which a performed procedure covers a planned action.
	CoverThreshold float64
	// UnplannedThreshold is the similarity below which a performed procedure counts as unplanned.
	UnplannedThreshold float64
	Weights            map[models.Severity]float64
	Normalizer         float64
}

// DefaultOptions returns the standard thresholds.
func DefaultOptions() Options {
	return Options{
		Tolerance:          0.25,
		CoverThreshold:     0.75,
		UnplannedThreshold: 0.5,
		Weights: map[models.Severity]float64{
			models.SeverityLow:      0.05,
			models.SeverityMedium:   0.15,
			models.SeverityHigh:     0.3,
			models.SeverityCritical: 0.5,
		},
		Normalizer: 1.0,
	}
}

// Engine is the deterministic discrepancy engine.
type Engine struct {
	opts Options
}

// NewEngine builds an Engine, filling unset options with defaults.
func NewEngine(opts Options) *Engine {
	def := DefaultOptions()
	if opts.Tolerance <= 0 {
		opts.Tolerance = def.Tolerance
	}
	if opts.CoverThreshold <= 0 {
		opts.CoverThreshold = def.CoverThreshold
	}
	if opts.UnplannedThreshold <= 0 {
		opts.UnplannedThreshold = def.UnplannedThreshold
	}
	if opts.Weights == nil {
		opts.Weights = def.Weights
	}
	if opts.Normalizer <= 0 {
		opts.Normalizer = def.Normalizer
	}
	return &Engine{opts: opts}
}

// Tolerance returns the labor time tolerance.
func (e *Engine) Tolerance() float64 { return e.opts.Tolerance }

type phrase struct {
	text   string
	tokens map[string]struct{}
}

func phrases(in []string) []phrase {
	norm := models.NormalizeSet(in)
	out := make([]phrase, len(norm))
	for i, s := range norm {
		out[i] = phrase{text: s, tokens: tokens(s)}
	}
	return out
}

func bestMatch(p phrase, candidates []phrase) (phrase, float64) {
	var best phrase
	score := 0.0
	for _, c := range candidates {
		if s := similarity(p.tokens, c.tokens); s > score {
			best, score = c, s
		}
	}
	return best, score
}

// Evaluate runs every rule and returns a complete report.
func (e *Engine) Evaluate(spec models.JobSpec, report models.TechnicianReport, now time.Time) *models.ValidationReport {
	actions := phrases(spec.RecommendedActions)
	performed := phrases(report.ProceduresPerformed)
	var found []models.Discrepancy

	missing := 0
	for _, a := range actions {
		match, score := bestMatch(a, performed)
		if score >= e.opts.CoverThreshold {
			continue
		}
		missing++
		found = append(found, models.Discrepancy{
			Kind:     models.DiscrepancyMissingProcedure,
			Field:    "procedures_performed",
			Expected: a.text,
			Actual:   match.text,
			Severity: missingProcedureSeverity(spec.Severity),
		})
	}

	for _, p := range performed {
		if _, score := bestMatch(p, actions); score < e.opts.UnplannedThreshold {
			found = append(found, models.Discrepancy{
				Kind:     models.DiscrepancyUnplannedWork,
				Field:    "procedures_performed",
				Expected: "",
				Actual:   p.text,
				Severity: models.SeverityMedium,
			})
		}
	}

	found = append(found, e.laborTime(spec, report, missing == 0)...)

	known := union(tokens(spec.PredictedRepairType))
	for _, a := range actions {
		known = union(known, a.tokens)
	}
	for _, t := range phrases(spec.RequiredTools) {
		known = union(known, t.tokens)
	}
	for _, part := range phrases(report.PartsReplaced) {
		if similarity(part.tokens, known) == 0 {
			found = append(found, models.Discrepancy{
				Kind:     models.DiscrepancyUnexplainedPart,
				Field:    "parts_replaced",
				Actual:   part.text,
				Severity: models.SeverityMedium,
			})
		}
	}

	if used := phrases(report.ToolsUsed); len(used) > 0 {
		for _, tool := range phrases(spec.RequiredTools) {
			if _, score := bestMatch(tool, used); score < e.opts.CoverThreshold {
				found = append(found, models.Discrepancy{
					Kind:     models.DiscrepancyMissingTool,
					Field:    "tools_used",
					Expected: tool.text,
					Severity: models.SeverityLow,
				})
			}
		}
	}

	vr := &models.ValidationReport{Discrepancies: found, GeneratedAt: now}
	if vr.Discrepancies == nil {
		vr.Discrepancies = []models.Discrepancy{}
	}
	e.Score(vr)
	return vr
}

// laborTime flags overage always and underrun when the report is short on time. An underrun with
// every action covered suggests work claimed but not done and is high; with missing actions the
// shortfall is explained by the missing work and is medium.
func (e *Engine) laborTime(spec models.JobSpec, report models.TechnicianReport, fullCoverage bool) []models.Discrepancy {
	est, actual := spec.EstimatedLaborHours, report.LaborTimeHours
	if est <= 0 {
		return nil
	}
	ratio := actual / est
	expected := fmt.Sprintf("%.2fh", est)
	got := fmt.Sprintf("%.2fh", actual)

	switch {
	case actual > est*(1+e.opts.Tolerance):
		severity := models.SeverityMedium
		switch {
		case ratio > 2:
			severity = models.SeverityCritical
		case ratio > 1.5:
			severity = models.SeverityHigh
		}
		return []models.Discrepancy{{
			Kind:      models.DiscrepancyTimeOverage,
			Field:     "labor_time_hours",
			Expected:  expected,
			Actual:    got,
			Severity:  severity,
			Magnitude: round(ratio, 4),
		}}
	case actual < est*(1-e.opts.Tolerance):
		severity := models.SeverityHigh
		if !fullCoverage {
			severity = models.SeverityMedium
		}
		return []models.Discrepancy{{
			Kind:      models.DiscrepancySuspiciousUnderrun,
			Field:     "labor_time_hours",
			Expected:  expected,
			Actual:    got,
			Severity:  severity,
			Magnitude: round(ratio, 4),
		}}
	}
	return nil
}

// Score recomputes verdict, confidence and summary from the discrepancies.
func (e *Engine) Score(vr *models.ValidationReport) {
	weight := 0.0
	rejected := false
	for _, d := range vr.Discrepancies {
		weight += e.opts.Weights[d.Severity]
		if d.Severity.AtLeast(models.SeverityCritical) {
			rejected = true
		}
	}
	if vr.Has(models.DiscrepancySuspiciousUnderrun) && vr.Has(models.DiscrepancyMissingProcedure) {
		rejected = true
	}

	switch {
	case rejected:
		vr.OverallStatus = models.VerdictRejected
	case len(vr.Discrepancies) > 0:
		vr.OverallStatus = models.VerdictNeedsReview
	default:
		vr.OverallStatus = models.VerdictApproved
	}
	vr.Confidence = round(math.Max(0, math.Min(1, 1-weight/e.opts.Normalizer)), 4)
	vr.Summary = summarize(vr)
}

func missingProcedureSeverity(job models.Severity) models.Severity {
	if job.Valid() {
		return job
	}
	return models.SeverityMedium
}

func summarize(vr *models.ValidationReport) string {
	if len(vr.Discrepancies) == 0 {
		return "work matches the job spec"
	}
	counts := make(map[models.DiscrepancyKind]int)
	var order []models.DiscrepancyKind
	for _, d := range vr.Discrepancies {
		if counts[d.Kind] == 0 {
			order = append(order, d.Kind)
		}
		counts[d.Kind]++
	}
	parts := make([]string, 0, len(order))
	for _, k := range order {
		parts = append(parts, fmt.Sprintf("%d %s", counts[k], k))
	}
	return fmt.Sprintf("%s: %s", vr.OverallStatus, strings.Join(parts, ", "))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
