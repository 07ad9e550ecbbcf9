package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/VishwesGopal13/Automotive-Service/internal/ai"
	"github.com/VishwesGopal13/Automotive-Service/internal/apperr"
	"github.com/VishwesGopal13/Automotive-Service/internal/logger"
	"github.com/VishwesGopal13/Automotive-Service/internal/models"
)

type scriptedClassifier struct {
	results []func() (*models.JobSpec, error)
	calls   int
}

func (s *scriptedClassifier) ClassifyComplaint(ctx context.Context, _ models.Complaint) (*models.JobSpec, error) {
	i := s.calls
	s.calls++
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	return s.results[i]()
}

func validSpec() *models.JobSpec {
	return &models.JobSpec{
		Severity:            models.SeverityMedium,
		PredictedRepairType: "brake_system",
		RecommendedActions:  []string{"Replace brake pads", " replace brake pads ", "Test drive"},
		RequiredTools:       []string{"Torque wrench"},
		EstimatedLaborHours: 1.5,
		EstimatedCostRange:  models.CostRange{Low: decimal.NewFromInt(100), High: decimal.NewFromInt(200)},
		Confidence:          0.8,
	}
}

func newAnalyzer(c ai.Classifier) *Analyzer {
	caller := ai.NewCaller(ai.Policy{Timeout: time.Second, MaxAttempts: 2, Backoff: time.Millisecond}, nil, nil, logger.NewNop())
	return NewAnalyzer(c, caller, logger.NewNop())
}

func TestAnalyzeEmptyText(t *testing.T) {
	c := &scriptedClassifier{results: []func() (*models.JobSpec, error){func() (*models.JobSpec, error) { return validSpec(), nil }}}
	_, err := newAnalyzer(c).Analyze(context.Background(), models.Complaint{Text: "   "})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if c.calls != 0 {
		t.Fatalf("classifier must not be called for empty text")
	}
}

func TestAnalyzeNormalizesOutput(t *testing.T) {
	c := &scriptedClassifier{results: []func() (*models.JobSpec, error){func() (*models.JobSpec, error) { return validSpec(), nil }}}
	spec, err := newAnalyzer(c).Analyze(context.Background(), models.Complaint{Text: "brakes squeal"})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(spec.RecommendedActions) != 2 {
		t.Fatalf("expected duplicate action to be dropped, got %v", spec.RecommendedActions)
	}
}

func TestAnalyzeRetriesInvalidOutput(t *testing.T) {
	bad := validSpec()
	bad.EstimatedLaborHours = 0
	c := &scriptedClassifier{results: []func() (*models.JobSpec, error){
		func() (*models.JobSpec, error) { return bad, nil },
		func() (*models.JobSpec, error) { return validSpec(), nil },
	}}
	spec, err := newAnalyzer(c).Analyze(context.Background(), models.Complaint{Text: "brakes squeal"})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if c.calls != 2 || spec.EstimatedLaborHours != 1.5 {
		t.Fatalf("expected a retry after invalid output, calls=%d", c.calls)
	}
}

func TestAnalyzeExhausted(t *testing.T) {
	c := &scriptedClassifier{results: []func() (*models.JobSpec, error){
		func() (*models.JobSpec, error) { return nil, errors.New("model overloaded") },
	}}
	_, err := newAnalyzer(c).Analyze(context.Background(), models.Complaint{Text: "brakes squeal"})
	if !apperr.Is(err, apperr.KindAnalysisUnavailable) {
		t.Fatalf("expected analysis unavailable, got %v", err)
	}
	if c.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", c.calls)
	}
}

func TestAnalyzeNotVehicleRelatedIsNotRetried(t *testing.T) {
	c := &scriptedClassifier{results: []func() (*models.JobSpec, error){
		func() (*models.JobSpec, error) { return nil, ai.NotVehicleRelated("cooking question") },
	}}
	_, err := newAnalyzer(c).Analyze(context.Background(), models.Complaint{Text: "how do I cook rice"})
	if !apperr.Is(err, apperr.KindNotVehicleRelated) {
		t.Fatalf("expected not vehicle related, got %v", err)
	}
	if c.calls != 1 {
		t.Fatalf("expected a single attempt, got %d", c.calls)
	}
}

func TestCheckJobSpec(t *testing.T) {
	cases := map[string]func(*models.JobSpec){
		"severity":   func(s *models.JobSpec) { s.Severity = "urgent" },
		"actions":    func(s *models.JobSpec) { s.RecommendedActions = []string{" "} },
		"hours":      func(s *models.JobSpec) { s.EstimatedLaborHours = -1 },
		"cost":       func(s *models.JobSpec) { s.EstimatedCostRange.Low = decimal.NewFromInt(500) },
		"confidence": func(s *models.JobSpec) { s.Confidence = 1.2 },
		"type":       func(s *models.JobSpec) { s.PredictedRepairType = "" },
	}
	for name, mutate := range cases {
		spec := validSpec()
		mutate(spec)
		if CheckJobSpec(spec) == nil {
			t.Errorf("%s: expected invalid spec", name)
		}
	}
	if err := CheckJobSpec(validSpec()); err != nil {
		t.Fatalf("valid spec rejected: %v", err)
	}
}
