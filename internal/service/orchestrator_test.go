package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"github.com/VishwesGopal13/Automotive-Service/internal/ai"
	"github.com/VishwesGopal13/Automotive-Service/internal/analysis"
	"github.com/VishwesGopal13/Automotive-Service/internal/apperr"
	"github.com/VishwesGopal13/Automotive-Service/internal/assignment"
	"github.com/VishwesGopal13/Automotive-Service/internal/invoice"
	"github.com/VishwesGopal13/Automotive-Service/internal/logger"
	"github.com/VishwesGopal13/Automotive-Service/internal/metrics"
	"github.com/VishwesGopal13/Automotive-Service/internal/models"
	"github.com/VishwesGopal13/Automotive-Service/internal/repository"
	"github.com/VishwesGopal13/Automotive-Service/internal/validation"
)

var testNow = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
}

func (p *recordingPublisher) Publish(_ context.Context, routingKey string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type fixture struct {
	orch    *Orchestrator
	store   *repository.MemoryStore
	events  *recordingPublisher
	metrics *metrics.Metrics
}

func seed() repository.CatalogSeed {
	return repository.CatalogSeed{
		Centers: []models.ServiceCenter{
			{ID: "sc-1", Name: "Downtown", Location: models.GeoPoint{Lat: 12.97, Lon: 77.59}, Capacity: 2},
			{ID: "sc-2", Name: "Airport", Location: models.GeoPoint{Lat: 13.19, Lon: 77.70}, Capacity: 3},
		},
		Technicians: []models.Technician{
			{ID: "t-1", ServiceCenterID: "sc-1", Name: "Asha", Specializations: []string{"Brakes"}, Availability: models.AvailabilityAvailable},
			{ID: "t-2", ServiceCenterID: "sc-2", Name: "Ravi", Specializations: []string{"General"}, Availability: models.AvailabilityAvailable},
			{ID: "t-3", ServiceCenterID: "sc-1", Name: "Meera", Specializations: []string{"General"}, Availability: models.AvailabilityAvailable},
		},
		Rates: models.RateCard{
			Currency:         "USD",
			HourlyRate:       decimal.RequireFromString("80"),
			DefaultPartPrice: decimal.RequireFromString("25"),
			PartPrices:       map[string]decimal.Decimal{"brake pads": decimal.RequireFromString("50.00")},
			TaxRate:          decimal.Zero,
		},
	}
}

func newFixture(t *testing.T, s repository.CatalogSeed, classifier ai.Classifier) *fixture {
	t.Helper()
	store := repository.NewMemoryStore(s)
	f := newFixtureWith(t, store, invoice.NewMemoryNumberSource("INV"), classifier, nil)
	f.store = store
	return f
}

// newFixtureWith builds an orchestrator over any store. The store field stays nil unless the
// caller sets it.
func newFixtureWith(t *testing.T, store repository.Store, numbers invoice.NumberSource, classifier ai.Classifier, assessor ai.WorkAssessor) *fixture {
	t.Helper()
	log := logger.NewNop()
	m := metrics.NewMetrics("test", prometheus.NewRegistry())
	caller := ai.NewCaller(ai.Policy{Timeout: time.Second, MaxAttempts: 2, Backoff: time.Millisecond}, nil, m, log)
	if classifier == nil {
		classifier = ai.NewHeuristicClassifier()
	}
	engine := validation.NewEngine(validation.DefaultOptions())
	events := &recordingPublisher{}
	orch := NewOrchestrator(
		store,
		analysis.NewAnalyzer(classifier, caller, log),
		assignment.NewPlanner(),
		validation.NewWorkValidator(engine, assessor, caller, log),
		invoice.NewGenerator(numbers, engine.Tolerance()),
		events,
		m,
		log,
	)
	orch.now = func() time.Time { return testNow }
	return &fixture{orch: orch, events: events, metrics: m}
}

func brakeComplaint() models.Complaint {
	return models.Complaint{
		CustomerID: "cust-1",
		Vehicle:    models.Vehicle{Make: "Honda", Model: "Civic", Year: 2019},
		Location:   models.GeoPoint{Lat: 12.95, Lon: 77.60},
		Text:       "Brakes make a grinding noise when stopping",
	}
}

func brakeReport(hours float64) models.TechnicianReport {
	return models.TechnicianReport{
		ProceduresPerformed: []string{
			"Inspected brake pads and rotors",
			"Replaced worn brake pads",
			"Resurfaced rotors",
			"Bleed brake system",
			"Test drive to verify braking",
		},
		PartsReplaced:  []string{"Brake pads"},
		LaborTimeHours: hours,
	}
}

func mustJSON(t *testing.T, v interface{}) string {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(raw)
}

func assertContract(t *testing.T, card *models.JobCard, status models.JobStatus) {
	t.Helper()
	if card.Status != status {
		t.Fatalf("expected status %s, got %s", status, card.Status)
	}
	if err := card.CheckConsistency(); err != nil {
		t.Fatalf("contract broken in %s: %v", status, err)
	}
	if want, ok := models.RequiredFields(status); ok && card.Populated() != want {
		t.Fatalf("fields in %s: got %s want %s", status, card.Populated(), want)
	}
}

func (f *fixture) center(t *testing.T, id string) models.ServiceCenter {
	t.Helper()
	centers, err := f.orch.ListServiceCenters(context.Background())
	if err != nil {
		t.Fatalf("list centers: %v", err)
	}
	for _, c := range centers {
		if c.ID == id {
			return c
		}
	}
	t.Fatalf("center %s not found", id)
	return models.ServiceCenter{}
}

// toAssigned runs intake, generate and assign.
func (f *fixture) toAssigned(t *testing.T) *models.JobCard {
	t.Helper()
	ctx := context.Background()
	card, err := f.orch.Intake(ctx, brakeComplaint())
	if err != nil {
		t.Fatalf("intake: %v", err)
	}
	if card, err = f.orch.Generate(ctx, card.ID, card.Version); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if card, err = f.orch.Assign(ctx, card.ID, card.Version); err != nil {
		t.Fatalf("assign: %v", err)
	}
	return card
}

func TestBrakeScenarioEndToEnd(t *testing.T) {
	f := newFixture(t, seed(), nil)
	ctx := context.Background()

	card, err := f.orch.Intake(ctx, brakeComplaint())
	if err != nil {
		t.Fatalf("intake: %v", err)
	}
	if card.Version != 1 {
		t.Fatalf("new cards start at version 1, got %d", card.Version)
	}
	assertContract(t, card, models.JobStatusCreated)

	card, err = f.orch.Generate(ctx, card.ID, card.Version)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	assertContract(t, card, models.JobStatusGenerated)
	if card.JobSpec.PredictedRepairType != "brake_system" {
		t.Fatalf("unexpected repair type %q", card.JobSpec.PredictedRepairType)
	}

	card, err = f.orch.Assign(ctx, card.ID, card.Version)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	assertContract(t, card, models.JobStatusAssigned)
	if card.Assignment.TechnicianID != "t-1" || card.Assignment.Match != string(assignment.MatchSpecialist) {
		t.Fatalf("expected brake specialist t-1, got %+v", card.Assignment)
	}
	if f.center(t, "sc-1").ActiveJobs != 1 {
		t.Fatalf("assignment must reserve a slot")
	}

	card, err = f.orch.Start(ctx, card.ID, card.Version, "t-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	assertContract(t, card, models.JobStatusInProgress)

	card, err = f.orch.SubmitReport(ctx, card.ID, card.Version, "t-1", brakeReport(2.0))
	if err != nil {
		t.Fatalf("submit report: %v", err)
	}
	assertContract(t, card, models.JobStatusWorkCompleted)
	if f.center(t, "sc-1").ActiveJobs != 0 {
		t.Fatalf("finished work must free the slot")
	}

	card, err = f.orch.Validate(ctx, card.ID, card.Version)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	assertContract(t, card, models.JobStatusValidated)
	if card.ValidationReport.OverallStatus != models.VerdictApproved {
		t.Fatalf("expected approved, got %+v", card.ValidationReport)
	}

	card, err = f.orch.Settle(ctx, card.ID, card.Version)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	assertContract(t, card, models.JobStatusCompleted)

	card, err = f.orch.Invoice(ctx, card.ID, card.Version, InvoiceOptions{})
	if err != nil {
		t.Fatalf("invoice: %v", err)
	}
	assertContract(t, card, models.JobStatusInvoiced)
	if card.Invoice.TotalAmount.StringFixed(2) != "210.00" || card.Invoice.InvoiceNumber != "INV-000001" {
		t.Fatalf("unexpected invoice %+v", card.Invoice)
	}

	card, err = f.orch.Close(ctx, card.ID, card.Version)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	assertContract(t, card, models.JobStatusClosed)
	if card.Invoice.HoldForReview {
		t.Fatalf("approved work must close without a hold")
	}
	if card.Version != 9 {
		t.Fatalf("expected version 9 after eight transitions, got %d", card.Version)
	}

	want := []string{
		"jobcard.created", "jobcard.generated", "jobcard.assigned", "jobcard.in_progress",
		"jobcard.work_completed", "jobcard.validated", "jobcard.completed", "jobcard.invoiced", "jobcard.closed",
	}
	if len(f.events.keys) != len(want) {
		t.Fatalf("expected %d events, got %v", len(want), f.events.keys)
	}
	for i, k := range want {
		if f.events.keys[i] != k {
			t.Fatalf("event %d: got %s want %s", i, f.events.keys[i], k)
		}
	}
	if got := testutil.ToFloat64(f.metrics.Transitions.WithLabelValues("assign", "ok")); got != 1 {
		t.Fatalf("expected one assign transition, got %v", got)
	}

	audit, err := f.orch.AuditReport(ctx, card.ID)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if audit.TechnicianName != "Asha" || audit.ServiceCenterName != "Downtown" || audit.Held {
		t.Fatalf("unexpected audit report %+v", audit)
	}
}

func TestStaleVersionIsConflict(t *testing.T) {
	f := newFixture(t, seed(), nil)
	ctx := context.Background()

	card, err := f.orch.Intake(ctx, brakeComplaint())
	if err != nil {
		t.Fatalf("intake: %v", err)
	}
	stale := card.Version
	card, err = f.orch.Generate(ctx, card.ID, stale)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	before := mustJSON(t, card)

	_, err = f.orch.Generate(ctx, card.ID, stale)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	_, err = f.orch.Assign(ctx, card.ID, stale)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	after, err := f.orch.Get(ctx, card.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if mustJSON(t, after) != before {
		t.Fatalf("stored card changed after a rejected write")
	}
	if f.center(t, "sc-1").ActiveJobs != 0 {
		t.Fatalf("conflicting assign must not reserve capacity")
	}
}

func TestStartRules(t *testing.T) {
	f := newFixture(t, seed(), nil)
	ctx := context.Background()
	card := f.toAssigned(t)

	if _, err := f.orch.Start(ctx, card.ID, card.Version, "t-2"); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("another technician must not start the job, got %v", err)
	}
	started, err := f.orch.Start(ctx, card.ID, card.Version, "t-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.orch.Start(ctx, card.ID, started.Version, "t-1"); !apperr.Is(err, apperr.KindInvalidTransition) {
		t.Fatalf("second start must be rejected, got %v", err)
	}
}

func TestInvalidTransitionLeavesCardUntouched(t *testing.T) {
	f := newFixture(t, seed(), nil)
	ctx := context.Background()
	card, err := f.orch.Intake(ctx, brakeComplaint())
	if err != nil {
		t.Fatalf("intake: %v", err)
	}
	if _, err := f.orch.Assign(ctx, card.ID, card.Version); !apperr.Is(err, apperr.KindInvalidTransition) {
		t.Fatalf("assign before generate must fail, got %v", err)
	}
	got, _ := f.orch.Get(ctx, card.ID)
	if got.Version != 1 || got.Status != models.JobStatusCreated {
		t.Fatalf("card changed: %+v", got)
	}
}

func TestCancelFromAssignedNeverInvoices(t *testing.T) {
	f := newFixture(t, seed(), nil)
	ctx := context.Background()
	card := f.toAssigned(t)

	card, err := f.orch.Cancel(ctx, card.ID, card.Version, CancelRequest{By: "cust-1", Reason: "sold the car"})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if card.Status != models.JobStatusCancelled || card.Cancellation.FromStatus != models.JobStatusAssigned {
		t.Fatalf("unexpected cancellation %+v", card.Cancellation)
	}
	if err := card.CheckConsistency(); err != nil {
		t.Fatalf("contract: %v", err)
	}
	if f.center(t, "sc-1").ActiveJobs != 0 {
		t.Fatalf("cancel must release the reservation")
	}
	if _, err := f.orch.Invoice(ctx, card.ID, card.Version, InvoiceOptions{}); !apperr.Is(err, apperr.KindInvalidTransition) {
		t.Fatalf("cancelled cards cannot be invoiced, got %v", err)
	}
	got, _ := f.orch.Get(ctx, card.ID)
	if got.Invoice != nil {
		t.Fatalf("cancelled card has an invoice")
	}
}

func TestCancelInProgressNeedsPartialTime(t *testing.T) {
	f := newFixture(t, seed(), nil)
	ctx := context.Background()
	card := f.toAssigned(t)
	card, err := f.orch.Start(ctx, card.ID, card.Version, "t-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := f.orch.Cancel(ctx, card.ID, card.Version, CancelRequest{By: "cust-1"}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	card, err = f.orch.Cancel(ctx, card.ID, card.Version, CancelRequest{By: "cust-1", PartialLaborHours: 0.5})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if card.Cancellation.PartialLaborHours != 0.5 {
		t.Fatalf("partial time not recorded")
	}
}

func TestConcurrentAssignDoesNotOverbook(t *testing.T) {
	s := seed()
	s.Centers = s.Centers[:1]
	s.Centers[0].Capacity = 1
	s.Technicians = s.Technicians[:1]
	f := newFixture(t, s, nil)
	ctx := context.Background()

	var cards []*models.JobCard
	for i := 0; i < 5; i++ {
		card, err := f.orch.Intake(ctx, brakeComplaint())
		if err != nil {
			t.Fatalf("intake: %v", err)
		}
		if card, err = f.orch.Generate(ctx, card.ID, card.Version); err != nil {
			t.Fatalf("generate: %v", err)
		}
		cards = append(cards, card)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(cards))
	for i, card := range cards {
		wg.Add(1)
		go func(i int, id uuid.UUID, version int64) {
			defer wg.Done()
			_, errs[i] = f.orch.Assign(ctx, id, version)
		}(i, card.ID, card.Version)
	}
	wg.Wait()

	assigned := 0
	for _, err := range errs {
		switch {
		case err == nil:
			assigned++
		case !apperr.Is(err, apperr.KindNoCapacity):
			t.Fatalf("unexpected error %v", err)
		}
	}
	if assigned != 1 {
		t.Fatalf("expected exactly one assignment, got %d", assigned)
	}
	if c := f.center(t, "sc-1"); c.ActiveJobs != 1 {
		t.Fatalf("center overbooked: %+v", c)
	}
	generated, err := f.orch.List(ctx, repository.ListFilter{Statuses: []models.JobStatus{models.JobStatusGenerated}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(generated) != 4 {
		t.Fatalf("unassigned cards must stay generated, got %d", len(generated))
	}
	for _, card := range generated {
		if card.Assignment != nil {
			t.Fatalf("generated card carries an assignment")
		}
	}
}

func TestNeedsReviewRequiresOverride(t *testing.T) {
	f := newFixture(t, seed(), nil)
	ctx := context.Background()
	card := f.toAssigned(t)

	var err error
	steps := []func() (*models.JobCard, error){
		func() (*models.JobCard, error) { return f.orch.Start(ctx, card.ID, card.Version, "t-1") },
		func() (*models.JobCard, error) {
			return f.orch.SubmitReport(ctx, card.ID, card.Version, "t-1", brakeReport(4.0))
		},
		func() (*models.JobCard, error) { return f.orch.Validate(ctx, card.ID, card.Version) },
		func() (*models.JobCard, error) { return f.orch.Settle(ctx, card.ID, card.Version) },
		func() (*models.JobCard, error) { return f.orch.Invoice(ctx, card.ID, card.Version, InvoiceOptions{}) },
	}
	for i, step := range steps {
		if card, err = step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	assertContract(t, card, models.JobStatusInvoiced)
	if !card.Invoice.HoldForReview || len(card.Invoice.Adjustments) != 1 {
		t.Fatalf("overage invoice should be held and capped: %+v", card.Invoice)
	}

	if _, err := f.orch.Close(ctx, card.ID, card.Version); !apperr.Is(err, apperr.KindInvalidTransition) {
		t.Fatalf("held invoice must not close without override, got %v", err)
	}
	if _, err := f.orch.Override(ctx, card.ID, card.Version, "", "ok"); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("override needs an approver, got %v", err)
	}
	card, err = f.orch.Override(ctx, card.ID, card.Version, "manager-7", "customer approved extra time")
	if err != nil {
		t.Fatalf("override: %v", err)
	}
	if card.Override.AuthorizedBy != "manager-7" {
		t.Fatalf("override not recorded")
	}
	card, err = f.orch.Close(ctx, card.ID, card.Version)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	assertContract(t, card, models.JobStatusClosed)
}

func TestReassignAvoidsCurrentTechnician(t *testing.T) {
	f := newFixture(t, seed(), nil)
	ctx := context.Background()
	card := f.toAssigned(t)

	card, err := f.orch.Reassign(ctx, card.ID, card.Version, "dispatcher", "technician called in sick")
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if card.Assignment.TechnicianID != "t-3" || len(card.AssignmentHistory) != 1 {
		t.Fatalf("unexpected reassignment %+v %+v", card.Assignment, card.AssignmentHistory)
	}
	if card.AssignmentHistory[0].From.TechnicianID != "t-1" {
		t.Fatalf("history lost the previous technician")
	}
	techs, err := f.orch.ListTechnicians(ctx, "sc-1")
	if err != nil {
		t.Fatalf("list technicians: %v", err)
	}
	load := map[string]int{}
	for _, tech := range techs {
		load[tech.ID] = tech.OpenJobs
	}
	if load["t-1"] != 0 || load["t-3"] != 1 {
		t.Fatalf("open jobs not moved: %v", load)
	}
	if f.center(t, "sc-1").ActiveJobs != 1 {
		t.Fatalf("reassignment must keep a single slot")
	}
}

type offTopicClassifier struct{ calls int }

func (c *offTopicClassifier) ClassifyComplaint(context.Context, models.Complaint) (*models.JobSpec, error) {
	c.calls++
	return nil, ai.NotVehicleRelated("the complaint is about a refrigerator")
}

func TestGenerateNotVehicleRelatedKeepsCreated(t *testing.T) {
	classifier := &offTopicClassifier{}
	f := newFixture(t, seed(), classifier)
	ctx := context.Background()
	card, err := f.orch.Intake(ctx, brakeComplaint())
	if err != nil {
		t.Fatalf("intake: %v", err)
	}
	if _, err := f.orch.Generate(ctx, card.ID, card.Version); !apperr.Is(err, apperr.KindNotVehicleRelated) {
		t.Fatalf("expected not vehicle related, got %v", err)
	}
	if classifier.calls != 1 {
		t.Fatalf("off-topic answers must not be retried, got %d calls", classifier.calls)
	}
	got, _ := f.orch.Get(ctx, card.ID)
	if got.Status != models.JobStatusCreated || got.JobSpec != nil || got.Version != 1 {
		t.Fatalf("card changed: %+v", got)
	}
}

func TestIntakeValidation(t *testing.T) {
	f := newFixture(t, seed(), nil)
	ctx := context.Background()

	c := brakeComplaint()
	c.Text = "   "
	if _, err := f.orch.Intake(ctx, c); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("empty text must be rejected, got %v", err)
	}
	c = brakeComplaint()
	c.CustomerID = ""
	if _, err := f.orch.Intake(ctx, c); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("missing customer must be rejected, got %v", err)
	}
	c = brakeComplaint()
	c.Location.Lat = 120
	if _, err := f.orch.Intake(ctx, c); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("bad latitude must be rejected, got %v", err)
	}
}

func TestSetAvailability(t *testing.T) {
	f := newFixture(t, seed(), nil)
	ctx := context.Background()
	if err := f.orch.SetAvailability(ctx, "t-1", "vacation"); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("unknown availability must be rejected, got %v", err)
	}
	if err := f.orch.SetAvailability(ctx, "t-1", models.AvailabilityOff); err != nil {
		t.Fatalf("set availability: %v", err)
	}
	card := f.toAssigned(t)
	if card.Assignment.TechnicianID != "t-3" || card.Assignment.Match != string(assignment.MatchGeneral) {
		t.Fatalf("off technician must be skipped, got %+v", card.Assignment)
	}
}
