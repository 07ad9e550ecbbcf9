package assignment

import (
	"math"
	"testing"

	"github.com/VishwesGopal13/Automotive-Service/internal/apperr"
	"github.com/VishwesGopal13/Automotive-Service/internal/models"
)

var customer = models.GeoPoint{Lat: 12.9716, Lon: 77.5946}

func tech(id, center string, open int, specs ...string) models.Technician {
	return models.Technician{
		ID:              id,
		ServiceCenterID: center,
		Specializations: specs,
		OpenJobs:        open,
		Availability:    models.AvailabilityAvailable,
	}
}

func TestDistanceKM(t *testing.T) {
	// Bengaluru to Chennai is roughly 290 km in a straight line.
	d := DistanceKM(customer, models.GeoPoint{Lat: 13.0827, Lon: 80.2707})
	if d < 280 || d > 300 {
		t.Fatalf("unexpected distance %.1f", d)
	}
	if DistanceKM(customer, customer) != 0 {
		t.Fatalf("distance to self must be zero")
	}
}

func TestRequiredSpecialization(t *testing.T) {
	cases := map[string]string{
		"brake_service":        "brakes",
		"Brake Pad Replace":    "brakes",
		"oil_change":           "engine",
		"battery_replacement":  "electrical",
		"ac_repair":            "hvac",
		"transmission_flush":   "transmission",
		"steering_alignment":   "suspension",
		"diagnostic_check":     "diagnostics",
		"tire_rotation":        "tires",
		"replace_wiper_blades": "replace wiper blades",
		"general_service":      General,
		"":                     General,
	}
	for in, want := range cases {
		if got := RequiredSpecialization(in).Name; got != want {
			t.Errorf("RequiredSpecialization(%q) = %q, want %q", in, got, want)
		}
	}
	if !RequiredSpecialization("hvac").Accepts("AC") {
		t.Errorf("hvac should accept the AC label")
	}
}

func TestPlanPicksNearestCenterAndSpecialist(t *testing.T) {
	snap := &models.CatalogSnapshot{
		Centers: []models.ServiceCenter{
			{ID: "far", Location: models.GeoPoint{Lat: 13.0827, Lon: 80.2707}, Capacity: 5},
			{ID: "near", Location: models.GeoPoint{Lat: 12.98, Lon: 77.60}, Capacity: 5},
		},
		Technicians: []models.Technician{
			tech("t-far", "far", 0, "Brakes"),
			tech("t-gen", "near", 0, "general"),
			tech("t-brk2", "near", 2, "Brakes"),
			tech("t-brk1", "near", 1, "Brakes", "Suspension"),
		},
	}
	plan, err := NewPlanner().Plan(Request{Location: customer, RepairType: "brake_service"}, snap)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan.Center.ID != "near" || plan.Technician.ID != "t-brk1" || plan.Match != MatchSpecialist {
		t.Fatalf("unexpected plan %s", plan.Describe())
	}
	a := plan.Assignment()
	if a.ServiceCenterID != "near" || a.TechnicianID != "t-brk1" || a.Match != "specialist" {
		t.Fatalf("unexpected assignment %+v", a)
	}
}

func TestPlanFallsBackToGeneralThenAnyone(t *testing.T) {
	center := models.ServiceCenter{ID: "sc", Location: customer, Capacity: 2}
	snap := &models.CatalogSnapshot{
		Centers: []models.ServiceCenter{center},
		Technicians: []models.Technician{
			tech("t-b", "sc", 0, "Tires"),
			tech("t-a", "sc", 3, "General"),
		},
	}
	plan, err := NewPlanner().Plan(Request{Location: customer, RepairType: "brake_service"}, snap)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan.Technician.ID != "t-a" || plan.Match != MatchGeneral {
		t.Fatalf("expected general fallback, got %s", plan.Describe())
	}

	snap.Technicians = []models.Technician{tech("t-z", "sc", 1, "Tires"), tech("t-y", "sc", 1, "Paint")}
	plan, err = NewPlanner().Plan(Request{Location: customer, RepairType: "brake_service"}, snap)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan.Technician.ID != "t-y" || plan.Match != MatchAvailable {
		t.Fatalf("expected lowest id among equally loaded, got %s", plan.Describe())
	}
}

func TestPlanTieBreaks(t *testing.T) {
	loc := models.GeoPoint{Lat: 12.98, Lon: 77.60}
	snap := &models.CatalogSnapshot{
		Centers: []models.ServiceCenter{
			{ID: "sc-c", Location: loc, Capacity: 5},
			{ID: "sc-b", Location: loc, Capacity: 5},
			{ID: "sc-a", Location: loc, Capacity: 5},
		},
		Technicians: []models.Technician{
			tech("t-c", "sc-c", 0, "general"),
			tech("t-b", "sc-b", 0, "general"),
			tech("t-a", "sc-a", 4, "general"),
		},
	}
	plan, err := NewPlanner().Plan(Request{Location: customer, RepairType: "oil_change"}, snap)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	// sc-a is busier; sc-b and sc-c tie on load so the lower id wins.
	if plan.Center.ID != "sc-b" {
		t.Fatalf("expected sc-b, got %s", plan.Describe())
	}

	for i := 0; i < 10; i++ {
		again, _ := NewPlanner().Plan(Request{Location: customer, RepairType: "oil_change"}, snap)
		if again.Center.ID != plan.Center.ID || again.Technician.ID != plan.Technician.ID {
			t.Fatalf("planner is not deterministic")
		}
	}
}

func TestPlanSkipsFullAndUnstaffedCenters(t *testing.T) {
	off := tech("t-off", "near", 0, "brakes")
	off.Availability = models.AvailabilityOff
	snap := &models.CatalogSnapshot{
		Centers: []models.ServiceCenter{
			{ID: "full", Location: customer, Capacity: 1, ActiveJobs: 1},
			{ID: "near", Location: customer, Capacity: 3},
			{ID: "ok", Location: models.GeoPoint{Lat: 13.5, Lon: 78}, Capacity: 3},
		},
		Technicians: []models.Technician{
			tech("t-full", "full", 0, "brakes"),
			off,
			tech("t-ok", "ok", 2, "brakes"),
		},
	}
	plan, err := NewPlanner().Plan(Request{Location: customer, RepairType: "brake_service"}, snap)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan.Center.ID != "ok" || plan.Technician.ID != "t-ok" {
		t.Fatalf("unexpected plan %s", plan.Describe())
	}
	if math.IsNaN(plan.DistanceKM) || plan.DistanceKM <= 0 {
		t.Fatalf("bad distance %f", plan.DistanceKM)
	}

	_, err = NewPlanner().Plan(Request{Location: customer, RepairType: "brake_service", Exclude: []string{"t-ok"}}, snap)
	if !apperr.Is(err, apperr.KindNoCapacity) {
		t.Fatalf("expected no capacity, got %v", err)
	}
	if _, err := NewPlanner().Plan(Request{Location: customer}, nil); !apperr.Is(err, apperr.KindNoCapacity) {
		t.Fatalf("expected no capacity for empty catalog, got %v", err)
	}
}
