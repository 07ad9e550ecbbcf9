package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/VishwesGopal13/Automotive-Service/internal/models"
)

var offTopicKeywords = []string{
	"weather", "forecast", "rain", "sunny",
	"recipe", "cook", "food", "restaurant",
	"movie", "music", "song", "game",
	"stock", "crypto", "bitcoin",
	"hello", "hi there", "how are you",
	"joke", "funny", "poem",
}

var vehicleKeywords = []string{
	"car", "vehicle", "engine", "brake", "tire", "tyre", "wheel",
	"oil", "transmission", "battery", "alternator", "starter",
	"noise", "sound", "vibration", "shake", "smell",
	"light", "headlight", "taillight", "signal",
	"ac", "air conditioning", "heat", "heater",
	"window", "windshield", "mirror", "door",
	"steering", "suspension", "shock", "strut",
	"exhaust", "muffler", "catalytic",
	"coolant", "radiator", "overheat",
	"fuel", "gas", "diesel", "mpg",
	"start", "stall", "idle", "acceleration",
	"clutch", "gear", "shift", "drive",
}

type heuristicRule struct {
	keywords []string
	spec     models.JobSpec
}

func money(low, high int64) models.CostRange {
	return models.CostRange{Low: decimal.NewFromInt(low), High: decimal.NewFromInt(high)}
}

// Checked in order, first match wins. The last rule has no keywords and always matches.
var heuristicRules = []heuristicRule{
	{
		keywords: []string{"brake", "grinding", "squeak", "squeal"},
		spec: models.JobSpec{
			Issue:               "Brake system inspection and potential pad/rotor replacement required",
			Severity:            models.SeverityHigh,
			PredictedRepairType: "brake_system",
			RecommendedActions: []string{
				"Inspect brake pads and rotors",
				"Replace worn brake pads",
				"Resurface or replace rotors if needed",
				"Bleed brake system",
				"Test drive to verify braking",
			},
			RequiredTools:       []string{"Jack and jack stands", "Lug wrench", "Brake caliper tool", "Brake bleeder kit", "Torque wrench"},
			EstimatedLaborHours: 2.0,
			EstimatedCostRange:  money(150, 400),
			Notes:               "Brake issues should be addressed immediately for safety.",
		},
	},
	{
		keywords: []string{"oil", "leak"},
		spec: models.JobSpec{
			Issue:               "Oil system inspection, potential leak or maintenance required",
			Severity:            models.SeverityMedium,
			PredictedRepairType: "engine_lubrication",
			RecommendedActions: []string{
				"Inspect engine for oil leaks",
				"Drain engine oil",
				"Replace oil filter",
				"Refill engine oil to specification",
			},
			RequiredTools:       []string{"Oil drain pan", "Oil filter wrench", "Socket set", "Funnel"},
			EstimatedLaborHours: 1.0,
			EstimatedCostRange:  money(50, 150),
			Notes:               "Regular oil changes are essential for engine longevity.",
		},
	},
	{
		keywords: []string{"noise", "sound", "rattle"},
		spec: models.JobSpec{
			Issue:               "Diagnostic inspection for abnormal noise",
			Severity:            models.SeverityMedium,
			PredictedRepairType: "diagnostic",
			RecommendedActions: []string{
				"Road test to reproduce the noise",
				"Inspect suspension components",
				"Inspect exhaust mounting",
				"Inspect engine mounts",
				"Scan for diagnostic trouble codes",
			},
			RequiredTools:       []string{"Automotive stethoscope", "OBD-II scanner", "Inspection light"},
			EstimatedLaborHours: 1.5,
			EstimatedCostRange:  money(100, 200),
			Notes:               "Additional repairs may be needed after diagnosis.",
		},
	},
	{
		keywords: []string{"start", "battery", "dead"},
		spec: models.JobSpec{
			Issue:               "Starting and charging system diagnosis",
			Severity:            models.SeverityHigh,
			PredictedRepairType: "electrical_system",
			RecommendedActions: []string{
				"Load test the battery",
				"Check alternator output",
				"Inspect starter motor",
				"Clean battery terminals",
			},
			RequiredTools:       []string{"Multimeter", "Battery tester", "Alternator tester", "Socket set"},
			EstimatedLaborHours: 1.5,
			EstimatedCostRange:  money(75, 300),
			Notes:               "Battery replacement may be required if over 3-5 years old.",
		},
	},
	{
		keywords: []string{"ac", "air condition", "cold", "heat"},
		spec: models.JobSpec{
			Issue:               "HVAC system inspection and service",
			Severity:            models.SeverityLow,
			PredictedRepairType: "hvac_system",
			RecommendedActions: []string{
				"Replace cabin air filter",
				"Test AC system pressures",
				"Check for refrigerant leaks",
				"Recharge AC system",
			},
			RequiredTools:       []string{"AC manifold gauges", "Refrigerant leak detector", "Vacuum pump"},
			EstimatedLaborHours: 1.5,
			EstimatedCostRange:  money(100, 400),
			Notes:               "Refrigerant type varies by vehicle year.",
		},
	},
	{
		spec: models.JobSpec{
			Issue:               "Comprehensive vehicle inspection and diagnosis",
			Severity:            models.SeverityMedium,
			PredictedRepairType: "general_service",
			RecommendedActions: []string{
				"Perform multi-point vehicle inspection",
				"Check fluid levels",
				"Inspect belts and hoses",
				"Scan for diagnostic trouble codes",
			},
			RequiredTools:       []string{"OBD-II scanner", "Multimeter", "Inspection light", "Tire gauge"},
			EstimatedLaborHours: 1.0,
			EstimatedCostRange:  money(75, 150),
			Notes:               "Full inspection recommended to identify any underlying issues.",
		},
	},
}

// HeuristicClassifier is the offline classifier: keyword checks for relevance and a fixed rule
// table for the job spec. It is deterministic, which makes it the default for local runs.
type HeuristicClassifier struct{}

// NewHeuristicClassifier returns a HeuristicClassifier.
func NewHeuristicClassifier() *HeuristicClassifier {
	return &HeuristicClassifier{}
}

// ClassifyComplaint implements Classifier.
func (h *HeuristicClassifier) ClassifyComplaint(_ context.Context, complaint models.Complaint) (*models.JobSpec, error) {
	text := strings.ToLower(complaint.Text)
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})

	if ok, reason := vehicleRelated(text, words); !ok {
		return nil, NotVehicleRelated(reason)
	}

	for _, rule := range heuristicRules {
		if len(rule.keywords) > 0 && !containsAny(text, words, rule.keywords) {
			continue
		}
		spec := rule.spec
		spec.RecommendedActions = append([]string(nil), spec.RecommendedActions...)
		spec.RequiredTools = append([]string(nil), spec.RequiredTools...)
		spec.Confidence = 0.6
		if len(rule.keywords) == 0 {
			spec.Confidence = 0.4
		}
		return &spec, nil
	}
	return nil, fmt.Errorf("no heuristic rule matched")
}

func vehicleRelated(text string, words []string) (bool, string) {
	for _, kw := range offTopicKeywords {
		if containsWord(text, words, kw) {
			return false, fmt.Sprintf("your message appears to be about %q, which is not related to vehicle service; please describe a vehicle issue", kw)
		}
	}
	if containsAny(text, words, vehicleKeywords) {
		return true, ""
	}
	// no signal either way: accept descriptive text
	if len(words) >= 5 {
		return true, ""
	}
	return false, "please provide more details about your vehicle issue"
}

func containsAny(text string, words []string, keywords []string) bool {
	for _, kw := range keywords {
		if containsKeyword(text, words, kw) {
			return true
		}
	}
	return false
}

// Keywords of three letters or fewer must match a whole word ("ac" is not "react").
func containsKeyword(text string, words []string, kw string) bool {
	if len(kw) > 3 {
		return strings.Contains(text, kw)
	}
	return containsWord(text, words, kw)
}

// containsWord matches whole words; phrases fall back to a substring match.
func containsWord(text string, words []string, kw string) bool {
	if strings.Contains(kw, " ") {
		return strings.Contains(text, kw)
	}
	for _, w := range words {
		if w == kw {
			return true
		}
	}
	return false
}
