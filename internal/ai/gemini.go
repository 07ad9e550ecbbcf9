package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"google.golang.org/genai"

	"github.com/VishwesGopal13/Automotive-Service/internal/models"
)

const classifyInstruction = `You are an automotive service intake advisor.
Decide whether the customer's complaint is about a vehicle. If it is, produce a job card.
Respond with JSON only:
{"vehicle_related": bool, "reason": string, "issue": string,
 "severity": "low|medium|high|critical", "repair_type": string (snake_case, e.g. brake_system),
 "recommended_actions": [string], "required_tools": [string], "labor_hours": number,
 "cost_low": number, "cost_high": number, "confidence": number between 0 and 1}`

const validateInstruction = `You review completed vehicle repairs.
Compare the planned job with the technician's report and list discrepancies.
Respond with JSON only:
{"discrepancies": [{"kind": "missing_procedure|unplanned_work|time_overage|suspicious_underrun|unexplained_part|missing_tool",
  "field": string, "expected": string, "actual": string, "severity": "low|medium|high|critical"}],
 "confidence": number between 0 and 1, "summary": string}`

// GeminiClient implements both capabilities with a Gemini model.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient creates a Gemini API client.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create gemini client")
	}
	return &GeminiClient{client: client, model: model}, nil
}

type geminiJobSpec struct {
	VehicleRelated     bool     `json:"vehicle_related"`
	Reason             string   `json:"reason"`
	Issue              string   `json:"issue"`
	Severity           string   `json:"severity"`
	RepairType         string   `json:"repair_type"`
	RecommendedActions []string `json:"recommended_actions"`
	RequiredTools      []string `json:"required_tools"`
	LaborHours         float64  `json:"labor_hours"`
	CostLow            float64  `json:"cost_low"`
	CostHigh           float64  `json:"cost_high"`
	Confidence         float64  `json:"confidence"`
}

// ClassifyComplaint implements Classifier.
func (g *GeminiClient) ClassifyComplaint(ctx context.Context, complaint models.Complaint) (*models.JobSpec, error) {
	prompt := fmt.Sprintf("Vehicle: %d %s %s\nCustomer complaint: %q",
		complaint.Vehicle.Year, complaint.Vehicle.Make, complaint.Vehicle.Model, complaint.Text)

	var out geminiJobSpec
	if err := g.generate(ctx, classifyInstruction, prompt, &out); err != nil {
		return nil, err
	}
	if !out.VehicleRelated {
		return nil, NotVehicleRelated(out.Reason)
	}

	severity, _ := models.ParseSeverity(out.Severity)
	return &models.JobSpec{
		Issue:               out.Issue,
		Severity:            severity,
		PredictedRepairType: out.RepairType,
		RecommendedActions:  out.RecommendedActions,
		RequiredTools:       out.RequiredTools,
		EstimatedLaborHours: out.LaborHours,
		EstimatedCostRange: models.CostRange{
			Low:  decimal.NewFromFloat(out.CostLow).Round(2),
			High: decimal.NewFromFloat(out.CostHigh).Round(2),
		},
		Confidence: out.Confidence,
	}, nil
}

type geminiAssessment struct {
	Discrepancies []struct {
		Kind     string `json:"kind"`
		Field    string `json:"field"`
		Expected string `json:"expected"`
		Actual   string `json:"actual"`
		Severity string `json:"severity"`
	} `json:"discrepancies"`
	Confidence float64 `json:"confidence"`
	Summary    string  `json:"summary"`
}

// ValidateWork implements WorkAssessor.
func (g *GeminiClient) ValidateWork(ctx context.Context, spec models.JobSpec, report models.TechnicianReport) (*models.ValidationReport, error) {
	payload, err := json.Marshal(map[string]any{"job_spec": spec, "technician_report": report})
	if err != nil {
		return nil, Permanent(err)
	}

	var out geminiAssessment
	if err := g.generate(ctx, validateInstruction, string(payload), &out); err != nil {
		return nil, err
	}
	vr := &models.ValidationReport{Confidence: out.Confidence, Summary: out.Summary}
	for _, d := range out.Discrepancies {
		severity, ok := models.ParseSeverity(d.Severity)
		if !ok {
			continue
		}
		vr.Discrepancies = append(vr.Discrepancies, models.Discrepancy{
			Kind:     models.DiscrepancyKind(strings.ToLower(d.Kind)),
			Field:    d.Field,
			Expected: d.Expected,
			Actual:   d.Actual,
			Severity: severity,
		})
	}
	return vr, nil
}

func (g *GeminiClient) generate(ctx context.Context, instruction, prompt string, out any) error {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(instruction, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr[float32](0.2),
	})
	if err != nil {
		return errors.Wrap(err, "gemini generate")
	}
	text := strings.TrimSpace(resp.Text())
	text = strings.TrimSuffix(strings.TrimPrefix(text, "```json"), "```")
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), out); err != nil {
		return errors.Wrap(err, "decode gemini response")
	}
	return nil
}
