package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Vehicle is the snapshot of the customer's vehicle taken at intake.
type Vehicle struct {
	Make  string `json:"make" validate:"required"`
	Model string `json:"model" validate:"required"`
	Year  int    `json:"year" validate:"omitempty,gte=1886,lte=2100"`
}

// GeoPoint is a WGS84 coordinate in decimal degrees.
type GeoPoint struct {
	Lat float64 `json:"lat" yaml:"lat" validate:"gte=-90,lte=90"`
	Lon float64 `json:"lon" yaml:"lon" validate:"gte=-180,lte=180"`
}

// Complaint is a customer's intake submission.
type Complaint struct {
	CustomerID string   `json:"customer_id" validate:"required"`
	Vehicle    Vehicle  `json:"vehicle"`
	Location   GeoPoint `json:"location"`
	Text       string   `json:"text" validate:"required"`
}

// CostRange is the estimated price band for the repair.
type CostRange struct {
	Low  decimal.Decimal `json:"low"`
	High decimal.Decimal `json:"high"`
}

// JobSpec is the structured, AI-derived specification of the expected repair.
type JobSpec struct {
	Issue               string    `json:"issue,omitempty"`
	Severity            Severity  `json:"severity"`
	PredictedRepairType string    `json:"predicted_repair_type"`
	RecommendedActions  []string  `json:"recommended_actions"`
	RequiredTools       []string  `json:"required_tools"`
	EstimatedLaborHours float64   `json:"estimated_labor_hours"`
	EstimatedCostRange  CostRange `json:"estimated_cost_range"`
	Confidence          float64   `json:"confidence"`
	Notes               string    `json:"notes,omitempty"`
}

// Assignment binds the job to a service center and a technician.
type Assignment struct {
	ServiceCenterID string    `json:"service_center_id"`
	TechnicianID    string    `json:"technician_id"`
	DistanceKM      float64   `json:"distance_km"`
	Match           string    `json:"match"`
	AssignedAt      time.Time `json:"assigned_at"`
}

// AssignmentChange records an explicit reassignment before work started.
type AssignmentChange struct {
	From   Assignment `json:"from"`
	To     Assignment `json:"to"`
	By     string     `json:"by"`
	Reason string     `json:"reason"`
	At     time.Time  `json:"at"`
}

// TechnicianReport is the human-submitted record of work actually performed.
type TechnicianReport struct {
	TechnicianID        string    `json:"technician_id,omitempty"`
	ProceduresPerformed []string  `json:"procedures_performed" validate:"required,min=1,dive,required"`
	PartsReplaced       []string  `json:"parts_replaced" validate:"dive,required"`
	ToolsUsed           []string  `json:"tools_used" validate:"dive,required"`
	LaborTimeHours      float64   `json:"labor_time_hours" validate:"gt=0"`
	Notes               string    `json:"notes,omitempty"`
	SubmittedAt         time.Time `json:"submitted_at"`
}

// DiscrepancyKind names the rule that produced a discrepancy.
type DiscrepancyKind string

const (
	DiscrepancyMissingProcedure   DiscrepancyKind = "missing_procedure"
	DiscrepancyUnplannedWork      DiscrepancyKind = "unplanned_work"
	DiscrepancyTimeOverage        DiscrepancyKind = "time_overage"
	DiscrepancySuspiciousUnderrun DiscrepancyKind = "suspicious_underrun"
	DiscrepancyUnexplainedPart    DiscrepancyKind = "unexplained_part"
	DiscrepancyMissingTool        DiscrepancyKind = "missing_tool"
)

// Discrepancy is a single detected mismatch between expected and actual work.
type Discrepancy struct {
	Kind      DiscrepancyKind `json:"kind"`
	Field     string          `json:"field"`
	Expected  string          `json:"expected"`
	Actual    string          `json:"actual"`
	Severity  Severity        `json:"severity"`
	Magnitude float64         `json:"magnitude,omitempty"`
}

// ValidationReport is the automated comparison of JobSpec against TechnicianReport.
type ValidationReport struct {
	OverallStatus   Verdict       `json:"overall_status"`
	Discrepancies   []Discrepancy `json:"discrepancies"`
	Confidence      float64       `json:"confidence"`
	ModelConfidence *float64      `json:"model_confidence,omitempty"`
	Summary         string        `json:"summary,omitempty"`
	GeneratedAt     time.Time     `json:"generated_at"`
}

// Has reports whether at least one discrepancy of the given kind was found.
func (r *ValidationReport) Has(kind DiscrepancyKind) bool {
	if r == nil {
		return false
	}
	for _, d := range r.Discrepancies {
		if d.Kind == kind {
			return true
		}
	}
	return false
}

// LineItemKind distinguishes invoice lines.
type LineItemKind string

const (
	LineItemLabor LineItemKind = "labor"
	LineItemPart  LineItemKind = "part"
)

// LineItem is one priced invoice line.
type LineItem struct {
	Kind        LineItemKind    `json:"kind"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Amount      decimal.Decimal `json:"amount"`
	Note        string          `json:"note,omitempty"`
}

// Adjustment is a signed correction applied after the subtotal.
type Adjustment struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

// Invoice is the priced output of a validated job.
type Invoice struct {
	InvoiceNumber      string          `json:"invoice_number"`
	Currency           string          `json:"currency"`
	LineItems          []LineItem      `json:"line_items"`
	Subtotal           decimal.Decimal `json:"subtotal"`
	Adjustments        []Adjustment    `json:"adjustments"`
	Tax                decimal.Decimal `json:"tax"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	HoldForReview      bool            `json:"hold_for_review"`
	OverageCapWaivedBy string          `json:"overage_cap_waived_by,omitempty"`
	Notes              []string        `json:"notes,omitempty"`
	IssuedAt           time.Time       `json:"issued_at"`
}

// Override is a human sign-off releasing a held invoice.
type Override struct {
	AuthorizedBy string    `json:"authorized_by"`
	Reason       string    `json:"reason"`
	At           time.Time `json:"at"`
}

// Cancellation records a customer withdrawal.
type Cancellation struct {
	By                string    `json:"by"`
	Reason            string    `json:"reason"`
	FromStatus        JobStatus `json:"from_status"`
	PartialLaborHours float64   `json:"partial_labor_hours,omitempty"`
	At                time.Time `json:"at"`
}

// JobCard is the aggregate representing one customer complaint through to invoice.
type JobCard struct {
	ID               uuid.UUID `json:"id"`
	CustomerID       string    `json:"customer_id"`
	Vehicle          Vehicle   `json:"vehicle"`
	CustomerLocation GeoPoint  `json:"customer_location"`
	ComplaintText    string    `json:"complaint_text"`
	Status           JobStatus `json:"status"`
	Version          int64     `json:"version"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	JobSpec           *JobSpec           `json:"job_spec,omitempty"`
	Assignment        *Assignment        `json:"assignment,omitempty"`
	AssignmentHistory []AssignmentChange `json:"assignment_history,omitempty"`
	TechnicianReport  *TechnicianReport  `json:"technician_report,omitempty"`
	ValidationReport  *ValidationReport  `json:"validation_report,omitempty"`
	Invoice           *Invoice           `json:"invoice,omitempty"`
	Override          *Override          `json:"override,omitempty"`
	Cancellation      *Cancellation      `json:"cancellation,omitempty"`
}

// Clone returns a deep copy so that transitions can be computed without touching the
// instance a concurrent reader may hold.
func (c *JobCard) Clone() *JobCard {
	if c == nil {
		return nil
	}
	out := *c
	if c.JobSpec != nil {
		spec := *c.JobSpec
		spec.RecommendedActions = cloneStrings(spec.RecommendedActions)
		spec.RequiredTools = cloneStrings(spec.RequiredTools)
		out.JobSpec = &spec
	}
	if c.Assignment != nil {
		a := *c.Assignment
		out.Assignment = &a
	}
	if c.AssignmentHistory != nil {
		out.AssignmentHistory = append([]AssignmentChange(nil), c.AssignmentHistory...)
	}
	if c.TechnicianReport != nil {
		r := *c.TechnicianReport
		r.ProceduresPerformed = cloneStrings(r.ProceduresPerformed)
		r.PartsReplaced = cloneStrings(r.PartsReplaced)
		r.ToolsUsed = cloneStrings(r.ToolsUsed)
		out.TechnicianReport = &r
	}
	if c.ValidationReport != nil {
		v := *c.ValidationReport
		if v.Discrepancies != nil {
			v.Discrepancies = append([]Discrepancy(nil), v.Discrepancies...)
		}
		if v.ModelConfidence != nil {
			mc := *v.ModelConfidence
			v.ModelConfidence = &mc
		}
		out.ValidationReport = &v
	}
	if c.Invoice != nil {
		inv := *c.Invoice
		if inv.LineItems != nil {
			inv.LineItems = append([]LineItem(nil), inv.LineItems...)
		}
		if inv.Adjustments != nil {
			inv.Adjustments = append([]Adjustment(nil), inv.Adjustments...)
		}
		inv.Notes = cloneStrings(inv.Notes)
		out.Invoice = &inv
	}
	if c.Override != nil {
		o := *c.Override
		out.Override = &o
	}
	if c.Cancellation != nil {
		cc := *c.Cancellation
		out.Cancellation = &cc
	}
	return &out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

// NormalizeSet trims entries, drops blanks and removes case-insensitive duplicates while
// keeping the first spelling and the original order.
func NormalizeSet(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}
