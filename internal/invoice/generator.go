// Package invoice prices validated jobs.
package invoice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/VishwesGopal13/Automotive-Service/internal/apperr"
	"github.com/VishwesGopal13/Automotive-Service/internal/models"
)

// Options tweaks a single invoice.
type Options struct {
	// WaiveOverageCapBy names the person who approved billing the full overage. Empty keeps the cap.
	WaiveOverageCapBy string
}

// Input is everything needed to price a job.
type Input struct {
	Spec       models.JobSpec
	Report     models.TechnicianReport
	Validation models.ValidationReport
	Rates      models.RateCard
}

// Generator builds invoices.
type Generator struct {
	numbers   NumberSource
	tolerance float64
	now       func() time.Time
}

// NewGenerator returns a Generator. tolerance must match the validator's labor tolerance.
func NewGenerator(numbers NumberSource, tolerance float64) *Generator {
	return &Generator{
		numbers:   numbers,
		tolerance: tolerance,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Generate prices the job and assigns a fresh invoice number. The number is drawn last so a
// pricing failure does not consume one.
func (g *Generator) Generate(ctx context.Context, in Input, opts Options) (*models.Invoice, error) {
	inv, err := Price(in, g.tolerance, opts)
	if err != nil {
		return nil, err
	}
	number, err := g.numbers.Next(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "allocate invoice number")
	}
	inv.InvoiceNumber = number
	inv.IssuedAt = g.now()
	return inv, nil
}

// Price computes line items, adjustments and totals without a number.
func Price(in Input, tolerance float64, opts Options) (*models.Invoice, error) {
	if in.Report.LaborTimeHours <= 0 {
		return nil, apperr.Validation("labor time must be positive")
	}
	rate := in.Rates.LaborRateFor(in.Spec.PredictedRepairType)
	inv := &models.Invoice{
		Currency:      in.Rates.Currency,
		Adjustments:   []models.Adjustment{},
		HoldForReview: in.Validation.OverallStatus != models.VerdictApproved,
	}

	hours := decimal.NewFromFloat(in.Report.LaborTimeHours).Round(2)
	inv.LineItems = append(inv.LineItems, models.LineItem{
		Kind:        models.LineItemLabor,
		Description: "Labor: " + humanize(in.Spec.PredictedRepairType),
		Quantity:    hours,
		UnitPrice:   rate,
		Amount:      hours.Mul(rate).Round(2),
	})

	for _, part := range models.NormalizeSet(in.Report.PartsReplaced) {
		item := models.LineItem{
			Kind:        models.LineItemPart,
			Description: part,
			Quantity:    decimal.NewFromInt(1),
		}
		if price, ok := in.Rates.PartPrice(part); ok {
			item.UnitPrice = price
		} else {
			item.UnitPrice = in.Rates.DefaultPartPrice
			item.Note = "not in price list, default part price applied"
			inv.Notes = append(inv.Notes, fmt.Sprintf("part %q priced at default %s", part, in.Rates.DefaultPartPrice.StringFixed(2)))
		}
		item.Amount = item.Quantity.Mul(item.UnitPrice).Round(2)
		inv.LineItems = append(inv.LineItems, item)
	}

	inv.Subtotal = decimal.Zero
	for _, item := range inv.LineItems {
		inv.Subtotal = inv.Subtotal.Add(item.Amount)
	}

	if in.Validation.Has(models.DiscrepancyTimeOverage) {
		capHours := decimal.NewFromFloat(in.Spec.EstimatedLaborHours * (1 + tolerance)).Round(2)
		excess := hours.Sub(capHours)
		switch {
		case !excess.IsPositive():
		case opts.WaiveOverageCapBy != "":
			inv.OverageCapWaivedBy = opts.WaiveOverageCapBy
			inv.Notes = append(inv.Notes, fmt.Sprintf("overage cap waived by %s", opts.WaiveOverageCapBy))
		default:
			inv.Adjustments = append(inv.Adjustments, models.Adjustment{
				Amount: excess.Mul(rate).Round(2).Neg(),
				Reason: fmt.Sprintf("labor capped at %sh (estimate %.2fh + %.0f%%)", capHours.StringFixed(2), in.Spec.EstimatedLaborHours, tolerance*100),
			})
		}
	}

	for _, d := range in.Validation.Discrepancies {
		if d.Kind == models.DiscrepancyUnplannedWork {
			inv.Notes = append(inv.Notes, fmt.Sprintf("unplanned work performed: %s", d.Actual))
		}
	}

	taxable := inv.Subtotal
	for _, adj := range inv.Adjustments {
		taxable = taxable.Add(adj.Amount)
	}
	inv.Tax = taxable.Mul(in.Rates.TaxRate).Round(2)
	inv.TotalAmount = taxable.Add(inv.Tax).Round(2)
	return inv, nil
}

func humanize(repairType string) string {
	s := strings.TrimSpace(strings.ReplaceAll(repairType, "_", " "))
	if s == "" {
		return "service"
	}
	return s
}
