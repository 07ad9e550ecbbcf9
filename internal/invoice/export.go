package invoice

import (
	"bytes"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/VishwesGopal13/Automotive-Service/internal/models"
)

const sheetName = "Invoice"

// ExportXLSX renders the invoice as a single-sheet workbook.
func ExportXLSX(inv *models.Invoice) (*bytes.Buffer, error) {
	if inv == nil {
		return nil, errors.New("nil invoice")
	}
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, errors.Wrap(err, "create sheet")
	}
	f.SetActiveSheet(index)

	set := func(col, row int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		f.SetCellValue(sheetName, cell, v)
	}

	set(1, 1, "Invoice")
	set(2, 1, inv.InvoiceNumber)
	set(1, 2, "Issued")
	set(2, 2, inv.IssuedAt.Format("2006-01-02 15:04"))
	set(1, 3, "Currency")
	set(2, 3, inv.Currency)
	if inv.HoldForReview {
		set(3, 1, "HOLD FOR REVIEW")
	}

	headerRow := 5
	for i, h := range []string{"Kind", "Description", "Quantity", "Unit price", "Amount", "Note"} {
		set(i+1, headerRow, h)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6E6FA"}, Pattern: 1},
	})
	if err == nil {
		f.SetRowStyle(sheetName, headerRow, headerRow, headerStyle)
	}

	row := headerRow + 1
	for _, item := range inv.LineItems {
		set(1, row, string(item.Kind))
		set(2, row, item.Description)
		set(3, row, item.Quantity.InexactFloat64())
		set(4, row, item.UnitPrice.StringFixed(2))
		set(5, row, item.Amount.StringFixed(2))
		set(6, row, item.Note)
		row++
	}

	row++
	set(4, row, "Subtotal")
	set(5, row, inv.Subtotal.StringFixed(2))
	for _, adj := range inv.Adjustments {
		row++
		set(2, row, adj.Reason)
		set(4, row, "Adjustment")
		set(5, row, adj.Amount.StringFixed(2))
	}
	row++
	set(4, row, "Tax")
	set(5, row, inv.Tax.StringFixed(2))
	row++
	set(4, row, "Total")
	set(5, row, inv.TotalAmount.StringFixed(2))

	for _, note := range inv.Notes {
		row += 2
		set(1, row, "Note")
		set(2, row, note)
	}

	f.SetColWidth(sheetName, "A", "A", 12)
	f.SetColWidth(sheetName, "B", "B", 40)
	f.SetColWidth(sheetName, "C", "E", 15)
	f.SetColWidth(sheetName, "F", "F", 40)
	f.DeleteSheet("Sheet1")

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, errors.Wrap(err, "write workbook")
	}
	return &buf, nil
}
