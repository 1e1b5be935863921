package render

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/johnmatter/timewarrior-invoice/pkg/invoice"
)

// FormatXLSX is the spreadsheet format.
const FormatXLSX = "xlsx"

const xlsxSheet = "Invoice"

// XLSX renders the invoice header and line items as a workbook.
type XLSX struct{}

// Format returns the file extension this renderer produces.
func (XLSX) Format() string { return FormatXLSX }

// Render writes the workbook for inv to path.
func (XLSX) Render(_ context.Context, inv *invoice.Invoice, path string) error {
	f, err := Workbook(inv)
	if err != nil {
		return err
	}
	defer f.Close()

	buf, err := f.WriteToBuffer()
	if err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Workbook builds the workbook for inv.
func Workbook(inv *invoice.Invoice) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
		f.Close()
		return nil, err
	}

	row := 1
	write := func(col int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(xlsxSheet, cell, v)
	}

	header := [][2]any{
		{"Invoice", inv.Number},
		{"Client", inv.Client.Name},
		{"Period", inv.Period.Start.Format(time.DateOnly) + " to " + inv.Period.End.Format(time.DateOnly)},
		{"Issue date", inv.IssueDate.Format(time.DateOnly)},
		{"Due date", inv.DueDate.Format(time.DateOnly)},
		{"Payment terms", inv.PaymentTerms},
	}
	for _, h := range header {
		write(1, h[0])
		write(2, h[1])
		row++
	}
	row++

	columns := []string{"Item", "Description", "Hours", "Rate", "Amount"}
	for i, c := range columns {
		write(i+1, c)
	}
	itemsHeader := row
	row++

	for _, item := range inv.Items {
		write(1, item.Key)
		write(2, item.Description)
		write(3, item.Hours.InexactFloat64())
		write(4, item.Rate.InexactFloat64())
		write(5, item.Amount.InexactFloat64())
		row++
	}
	lastItem := row - 1

	totals := []struct {
		label string
		value any
	}{
		{"Total hours", inv.TotalHours.InexactFloat64()},
		{"Subtotal", inv.Subtotal.InexactFloat64()},
		{"Tax rate", inv.TaxRate.InexactFloat64()},
		{"Tax", inv.TaxAmount.InexactFloat64()},
		{"Total", inv.Total.InexactFloat64()},
	}
	firstTotal := row
	for _, t := range totals {
		write(4, t.label)
		write(5, t.value)
		row++
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, err
	}
	money, err := f.NewStyle(&excelize.Style{CustomNumFmt: strPtr("#,##0.00")})
	if err != nil {
		f.Close()
		return nil, err
	}
	_ = f.SetCellStyle(xlsxSheet, "A1", fmt.Sprintf("A%d", len(header)), bold)
	_ = f.SetCellStyle(xlsxSheet, fmt.Sprintf("A%d", itemsHeader), fmt.Sprintf("E%d", itemsHeader), bold)
	if lastItem > itemsHeader {
		_ = f.SetCellStyle(xlsxSheet, fmt.Sprintf("C%d", itemsHeader+1), fmt.Sprintf("E%d", lastItem), money)
	}
	_ = f.SetCellStyle(xlsxSheet, fmt.Sprintf("E%d", firstTotal), fmt.Sprintf("E%d", row-1), money)
	_ = f.SetCellStyle(xlsxSheet, fmt.Sprintf("D%d", firstTotal), fmt.Sprintf("D%d", row-1), bold)

	_ = f.SetColWidth(xlsxSheet, "A", "A", 16)
	_ = f.SetColWidth(xlsxSheet, "B", "B", 48)
	_ = f.SetColWidth(xlsxSheet, "C", "E", 14)

	return f, nil
}

func strPtr(s string) *string { return &s }
