package api

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"

	"github.com/fieldcrew/p4p-engine/p4p"
)

var payrollColumns = []struct {
	title string
	width float64
}{
	{"Employee", 62},
	{"Jobs", 14},
	{"P4P", 30},
	{"Floor", 26},
	{"Interim", 26},
	{"Adjust.", 26},
	{"Total", 30},
}

// RenderPayrollPDF lays the report out as a single landscape A4 table.
// Amounts are printed from their decimal strings.
func RenderPayrollPDF(report p4p.PayrollReport) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetTitle("Payroll "+report.Period.Label, false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, "Payroll report")
	pdf.Ln(12)
	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 7, fmt.Sprintf("Period: %s (%s to %s)",
		report.Period.Label, report.Period.Start.String(), report.Period.End.String()))
	pdf.Ln(6)
	pdf.Cell(0, 7, "Generated: "+report.GeneratedAt.UTC().Format("2006-01-02 15:04 MST"))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(230, 230, 230)
	for i, c := range payrollColumns {
		align := "R"
		if i == 0 {
			align = "L"
		}
		pdf.CellFormat(c.width, 8, c.title, "1", 0, align, true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 10)
	for _, l := range report.Lines {
		payrollRow(pdf, l, false)
	}
	pdf.SetFont("Helvetica", "B", 10)
	payrollRow(pdf, report.Totals, true)

	if len(report.Warnings) > 0 {
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "B", 10)
		pdf.Cell(0, 6, "Warnings")
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "", 9)
		for _, w := range report.Warnings {
			pdf.MultiCell(0, 5, "- "+w, "", "L", false)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render payroll pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func payrollRow(pdf *gofpdf.Fpdf, l p4p.PayrollLine, fill bool) {
	values := []string{
		l.EmployeeName,
		fmt.Sprintf("%d", l.Assignments),
		l.PerformancePay.String(),
		l.FloorSupplement.String(),
		l.InterimHourly.String(),
		l.Adjustment.String(),
		l.Total.String(),
	}
	for i, v := range values {
		align := "R"
		if i == 0 {
			align = "L"
		}
		pdf.CellFormat(payrollColumns[i].width, 7, v, "1", 0, align, fill, 0, "")
	}
	pdf.Ln(-1)
}
