package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// ReceiptData carries the fields rendered on an admission receipt. The
// renderer consumes final records only; it performs no business logic.
type ReceiptData struct {
	TokenNumber     string
	StudentName     string
	Course          string
	AgentName       string
	ApprovedAt      string
	IncentiveAmount string
	Rows            []ReceiptRow
}

// ReceiptRow is a single label/value line on the receipt body.
type ReceiptRow struct {
	Label string
	Value string
}

// PDFExporter renders admission receipts and tabular datasets into PDF bytes.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// RenderReceipt creates a single-page admission receipt.
func (e *PDFExporter) RenderReceipt(data ReceiptData) ([]byte, error) {
	if data.TokenNumber == "" {
		return nil, fmt.Errorf("receipt requires a token number")
	}
	pdf := gofpdf.New("P", "mm", "A5", "")
	pdf.SetMargins(12, 14, 12)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 10, "ADMISSION RECEIPT", "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Token: %s", data.TokenNumber), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	rows := []ReceiptRow{
		{Label: "Student", Value: data.StudentName},
		{Label: "Course", Value: data.Course},
		{Label: "Agent", Value: data.AgentName},
		{Label: "Approved", Value: data.ApprovedAt},
	}
	if data.IncentiveAmount != "" {
		rows = append(rows, ReceiptRow{Label: "Incentive", Value: data.IncentiveAmount})
	}
	rows = append(rows, data.Rows...)

	pdf.SetFont("Arial", "", 10)
	for _, row := range rows {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(40, 8, row.Label, "1", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 8, row.Value, "1", 1, "", false, 0, "")
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render receipt pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderTable creates a PDF document with an optional title and table body.
func (e *PDFExporter) RenderTable(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	if title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, strings.ToUpper(title), "", 1, "C", false, 0, "")
		pdf.Ln(5)
	}

	pdf.SetFont("Arial", "B", 10)
	colWidth := 190.0 / float64(len(data.Headers))
	for _, header := range data.Headers {
		pdf.CellFormat(colWidth, 8, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, row := range data.Rows {
		for i := range data.Headers {
			var value string
			if i < len(row) {
				value = row[i]
			}
			pdf.CellFormat(colWidth, 7, value, "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
