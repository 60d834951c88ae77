package interfaces

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	batch "abstraction-billing/internal/batch/domain"
	invoice "abstraction-billing/internal/invoice/domain"
	transaction "abstraction-billing/internal/transaction/domain"
)

// BuildBatchPDF renders a summary PDF for a billing batch.
func BuildBatchPDF(b *batch.Batch, invoices []invoice.Invoice) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Billing Batch Summary")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Region: %s", b.Region))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Type: %s", b.Type))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Financial years: %s to %s", b.StartYear, b.EndYear))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Status: %s", b.Status))
	pdf.Ln(5)
	if b.ExternalID != "" {
		pdf.Cell(0, 6, fmt.Sprintf("Bill run: %s", b.ExternalID))
		pdf.Ln(5)
	}
	pdf.Ln(4)

	// Invoices table
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(45, 6, "Account", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Year", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Net Amount", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Credit", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Invoice No", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, inv := range invoices {
		credit := ""
		if inv.IsCredit {
			credit = "yes"
		}
		pdf.CellFormat(45, 6, inv.InvoiceAccountNumber, "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, fmt.Sprintf("%d", inv.FinancialYearEnding), "1", 0, "C", false, 0, "")
		pdf.CellFormat(35, 6, inv.NetAmount.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 6, credit, "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 6, inv.InvoiceNumber, "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildBatchXLSX renders an XLSX workbook with the batch's invoices and
// transactions.
func BuildBatchXLSX(b *batch.Batch, invoices []invoice.Invoice, transactions []transaction.Transaction) ([]byte, error) {
	f := excelize.NewFile()
	invoiceSheet := "invoices"
	transactionSheet := "transactions"
	f.SetSheetName("Sheet1", invoiceSheet)
	f.NewSheet(transactionSheet)

	_ = f.SetCellValue(invoiceSheet, "A1", "Billing Batch")
	_ = f.SetCellValue(invoiceSheet, "B1", b.ID)
	_ = f.SetCellValue(invoiceSheet, "A2", "Region")
	_ = f.SetCellValue(invoiceSheet, "B2", b.Region)
	_ = f.SetCellValue(invoiceSheet, "A3", "Type")
	_ = f.SetCellValue(invoiceSheet, "B3", string(b.Type))
	_ = f.SetCellValue(invoiceSheet, "A4", "Status")
	_ = f.SetCellValue(invoiceSheet, "B4", string(b.Status))

	_ = f.SetCellValue(invoiceSheet, "A6", "Account")
	_ = f.SetCellValue(invoiceSheet, "B6", "Year")
	_ = f.SetCellValue(invoiceSheet, "C6", "Net Amount")
	_ = f.SetCellValue(invoiceSheet, "D6", "Credit")
	_ = f.SetCellValue(invoiceSheet, "E6", "De Minimis")
	_ = f.SetCellValue(invoiceSheet, "F6", "Invoice No")
	for i, inv := range invoices {
		row := i + 7
		_ = f.SetCellValue(invoiceSheet, fmt.Sprintf("A%d", row), inv.InvoiceAccountNumber)
		_ = f.SetCellValue(invoiceSheet, fmt.Sprintf("B%d", row), inv.FinancialYearEnding)
		_ = f.SetCellValue(invoiceSheet, fmt.Sprintf("C%d", row), inv.NetAmount.StringFixed(2))
		_ = f.SetCellValue(invoiceSheet, fmt.Sprintf("D%d", row), inv.IsCredit)
		_ = f.SetCellValue(invoiceSheet, fmt.Sprintf("E%d", row), inv.IsDeMinimis)
		_ = f.SetCellValue(invoiceSheet, fmt.Sprintf("F%d", row), inv.InvoiceNumber)
	}

	_ = f.SetCellValue(transactionSheet, "A1", "Charge Element")
	_ = f.SetCellValue(transactionSheet, "B1", "Period")
	_ = f.SetCellValue(transactionSheet, "C1", "Billable Days")
	_ = f.SetCellValue(transactionSheet, "D1", "Volume")
	_ = f.SetCellValue(transactionSheet, "E1", "Credit")
	_ = f.SetCellValue(transactionSheet, "F1", "Description")
	for i, t := range transactions {
		row := i + 2
		_ = f.SetCellValue(transactionSheet, fmt.Sprintf("A%d", row), t.ChargeElementID)
		_ = f.SetCellValue(transactionSheet, fmt.Sprintf("B%d", row), t.ChargePeriod.String())
		_ = f.SetCellValue(transactionSheet, fmt.Sprintf("C%d", row), t.BillableDays)
		_ = f.SetCellValue(transactionSheet, fmt.Sprintf("D%d", row), t.Volume.String())
		_ = f.SetCellValue(transactionSheet, fmt.Sprintf("E%d", row), t.IsCredit)
		_ = f.SetCellValue(transactionSheet, fmt.Sprintf("F%d", row), t.Description)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
