package invoice

import "github.com/shopspring/decimal"

// Invoice groups a batch's transactions for one invoice account and
// financial year. Net amount and de-minimis flags arrive from the charging
// authority once the bill run has been generated there.
type Invoice struct {
	ID                   string
	BatchID              string
	InvoiceAccountID     string
	InvoiceAccountNumber string
	FinancialYearEnding  int
	NetAmount            decimal.Decimal
	IsCredit             bool
	IsDeMinimis          bool
	InvoiceNumber        string
}

// InvoiceLicence ties a licence to an invoice; transactions reference it.
type InvoiceLicence struct {
	ID            string
	InvoiceID     string
	LicenceID     string
	LicenceNumber string
}
