package internal

import "github.com/shopspring/decimal"

type DocumentStatus string

const (
	StatusFetched         DocumentStatus = "fetched"
	StatusSkipped         DocumentStatus = "skipped"
	StatusExtracted       DocumentStatus = "extracted"
	StatusExtractFailed   DocumentStatus = "extract_failed"
	StatusAggregated      DocumentStatus = "aggregated"
	StatusNormalizeFailed DocumentStatus = "normalize_failed"
)

// VoucherRow is one canonical output record: one row per voucher line item,
// or a single row for vouchers whose payload carried no item list.
// Money fields are nil when the payload had no parseable value.
type VoucherRow struct {
	SourcePDF        string
	ReferenceNumber  string
	InvoiceNumber    string
	InvoiceDate      string
	SupplierName     string
	PayeeName        string
	PurchaseType     string
	StockType        string
	StockSubcategory string
	ItemDescription  string
	NetAmount        *decimal.Decimal
	Remarks          string
	TotalAmount      *decimal.Decimal
	AdvanceTaken     *decimal.Decimal
	PenaltyDeducted  *decimal.Decimal
	NetPayable       *decimal.Decimal
	NetPayableWords  string
	ProjectNo        string
	ProjectTitle     string
	ProjectBalance   *decimal.Decimal
	OverheadDeducted *decimal.Decimal
	PaymentSource    string
	ExpenseHead      string
}

type DocumentRow struct {
	ID          int
	DriveFileID string
	Filename    string
	Hash        string
	Status      string
	PDFRef      string
	JSONRef     string
	LastError   *string
}

type RemoteFile struct {
	ID       string
	Name     string
	MimeType string
	Size     int64
}

// NormalizeFailure records one document the normalizer could not interpret.
// Failures are reported and skipped, never fatal for the batch.
type NormalizeFailure struct {
	SourceName string
	Reason     string
}
